package router

import (
	"context"
	"fmt"

	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/matchmaking"
	"github.com/diffduel/internal/protocol"
)

func (r *Router) handleFindTimedMatch(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.UsernamePayload](ev)
	if err != nil {
		return nil, err
	}

	if !r.usernames.Reserve(matchmaking.TimedScope, p.Username, ev.ConnectionID) {
		return []Effect{toConnection(ev.ConnectionID, protocol.MessageUsernameStatus, protocol.UsernameStatusData{
			Username:  p.Username,
			Available: false,
		})}, nil
	}

	gameIDs, err := r.rankings.GameIDs(ctx)
	if err != nil {
		r.usernames.Release(matchmaking.TimedScope, p.Username)
		return nil, err
	}
	if len(gameIDs) == 0 {
		r.usernames.Release(matchmaking.TimedScope, p.Username)
		return nil, fmt.Errorf("finding timed match: %w", domain.ErrNoGames)
	}

	pair, ok := r.pool.TryPair(p.Username, ev.ConnectionID)
	if !ok {
		return nil, nil
	}

	gameID := gameIDs[r.pick(len(gameIDs))]
	room := r.newRoomID()
	sess := r.sessions.GetOrCreate(gameID, room, domain.ModeTimed)

	for _, player := range pair {
		if !r.sessions.Join(sess, player.Username, player.ConnectionID) {
			return r.cancelTimedMatch(room, pair), nil
		}
	}

	effects := make([]Effect, 0, 4)
	for i, player := range pair {
		opponent := pair[1-i]
		effects = append(effects,
			joinGroup(player.ConnectionID, sess.Key),
			toConnection(player.ConnectionID, protocol.MessageTimedMatchFound, protocol.TimedMatchData{
				GameID:   gameID,
				Room:     room,
				Username: player.Username,
				Opponent: opponent.Username,
			}),
		)
	}

	r.logger.Info("timed match found",
		"game_id", gameID,
		"room", room,
		"player1", pair[0].Username,
		"player2", pair[1].Username,
	)
	return effects, nil
}

func (r *Router) handleAbandonTimedMatch(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.UsernamePayload](ev)
	if err != nil {
		return nil, err
	}

	username := p.Username
	if c, ok := r.pool.Remove(ev.ConnectionID); ok {
		username = c.Username
	}
	r.usernames.ReleaseHeld(matchmaking.TimedScope, username, ev.ConnectionID)

	return []Effect{toConnection(ev.ConnectionID, protocol.MessageTimedMatchAbandoned, protocol.PeerData{Username: username})}, nil
}

// cancelTimedMatch drops a pairing whose session refused a player. Both
// players lose their reservation and are told the match is off.
func (r *Router) cancelTimedMatch(room string, pair [2]matchmaking.Candidate) []Effect {
	r.sessions.Evict(room)
	r.logger.Warn("timed match cancelled",
		"room", room,
		"player1", pair[0].Username,
		"player2", pair[1].Username,
	)

	effects := make([]Effect, 0, len(pair))
	for _, player := range pair {
		r.usernames.ReleaseHeld(matchmaking.TimedScope, player.Username, player.ConnectionID)
		effects = append(effects, toConnection(player.ConnectionID, protocol.MessageTimedMatchAbandoned,
			protocol.PeerData{Username: player.Username}))
	}
	return effects
}
