package router

import (
	"context"

	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/matchmaking"
	"github.com/diffduel/internal/protocol"
	"github.com/diffduel/internal/session"
)

func (r *Router) handleJoinSession(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.JoinSessionPayload](ev)
	if err != nil {
		return nil, err
	}
	if err := p.Mode.Validate(); err != nil {
		return nil, err
	}

	sess := r.sessions.GetOrCreate(p.GameID, p.Room, p.Mode)
	if !r.sessions.Join(sess, p.Username, ev.ConnectionID) {
		return []Effect{toConnection(ev.ConnectionID, protocol.MessageSessionFull,
			protocol.LobbyData{GameID: p.GameID, Room: p.Room})}, nil
	}

	return []Effect{
		joinGroup(ev.ConnectionID, sess.Key),
		rosterEffect(sess),
	}, nil
}

func (r *Router) handleUpdateRoster(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.UpdateRosterPayload](ev)
	if err != nil {
		return nil, err
	}
	if err := p.Mode.Validate(); err != nil {
		return nil, err
	}

	if err := r.sessions.SetPlayers(p.Players, p.Room, p.GameID, p.Mode); err != nil {
		return ignoreAbsent(err)
	}
	sess, _ := r.sessions.Get(p.Room, p.GameID, p.Mode)
	return []Effect{rosterEffect(sess)}, nil
}

func (r *Router) handleStartTimer(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.TimerPayload](ev)
	if err != nil {
		return nil, err
	}
	if err := p.Mode.Validate(); err != nil {
		return nil, err
	}
	return ignoreAbsent(r.sessions.StartTimer(p.Room, p.GameID, p.Mode))
}

func (r *Router) handleStopTimer(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.TimerPayload](ev)
	if err != nil {
		return nil, err
	}
	if err := p.Mode.Validate(); err != nil {
		return nil, err
	}
	return ignoreAbsent(r.sessions.StopTimer(p.Room, p.GameID, p.Mode))
}

func (r *Router) handleChatMessage(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.ChatPayload](ev)
	if err != nil {
		return nil, err
	}
	key := session.Key(p.Room, p.GameID, domain.ModeClassic)
	return []Effect{toGroupExcept(key, ev.ConnectionID, protocol.MessageChat,
		protocol.ChatData{Username: p.Username, Message: p.Message})}, nil
}

func (r *Router) handleTimedChatMessage(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.ChatPayload](ev)
	if err != nil {
		return nil, err
	}
	key := session.Key(p.Room, "", domain.ModeTimed)
	return []Effect{toGroupExcept(key, ev.ConnectionID, protocol.MessageChat,
		protocol.ChatData{Username: p.Username, Message: p.Message})}, nil
}

func (r *Router) handleLoadNextRound(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.RoomPayload](ev)
	if err != nil {
		return nil, err
	}

	elapsed, err := r.sessions.AddBonusTime(p.Room)
	if err != nil {
		return ignoreAbsent(err)
	}
	key := session.Key(p.Room, "", domain.ModeTimed)
	return []Effect{toGroup(key, protocol.MessageNextRound, protocol.NextRoundData{GameID: p.GameID, Elapsed: elapsed})}, nil
}

func (r *Router) handleLeaveSession(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.RoomPayload](ev)
	if err != nil {
		return nil, err
	}

	results := r.sessions.Leave(p.Room, p.GameID, ev.ConnectionID)
	effects := []Effect{toConnection(ev.ConnectionID, protocol.MessageLeft, protocol.LobbyData{GameID: p.GameID, Room: p.Room})}
	return append(effects, r.departureEffects(ev.ConnectionID, results)...), nil
}

func (r *Router) handleLeaveTimedSession(ctx context.Context, ev protocol.Event) ([]Effect, error) {
	return r.handleLeaveSession(ctx, ev)
}

func (r *Router) handleTimedSessionEnded(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.RoomPayload](ev)
	if err != nil {
		return nil, err
	}

	effects := []Effect{toConnection(ev.ConnectionID, protocol.MessageLeft, protocol.LobbyData{GameID: p.GameID, Room: p.Room})}
	sess, ok := r.sessions.Evict(p.Room)
	if !ok {
		return effects, nil
	}
	for _, entry := range sess.Roster {
		r.usernames.Release(matchmaking.TimedScope, entry.Username)
	}

	return append(effects,
		toGroupExcept(sess.Key, ev.ConnectionID, protocol.MessageSessionEnded, protocol.LobbyData{GameID: sess.GameID, Room: sess.Room}),
		closeGroup(sess.Key),
	), nil
}

func (r *Router) handleValidateMove(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.ValidateMovePayload](ev)
	if err != nil {
		return nil, err
	}
	if err := p.Mode.Validate(); err != nil {
		return nil, err
	}

	key := session.Key(p.Room, p.GameID, p.Mode)
	diff, ok := r.validator.Validate(p.GameData, p.Point, p.Players)
	if !ok {
		return []Effect{toGroup(key, protocol.MessageMoveInvalid, protocol.MoveData{Username: p.Username, Point: p.Point})}, nil
	}
	return []Effect{toGroup(key, protocol.MessageMoveValid, protocol.MoveData{
		Username:   p.Username,
		Point:      p.Point,
		Difference: diff,
	})}, nil
}

func (r *Router) handleTick(_ context.Context, _ protocol.Event) ([]Effect, error) {
	updates := r.sessions.Tick()
	effects := make([]Effect, 0, len(updates))
	for _, u := range updates {
		effects = append(effects, toGroup(u.Key, protocol.MessageTimer, protocol.TimerData{
			Elapsed:  u.Elapsed,
			IsActive: u.IsActive,
		}))
	}
	return effects, nil
}

// departureEffects moves a connection out of the session groups it left and
// tells the remaining player
func (r *Router) departureEffects(connectionID string, results []session.LeaveResult) []Effect {
	var effects []Effect
	for _, res := range results {
		scope := res.GameID
		if res.Mode == domain.ModeTimed {
			scope = matchmaking.TimedScope
		}
		r.usernames.Release(scope, res.Username)

		effects = append(effects, leaveGroup(connectionID, res.Key))
		if res.Ended {
			effects = append(effects, closeGroup(res.Key))
			continue
		}
		effects = append(effects, toGroup(res.Key, protocol.MessagePeerLeft, protocol.PeerData{Username: res.Username}))
	}
	return effects
}

func rosterEffect(sess *domain.Session) Effect {
	return toGroup(sess.Key, protocol.MessageRosterUpdated, protocol.RosterData{
		Room:    sess.Room,
		GameID:  sess.GameID,
		Mode:    sess.Timer.Mode,
		Players: sess.PlayerList(),
	})
}
