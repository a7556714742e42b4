package router

import (
	"context"
	"errors"

	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/matchmaking"
	"github.com/diffduel/internal/protocol"
)

func (r *Router) handleCreateLobby(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.CreateLobbyPayload](ev)
	if err != nil {
		return nil, err
	}
	if err := r.queue.CreateTicket(p.GameID, p.Room, ev.ConnectionID); err != nil {
		return nil, err
	}

	return []Effect{
		joinGroup(ev.ConnectionID, lobbyGroup(p.GameID)),
		toAll(protocol.MessageLobbyCreated, protocol.LobbyData{GameID: p.GameID, Room: p.Room}),
	}, nil
}

func (r *Router) handleJoinLobby(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.JoinLobbyPayload](ev)
	if err != nil {
		return nil, err
	}

	if !r.usernames.Reserve(p.GameID, p.Username, ev.ConnectionID) {
		return []Effect{toConnection(ev.ConnectionID, protocol.MessageUsernameStatus, protocol.UsernameStatusData{
			GameID:    p.GameID,
			Username:  p.Username,
			Available: false,
		})}, nil
	}

	res, err := r.queue.Enqueue(p.GameID, matchmaking.Candidate{ConnectionID: ev.ConnectionID, Username: p.Username})
	if errors.Is(err, domain.ErrLobbyNotFound) {
		r.usernames.Release(p.GameID, p.Username)
		return []Effect{toConnection(ev.ConnectionID, protocol.MessageLobbyGone, protocol.LobbyData{GameID: p.GameID})}, nil
	}
	if err != nil {
		return nil, err
	}
	if res.Existing != nil {
		if res.Existing.Username != p.Username {
			r.usernames.ReleaseHeld(p.GameID, p.Username, ev.ConnectionID)
		}
		return []Effect{toConnection(ev.ConnectionID, protocol.MessageLobbyJoined,
			protocol.CandidateData{GameID: p.GameID, Username: res.Existing.Username})}, nil
	}

	effects := []Effect{
		joinGroup(ev.ConnectionID, lobbyGroup(p.GameID)),
		toConnection(ev.ConnectionID, protocol.MessageLobbyJoined, protocol.CandidateData{GameID: p.GameID, Username: p.Username}),
	}
	if res.NotifyCreator {
		effects = append(effects, toConnection(res.CreatorConnectionID, protocol.MessageNextCandidate,
			protocol.CandidateData{GameID: p.GameID, Username: res.Head.Username}))
	}
	return effects, nil
}

func (r *Router) handleRejectCandidate(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.LobbyPayload](ev)
	if err != nil {
		return nil, err
	}

	if !r.isCreator(p.GameID, ev.ConnectionID) {
		return nil, nil
	}
	res, err := r.queue.Reject(p.GameID)
	if err != nil {
		return ignoreAbsent(err)
	}
	r.usernames.Release(p.GameID, res.Rejected.Username)

	effects := []Effect{
		leaveGroup(res.Rejected.ConnectionID, lobbyGroup(p.GameID)),
		toConnection(res.Rejected.ConnectionID, protocol.MessageCandidateRejected,
			protocol.CandidateData{GameID: p.GameID, Username: res.Rejected.Username}),
	}
	return append(effects, lineChangeEffects(p.GameID, res.LineChange)...), nil
}

func (r *Router) handleAcceptCandidate(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.AcceptCandidatePayload](ev)
	if err != nil {
		return nil, err
	}

	if !r.isCreator(p.GameID, ev.ConnectionID) {
		return nil, nil
	}
	res, err := r.queue.Accept(p.GameID, p.DestinationPrefix, p.Username)
	if err != nil {
		return ignoreAbsent(err)
	}
	r.usernames.ReleaseGame(p.GameID)

	return []Effect{
		toConnection(res.CreatorConnectionID, protocol.MessageCandidateAccepted,
			protocol.AcceptedData{GameID: res.GameID, Room: res.Room, Address: res.CreatorAddress}),
		toConnection(res.Candidate.ConnectionID, protocol.MessageCandidateAccepted,
			protocol.AcceptedData{GameID: res.GameID, Room: res.Room, Address: res.CandidateAddress}),
		toAll(protocol.MessageLobbyDeleted, protocol.LobbyData{GameID: p.GameID}),
		toAll(protocol.MessageLobbyClosed, protocol.LobbyData{GameID: p.GameID}),
		closeGroup(lobbyGroup(p.GameID)),
	}, nil
}

func (r *Router) handleQuitLobby(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.LobbyPayload](ev)
	if err != nil {
		return nil, err
	}

	res, found, err := r.queue.Quit(p.GameID, ev.ConnectionID)
	if err != nil {
		return ignoreAbsent(err)
	}
	if !found {
		return nil, nil
	}
	r.usernames.Release(p.GameID, res.Removed.Username)

	effects := []Effect{leaveGroup(ev.ConnectionID, lobbyGroup(p.GameID))}
	return append(effects, lineChangeEffects(p.GameID, res.LineChange)...), nil
}

func (r *Router) handleDeleteLobby(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.LobbyPayload](ev)
	if err != nil {
		return nil, err
	}

	if !r.isCreator(p.GameID, ev.ConnectionID) {
		return nil, nil
	}
	t, _ := r.queue.Ticket(p.GameID)
	if _, err := r.queue.DeleteTicket(p.GameID); err != nil {
		return ignoreAbsent(err)
	}
	r.usernames.ReleaseGame(p.GameID)

	data := protocol.LobbyData{GameID: p.GameID, Room: t.Room}
	return []Effect{
		toGroup(lobbyGroup(p.GameID), protocol.MessageLobbyDeleted, data),
		toAll(protocol.MessageLobbyClosed, data),
		toAll(protocol.MessageCreatorLeft, data),
		closeGroup(lobbyGroup(p.GameID)),
	}, nil
}

func (r *Router) handleCheckUsername(_ context.Context, ev protocol.Event) ([]Effect, error) {
	p, err := protocol.Decode[protocol.UsernamePayload](ev)
	if err != nil {
		return nil, err
	}

	scope := p.GameID
	if scope == "" {
		scope = matchmaking.TimedScope
	}
	available := r.usernames.Reserve(scope, p.Username, ev.ConnectionID)

	return []Effect{toConnection(ev.ConnectionID, protocol.MessageUsernameStatus, protocol.UsernameStatusData{
		GameID:    p.GameID,
		Username:  p.Username,
		Available: available,
	})}, nil
}

// isCreator reports whether connectionID owns the open lobby of gameID.
// Only the creator may reject, accept or delete.
func (r *Router) isCreator(gameID, connectionID string) bool {
	t, ok := r.queue.Ticket(gameID)
	return ok && t.CreatorConnectionID == connectionID
}

// lineChangeEffects tells a lobby creator about its new head of line
func lineChangeEffects(gameID string, change matchmaking.LineChange) []Effect {
	if !change.NotifyCreator {
		return nil
	}
	if change.Next == nil {
		return []Effect{toConnection(change.CreatorConnectionID, protocol.MessageLineEmpty, protocol.LobbyData{GameID: gameID})}
	}
	return []Effect{toConnection(change.CreatorConnectionID, protocol.MessageNextCandidate,
		protocol.CandidateData{GameID: gameID, Username: change.Next.Username})}
}

// ignoreAbsent turns not-found outcomes into a silent no-op
func ignoreAbsent(err error) ([]Effect, error) {
	if domain.IsNotFoundError(err) || errors.Is(err, domain.ErrEmptyLine) {
		return nil, nil
	}
	return nil, err
}
