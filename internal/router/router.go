// Package router binds inbound client events to the matchmaking, session and
// ranking components and computes the resulting broadcasts.
//
// All state is mutated from a single goroutine: Run handles one event to
// completion, effects included, before taking the next.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/matchmaking"
	"github.com/diffduel/internal/protocol"
	"github.com/diffduel/internal/session"
)

const inboundBuffer = 256

// RankingService is the leaderboard store used by the router
type RankingService interface {
	GameExists(ctx context.Context, gameID string) (*domain.RankingRecord, error)
	GetScores(ctx context.Context, gameID string, mode domain.PlayMode) (domain.Top3, error)
	UpdateRanking(ctx context.Context, gameID string, mode domain.PlayMode, candidate domain.UsersScore) (domain.Top3, int, error)
	AllScores(ctx context.Context) ([]domain.RankingRecord, error)
	ResetGameScores(ctx context.Context, gameID string) (*domain.RankingRecord, error)
	ResetAll(ctx context.Context) ([]domain.RankingRecord, error)
	GameIDs(ctx context.Context) ([]string, error)
}

// HistoryService stores finished games
type HistoryService interface {
	Add(ctx context.Context, record domain.HistoryRecord) (bool, error)
	List(ctx context.Context) ([]domain.HistoryRecord, error)
	DeleteAll(ctx context.Context) error
}

// MoveValidator checks a click against a difference map
type MoveValidator interface {
	Validate(game domain.GameData, point domain.Point, players []domain.PlayerProgress) (*domain.Difference, bool)
}

// Deps are the components a Router drives
type Deps struct {
	Sessions  *session.Registry
	Queue     *matchmaking.Queue
	Pool      *matchmaking.TimedPool
	Usernames *matchmaking.UsernameRegistry
	Rankings  RankingService
	History   HistoryService
	Validator MoveValidator
}

type handlerFunc func(ctx context.Context, ev protocol.Event) ([]Effect, error)

// Router routes events to handlers
type Router struct {
	sessions  *session.Registry
	queue     *matchmaking.Queue
	pool      *matchmaking.TimedPool
	usernames *matchmaking.UsernameRegistry
	rankings  RankingService
	history   HistoryService
	validator MoveValidator

	broadcaster Broadcaster
	inbound     chan protocol.Event
	handlers    map[protocol.EventType]handlerFunc
	logger      *slog.Logger

	pick      func(n int) int
	newRoomID func() string
}

// NewRouter creates a router. The broadcaster may be nil when only Handle is
// used.
func NewRouter(deps Deps, broadcaster Broadcaster, logger *slog.Logger) *Router {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	r := &Router{
		sessions:    deps.Sessions,
		queue:       deps.Queue,
		pool:        deps.Pool,
		usernames:   deps.Usernames,
		rankings:    deps.Rankings,
		history:     deps.History,
		validator:   deps.Validator,
		broadcaster: broadcaster,
		inbound:     make(chan protocol.Event, inboundBuffer),
		logger:      logger,
		pick:        rng.Intn,
		newRoomID:   uuid.NewString,
	}

	r.handlers = map[protocol.EventType]handlerFunc{
		protocol.EventCreateLobby:       r.handleCreateLobby,
		protocol.EventJoinLobby:         r.handleJoinLobby,
		protocol.EventRejectCandidate:   r.handleRejectCandidate,
		protocol.EventAcceptCandidate:   r.handleAcceptCandidate,
		protocol.EventQuitLobby:         r.handleQuitLobby,
		protocol.EventDeleteLobby:       r.handleDeleteLobby,
		protocol.EventCheckUsername:     r.handleCheckUsername,
		protocol.EventFindTimedMatch:    r.handleFindTimedMatch,
		protocol.EventAbandonTimedMatch: r.handleAbandonTimedMatch,
		protocol.EventJoinSession:       r.handleJoinSession,
		protocol.EventUpdateRoster:      r.handleUpdateRoster,
		protocol.EventStartTimer:        r.handleStartTimer,
		protocol.EventStopTimer:         r.handleStopTimer,
		protocol.EventChatMessage:       r.handleChatMessage,
		protocol.EventTimedChatMessage:  r.handleTimedChatMessage,
		protocol.EventLoadNextRound:     r.handleLoadNextRound,
		protocol.EventLeaveSession:      r.handleLeaveSession,
		protocol.EventLeaveTimedSession: r.handleLeaveTimedSession,
		protocol.EventTimedSessionEnded: r.handleTimedSessionEnded,
		protocol.EventValidateMove:      r.handleValidateMove,
		protocol.EventSubmitScore:       r.handleSubmitScore,
		protocol.EventGetScores:         r.handleGetScores,
		protocol.EventGetAllScores:      r.handleGetAllScores,
		protocol.EventResetGameScores:   r.handleResetGameScores,
		protocol.EventResetAllScores:    r.handleResetAllScores,
		protocol.EventAddHistory:        r.handleAddHistory,
		protocol.EventGetHistory:        r.handleGetHistory,
		protocol.EventDeleteHistory:     r.handleDeleteHistory,
		protocol.EventDisconnect:        r.handleDisconnect,
		protocol.EventTick:              r.handleTick,
	}
	return r
}

// Dispatch queues an event for the router loop
func (r *Router) Dispatch(ctx context.Context, ev protocol.Event) error {
	select {
	case r.inbound <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles queued events until ctx is cancelled
func (r *Router) Run(ctx context.Context) {
	r.logger.Info("event router started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event router stopping")
			return
		case ev := <-r.inbound:
			effects := r.Handle(ctx, ev)
			if r.broadcaster != nil {
				Deliver(r.broadcaster, effects)
			}
		}
	}
}

// Handle runs the handler of one event and returns its effects. A failed
// handler yields an error message to the sender.
func (r *Router) Handle(ctx context.Context, ev protocol.Event) []Effect {
	handler, ok := r.handlers[ev.Type]
	if !ok {
		return r.failure(ev, fmt.Errorf("%w: %q", domain.ErrUnknownEvent, ev.Type))
	}

	effects, err := handler(ctx, ev)
	if err != nil {
		return r.failure(ev, err)
	}
	return effects
}

func (r *Router) failure(ev protocol.Event, err error) []Effect {
	r.logger.Warn("event failed",
		"event", string(ev.Type),
		"connection_id", ev.ConnectionID,
		"error", err,
	)
	if ev.ConnectionID == "" {
		return nil
	}

	msg := domain.ErrInternalError.Error()
	switch {
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrUnknownEvent),
		errors.Is(err, domain.ErrUnknownMode),
		errors.Is(err, domain.ErrLobbyExists),
		errors.Is(err, domain.ErrNoGames):
		msg = err.Error()
	}
	return []Effect{toConnection(ev.ConnectionID, protocol.MessageError, protocol.ErrorData{
		Event: ev.Type,
		Error: msg,
	})}
}

func lobbyGroup(gameID string) string {
	return "lobby:" + gameID
}
