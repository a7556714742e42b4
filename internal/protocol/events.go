// Package protocol defines the messages exchanged with game clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/diffduel/internal/domain"
)

// EventType names an inbound event
type EventType string

// Lobby events
const (
	EventCreateLobby     EventType = "create-lobby"
	EventJoinLobby       EventType = "join-lobby"
	EventRejectCandidate EventType = "reject-candidate"
	EventAcceptCandidate EventType = "accept-candidate"
	EventQuitLobby       EventType = "quit-lobby"
	EventDeleteLobby     EventType = "delete-lobby"
)

// Matchmaking events
const (
	EventCheckUsername     EventType = "check-username"
	EventFindTimedMatch    EventType = "find-timed-match"
	EventAbandonTimedMatch EventType = "abandon-timed-match"
)

// Session events
const (
	EventJoinSession       EventType = "join-session"
	EventUpdateRoster      EventType = "update-roster"
	EventStartTimer        EventType = "start-timer"
	EventStopTimer         EventType = "stop-timer"
	EventChatMessage       EventType = "chat-message"
	EventTimedChatMessage  EventType = "timed-chat-message"
	EventLoadNextRound     EventType = "load-next-timed-round"
	EventLeaveSession      EventType = "leave-session"
	EventLeaveTimedSession EventType = "leave-timed-session"
	EventTimedSessionEnded EventType = "timed-session-ended"
	EventValidateMove      EventType = "validate-move"
)

// Ranking events
const (
	EventSubmitScore     EventType = "submit-score"
	EventGetScores       EventType = "get-scores"
	EventGetAllScores    EventType = "get-all-scores"
	EventResetGameScores EventType = "reset-game-scores"
	EventResetAllScores  EventType = "reset-all-scores"
)

// History events
const (
	EventAddHistory    EventType = "add-history"
	EventGetHistory    EventType = "get-history"
	EventDeleteHistory EventType = "delete-history"
)

// Events raised by the server itself
const (
	EventDisconnect EventType = "disconnect"
	EventTick       EventType = "tick"
)

// Event is an inbound message. ConnectionID is filled in by the transport
// and is empty for events that do not come from a client.
type Event struct {
	Type         EventType       `json:"type"`
	ConnectionID string          `json:"-"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with an encoded payload
func NewEvent(eventType EventType, connectionID string, payload interface{}) (Event, error) {
	ev := Event{Type: eventType, ConnectionID: connectionID}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	ev.Payload = data
	return ev, nil
}

// Decode unmarshals an event payload
func Decode[T any](ev Event) (T, error) {
	var payload T
	if len(ev.Payload) == 0 {
		return payload, fmt.Errorf("%w: %s has no payload", domain.ErrInvalidPayload, ev.Type)
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, ev.Type, err)
	}
	return payload, nil
}

// CreateLobbyPayload opens a lobby
type CreateLobbyPayload struct {
	GameID string `json:"gameId"`
	Room   string `json:"room"`
}

// JoinLobbyPayload puts a candidate in a lobby's waiting line
type JoinLobbyPayload struct {
	GameID   string `json:"gameId"`
	Username string `json:"username"`
}

// LobbyPayload addresses a lobby by game
type LobbyPayload struct {
	GameID string `json:"gameId"`
}

// AcceptCandidatePayload accepts the head of line
type AcceptCandidatePayload struct {
	DestinationPrefix string `json:"destinationPrefix"`
	GameID            string `json:"gameId"`
	Username          string `json:"username"`
}

// UsernamePayload carries a username, scoped to a game when GameID is set
type UsernamePayload struct {
	GameID   string `json:"gameId,omitempty"`
	Username string `json:"username"`
}

// JoinSessionPayload seats a player in a session
type JoinSessionPayload struct {
	Username string           `json:"username"`
	Room     string           `json:"room"`
	GameID   string           `json:"gameId"`
	Mode     domain.TimerMode `json:"mode"`
}

// SubmitScorePayload proposes a finishing time for a leaderboard
type SubmitScorePayload struct {
	GameID   string            `json:"gameId"`
	Mode     domain.PlayMode   `json:"mode"`
	Score    domain.UsersScore `json:"score"`
	GameName string            `json:"gameName"`
}

// ScoresQueryPayload selects a leaderboard
type ScoresQueryPayload struct {
	GameID string          `json:"gameId"`
	Mode   domain.PlayMode `json:"mode"`
}

// UpdateRosterPayload pushes a progress snapshot
type UpdateRosterPayload struct {
	Players []domain.PlayerProgress `json:"players"`
	Room    string                  `json:"room"`
	GameID  string                  `json:"gameId"`
	Mode    domain.TimerMode        `json:"mode"`
}

// TimerPayload addresses a session clock
type TimerPayload struct {
	Room   string           `json:"room"`
	GameID string           `json:"gameId"`
	Mode   domain.TimerMode `json:"mode"`
}

// ChatPayload is a chat line for a session
type ChatPayload struct {
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room"`
	GameID   string `json:"gameId,omitempty"`
}

// RoomPayload addresses a session by room
type RoomPayload struct {
	Room   string `json:"room"`
	GameID string `json:"gameId,omitempty"`
}

// ValidateMovePayload is a click to check against the difference map
type ValidateMovePayload struct {
	Room     string                  `json:"room"`
	GameID   string                  `json:"gameId"`
	Mode     domain.TimerMode        `json:"mode"`
	Username string                  `json:"username"`
	Point    domain.Point            `json:"point"`
	Players  []domain.PlayerProgress `json:"players"`
	GameData domain.GameData         `json:"gameData"`
}
