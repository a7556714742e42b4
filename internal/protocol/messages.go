package protocol

import (
	"time"

	"github.com/diffduel/internal/domain"
)

// MessageType names an outbound message
type MessageType string

const (
	MessageLobbyCreated        MessageType = "lobby-created"
	MessageLobbyJoined         MessageType = "lobby-joined"
	MessageLobbyGone           MessageType = "lobby-gone"
	MessageNextCandidate       MessageType = "next-candidate"
	MessageLineEmpty           MessageType = "line-empty"
	MessageCandidateRejected   MessageType = "candidate-rejected"
	MessageCandidateAccepted   MessageType = "candidate-accepted"
	MessageLobbyDeleted        MessageType = "lobby-deleted"
	MessageLobbyClosed         MessageType = "lobby-closed"
	MessageCreatorLeft         MessageType = "creator-left"
	MessageUsernameStatus      MessageType = "username-status"
	MessageTimedMatchFound     MessageType = "timed-match-found"
	MessageTimedMatchAbandoned MessageType = "timed-match-abandoned"
	MessageRosterUpdated       MessageType = "roster-updated"
	MessageSessionFull         MessageType = "session-full"
	MessageNewRecord           MessageType = "new-record"
	MessageChat                MessageType = "chat-message"
	MessageScores              MessageType = "scores"
	MessageAllScores           MessageType = "all-scores"
	MessageScoresReset         MessageType = "scores-reset"
	MessageTimer               MessageType = "timer"
	MessageNextRound           MessageType = "next-round"
	MessageLeft                MessageType = "left"
	MessagePeerLeft            MessageType = "peer-left"
	MessageSessionEnded        MessageType = "session-ended"
	MessageMoveValid           MessageType = "move-valid"
	MessageMoveInvalid         MessageType = "move-invalid"
	MessageHistory             MessageType = "history"
	MessageHistoryUpdated      MessageType = "history-updated"
	MessageError               MessageType = "error"
)

// Message is an outbound envelope
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage stamps an outbound message
func NewMessage(t MessageType, data interface{}) Message {
	return Message{
		Type:      t,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// LobbyData identifies a lobby
type LobbyData struct {
	GameID string `json:"gameId"`
	Room   string `json:"room,omitempty"`
}

// CandidateData names a candidate of a lobby
type CandidateData struct {
	GameID   string `json:"gameId"`
	Username string `json:"username,omitempty"`
}

// AcceptedData tells a player where the session lives
type AcceptedData struct {
	GameID  string `json:"gameId"`
	Room    int    `json:"room"`
	Address string `json:"address"`
}

// UsernameStatusData answers a username check
type UsernameStatusData struct {
	GameID    string `json:"gameId,omitempty"`
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// TimedMatchData announces a quick-match pairing
type TimedMatchData struct {
	GameID   string `json:"gameId"`
	Room     string `json:"room"`
	Username string `json:"username"`
	Opponent string `json:"opponent"`
}

// RosterData is the current roster of a session
type RosterData struct {
	Room    string                  `json:"room"`
	GameID  string                  `json:"gameId"`
	Mode    domain.TimerMode        `json:"mode"`
	Players []domain.PlayerProgress `json:"players"`
}

// NewRecordData announces a leaderboard change
type NewRecordData struct {
	GameID   string            `json:"gameId"`
	GameName string            `json:"gameName,omitempty"`
	Mode     domain.PlayMode   `json:"mode"`
	Score    domain.UsersScore `json:"score"`
	Rank     int               `json:"rank"`
	Scores   domain.Top3       `json:"scores"`
}

// ChatData is one chat line
type ChatData struct {
	Username string `json:"username,omitempty"`
	Message  string `json:"message"`
	System   bool   `json:"system,omitempty"`
}

// ScoresData is a single leaderboard
type ScoresData struct {
	GameID string          `json:"gameId"`
	Mode   domain.PlayMode `json:"mode"`
	Scores domain.Top3     `json:"scores"`
}

// TimerData is a clock reading
type TimerData struct {
	Elapsed  int  `json:"elapsed"`
	IsActive bool `json:"isActive"`
}

// NextRoundData starts the next timed round
type NextRoundData struct {
	GameID  string `json:"gameId"`
	Elapsed int    `json:"elapsed"`
}

// PeerData names a player that left
type PeerData struct {
	Username string `json:"username,omitempty"`
}

// MoveData is a validated click
type MoveData struct {
	Username   string             `json:"username"`
	Point      domain.Point       `json:"point"`
	Difference *domain.Difference `json:"difference,omitempty"`
}

// ErrorData reports a failed request
type ErrorData struct {
	Event EventType `json:"event,omitempty"`
	Error string    `json:"error"`
}
