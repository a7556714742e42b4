package domain

import "errors"

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrLobbyNotFound   = errors.New("lobby not found")
	ErrLobbyExists     = errors.New("lobby already open for this game")
	ErrEmptyLine       = errors.New("waiting line is empty")
	ErrRankingNotFound = errors.New("ranking not found")
	ErrNoGames         = errors.New("no game available")
	ErrUnknownMode     = errors.New("unknown mode")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownEvent    = errors.New("unknown event type")
	ErrPersistence     = errors.New("persistence unavailable")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrLobbyNotFound) ||
		errors.Is(err, ErrRankingNotFound)
}
