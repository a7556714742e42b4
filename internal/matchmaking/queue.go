// Package matchmaking pairs players before a session starts: open lobbies
// with a waiting line, the timed quick-match pool and username reservations.
//
// None of the types here are safe for concurrent use; they are owned by the
// router loop.
package matchmaking

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/diffduel/internal/domain"
)

// Candidate is a player waiting to be matched
type Candidate struct {
	ConnectionID string `json:"-"`
	Username     string `json:"username"`
}

// Ticket is an open lobby. Its waiting line is strictly FIFO.
type Ticket struct {
	GameID              string
	Room                string
	CreatorConnectionID string
	WaitingLine         []Candidate
}

// Head returns the first candidate in line
func (t *Ticket) Head() (Candidate, bool) {
	if len(t.WaitingLine) == 0 {
		return Candidate{}, false
	}
	return t.WaitingLine[0], true
}

// EnqueueResult tells the caller whether the creator must hear about a new
// head of line
type EnqueueResult struct {
	CreatorConnectionID string
	NotifyCreator       bool
	Head                Candidate
	// Existing is set when the connection was already waiting. The line is
	// left unchanged.
	Existing *Candidate
}

// LineChange describes the state of a waiting line after a removal. Next is
// nil when the line is empty.
type LineChange struct {
	CreatorConnectionID string
	NotifyCreator       bool
	Next                *Candidate
}

// RejectResult is returned by Reject
type RejectResult struct {
	LineChange
	Rejected Candidate
}

// QuitResult is returned by Quit
type QuitResult struct {
	LineChange
	Removed Candidate
	WasHead bool
}

// AcceptResult carries the session addresses handed to both players
type AcceptResult struct {
	GameID              string
	Room                int
	CreatorConnectionID string
	CreatorAddress      string
	Candidate           Candidate
	CandidateAddress    string
	Remaining           []Candidate
}

// DisconnectResult describes what a dropped connection did to a lobby.
// Exactly one of Closed or Quit is set.
type DisconnectResult struct {
	GameID string
	Closed *Ticket
	Quit   *QuitResult
}

// Queue holds open lobbies keyed by game id
type Queue struct {
	tickets      map[string]*Ticket
	roomCounters map[string]int
	logger       *slog.Logger
}

// NewQueue creates an empty lobby queue
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{
		tickets:      make(map[string]*Ticket),
		roomCounters: make(map[string]int),
		logger:       logger,
	}
}

// Ticket returns the open lobby of a game
func (q *Queue) Ticket(gameID string) (*Ticket, bool) {
	t, ok := q.tickets[gameID]
	return t, ok
}

// Len returns the number of open lobbies
func (q *Queue) Len() int {
	return len(q.tickets)
}

// CreateTicket opens a lobby for a game
func (q *Queue) CreateTicket(gameID, room, creatorConnectionID string) error {
	if _, ok := q.tickets[gameID]; ok {
		return domain.ErrLobbyExists
	}
	q.tickets[gameID] = &Ticket{
		GameID:              gameID,
		Room:                room,
		CreatorConnectionID: creatorConnectionID,
		WaitingLine:         []Candidate{},
	}
	q.logger.Debug("lobby created", "game_id", gameID, "room", room)
	return nil
}

// Enqueue appends a candidate to a lobby's waiting line. The creator is only
// notified when the candidate lands at the head.
func (q *Queue) Enqueue(gameID string, candidate Candidate) (EnqueueResult, error) {
	t, ok := q.tickets[gameID]
	if !ok {
		return EnqueueResult{}, domain.ErrLobbyNotFound
	}

	res := EnqueueResult{CreatorConnectionID: t.CreatorConnectionID}
	for i := range t.WaitingLine {
		if t.WaitingLine[i].ConnectionID == candidate.ConnectionID {
			existing := t.WaitingLine[i]
			res.Existing = &existing
			res.Head, _ = t.Head()
			return res, nil
		}
	}

	res.NotifyCreator = len(t.WaitingLine) == 0
	t.WaitingLine = append(t.WaitingLine, candidate)
	res.Head, _ = t.Head()
	return res, nil
}

// Reject pops the head candidate
func (q *Queue) Reject(gameID string) (RejectResult, error) {
	t, ok := q.tickets[gameID]
	if !ok {
		return RejectResult{}, domain.ErrLobbyNotFound
	}
	head, ok := t.Head()
	if !ok {
		return RejectResult{}, domain.ErrEmptyLine
	}
	t.WaitingLine = t.WaitingLine[1:]

	return RejectResult{
		LineChange: lineChange(t, true),
		Rejected:   head,
	}, nil
}

// Accept pairs the creator with the head candidate and closes the lobby.
// Each accept for a game gets a fresh room number.
func (q *Queue) Accept(gameID, destinationPrefix, creatorUsername string) (AcceptResult, error) {
	t, ok := q.tickets[gameID]
	if !ok {
		return AcceptResult{}, domain.ErrLobbyNotFound
	}
	head, ok := t.Head()
	if !ok {
		return AcceptResult{}, domain.ErrEmptyLine
	}

	q.roomCounters[gameID]++
	room := q.roomCounters[gameID]
	delete(q.tickets, gameID)

	remaining := make([]Candidate, len(t.WaitingLine)-1)
	copy(remaining, t.WaitingLine[1:])

	q.logger.Debug("lobby accepted", "game_id", gameID, "room", room, "candidate", head.Username)
	return AcceptResult{
		GameID:              gameID,
		Room:                room,
		CreatorConnectionID: t.CreatorConnectionID,
		CreatorAddress:      sessionAddress(destinationPrefix, gameID, room, creatorUsername),
		Candidate:           head,
		CandidateAddress:    sessionAddress(destinationPrefix, gameID, room, head.Username),
		Remaining:           remaining,
	}, nil
}

// Quit removes a candidate from a lobby's waiting line. The boolean is false
// when the connection was not waiting there.
func (q *Queue) Quit(gameID, connectionID string) (QuitResult, bool, error) {
	t, ok := q.tickets[gameID]
	if !ok {
		return QuitResult{}, false, domain.ErrLobbyNotFound
	}
	res, found := quit(t, connectionID)
	return res, found, nil
}

// DeleteTicket closes a lobby regardless of its waiting line
func (q *Queue) DeleteTicket(gameID string) (*Ticket, error) {
	t, ok := q.tickets[gameID]
	if !ok {
		return nil, domain.ErrLobbyNotFound
	}
	delete(q.tickets, gameID)
	q.logger.Debug("lobby deleted", "game_id", gameID)
	return t, nil
}

// Disconnect removes every trace of a connection: lobbies it created are
// closed and it leaves every waiting line it stood in.
func (q *Queue) Disconnect(connectionID string) []DisconnectResult {
	gameIDs := make([]string, 0, len(q.tickets))
	for id := range q.tickets {
		gameIDs = append(gameIDs, id)
	}
	sort.Strings(gameIDs)

	var results []DisconnectResult
	for _, id := range gameIDs {
		t := q.tickets[id]
		if t.CreatorConnectionID == connectionID {
			delete(q.tickets, id)
			results = append(results, DisconnectResult{GameID: id, Closed: t})
			continue
		}
		if res, found := quit(t, connectionID); found {
			res := res
			results = append(results, DisconnectResult{GameID: id, Quit: &res})
		}
	}
	return results
}

func quit(t *Ticket, connectionID string) (QuitResult, bool) {
	for i, c := range t.WaitingLine {
		if c.ConnectionID != connectionID {
			continue
		}
		t.WaitingLine = append(t.WaitingLine[:i], t.WaitingLine[i+1:]...)

		wasHead := i == 0
		return QuitResult{
			LineChange: lineChange(t, wasHead),
			Removed:    c,
			WasHead:    wasHead,
		}, true
	}
	return QuitResult{}, false
}

// lineChange reports the new head to the creator when the head moved, and
// always reports an empty line.
func lineChange(t *Ticket, headMoved bool) LineChange {
	change := LineChange{CreatorConnectionID: t.CreatorConnectionID}
	if next, ok := t.Head(); ok {
		change.Next = &next
		change.NotifyCreator = headMoved
	} else {
		change.NotifyCreator = true
	}
	return change
}

func sessionAddress(prefix, gameID string, room int, username string) string {
	return fmt.Sprintf("%s/multiPlayer/%s/%d/%s", strings.TrimRight(prefix, "/"), gameID, room, username)
}
