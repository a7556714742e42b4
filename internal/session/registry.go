// Package session owns live game sessions and their shared timers.
//
// A Registry is not safe for concurrent use: it is owned by the router loop,
// which handles one event at a time.
package session

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/domain"
)

// TimerUpdate is emitted for every session a tick moved
type TimerUpdate struct {
	Key      string
	Mode     domain.TimerMode
	Elapsed  int
	IsActive bool
	Expired  bool
}

// LeaveResult describes a roster entry removed by Leave
type LeaveResult struct {
	Key      string
	GameID   string
	Mode     domain.TimerMode
	Username string
	Ended    bool
}

// Key builds the registry key of a session. Timed sessions are keyed by
// room alone.
func Key(room, gameID string, mode domain.TimerMode) string {
	if mode == domain.ModeTimed {
		return fmt.Sprintf("timed:%s", room)
	}
	return fmt.Sprintf("classic:%s:%s", room, gameID)
}

// Registry holds active sessions by key
type Registry struct {
	sessions map[string]*domain.Session
	config   *config.GameConfig
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry
func NewRegistry(cfg *config.GameConfig, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*domain.Session),
		config:   cfg,
		logger:   logger,
	}
}

// Get returns a session if it exists
func (r *Registry) Get(room, gameID string, mode domain.TimerMode) (*domain.Session, bool) {
	sess, ok := r.sessions[Key(room, gameID, mode)]
	return sess, ok
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return len(r.sessions)
}

// GetOrCreate returns the session for the key, registering a fresh one with
// a running timer when the key is unseen.
func (r *Registry) GetOrCreate(gameID, room string, mode domain.TimerMode) *domain.Session {
	key := Key(room, gameID, mode)
	if sess, ok := r.sessions[key]; ok {
		return sess
	}

	sess := &domain.Session{
		GameID:  gameID,
		Room:    room,
		Key:     key,
		Roster:  make([]domain.RosterEntry, 0, domain.MaxRosterSize),
		Players: make(map[string]*domain.PlayerProgress),
		Timer: domain.Timer{
			Elapsed:  0,
			Mode:     mode,
			IsActive: true,
		},
	}
	if mode == domain.ModeTimed {
		// a timed clock at zero would expire on the next tick
		sess.Timer.Elapsed = r.clamp(r.config.InitialTime)
	}
	r.sessions[key] = sess

	r.logger.Debug("session created", "key", key, "game_id", gameID, "mode", string(mode))
	return sess
}

// Join adds a player to the roster. A username already seated by the same
// connection is accepted without change; a full roster or a username held by
// another connection is refused.
func (r *Registry) Join(sess *domain.Session, username, connectionID string) bool {
	for _, entry := range sess.Roster {
		if entry.Username == username {
			return entry.ConnectionID == connectionID
		}
	}
	if len(sess.Roster) >= domain.MaxRosterSize {
		return false
	}

	sess.Roster = append(sess.Roster, domain.RosterEntry{
		ConnectionID: connectionID,
		Username:     username,
	})
	sess.Players[username] = newProgress(username)

	r.logger.Debug("player joined session", "key", sess.Key, "username", username)
	return true
}

// SetPlayers replaces the progress snapshot of a session. Entries for
// usernames outside the roster are ignored.
func (r *Registry) SetPlayers(players []domain.PlayerProgress, room, gameID string, mode domain.TimerMode) error {
	sess, ok := r.Get(room, gameID, mode)
	if !ok {
		return domain.ErrSessionNotFound
	}

	next := make(map[string]*domain.PlayerProgress, len(sess.Roster))
	for i := range players {
		p := players[i]
		if !sess.HasUsername(p.Username) {
			continue
		}
		next[p.Username] = &p
	}
	for _, entry := range sess.Roster {
		if _, ok := next[entry.Username]; !ok {
			next[entry.Username] = newProgress(entry.Username)
		}
	}
	sess.Players = next
	return nil
}

// StartTimer activates a session clock. Timed clocks restart from the
// configured initial time.
func (r *Registry) StartTimer(room, gameID string, mode domain.TimerMode) error {
	sess, ok := r.Get(room, gameID, mode)
	if !ok {
		return domain.ErrSessionNotFound
	}

	sess.Timer.IsActive = true
	switch sess.Timer.Mode {
	case domain.ModeTimed:
		sess.Timer.Elapsed = r.clamp(r.config.InitialTime)
		sess.Timer.TotalTime = 0
	case domain.ModeClassic:
	default:
		return sess.Timer.Mode.Validate()
	}
	return nil
}

// StopTimer freezes a session clock
func (r *Registry) StopTimer(room, gameID string, mode domain.TimerMode) error {
	sess, ok := r.Get(room, gameID, mode)
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Timer.IsActive = false
	return nil
}

// AddBonusTime credits the discover bonus to a timed session
func (r *Registry) AddBonusTime(room string) (int, error) {
	sess, ok := r.sessions[Key(room, "", domain.ModeTimed)]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	sess.Timer.Elapsed = r.clamp(sess.Timer.Elapsed + r.config.DiscoverBonus)
	return sess.Timer.Elapsed, nil
}

// Leave removes a connection from the classic session of (room, gameID) and
// from the timed session of room. Sessions left empty are dropped.
func (r *Registry) Leave(room, gameID, connectionID string) []LeaveResult {
	var results []LeaveResult
	for _, key := range []string{Key(room, gameID, domain.ModeClassic), Key(room, gameID, domain.ModeTimed)} {
		sess, ok := r.sessions[key]
		if !ok {
			continue
		}
		if res, ok := r.removeConnection(sess, connectionID); ok {
			results = append(results, res)
		}
	}
	return results
}

// LeaveAll removes a connection from every session it sits in
func (r *Registry) LeaveAll(connectionID string) []LeaveResult {
	var results []LeaveResult
	for _, key := range r.sortedKeys() {
		if res, ok := r.removeConnection(r.sessions[key], connectionID); ok {
			results = append(results, res)
		}
	}
	return results
}

// End drops a session outright
func (r *Registry) End(room, gameID string, mode domain.TimerMode) (*domain.Session, bool) {
	key := Key(room, gameID, mode)
	sess, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
		r.logger.Debug("session ended", "key", key)
	}
	return sess, ok
}

// Evict drops a timed session once its round is over
func (r *Registry) Evict(room string) (*domain.Session, bool) {
	return r.End(room, "", domain.ModeTimed)
}

// Tick advances every active clock by one step. Classic clocks count up,
// timed clocks count down and stop at zero.
func (r *Registry) Tick() []TimerUpdate {
	var updates []TimerUpdate
	for _, key := range r.sortedKeys() {
		sess := r.sessions[key]
		timer := &sess.Timer
		if !timer.IsActive {
			continue
		}

		expired := false
		switch timer.Mode {
		case domain.ModeClassic:
			timer.Elapsed++
		case domain.ModeTimed:
			timer.Elapsed--
			if timer.Elapsed <= 0 {
				timer.Elapsed = 0
				timer.IsActive = false
				expired = true
			}
		default:
			r.logger.Error("session with unknown timer mode", "key", key, "mode", string(timer.Mode))
			continue
		}
		timer.TotalTime++

		updates = append(updates, TimerUpdate{
			Key:      key,
			Mode:     timer.Mode,
			Elapsed:  timer.Elapsed,
			IsActive: timer.IsActive,
			Expired:  expired,
		})
	}
	return updates
}

func (r *Registry) removeConnection(sess *domain.Session, connectionID string) (LeaveResult, bool) {
	for i, entry := range sess.Roster {
		if entry.ConnectionID != connectionID {
			continue
		}
		sess.Roster = append(sess.Roster[:i], sess.Roster[i+1:]...)
		delete(sess.Players, entry.Username)

		res := LeaveResult{Key: sess.Key, GameID: sess.GameID, Mode: sess.Timer.Mode, Username: entry.Username}
		if len(sess.Roster) == 0 {
			delete(r.sessions, sess.Key)
			res.Ended = true
		}
		r.logger.Debug("player left session", "key", sess.Key, "username", entry.Username, "ended", res.Ended)
		return res, true
	}
	return LeaveResult{}, false
}

func (r *Registry) clamp(t int) int {
	if t < 0 {
		return 0
	}
	if r.config.MaxTime > 0 && t > r.config.MaxTime {
		return r.config.MaxTime
	}
	return t
}

func (r *Registry) sortedKeys() []string {
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newProgress(username string) *domain.PlayerProgress {
	return &domain.PlayerProgress{
		Username:         username,
		DifferencesFound: []domain.Difference{},
		InvalidMoves:     []domain.Point{},
	}
}
