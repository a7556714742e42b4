package domain

// MaxRosterSize is the number of players a session accepts
const MaxRosterSize = 2

// Point is a pixel coordinate on a game image
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Difference is one region that differs between the two images
type Difference struct {
	Index  int     `json:"index"`
	Points []Point `json:"points"`
}

// GameData is the difference map of one game
type GameData struct {
	GameID      string       `json:"gameId"`
	Name        string       `json:"name,omitempty"`
	Differences []Difference `json:"differences"`
}

// PlayerProgress tracks what a player has found so far
type PlayerProgress struct {
	Username         string       `json:"username"`
	DifferencesFound []Difference `json:"differencesFound"`
	InvalidMoves     []Point      `json:"invalidMoves"`
}

// RosterEntry binds a username to the connection that joined with it
type RosterEntry struct {
	ConnectionID string `json:"-"`
	Username     string `json:"username"`
}

// Timer is the shared session clock.
// In timed mode Elapsed holds the remaining time.
type Timer struct {
	Elapsed   int       `json:"elapsed"`
	TotalTime int       `json:"totalTime"`
	Mode      TimerMode `json:"mode"`
	IsActive  bool      `json:"isActive"`
}

// Session is a live two-player game
type Session struct {
	GameID  string                     `json:"gameId"`
	Room    string                     `json:"room"`
	Key     string                     `json:"key"`
	Roster  []RosterEntry              `json:"roster"`
	Players map[string]*PlayerProgress `json:"-"`
	Timer   Timer                      `json:"timer"`
}

// HasUsername reports whether username occupies a roster slot
func (s *Session) HasUsername(username string) bool {
	for _, entry := range s.Roster {
		if entry.Username == username {
			return true
		}
	}
	return false
}

// PlayerList returns progress records in roster order
func (s *Session) PlayerList() []PlayerProgress {
	players := make([]PlayerProgress, 0, len(s.Roster))
	for _, entry := range s.Roster {
		if p, ok := s.Players[entry.Username]; ok {
			players = append(players, *p)
		}
	}
	return players
}

// ConnectionIDs returns the connections in the roster
func (s *Session) ConnectionIDs() []string {
	ids := make([]string, 0, len(s.Roster))
	for _, entry := range s.Roster {
		ids = append(ids, entry.ConnectionID)
	}
	return ids
}
