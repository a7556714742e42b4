package matchmaking

// TimedScope is the reservation scope shared by all timed-mode players
const TimedScope = "timed"

// UsernameRegistry tracks the usernames claimed per game, and which
// connection claimed each of them.
type UsernameRegistry struct {
	reserved map[string]map[string]string
}

// NewUsernameRegistry creates an empty registry
func NewUsernameRegistry() *UsernameRegistry {
	return &UsernameRegistry{reserved: make(map[string]map[string]string)}
}

// Reserve claims username in gameID for a connection. It reports false when
// another connection already holds it.
func (u *UsernameRegistry) Reserve(gameID, username, connectionID string) bool {
	names, ok := u.reserved[gameID]
	if !ok {
		names = make(map[string]string)
		u.reserved[gameID] = names
	}
	if holder, taken := names[username]; taken {
		return holder == connectionID
	}
	names[username] = connectionID
	return true
}

// IsReserved reports whether username is claimed in gameID
func (u *UsernameRegistry) IsReserved(gameID, username string) bool {
	_, ok := u.reserved[gameID][username]
	return ok
}

// Release frees one username
func (u *UsernameRegistry) Release(gameID, username string) {
	names, ok := u.reserved[gameID]
	if !ok {
		return
	}
	delete(names, username)
	if len(names) == 0 {
		delete(u.reserved, gameID)
	}
}

// ReleaseHeld frees username only when connectionID holds it
func (u *UsernameRegistry) ReleaseHeld(gameID, username, connectionID string) bool {
	if holder, ok := u.reserved[gameID][username]; !ok || holder != connectionID {
		return false
	}
	u.Release(gameID, username)
	return true
}

// ReleaseGame frees every username of a game
func (u *UsernameRegistry) ReleaseGame(gameID string) {
	delete(u.reserved, gameID)
}

// ReleaseConnection frees everything a connection claimed
func (u *UsernameRegistry) ReleaseConnection(connectionID string) {
	for gameID, names := range u.reserved {
		for name, holder := range names {
			if holder == connectionID {
				delete(names, name)
			}
		}
		if len(names) == 0 {
			delete(u.reserved, gameID)
		}
	}
}
