package matchmaking

// TimedPool is the FIFO quick-match pool for timed mode. Whenever two
// players are waiting they are paired immediately.
type TimedPool struct {
	waiting []Candidate
}

// NewTimedPool creates an empty pool
func NewTimedPool() *TimedPool {
	return &TimedPool{waiting: []Candidate{}}
}

// Len returns the number of waiting players
func (p *TimedPool) Len() int {
	return len(p.waiting)
}

// TryPair adds a player and returns the two oldest entries once the pool
// holds a pair. A connection already waiting is not added twice.
func (p *TimedPool) TryPair(username, connectionID string) ([2]Candidate, bool) {
	if !p.contains(connectionID) {
		p.waiting = append(p.waiting, Candidate{ConnectionID: connectionID, Username: username})
	}
	if len(p.waiting) < 2 {
		return [2]Candidate{}, false
	}

	pair := [2]Candidate{p.waiting[0], p.waiting[1]}
	p.waiting = p.waiting[2:]
	return pair, true
}

// Remove drops a waiting connection
func (p *TimedPool) Remove(connectionID string) (Candidate, bool) {
	for i, c := range p.waiting {
		if c.ConnectionID == connectionID {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			return c, true
		}
	}
	return Candidate{}, false
}

func (p *TimedPool) contains(connectionID string) bool {
	for _, c := range p.waiting {
		if c.ConnectionID == connectionID {
			return true
		}
	}
	return false
}
