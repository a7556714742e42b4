package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler fires the session tick at a fixed cadence. It never touches
// sessions itself: each tick is handed to a callback that enqueues it on the
// router loop.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	onTick   func(ctx context.Context)
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a scheduler driven by clock
func NewScheduler(clock clockwork.Clock, interval time.Duration, onTick func(ctx context.Context), logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		onTick:   onTick,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins ticking in the background
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("session scheduler started", "interval", s.interval)
	go s.run(ctx)
}

// Stop halts ticking and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("session scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.Chan():
			s.onTick(ctx)
		}
	}
}
