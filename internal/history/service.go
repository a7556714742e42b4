// Package history records finished games.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/diffduel/internal/domain"
)

// Repository persists history records
type Repository interface {
	InsertHistory(ctx context.Context, record domain.HistoryRecord) (int64, error)
	ListHistory(ctx context.Context) ([]domain.HistoryRecord, error)
	DeleteHistory(ctx context.Context) error
}

// Service appends history records, dropping a submission identical to the
// one inserted just before it.
type Service struct {
	repo   Repository
	logger *slog.Logger

	mu   sync.Mutex
	last *domain.HistoryRecord
}

// NewService creates a history service
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Add stores a record. It reports false when the record repeats the previous
// insert on date, duration and mode.
func (s *Service) Add(ctx context.Context, record domain.HistoryRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil && s.last.SameGame(record) {
		s.logger.Debug("duplicate history record dropped", "mode", record.Mode, "duration", record.Duration)
		return false, nil
	}

	id, err := s.repo.InsertHistory(ctx, record)
	if err != nil {
		return false, fmt.Errorf("inserting history: %w", err)
	}
	record.ID = id
	s.last = &record
	return true, nil
}

// List returns every record, newest first
func (s *Service) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	records, err := s.repo.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return records, nil
}

// DeleteAll clears the history
func (s *Service) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteHistory(ctx); err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	s.last = nil
	return nil
}
