// Package ranking keeps the best-of-three leaderboards of every game.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/diffduel/internal/domain"
)

// NotRanked is the rank returned when a score does not enter the top three
const NotRanked = -1

// Repository is the document store holding ranking records
type Repository interface {
	GetRanking(ctx context.Context, gameID string) (*domain.RankingRecord, error)
	SaveRanking(ctx context.Context, record domain.RankingRecord) error
	DeleteRanking(ctx context.Context, gameID string) error
	ListRankings(ctx context.Context) ([]domain.RankingRecord, error)
}

// DefaultScores seeds every new leaderboard
var DefaultScores = domain.Top3{
	{Username: "Pixel", Time: 300},
	{Username: "Loupe", Time: 400},
	{Username: "Lynx", Time: 500},
}

// DefaultRecord returns the seeded record for a game
func DefaultRecord(gameID string) domain.RankingRecord {
	return domain.RankingRecord{
		GameID:       gameID,
		SinglePlayer: DefaultScores,
		MultiPlayer:  DefaultScores,
	}
}

// Insert places candidate into top and returns the new board with its
// 1-based rank. An equal time never displaces the current occupant.
func Insert(top domain.Top3, candidate domain.UsersScore) (domain.Top3, int) {
	if candidate.Time >= top[domain.RankingSize-1].Time {
		return top, NotRanked
	}

	pos := 0
	for pos < domain.RankingSize && candidate.Time >= top[pos].Time {
		pos++
	}

	var next domain.Top3
	copy(next[:pos], top[:pos])
	next[pos] = candidate
	copy(next[pos+1:], top[pos:domain.RankingSize-1])
	return next, pos + 1
}

// Store provides ranking operations on top of a Repository
type Store struct {
	repo   Repository
	logger *slog.Logger
}

// NewStore creates a new ranking store
func NewStore(repo Repository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger,
	}
}

// GameExists returns the record of a game, or nil when it is not registered
func (s *Store) GameExists(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	record, err := s.repo.GetRanking(ctx, gameID)
	if err != nil {
		if errors.Is(err, domain.ErrRankingNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("probing ranking: %w", err)
	}
	return record, nil
}

// GetScores returns the leaderboard of a game for a play mode
func (s *Store) GetScores(ctx context.Context, gameID string, mode domain.PlayMode) (domain.Top3, error) {
	record, err := s.repo.GetRanking(ctx, gameID)
	if err != nil {
		return domain.Top3{}, fmt.Errorf("getting scores: %w", err)
	}
	return record.Scores(mode)
}

// UpdateRanking merges candidate into the leaderboard and persists the result
// when it ranks.
func (s *Store) UpdateRanking(ctx context.Context, gameID string, mode domain.PlayMode, candidate domain.UsersScore) (domain.Top3, int, error) {
	record, err := s.repo.GetRanking(ctx, gameID)
	if err != nil {
		return domain.Top3{}, NotRanked, fmt.Errorf("loading ranking: %w", err)
	}

	top, err := record.Scores(mode)
	if err != nil {
		return domain.Top3{}, NotRanked, err
	}

	next, rank := Insert(top, candidate)
	if rank == NotRanked {
		return top, NotRanked, nil
	}

	if err := record.SetScores(mode, next); err != nil {
		return domain.Top3{}, NotRanked, err
	}
	if err := s.repo.SaveRanking(ctx, *record); err != nil {
		return domain.Top3{}, NotRanked, fmt.Errorf("saving ranking: %w", err)
	}

	s.logger.Info("new record",
		"game_id", gameID,
		"mode", string(mode),
		"username", candidate.Username,
		"time", candidate.Time,
		"rank", rank,
	)
	return next, rank, nil
}

// RegisterGame seeds the leaderboards of a new game. Existing records are kept.
func (s *Store) RegisterGame(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	existing, err := s.GameExists(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	record := DefaultRecord(gameID)
	if err := s.repo.SaveRanking(ctx, record); err != nil {
		return nil, fmt.Errorf("seeding ranking: %w", err)
	}
	return &record, nil
}

// DeleteGame drops the leaderboards of a game
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	if err := s.repo.DeleteRanking(ctx, gameID); err != nil {
		return fmt.Errorf("deleting ranking: %w", err)
	}
	return nil
}

// ResetGameScores restores the default leaderboards of one game
func (s *Store) ResetGameScores(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	existing, err := s.GameExists(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrRankingNotFound
	}

	record := DefaultRecord(gameID)
	if err := s.repo.SaveRanking(ctx, record); err != nil {
		return nil, fmt.Errorf("resetting ranking: %w", err)
	}
	return &record, nil
}

// ResetAll restores the default leaderboards of every registered game
func (s *Store) ResetAll(ctx context.Context) ([]domain.RankingRecord, error) {
	records, err := s.repo.ListRankings(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rankings: %w", err)
	}

	reset := make([]domain.RankingRecord, 0, len(records))
	for _, r := range records {
		record := DefaultRecord(r.GameID)
		if err := s.repo.SaveRanking(ctx, record); err != nil {
			return nil, fmt.Errorf("resetting ranking %s: %w", r.GameID, err)
		}
		reset = append(reset, record)
	}
	return reset, nil
}

// AllScores returns every ranking record
func (s *Store) AllScores(ctx context.Context) ([]domain.RankingRecord, error) {
	records, err := s.repo.ListRankings(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rankings: %w", err)
	}
	return records, nil
}

// GameIDs returns the ids of every registered game
func (s *Store) GameIDs(ctx context.Context) ([]string, error) {
	records, err := s.AllScores(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.GameID)
	}
	return ids, nil
}
