package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/protocol"
)

// RankingStore is the part of the ranking store the catalog needs
type RankingStore interface {
	RegisterGame(ctx context.Context, gameID string) (*domain.RankingRecord, error)
	DeleteGame(ctx context.Context, gameID string) error
	GameExists(ctx context.Context, gameID string) (*domain.RankingRecord, error)
	AllScores(ctx context.Context) ([]domain.RankingRecord, error)
}

// HistoryReader lists finished games
type HistoryReader interface {
	List(ctx context.Context) ([]domain.HistoryRecord, error)
}

// Notifier broadcasts to every connected client
type Notifier interface {
	SendToAll(msg protocol.Message)
}

// GameService provides the game catalog operations of the admin API
type GameService struct {
	rankings RankingStore
	history  HistoryReader
	notifier Notifier
	logger   *slog.Logger
}

// NewGameService creates a new game service
func NewGameService(
	rankings RankingStore,
	history HistoryReader,
	notifier Notifier,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		rankings: rankings,
		history:  history,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterGame seeds the leaderboards of a game and tells connected clients
func (s *GameService) RegisterGame(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, domain.ErrInvalidRequest
	}

	record, err := s.rankings.RegisterGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("registering game: %w", err)
	}

	s.logger.Info("game registered", "game_id", gameID)
	s.broadcastScores(ctx)
	return record, nil
}

// DeleteGame drops the leaderboards of a game. Scores submitted afterwards
// for it are ignored.
func (s *GameService) DeleteGame(ctx context.Context, gameID string) error {
	record, err := s.rankings.GameExists(ctx, gameID)
	if err != nil {
		return fmt.Errorf("checking game: %w", err)
	}
	if record == nil {
		return domain.ErrRankingNotFound
	}

	if err := s.rankings.DeleteGame(ctx, gameID); err != nil {
		return err
	}

	s.logger.Info("game deleted", "game_id", gameID)
	s.broadcastScores(ctx)
	return nil
}

// Rankings returns every ranking record
func (s *GameService) Rankings(ctx context.Context) ([]domain.RankingRecord, error) {
	return s.rankings.AllScores(ctx)
}

// Ranking returns the ranking record of one game
func (s *GameService) Ranking(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	record, err := s.rankings.GameExists(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrRankingNotFound
	}
	return record, nil
}

// History returns finished games, newest first
func (s *GameService) History(ctx context.Context) ([]domain.HistoryRecord, error) {
	return s.history.List(ctx)
}

func (s *GameService) broadcastScores(ctx context.Context) {
	records, err := s.rankings.AllScores(ctx)
	if err != nil {
		s.logger.Warn("failed to load scores for broadcast", "error", err)
		return
	}
	s.notifier.SendToAll(protocol.NewMessage(protocol.MessageAllScores, records))
}
