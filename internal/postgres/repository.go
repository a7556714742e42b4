package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/domain"
)

// Repository provides PostgreSQL-based data access for game history and
// ranking snapshots
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS game_history (
			id BIGSERIAL PRIMARY KEY,
			played_at TIMESTAMPTZ NOT NULL,
			duration INT NOT NULL,
			mode VARCHAR(32) NOT NULL,
			player1 JSONB NOT NULL,
			player2 JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ranking_snapshots (
			game_id VARCHAR(64) PRIMARY KEY,
			single_player JSONB NOT NULL,
			multi_player JSONB NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_history_played_at ON game_history(played_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// InsertHistory appends a finished game and returns its id
func (r *Repository) InsertHistory(ctx context.Context, record domain.HistoryRecord) (int64, error) {
	player1, err := json.Marshal(record.Player1)
	if err != nil {
		return 0, fmt.Errorf("marshaling player1: %w", err)
	}
	player2, err := json.Marshal(record.Player2)
	if err != nil {
		return 0, fmt.Errorf("marshaling player2: %w", err)
	}

	query := `
		INSERT INTO game_history (played_at, duration, mode, player1, player2)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err = r.pool.QueryRow(ctx, query, record.Date, record.Duration, record.Mode, player1, player2).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting history: %v", domain.ErrPersistence, err)
	}
	return id, nil
}

// ListHistory retrieves every finished game, newest first
func (r *Repository) ListHistory(ctx context.Context) ([]domain.HistoryRecord, error) {
	query := `
		SELECT id, played_at, duration, mode, player1, player2
		FROM game_history
		ORDER BY played_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: listing history: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	records := []domain.HistoryRecord{}
	for rows.Next() {
		var (
			record           domain.HistoryRecord
			player1, player2 []byte
		)
		if err := rows.Scan(&record.ID, &record.Date, &record.Duration, &record.Mode, &player1, &player2); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if err := json.Unmarshal(player1, &record.Player1); err != nil {
			return nil, fmt.Errorf("decoding player1: %w", err)
		}
		if err := json.Unmarshal(player2, &record.Player2); err != nil {
			return nil, fmt.Errorf("decoding player2: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteHistory clears the game history
func (r *Repository) DeleteHistory(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM game_history`); err != nil {
		return fmt.Errorf("%w: deleting history: %v", domain.ErrPersistence, err)
	}
	return nil
}

// UpsertSnapshots stores ranking records in one batch
func (r *Repository) UpsertSnapshots(ctx context.Context, records []domain.RankingRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO ranking_snapshots (game_id, single_player, multi_player, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id)
		DO UPDATE SET single_player = $2, multi_player = $3, updated_at = $4
	`
	now := time.Now()

	for _, record := range records {
		single, err := json.Marshal(record.SinglePlayer)
		if err != nil {
			return fmt.Errorf("marshaling single player scores: %w", err)
		}
		multi, err := json.Marshal(record.MultiPlayer)
		if err != nil {
			return fmt.Errorf("marshaling multiplayer scores: %w", err)
		}
		batch.Queue(query, record.GameID, single, multi, now)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%w: batch upserting snapshots: %v", domain.ErrPersistence, err)
		}
	}
	return nil
}

// ListSnapshots retrieves every stored ranking record
func (r *Repository) ListSnapshots(ctx context.Context) ([]domain.RankingRecord, error) {
	query := `SELECT game_id, single_player, multi_player FROM ranking_snapshots ORDER BY game_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: listing snapshots: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var records []domain.RankingRecord
	for rows.Next() {
		var (
			record        domain.RankingRecord
			single, multi []byte
		)
		if err := rows.Scan(&record.GameID, &single, &multi); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(single, &record.SinglePlayer); err != nil {
			return nil, fmt.Errorf("decoding single player scores: %w", err)
		}
		if err := json.Unmarshal(multi, &record.MultiPlayer); err != nil {
			return nil, fmt.Errorf("decoding multiplayer scores: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// PruneSnapshots removes snapshots of games no longer registered
func (r *Repository) PruneSnapshots(ctx context.Context, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	result, err := r.pool.Exec(ctx, `DELETE FROM ranking_snapshots WHERE NOT (game_id = ANY($1))`, keep)
	if err != nil {
		return 0, fmt.Errorf("%w: pruning snapshots: %v", domain.ErrPersistence, err)
	}
	return result.RowsAffected(), nil
}
