package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/domain"
)

const gamesKey = "ranking:games"

// RankingRepository stores ranking records as JSON documents in Redis
type RankingRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankingRepository connects to Redis and returns a ranking repository
func NewRankingRepository(cfg *config.RedisConfig, logger *slog.Logger) (*RankingRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRankingRepositoryWithClient(client, logger), nil
}

// NewRankingRepositoryWithClient wraps an existing client
func NewRankingRepositoryWithClient(client *redis.Client, logger *slog.Logger) *RankingRepository {
	return &RankingRepository{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (r *RankingRepository) Close() error {
	return r.client.Close()
}

// Ping checks that Redis answers
func (r *RankingRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// rankingKey returns the Redis key of a game's ranking document
func (r *RankingRepository) rankingKey(gameID string) string {
	return fmt.Sprintf("ranking:%s", gameID)
}

// GetRanking loads the ranking record of a game
func (r *RankingRepository) GetRanking(ctx context.Context, gameID string) (*domain.RankingRecord, error) {
	data, err := r.client.Get(ctx, r.rankingKey(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrRankingNotFound
		}
		return nil, fmt.Errorf("%w: getting ranking: %v", domain.ErrPersistence, err)
	}

	var record domain.RankingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding ranking %s: %w", gameID, err)
	}
	return &record, nil
}

// SaveRanking writes a ranking record and indexes its game id
func (r *RankingRepository) SaveRanking(ctx context.Context, record domain.RankingRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding ranking: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.rankingKey(record.GameID), data, 0)
	pipe.SAdd(ctx, gamesKey, record.GameID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: saving ranking: %v", domain.ErrPersistence, err)
	}
	return nil
}

// DeleteRanking removes a game's ranking record
func (r *RankingRepository) DeleteRanking(ctx context.Context, gameID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.rankingKey(gameID))
	pipe.SRem(ctx, gamesKey, gameID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: deleting ranking: %v", domain.ErrPersistence, err)
	}
	return nil
}

// ListRankings returns every ranking record ordered by game id
func (r *RankingRepository) ListRankings(ctx context.Context) ([]domain.RankingRecord, error) {
	ids, err := r.client.SMembers(ctx, gamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing games: %v", domain.ErrPersistence, err)
	}
	if len(ids) == 0 {
		return []domain.RankingRecord{}, nil
	}
	sort.Strings(ids)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.rankingKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: listing rankings: %v", domain.ErrPersistence, err)
	}

	records := make([]domain.RankingRecord, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// index entry without a document
			r.logger.Warn("ranking index out of sync", "game_id", ids[i], "error", err)
			continue
		}
		var record domain.RankingRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decoding ranking %s: %w", ids[i], err)
		}
		records = append(records, record)
	}
	return records, nil
}
