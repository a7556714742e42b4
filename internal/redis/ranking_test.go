package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffduel/internal/domain"
)

func newTestRepository(t *testing.T) (*RankingRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRankingRepositoryWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func record(gameID string, base int) domain.RankingRecord {
	top := domain.Top3{{Username: "a", Time: base}, {Username: "b", Time: base + 1}, {Username: "c", Time: base + 2}}
	return domain.RankingRecord{GameID: gameID, SinglePlayer: top, MultiPlayer: top}
}

func TestRankingRepository_SaveAndGet(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveRanking(ctx, record("g1", 10)))

	got, err := repo.GetRanking(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, record("g1", 10), *got)

	assert.True(t, mr.Exists("ranking:g1"))
	members, err := mr.Members(gamesKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, members)
}

func TestRankingRepository_GetMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetRanking(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrRankingNotFound)
}

func TestRankingRepository_ListAndDelete(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveRanking(ctx, record("g2", 20)))
	require.NoError(t, repo.SaveRanking(ctx, record("g1", 10)))

	records, err := repo.ListRankings(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "g1", records[0].GameID)
	assert.Equal(t, "g2", records[1].GameID)

	require.NoError(t, repo.DeleteRanking(ctx, "g1"))

	got, err := repo.GetRanking(ctx, "g1")
	assert.ErrorIs(t, err, domain.ErrRankingNotFound)
	assert.Nil(t, got)

	records, err = repo.ListRankings(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "g2", records[0].GameID)
}

func TestRankingRepository_ListSkipsDanglingIndex(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveRanking(ctx, record("g1", 10)))
	mr.Del("ranking:g1")

	records, err := repo.ListRankings(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
