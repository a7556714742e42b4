package ranking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffduel/internal/domain"
)

type memoryRepo struct {
	records map[string]domain.RankingRecord
	saves   int
	failGet error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]domain.RankingRecord)}
}

func (m *memoryRepo) GetRanking(_ context.Context, gameID string) (*domain.RankingRecord, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	r, ok := m.records[gameID]
	if !ok {
		return nil, domain.ErrRankingNotFound
	}
	return &r, nil
}

func (m *memoryRepo) SaveRanking(_ context.Context, record domain.RankingRecord) error {
	m.saves++
	m.records[record.GameID] = record
	return nil
}

func (m *memoryRepo) DeleteRanking(_ context.Context, gameID string) error {
	delete(m.records, gameID)
	return nil
}

func (m *memoryRepo) ListRankings(_ context.Context) ([]domain.RankingRecord, error) {
	out := make([]domain.RankingRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseTop() domain.Top3 {
	return domain.Top3{{Username: "a", Time: 10}, {Username: "b", Time: 20}, {Username: "c", Time: 30}}
}

func newSeededStore(t *testing.T) (*Store, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	repo.records["g1"] = domain.RankingRecord{GameID: "g1", SinglePlayer: baseTop(), MultiPlayer: baseTop()}
	return NewStore(repo, testLogger()), repo
}

func TestInsert_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		time     int
		expected []int
		rank     int
	}{
		{"first place", 5, []int{5, 10, 20}, 1},
		{"second place", 15, []int{10, 15, 20}, 2},
		{"third place", 25, []int{10, 20, 25}, 3},
		{"not ranked", 35, []int{10, 20, 30}, NotRanked},
		{"equal to last is not ranked", 30, []int{10, 20, 30}, NotRanked},
		{"tie keeps occupant ahead", 20, []int{10, 20, 20}, 3},
		{"tie on first", 10, []int{10, 10, 20}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, rank := Insert(baseTop(), domain.UsersScore{Username: "new", Time: tt.time})

			times := []int{next[0].Time, next[1].Time, next[2].Time}
			assert.Equal(t, tt.expected, times)
			assert.Equal(t, tt.rank, rank)
			assert.Len(t, next, domain.RankingSize)
		})
	}
}

func TestInsert_TieKeepsOriginalOccupant(t *testing.T) {
	next, rank := Insert(baseTop(), domain.UsersScore{Username: "new", Time: 20})

	require.Equal(t, 3, rank)
	assert.Equal(t, "b", next[1].Username)
	assert.Equal(t, "new", next[2].Username)
}

func TestStore_UpdateRanking_PersistsWhenRanked(t *testing.T) {
	store, repo := newSeededStore(t)
	ctx := context.Background()

	top, rank, err := store.UpdateRanking(ctx, "g1", domain.SinglePlayer, domain.UsersScore{Username: "z", Time: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, rank)
	assert.Equal(t, domain.UsersScore{Username: "z", Time: 5}, top[0])
	assert.Equal(t, top, repo.records["g1"].SinglePlayer)
	assert.Equal(t, baseTop(), repo.records["g1"].MultiPlayer)
	assert.Equal(t, 1, repo.saves)
}

func TestStore_UpdateRanking_UnchangedWhenTooSlow(t *testing.T) {
	store, repo := newSeededStore(t)
	ctx := context.Background()

	top, rank, err := store.UpdateRanking(ctx, "g1", domain.MultiPlayer, domain.UsersScore{Username: "z", Time: 35})
	require.NoError(t, err)

	assert.Equal(t, NotRanked, rank)
	assert.Equal(t, baseTop(), top)
	assert.Zero(t, repo.saves)
}

func TestStore_GetScoresStableWithoutUpdates(t *testing.T) {
	store, _ := newSeededStore(t)
	ctx := context.Background()

	first, err := store.GetScores(ctx, "g1", domain.SinglePlayer)
	require.NoError(t, err)
	second, err := store.GetScores(ctx, "g1", domain.SinglePlayer)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStore_UpdateRanking_MissingGame(t *testing.T) {
	store, _ := newSeededStore(t)

	_, rank, err := store.UpdateRanking(context.Background(), "ghost", domain.SinglePlayer, domain.UsersScore{Time: 1})
	assert.ErrorIs(t, err, domain.ErrRankingNotFound)
	assert.Equal(t, NotRanked, rank)
}

func TestStore_UpdateRanking_PersistenceFailure(t *testing.T) {
	store, repo := newSeededStore(t)
	repo.failGet = domain.ErrPersistence

	_, _, err := store.UpdateRanking(context.Background(), "g1", domain.SinglePlayer, domain.UsersScore{Time: 1})
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestStore_GameExists(t *testing.T) {
	store, _ := newSeededStore(t)
	ctx := context.Background()

	record, err := store.GameExists(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "g1", record.GameID)

	record, err = store.GameExists(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStore_RegisterAndReset(t *testing.T) {
	store, repo := newSeededStore(t)
	ctx := context.Background()

	record, err := store.RegisterGame(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, DefaultScores, record.SinglePlayer)

	// registering again keeps the existing board
	again, err := store.RegisterGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, baseTop(), again.SinglePlayer)

	reset, err := store.ResetGameScores(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, DefaultScores, reset.MultiPlayer)
	assert.Equal(t, DefaultScores, repo.records["g1"].SinglePlayer)

	_, err = store.ResetGameScores(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrRankingNotFound)
}

func TestStore_ResetAll(t *testing.T) {
	store, repo := newSeededStore(t)
	ctx := context.Background()
	repo.records["g2"] = domain.RankingRecord{GameID: "g2", SinglePlayer: baseTop(), MultiPlayer: baseTop()}

	records, err := store.ResetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range repo.records {
		assert.Equal(t, DefaultRecord(r.GameID), r)
	}

	ids, err := store.GameIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
}
