package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/domain"
)

// RankingSource is the live ranking store
type RankingSource interface {
	GetRanking(ctx context.Context, gameID string) (*domain.RankingRecord, error)
	SaveRanking(ctx context.Context, record domain.RankingRecord) error
	ListRankings(ctx context.Context) ([]domain.RankingRecord, error)
}

// SnapshotStore keeps durable copies of ranking records
type SnapshotStore interface {
	UpsertSnapshots(ctx context.Context, records []domain.RankingRecord) error
	ListSnapshots(ctx context.Context) ([]domain.RankingRecord, error)
	PruneSnapshots(ctx context.Context, keep []string) (int64, error)
}

// SyncWorker periodically copies ranking records from Redis to PostgreSQL
type SyncWorker struct {
	source    RankingSource
	snapshots SnapshotStore
	config    *config.SyncConfig
	clock     clockwork.Clock
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	source RankingSource,
	snapshots SnapshotStore,
	cfg *config.SyncConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		source:    source,
		snapshots: snapshots,
		config:    cfg,
		clock:     clock,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := w.clock.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.Chan():
			if err := w.SyncToDatabase(ctx); err != nil {
				w.logger.Error("ranking sync failed", "error", err)
			}
		}
	}
}

// SyncToDatabase snapshots every ranking record and drops snapshots of
// games that were deleted
func (w *SyncWorker) SyncToDatabase(ctx context.Context) error {
	w.logger.Info("starting sync cycle")
	startTime := w.clock.Now()

	records, err := w.source.ListRankings(ctx)
	if err != nil {
		return err
	}

	if err := w.snapshots.UpsertSnapshots(ctx, records); err != nil {
		return err
	}

	keep := make([]string, 0, len(records))
	for _, r := range records {
		keep = append(keep, r.GameID)
	}
	pruned, err := w.snapshots.PruneSnapshots(ctx, keep)
	if err != nil {
		return err
	}

	w.logger.Info("sync cycle completed",
		"duration", w.clock.Since(startTime),
		"synced", len(records),
		"pruned", pruned,
	)
	return nil
}

// SyncAllFromDatabase restores snapshots of games missing from Redis.
// Records already in Redis are newer and are left alone.
func (w *SyncWorker) SyncAllFromDatabase(ctx context.Context) error {
	w.logger.Info("syncing all rankings from database")

	snapshots, err := w.snapshots.ListSnapshots(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, snap := range snapshots {
		_, err := w.source.GetRanking(ctx, snap.GameID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrRankingNotFound) {
			w.logger.Error("failed to probe ranking", "game_id", snap.GameID, "error", err)
			continue
		}
		if err := w.source.SaveRanking(ctx, snap); err != nil {
			w.logger.Error("failed to restore ranking",
				"game_id", snap.GameID,
				"error", err,
			)
			// Continue with other games
			continue
		}
		restored++
	}

	w.logger.Info("completed syncing rankings from database",
		"snapshots", len(snapshots),
		"restored", restored,
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sync cycle (useful for manual triggers)
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	return w.SyncToDatabase(ctx)
}

