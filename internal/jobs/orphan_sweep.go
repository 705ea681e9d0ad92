// Package jobs defines River periodic jobs for platform maintenance.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/metrics"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/repository"
)

const (
	// DefaultOrphanGracePeriod is how long a Provisioning store may go
	// untracked before it is considered stranded.
	DefaultOrphanGracePeriod = 15 * time.Minute

	// OrphanMessage is stored on swept stores.
	OrphanMessage = "provisioning interrupted"
)

// OrphanSweepArgs is a periodic job that fails stores left in Provisioning
// by a previous process.
type OrphanSweepArgs struct{}

// Kind returns the job kind identifier.
func (OrphanSweepArgs) Kind() string { return "store_orphan_sweep" }

// InsertOpts keeps at most one sweep enqueued per minute.
func (OrphanSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// RunTracker reports whether this process is provisioning a store.
type RunTracker interface {
	Tracks(storeID string) bool
}

// OrphanSweepWorker marks untracked, stale Provisioning stores Failed.
// It never re-runs a pipeline.
type OrphanSweepWorker struct {
	river.WorkerDefaults[OrphanSweepArgs]
	stores  repository.StoreRepository
	events  repository.EventRepository
	tracker RunTracker
	metrics *metrics.Metrics
	grace   time.Duration
	now     func() time.Time
}

// NewOrphanSweepWorker creates a sweep worker. Non-positive grace falls
// back to DefaultOrphanGracePeriod.
func NewOrphanSweepWorker(
	stores repository.StoreRepository,
	events repository.EventRepository,
	tracker RunTracker,
	m *metrics.Metrics,
	grace time.Duration,
) *OrphanSweepWorker {
	if grace <= 0 {
		grace = DefaultOrphanGracePeriod
	}
	return &OrphanSweepWorker{
		stores:  stores,
		events:  events,
		tracker: tracker,
		metrics: m,
		grace:   grace,
		now:     time.Now,
	}
}

// Work sweeps once.
func (w *OrphanSweepWorker) Work(ctx context.Context, _ *river.Job[OrphanSweepArgs]) error {
	if w == nil || w.stores == nil {
		return fmt.Errorf("orphan sweep worker is not initialized")
	}
	swept, err := w.Sweep(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		logger.Info("Orphan sweep completed", zap.Int("swept", swept))
	}
	return nil
}

// Sweep fails every stranded store and returns how many it changed.
func (w *OrphanSweepWorker) Sweep(ctx context.Context) (int, error) {
	stores, err := w.stores.ListByStatus(ctx, domain.StoreStatusProvisioning)
	if err != nil {
		return 0, fmt.Errorf("list provisioning stores: %w", err)
	}

	cutoff := w.now().UTC().Add(-w.grace)
	swept := 0
	for _, store := range stores {
		if store.CreatedAt.After(cutoff) || w.tracker.Tracks(store.ID) {
			continue
		}

		msg := OrphanMessage
		err := w.stores.UpdateStatus(ctx, store.ID, domain.StoreStatusFailed, &msg, domain.StoreStatusProvisioning)
		if err != nil {
			// Finished or deleted since the listing.
			if errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return swept, fmt.Errorf("fail orphaned store %s: %w", store.ID, err)
		}
		if err := w.events.Append(ctx, &domain.ProvisioningEvent{
			StoreID: store.ID,
			Step:    domain.StepProvisioning,
			Status:  domain.EventStatusFailed,
			Message: OrphanMessage,
		}); err != nil {
			logger.Warn("Failed to record orphan event", zap.String("store_id", store.ID), zap.Error(err))
		}
		logger.ForStore(store.ID, store.Namespace).Warn("Orphaned store marked failed",
			zap.Time("created_at", store.CreatedAt))
		swept++
	}
	w.metrics.RecordOrphans(swept)
	return swept, nil
}
