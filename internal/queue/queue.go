// Package queue schedules provisioning runs with bounded concurrency.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/metrics"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/pkg/worker"
	"storefleet.dev/storefleet/internal/provisioner"
	"storefleet.dev/storefleet/internal/repository"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("provisioning queue is closed")

// failureWriteTimeout bounds the Failed bookkeeping after a run, which uses
// a context detached from shutdown so the outcome is still recorded.
const failureWriteTimeout = 10 * time.Second

// Queue admits stores in arrival order and runs at most concurrency
// pipelines at once. Runs execute on the provisioning worker pool; a
// single dispatcher task on the general pool feeds it.
//
// A failed run is never retried and never reported to the submitter: it is
// logged, recorded as a (provisioning, failed) event and the store moves to
// Failed with the error text.
type Queue struct {
	registry    *provisioner.Registry
	stores      repository.StoreRepository
	events      repository.EventRepository
	pools       *worker.Pools
	metrics     *metrics.Metrics
	concurrency int

	mu      sync.Mutex
	pending []*domain.Store
	running int
	tracked map[string]struct{}
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Queue. concurrency should not exceed the capacity of the
// provisioning pool.
func New(
	registry *provisioner.Registry,
	stores repository.StoreRepository,
	events repository.EventRepository,
	pools *worker.Pools,
	m *metrics.Metrics,
	concurrency int,
) *Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Queue{
		registry:    registry,
		stores:      stores,
		events:      events,
		pools:       pools,
		metrics:     m,
		concurrency: concurrency,
		tracked:     make(map[string]struct{}),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start launches the dispatcher.
func (q *Queue) Start() error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := q.pools.SubmitDetached(worker.PoolGeneral, q.dispatch); err != nil {
		return fmt.Errorf("start queue dispatcher: %w", err)
	}
	logger.Info("Provisioning queue started", zap.Int("concurrency", q.concurrency))
	return nil
}

// Submit schedules a store that is already persisted as Provisioning. It
// never blocks on the run.
func (q *Queue) Submit(store *domain.Store) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		logger.Warn("Provisioning queue closed, store left for the orphan sweep",
			zap.String("store_id", store.ID))
		return
	}
	q.pending = append(q.pending, store)
	q.tracked[store.ID] = struct{}{}
	pending, running := len(q.pending), q.running
	q.mu.Unlock()

	q.metrics.SetQueue(pending, running)
	logger.Info("Store queued for provisioning",
		zap.String("store_id", store.ID),
		zap.String("plan", string(store.Plan)),
		zap.Int("backlog", pending+running),
	)
	q.signal()
}

// BacklogSize returns waiting plus running runs.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + q.running
}

// Tracks reports whether storeID is waiting or running in this process.
func (q *Queue) Tracks(storeID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tracked[storeID]
	return ok
}

// Close stops admitting runs. Runs already executing finish under the
// worker pool's shutdown; waiting stores stay Provisioning.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		dropped := len(q.pending)
		q.mu.Unlock()
		close(q.done)
		if dropped > 0 {
			logger.Warn("Provisioning queue closed with waiting stores", zap.Int("dropped", dropped))
		}
	})
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatch(ctx context.Context) {
	for {
		q.admit(ctx)
		select {
		case <-q.wake:
		case <-q.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// admit moves stores from pending to running while slots are free.
func (q *Queue) admit(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.closed || q.running >= q.concurrency || len(q.pending) == 0 {
			pending, running := len(q.pending), q.running
			q.mu.Unlock()
			q.metrics.SetQueue(pending, running)
			return
		}
		store := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running++
		q.mu.Unlock()

		err := q.pools.Provisioning.SubmitWithCleanup(ctx, func(ctx context.Context) {
			q.run(ctx, store)
		}, func() { q.finish(store.ID) })
		if err != nil {
			q.mu.Lock()
			q.running--
			delete(q.tracked, store.ID)
			q.mu.Unlock()
			logger.Warn("Failed to start provisioning run",
				zap.String("store_id", store.ID),
				zap.Error(err),
			)
			return
		}
	}
}

func (q *Queue) finish(storeID string) {
	q.mu.Lock()
	q.running--
	delete(q.tracked, storeID)
	pending, running := len(q.pending), q.running
	q.mu.Unlock()
	q.metrics.SetQueue(pending, running)
	q.signal()
}

func (q *Queue) run(ctx context.Context, store *domain.Store) {
	log := logger.ForStore(store.ID, store.Namespace)
	start := time.Now()

	engine := string(store.Plan)
	pipeline, err := q.registry.Resolve(store.Plan)
	if err == nil {
		engine = pipeline.Engine()
		log.Info("Provisioning run started", zap.String("engine", engine))
		err = provision(ctx, pipeline, store)
	}
	elapsed := time.Since(start)
	q.metrics.RecordRun(engine, elapsed, err)

	if err == nil {
		log.Info("Provisioning run completed", zap.String("engine", engine), zap.Duration("elapsed", elapsed))
		return
	}
	q.fail(ctx, store, err)
}

// provision converts a pipeline panic into an error.
func provision(ctx context.Context, p provisioner.Pipeline, store *domain.Store) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provisioning panic: %v", r)
			logger.Error("Provisioning pipeline panicked",
				zap.String("store_id", store.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	return p.Provision(ctx, store)
}

func (q *Queue) fail(ctx context.Context, store *domain.Store, runErr error) {
	log := logger.ForStore(store.ID, store.Namespace)
	log.Error("Provisioning failed", zap.Error(runErr))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	msg := runErr.Error()
	ev := &domain.ProvisioningEvent{
		StoreID: store.ID,
		Step:    domain.StepProvisioning,
		Status:  domain.EventStatusFailed,
		Message: msg,
	}
	if err := q.events.Append(ctx, ev); err != nil {
		log.Warn("Failed to record provisioning failure event", zap.Error(err))
	}
	if err := q.stores.UpdateStatus(ctx, store.ID, domain.StoreStatusFailed, &msg,
		domain.StoreStatusProvisioning, domain.StoreStatusFailed); err != nil {
		log.Warn("Failed to mark store Failed", zap.Error(err))
	}
}
