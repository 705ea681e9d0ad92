package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/pkg/worker"
	"storefleet.dev/storefleet/internal/provisioner"
	"storefleet.dev/storefleet/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

// gatedPipeline blocks each run until released and tracks peak concurrency.
type gatedPipeline struct {
	release chan struct{}
	err     error

	mu      sync.Mutex
	order   []string
	active  int
	peak    int
	started chan string
}

func newGatedPipeline() *gatedPipeline {
	return &gatedPipeline{
		release: make(chan struct{}),
		started: make(chan string, 100),
	}
}

func (p *gatedPipeline) Engine() string { return "gated" }

func (p *gatedPipeline) Provision(ctx context.Context, store *domain.Store) error {
	p.mu.Lock()
	p.order = append(p.order, store.ID)
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	p.mu.Unlock()
	p.started <- store.ID

	select {
	case <-p.release:
	case <-ctx.Done():
	}

	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	return p.err
}

type funcPipeline func(ctx context.Context, store *domain.Store) error

func (f funcPipeline) Engine() string { return "func" }

func (f funcPipeline) Provision(ctx context.Context, store *domain.Store) error {
	return f(ctx, store)
}

type harness struct {
	db    *testutil.MemoryDB
	pools *worker.Pools
	queue *Queue
}

type pipelineSet func(db *testutil.MemoryDB) map[domain.Plan]provisioner.Pipeline

func only(plan domain.Plan, p provisioner.Pipeline) pipelineSet {
	return func(*testutil.MemoryDB) map[domain.Plan]provisioner.Pipeline {
		return map[domain.Plan]provisioner.Pipeline{plan: p}
	}
}

func newHarness(t *testing.T, concurrency int, pipelines pipelineSet) *harness {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{
		GeneralPoolSize:      10,
		K8sPoolSize:          5,
		ProvisioningPoolSize: concurrency,
	})
	require.NoError(t, err)

	db := testutil.NewMemoryDB()
	q := New(provisioner.NewRegistry(pipelines(db)), db.Stores(), db.Events(), pools, nil, concurrency)
	require.NoError(t, q.Start())

	t.Cleanup(func() {
		q.Close()
		pools.Shutdown()
	})
	return &harness{db: db, pools: pools, queue: q}
}

func (h *harness) newStore(t *testing.T, i int, plan domain.Plan) *domain.Store {
	t.Helper()
	s := domain.NewStore(fmt.Sprintf("store-%02d", i), fmt.Sprintf("Shop %02d", i), "owner@example.com", plan, time.Now())
	require.NoError(t, h.db.Stores().Create(context.Background(), s))
	return s
}

func waitStarted(t *testing.T, p *gatedPipeline, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		select {
		case id := <-p.started:
			ids = append(ids, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d runs started", i, n)
		}
	}
	return ids
}

func TestQueue_BoundsConcurrency(t *testing.T) {
	p := newGatedPipeline()
	h := newHarness(t, 3, only(domain.PlanWooCommerce, p))

	for i := 0; i < 7; i++ {
		h.queue.Submit(h.newStore(t, i, domain.PlanWooCommerce))
	}

	waitStarted(t, p, 3)
	// No fourth run may start while three hold their slots.
	select {
	case id := <-p.started:
		t.Fatalf("run %s started beyond the concurrency limit", id)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 7, h.queue.BacklogSize())

	close(p.release)
	waitStarted(t, p, 4)
	require.Eventually(t, func() bool { return h.queue.BacklogSize() == 0 }, 2*time.Second, 10*time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.LessOrEqual(t, p.peak, 3)
}

func TestQueue_FIFOAdmission(t *testing.T) {
	p := newGatedPipeline()
	close(p.release)
	h := newHarness(t, 1, only(domain.PlanWooCommerce, p))

	var want []string
	for i := 0; i < 5; i++ {
		s := h.newStore(t, i, domain.PlanWooCommerce)
		want = append(want, s.ID)
		h.queue.Submit(s)
	}

	got := waitStarted(t, p, 5)
	assert.Equal(t, want, got)
}

func TestQueue_BacklogAndTracking(t *testing.T) {
	p := newGatedPipeline()
	h := newHarness(t, 2, only(domain.PlanWooCommerce, p))

	assert.Equal(t, 0, h.queue.BacklogSize())
	stores := make([]*domain.Store, 4)
	for i := range stores {
		stores[i] = h.newStore(t, i, domain.PlanWooCommerce)
		h.queue.Submit(stores[i])
	}
	waitStarted(t, p, 2)

	assert.Equal(t, 4, h.queue.BacklogSize())
	for _, s := range stores {
		assert.True(t, h.queue.Tracks(s.ID))
	}
	assert.False(t, h.queue.Tracks("unknown"))

	close(p.release)
	require.Eventually(t, func() bool { return h.queue.BacklogSize() == 0 }, 2*time.Second, 10*time.Millisecond)
	for _, s := range stores {
		assert.False(t, h.queue.Tracks(s.ID))
	}
}

func TestQueue_FailureMarksStoreFailed(t *testing.T) {
	boom := errors.New("deployment/mysql in store-shop-00 not ready after 2m0s")
	h := newHarness(t, 2, only(domain.PlanWooCommerce,
		funcPipeline(func(context.Context, *domain.Store) error { return boom })))
	s := h.newStore(t, 0, domain.PlanWooCommerce)

	h.queue.Submit(s)

	require.Eventually(t, func() bool {
		got, err := h.db.Stores().Get(context.Background(), s.ID)
		return err == nil && got.Status == domain.StoreStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.db.Stores().Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, boom.Error(), *got.ErrorMessage)

	evs, err := h.db.Events().ListByStore(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, domain.StepProvisioning, last.Step)
	assert.Equal(t, domain.EventStatusFailed, last.Status)
	assert.Equal(t, boom.Error(), last.Message)
}

func TestQueue_PanicIsAFailure(t *testing.T) {
	h := newHarness(t, 1, only(domain.PlanWooCommerce,
		funcPipeline(func(context.Context, *domain.Store) error { panic("nil gateway") })))
	s := h.newStore(t, 0, domain.PlanWooCommerce)

	h.queue.Submit(s)

	require.Eventually(t, func() bool {
		got, err := h.db.Stores().Get(context.Background(), s.ID)
		return err == nil && got.Status == domain.StoreStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.queue.BacklogSize() == 0 }, time.Second, 10*time.Millisecond)
}

func TestQueue_UnknownPlanFailsStore(t *testing.T) {
	h := newHarness(t, 1, func(*testutil.MemoryDB) map[domain.Plan]provisioner.Pipeline { return nil })
	s := h.newStore(t, 0, domain.Plan("shopify"))

	h.queue.Submit(s)

	require.Eventually(t, func() bool {
		got, err := h.db.Stores().Get(context.Background(), s.ID)
		return err == nil && got.Status == domain.StoreStatusFailed &&
			got.ErrorMessage != nil && *got.ErrorMessage != ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_MedusaEndsFailed(t *testing.T) {
	h := newHarness(t, 1, func(db *testutil.MemoryDB) map[domain.Plan]provisioner.Pipeline {
		return map[domain.Plan]provisioner.Pipeline{
			domain.PlanMedusa: provisioner.NewMedusaPipeline(db.Stores(), provisioner.NewRecorder(db.Events(), nil)),
		}
	})
	s := h.newStore(t, 0, domain.PlanMedusa)

	h.queue.Submit(s)

	require.Eventually(t, func() bool { return h.queue.BacklogSize() == 0 }, 2*time.Second, 10*time.Millisecond)
	got, err := h.db.Stores().Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStatusFailed, got.Status)
	assert.Equal(t, provisioner.ErrMedusaNotImplemented.Error(), *got.ErrorMessage)
	assert.Equal(t,
		[]domain.StoreStatus{domain.StoreStatusProvisioning, domain.StoreStatusFailed, domain.StoreStatusFailed},
		h.db.StatusHistory(s.ID))
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, 1, only(domain.PlanWooCommerce,
		funcPipeline(func(context.Context, *domain.Store) error {
			calls.Add(1)
			return nil
		})))
	h.queue.Close()

	s := h.newStore(t, 0, domain.PlanWooCommerce)
	h.queue.Submit(s)

	assert.Equal(t, 0, h.queue.BacklogSize())
	assert.False(t, h.queue.Tracks(s.ID))
	assert.ErrorIs(t, h.queue.Start(), ErrClosed)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestQueue_ShutdownReleasesWaitingRun(t *testing.T) {
	p := newGatedPipeline()
	// One provisioning worker behind a limit of two, so the second run is
	// handed to the pool and left waiting for a worker.
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{
		GeneralPoolSize:      10,
		K8sPoolSize:          5,
		ProvisioningPoolSize: 1,
	})
	require.NoError(t, err)
	db := testutil.NewMemoryDB()
	q := New(provisioner.NewRegistry(only(domain.PlanWooCommerce, p)(db)), db.Stores(), db.Events(), pools, nil, 2)
	require.NoError(t, q.Start())
	h := &harness{db: db, pools: pools, queue: q}

	first := h.newStore(t, 0, domain.PlanWooCommerce)
	second := h.newStore(t, 1, domain.PlanWooCommerce)
	q.Submit(first)
	q.Submit(second)
	waitStarted(t, p, 1)
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.running == 2 && len(q.pending) == 0
	}, 2*time.Second, time.Millisecond)

	q.Close()
	pools.Shutdown()

	require.Eventually(t, func() bool { return q.BacklogSize() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, q.Tracks(first.ID))
	assert.False(t, q.Tracks(second.ID))
}
