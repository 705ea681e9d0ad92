// Package worker provides goroutine pool management.
//
// Long-lived background work (provisioning pipelines, teardowns, the queue
// dispatcher) runs on ants pools with context propagation rather than on
// bare goroutines, so shutdown can cancel and drain it.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool names accepted by SubmitDetached.
const (
	PoolGeneral      = "general"
	PoolK8s          = "k8s"
	PoolProvisioning = "provisioning"
)

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the Worker pool collection.
type Pools struct {
	General *Pool
	K8s     *Pool

	// Provisioning runs store pipelines. Its capacity equals the
	// provisioning concurrency limit.
	Provisioning *Pool

	// serviceCtx is the service lifecycle context for detached tasks
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains Worker Pool configuration.
type PoolConfig struct {
	GeneralPoolSize      int
	K8sPoolSize          int
	ProvisioningPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize:      100,
		K8sPoolSize:          50,
		ProvisioningPoolSize: 3,
	}
}

// NewPools creates Worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p any) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	newPool := func(size int, expiry time.Duration) (*ants.Pool, error) {
		return ants.NewPool(size,
			ants.WithPanicHandler(panicHandler),
			ants.WithNonblocking(false),
			ants.WithExpiryDuration(expiry),
		)
	}

	generalAnts, err := newPool(cfg.GeneralPoolSize, 10*time.Second)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	k8sAnts, err := newPool(cfg.K8sPoolSize, 30*time.Second)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	// Pipelines block for minutes; keep their workers warm.
	provisioningAnts, err := newPool(cfg.ProvisioningPoolSize, time.Minute)
	if err != nil {
		generalAnts.Release()
		k8sAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: PoolGeneral},
		K8s:           &Pool{pool: k8sAnts, name: PoolK8s},
		Provisioning:  &Pool{pool: provisioningAnts, name: PoolProvisioning},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task.
// The task receives the caller's context and SHOULD check ctx.Done() at blocking points.
// If context is already cancelled, returns ctx.Err() immediately without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	return p.SubmitWithCleanup(ctx, task, nil)
}

// SubmitWithCleanup is Submit plus a cleanup that runs once the submitted
// work is over: after the task returns or panics, or instead of the task
// when ctx was cancelled while it waited for a worker. cleanup does not run
// when an error is returned.
func (p *Pool) SubmitWithCleanup(ctx context.Context, task Task, cleanup func()) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		if cleanup != nil {
			defer cleanup()
		}
		// May have been cancelled while queued.
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Context returns the service lifecycle context. It is cancelled when
// Shutdown begins.
func (p *Pools) Context() context.Context {
	return p.serviceCtx
}

// Pool returns the named pool, falling back to General.
func (p *Pools) Pool(name string) *Pool {
	switch name {
	case PoolK8s:
		return p.K8s
	case PoolProvisioning:
		return p.Provisioning
	default:
		return p.General
	}
}

// SubmitDetached submits a detached background task.
// Detached tasks use the service lifecycle context instead of a request context,
// so they survive request cancellation but still respect graceful shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	return p.Pool(poolName).Submit(p.serviceCtx, task)
}

// Shutdown gracefully shuts down all pools with a timeout.
// Cancels service context first, then waits for running tasks (max 30s).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	for _, pool := range []*Pool{p.Provisioning, p.K8s, p.General} {
		if err := pool.pool.ReleaseTimeout(shutdownTimeout); err != nil {
			logger.Warn("Worker pool shutdown timeout",
				zap.String("pool", pool.name),
				zap.Error(err),
			)
		}
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]any {
	out := make(map[string]any, 3)
	for _, pool := range []*Pool{p.General, p.K8s, p.Provisioning} {
		out[pool.name] = map[string]int{
			"running": pool.pool.Running(),
			"free":    pool.pool.Free(),
			"cap":     pool.pool.Cap(),
		}
	}
	return out
}
