// Package teardown removes a store's namespace and then its records.
package teardown

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/metrics"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/provider"
	"storefleet.dev/storefleet/internal/provisioner"
	"storefleet.dev/storefleet/internal/repository"
)

const failureWriteTimeout = 10 * time.Second

// Pipeline deletes a store. It is invoked directly, never through the
// provisioning queue.
type Pipeline struct {
	gateway  provider.ClusterGateway
	stores   repository.StoreRepository
	events   repository.EventRepository
	recorder *provisioner.Recorder
	metrics  *metrics.Metrics
	wait     provisioner.WaitPolicy
}

// New creates a teardown Pipeline. deletePoll bounds the wait for the
// namespace to disappear.
func New(
	gateway provider.ClusterGateway,
	stores repository.StoreRepository,
	events repository.EventRepository,
	m *metrics.Metrics,
	deletePoll provisioner.WaitPolicy,
) *Pipeline {
	return &Pipeline{
		gateway:  gateway,
		stores:   stores,
		events:   events,
		recorder: provisioner.NewRecorder(events, m),
		metrics:  m,
		wait:     deletePoll,
	}
}

// Cleanup marks the store Deleting, deletes its namespace, waits for the
// namespace to vanish, then purges the store's events and the store row.
// On any failure the store is kept, marked Failed with "Cleanup failed:
// <detail>", and the error is returned.
func (p *Pipeline) Cleanup(ctx context.Context, storeID string) (err error) {
	store, err := p.stores.Get(ctx, storeID)
	if err != nil {
		return fmt.Errorf("load store %s: %w", storeID, err)
	}
	log := logger.ForStore(store.ID, store.Namespace)
	defer func() { p.metrics.RecordTeardown(err) }()

	if err := p.cleanup(ctx, store); err != nil {
		p.fail(ctx, store, err)
		return err
	}
	log.Info("Store deleted")
	return nil
}

func (p *Pipeline) cleanup(ctx context.Context, store *domain.Store) error {
	log := logger.ForStore(store.ID, store.Namespace)

	// RequestDeletion normally flips the status already; only move it here
	// when called directly.
	if store.Status != domain.StoreStatusDeleting {
		if err := p.stores.UpdateStatus(ctx, store.ID, domain.StoreStatusDeleting, nil); err != nil {
			return err
		}
	}

	p.recorder.Record(ctx, store.ID, domain.StepCleanup, domain.EventStatusStarted,
		"Deleting namespace "+store.Namespace)
	log.Info("Deleting store namespace")

	if err := p.gateway.DeleteNamespace(ctx, store.Namespace); err != nil {
		if !provider.IsNotFound(err) {
			return err
		}
		log.Info("Namespace already gone")
	}
	if err := p.waitNamespaceGone(ctx, store.Namespace); err != nil {
		return err
	}

	p.recorder.Record(ctx, store.ID, domain.StepCleanup, domain.EventStatusCompleted,
		"Namespace "+store.Namespace+" deleted")

	n, err := p.events.DeleteByStore(ctx, store.ID)
	if err != nil {
		return fmt.Errorf("purge events: %w", err)
	}
	if err := p.stores.Delete(ctx, store.ID); err != nil {
		return fmt.Errorf("delete store record: %w", err)
	}
	log.Debug("Store records purged", zap.Int64("events", n))
	return nil
}

func (p *Pipeline) waitNamespaceGone(ctx context.Context, namespace string) error {
	start := time.Now()
	err := wait.PollUntilContextTimeout(ctx, p.wait.Interval, p.wait.Timeout, true, func(ctx context.Context) (bool, error) {
		_, err := p.gateway.GetNamespace(ctx, namespace)
		switch {
		case provider.IsNotFound(err):
			return true, nil
		case err != nil:
			return false, err
		}
		return false, nil
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case wait.Interrupted(err):
		return &provisioner.TimeoutError{
			Resource:  "namespace/" + namespace,
			Namespace: namespace,
			Condition: "deleted",
			Elapsed:   time.Since(start),
		}
	default:
		return err
	}
}

func (p *Pipeline) fail(ctx context.Context, store *domain.Store, cause error) {
	log := logger.ForStore(store.ID, store.Namespace)
	log.Error("Store cleanup failed", zap.Error(cause))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	msg := "Cleanup failed: " + cause.Error()
	if err := p.stores.UpdateStatus(ctx, store.ID, domain.StoreStatusFailed, &msg,
		domain.StoreStatusDeleting, domain.StoreStatusFailed); err != nil {
		log.Warn("Failed to mark store Failed after cleanup error", zap.Error(err))
	}
	p.recorder.Record(ctx, store.ID, domain.StepCleanup, domain.EventStatusFailed, msg)
}
