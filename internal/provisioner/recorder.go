package provisioner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/metrics"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/repository"
)

// Recorder writes step transitions to the event log, the process log and
// the step duration histogram.
type Recorder struct {
	events  repository.EventRepository
	metrics *metrics.Metrics
}

// NewRecorder creates a Recorder. m may be nil.
func NewRecorder(events repository.EventRepository, m *metrics.Metrics) *Recorder {
	return &Recorder{events: events, metrics: m}
}

// Record appends one event. A failed append is logged and swallowed so
// that the event log never decides the outcome of a pipeline.
func (r *Recorder) Record(ctx context.Context, storeID, step string, status domain.EventStatus, message string) {
	ev := &domain.ProvisioningEvent{
		StoreID: storeID,
		Step:    step,
		Status:  status,
		Message: message,
	}
	if err := r.events.Append(ctx, ev); err != nil {
		logger.Warn("Failed to append provisioning event",
			zap.String("store_id", storeID),
			zap.String("step", step),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// StepFunc performs a step and returns the message for its completed event.
type StepFunc func(ctx context.Context) (string, error)

// Step emits started, runs fn, then emits completed or failed.
func (r *Recorder) Step(ctx context.Context, store *domain.Store, step, startMsg string, fn StepFunc) error {
	log := logger.ForStore(store.ID, store.Namespace).With(zap.String("step", step))
	r.Record(ctx, store.ID, step, domain.EventStatusStarted, startMsg)
	log.Info(startMsg)

	start := time.Now()
	msg, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		r.Record(ctx, store.ID, step, domain.EventStatusFailed, err.Error())
		r.metrics.RecordStep(step, string(domain.EventStatusFailed), elapsed)
		log.Error("Provisioning step failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return err
	}
	r.Record(ctx, store.ID, step, domain.EventStatusCompleted, msg)
	r.metrics.RecordStep(step, string(domain.EventStatusCompleted), elapsed)
	log.Info(msg, zap.Duration("elapsed", elapsed))
	return nil
}
