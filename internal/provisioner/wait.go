package provisioner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/provider"
)

// WaitPolicy bounds a readiness poll. The condition is checked immediately
// and then every Interval; a wait never outlives Timeout by more than one
// in-flight check.
type WaitPolicy struct {
	Interval time.Duration
	Timeout  time.Duration
}

func waitDeploymentReady(ctx context.Context, gw provider.ClusterGateway, namespace, name string, p WaitPolicy) error {
	start := time.Now()
	err := wait.PollUntilContextTimeout(ctx, p.Interval, p.Timeout, true, func(ctx context.Context) (bool, error) {
		d, err := gw.GetDeployment(ctx, namespace, name)
		if err != nil {
			// Not created yet or a transient API error; keep polling.
			if !provider.IsNotFound(err) {
				logger.Debug("Deployment poll failed",
					zap.String("namespace", namespace),
					zap.String("deployment", name),
					zap.Error(err),
				)
			}
			return false, nil
		}
		desired := int32(1)
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		return d.Status.ReadyReplicas >= desired, nil
	})
	return pollResult(ctx, err, "deployment/"+name, namespace, start)
}

func waitJobComplete(ctx context.Context, gw provider.ClusterGateway, namespace, name string, failureLimit int32, p WaitPolicy) error {
	start := time.Now()
	err := wait.PollUntilContextTimeout(ctx, p.Interval, p.Timeout, true, func(ctx context.Context) (bool, error) {
		job, err := gw.GetJob(ctx, namespace, name)
		if err != nil {
			if !provider.IsNotFound(err) {
				logger.Debug("Job poll failed",
					zap.String("namespace", namespace),
					zap.String("job", name),
					zap.Error(err),
				)
			}
			return false, nil
		}
		if job.Status.Succeeded >= 1 {
			return true, nil
		}
		if job.Status.Failed >= failureLimit {
			return false, &JobFailedError{Job: name, Namespace: namespace, Failed: job.Status.Failed}
		}
		return false, nil
	})
	return pollResult(ctx, err, "job/"+name, namespace, start)
}

// pollResult turns an expired poll into a TimeoutError while letting
// cancellation of the parent context and condition errors through.
func pollResult(parent context.Context, err error, resource, namespace string, start time.Time) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if wait.Interrupted(err) {
		return &TimeoutError{Resource: resource, Namespace: namespace, Elapsed: time.Since(start)}
	}
	return err
}
