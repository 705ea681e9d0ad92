package provisioner

import (
	"fmt"
	"time"
)

// TimeoutError reports a wait that ran past its deadline. Condition names
// the state that was never reached and defaults to "ready".
type TimeoutError struct {
	Resource  string
	Namespace string
	Condition string
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	cond := e.Condition
	if cond == "" {
		cond = "ready"
	}
	return fmt.Sprintf("%s in %s not %s after %s", e.Resource, e.Namespace, cond, e.Elapsed.Round(time.Second))
}

// JobFailedError reports a job that exhausted its failure budget.
type JobFailedError struct {
	Job       string
	Namespace string
	Failed    int32
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s in %s failed after %d attempts", e.Job, e.Namespace, e.Failed)
}
