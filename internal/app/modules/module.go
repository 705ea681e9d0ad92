// Package modules contains the dependency modules assembled by the
// composition root.
package modules

import (
	"context"

	"github.com/riverqueue/river"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// PeriodicJobs returns the module's scheduled River jobs.
	PeriodicJobs() []*river.PeriodicJob

	// Start launches module background loops.
	Start(context.Context) error

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}
