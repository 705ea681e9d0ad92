// Package provisioner drives the per-engine pipelines that turn a
// Provisioning store into a running stack in its own namespace.
package provisioner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"storefleet.dev/storefleet/internal/domain"
)

// Pipeline provisions one engine. Provision returns nil only after the
// store has been marked Ready; any error aborts the remaining steps.
type Pipeline interface {
	Engine() string
	Provision(ctx context.Context, store *domain.Store) error
}

// UnknownPlanError is returned by Resolve for plans with no pipeline.
type UnknownPlanError struct {
	Plan      domain.Plan
	Available []domain.Plan
}

func (e *UnknownPlanError) Error() string {
	names := make([]string, len(e.Available))
	for i, p := range e.Available {
		names[i] = string(p)
	}
	return fmt.Sprintf("unknown store plan: %s. Available: %s", e.Plan, strings.Join(names, ", "))
}

// Registry maps each plan to exactly one pipeline. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	pipelines map[domain.Plan]Pipeline
}

// NewRegistry copies the given mapping.
func NewRegistry(pipelines map[domain.Plan]Pipeline) *Registry {
	m := make(map[domain.Plan]Pipeline, len(pipelines))
	for plan, p := range pipelines {
		m[plan] = p
	}
	return &Registry{pipelines: m}
}

// Resolve returns the pipeline for plan.
func (r *Registry) Resolve(plan domain.Plan) (Pipeline, error) {
	if p, ok := r.pipelines[plan]; ok {
		return p, nil
	}
	return nil, &UnknownPlanError{Plan: plan, Available: r.Plans()}
}

// Plans lists registered plans in lexical order.
func (r *Registry) Plans() []domain.Plan {
	plans := make([]domain.Plan, 0, len(r.pipelines))
	for p := range r.pipelines {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i] < plans[j] })
	return plans
}
