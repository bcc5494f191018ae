// Package health aggregates readiness probes for the engine's dependencies.
//
// The screening path fails closed when a dependency is down, so the health
// endpoint reports per-dependency state rather than a single boolean: an
// operator seeing 503 wants to know whether it is the ledger database or
// something else.
package health

import (
	"context"
	"sync"
)

// Status is the probe result for one dependency.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single dependency. It must honor ctx deadlines: a hung
// probe would stall the whole health endpoint.
type Checker func(ctx context.Context) Status

// Registry collects named checkers and probes them on demand.
type Registry struct {
	mu     sync.RWMutex
	probes []probe
}

type probe struct {
	name  string
	check Checker
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker under the given dependency name.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.probes = append(r.probes, probe{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll probes every registered dependency and reports whether all of
// them are healthy, plus the individual results in registration order.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	probes := make([]probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(probes))

	for i, p := range probes {
		statuses[i] = p.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}
