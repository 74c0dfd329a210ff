package health

import (
	"context"
	"sort"
	"sync"
)

// Registry runs a named set of checkers and tracks the rolling status
// of each dependency. The API health endpoint reads it; the daemon
// registers the store, the gateway, and each configured peer.
type Registry struct {
	mu       sync.RWMutex
	config   Config
	checks   map[string]Checker
	statuses map[string]*Status
}

// NewRegistry creates an empty registry using config for thresholds.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config,
		checks:   make(map[string]Checker),
		statuses: make(map[string]*Status),
	}
}

// Register adds or replaces a named checker. Replacing resets the
// dependency's rolling status.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = checker
	r.statuses[name] = NewStatus()
}

// Unregister removes a named checker, for peers dropped from the
// configured peer list.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checks, name)
	delete(r.statuses, name)
}

// Names lists registered checkers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAll executes every checker in parallel, each bounded by the
// configured timeout, updates the rolling statuses, and returns the
// raw results by name.
func (r *Registry) RunAll(ctx context.Context) map[string]Result {
	r.mu.RLock()
	checks := make(map[string]Checker, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	results := make(map[string]Result, len(checks))

	for name, checker := range checks {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()

			result := checker.Check(checkCtx)

			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	r.mu.Lock()
	for name, result := range results {
		if status, ok := r.statuses[name]; ok {
			status.Update(result, r.config)
		}
	}
	r.mu.Unlock()

	return results
}

// Healthy reports whether every tracked dependency is healthy.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, status := range r.statuses {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of every dependency's rolling status.
func (r *Registry) Snapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Status, len(r.statuses))
	for name, status := range r.statuses {
		out[name] = *status
	}
	return out
}
