// Package stagee implements Stage E — the Executor:
// dependency-ordered, concurrency-capped dispatch of a Plan's steps
// against registered tool runners.
package stagee

import (
	"context"
	"fmt"
	"sync"
)

// Runner executes one step against a concrete tool. Inputs carries the
// step's resolved input map; the returned map becomes StepResult.Output.
type Runner func(ctx context.Context, inputs map[string]interface{}) (stdout, stderr string, output map[string]interface{}, err error)

// Registry is a concurrency-safe table of step runners keyed by tool
// name.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds a runner under name. Re-registering an existing name is
// an error.
func (r *Registry) Register(name string, runner Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[name]; exists {
		return fmt.Errorf("runner %q already registered", name)
	}
	r.runners[name] = runner
	return nil
}

// Unregister removes name, if present. Never panics on a missing name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runners, name)
}

// IsRegistered reports whether name has a runner.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.runners[name]
	return ok
}

// Count returns the number of registered runners.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runners)
}

// Execute looks up name and invokes it. Returns an error naming the
// unknown tool if absent.
func (r *Registry) Execute(ctx context.Context, name string, inputs map[string]interface{}) (string, string, map[string]interface{}, error) {
	r.mu.RLock()
	runner, ok := r.runners[name]
	r.mu.RUnlock()
	if !ok {
		return "", "", nil, fmt.Errorf("unknown action %q: no runner registered", name)
	}
	return runner(ctx, inputs)
}
