package workflow

import (
	"context"
	"fmt"
	"sync"

	saga "github.com/cybinfo/pg-manager-sub005"
)

// RawExecutor is a type-erased workflow executor that accepts raw JSON
// input. The typed Definition[In, Out] is converted to a RawExecutor at
// registration time by closing over JSON unmarshal + the typed execute
// path (see engine.Register).
type RawExecutor func(ctx context.Context, ec saga.ExecutionContext, input []byte) (*RawOutcome, error)

// Registry maps workflow names to type-erased executors so boundary layers
// (an HTTP handler, a CLI) can invoke workflows by name. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]RawExecutor
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]RawExecutor)}
}

// Register adds an executor under name. Registering the same name twice
// returns saga.ErrDuplicateWorkflow.
func (r *Registry) Register(name string, exec RawExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[name]; exists {
		return fmt.Errorf("%w: %q", saga.ErrDuplicateWorkflow, name)
	}
	r.executors[name] = exec
	return nil
}

// Get returns the executor for the given workflow name.
// Returns false if no executor is registered.
func (r *Registry) Get(name string) (RawExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[name]
	return exec, ok
}

// Names returns all registered workflow names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	return names
}
