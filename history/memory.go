package history

import (
	"context"
	"sort"
	"sync"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/id"
)

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// Memory is a fully in-memory Store. Safe for concurrent access.
// Intended for unit testing and development.
type Memory struct {
	mu         sync.RWMutex
	executions map[string]*Execution
}

// NewMemory returns a new empty store.
func NewMemory() *Memory {
	return &Memory{executions: make(map[string]*Execution)}
}

// CreateExecution persists a new execution record.
func (m *Memory) CreateExecution(_ context.Context, e *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.executions[e.ID.String()] = &cp
	return nil
}

// UpdateExecution persists changes to an existing execution record.
func (m *Memory) UpdateExecution(_ context.Context, e *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.executions[e.ID.String()]; !exists {
		return saga.ErrExecutionNotFound
	}
	cp := *e
	cp.Touch()
	m.executions[e.ID.String()] = &cp
	return nil
}

// GetExecution retrieves an execution by ID.
func (m *Memory) GetExecution(_ context.Context, execID id.ID) (*Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.executions[execID.String()]
	if !exists {
		return nil, saga.ErrExecutionNotFound
	}
	cp := *e
	return &cp, nil
}

// ListExecutions returns executions matching the given options, newest first.
func (m *Memory) ListExecutions(_ context.Context, opts ListOpts) ([]*Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Execution
	for _, e := range m.executions {
		if opts.State != "" && e.State != opts.State {
			continue
		}
		if opts.Workflow != "" && e.Workflow != opts.Workflow {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
