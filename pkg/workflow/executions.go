package workflow

import (
	"sort"
	"sync"
)

// executionRegistry tracks in-flight executions for status inspection.
// Entries are added when an execution starts and removed once its terminal
// state is recorded; a lookup after removal returns nothing.
type executionRegistry struct {
	mu     sync.RWMutex
	active map[string]*Execution
}

func newExecutionRegistry() *executionRegistry {
	return &executionRegistry{active: make(map[string]*Execution)}
}

func (r *executionRegistry) add(exec *Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[exec.ID] = exec
}

func (r *executionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

// snapshot returns a consistent deep copy of an in-flight execution, nil
// when the id is unknown or already terminal.
func (r *executionRegistry) snapshot(id string) *ExecutionSnapshot {
	r.mu.RLock()
	exec, ok := r.active[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return exec.Snapshot()
}

// snapshotAll returns deep copies of every in-flight execution, oldest
// first. Ties on start time fall back to execution id so the order is
// stable across calls.
func (r *executionRegistry) snapshotAll() []*ExecutionSnapshot {
	r.mu.RLock()
	snaps := make([]*ExecutionSnapshot, 0, len(r.active))
	for _, exec := range r.active {
		snaps = append(snaps, exec.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].ExecutionID < snaps[j].ExecutionID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

func (r *executionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
