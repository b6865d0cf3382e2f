package workflow

import (
	"log/slog"
	"sync"

	"github.com/tombee/maestro/pkg/errors"
)

// Registry is the process-lifetime map of workflow definitions. It stores
// and hands out deep copies, so registered definitions are immutable from
// the caller's point of view. Safe for concurrent readers and writers.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Workflow
	order  []string
	logger *slog.Logger
}

// NewRegistry creates a registry seeded with the built-in templates.
func NewRegistry(logger *slog.Logger) *Registry {
	return newRegistry(logger, true)
}

func newRegistry(logger *slog.Logger, seedTemplates bool) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		byID:   make(map[string]*Workflow),
		logger: logger,
	}
	if seedTemplates {
		for _, tmpl := range builtinTemplates() {
			// Templates are maintained alongside Validate; a seed failure
			// is a programming error.
			if _, err := r.Register(tmpl); err != nil {
				panic("workflow: invalid built-in template " + tmpl.ID + ": " + err.Error())
			}
		}
	}
	return r
}

// Register validates and stores a workflow definition. Re-registering an
// existing id replaces the prior definition and reports replaced=true; the
// collision is logged as a warning exactly once, never raised as an error.
func (r *Registry) Register(wf *Workflow) (replaced bool, err error) {
	if wf == nil {
		return false, &errors.ValidationError{
			Field:   "workflow",
			Message: "workflow is nil",
		}
	}
	if err := wf.Validate(); err != nil {
		return false, err
	}
	stored := wf.clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, replaced = r.byID[stored.ID]; replaced {
		r.logger.Warn("overwriting registered workflow",
			"workflow", stored.ID,
			"version", stored.Version,
		)
	} else {
		r.order = append(r.order, stored.ID)
	}
	r.byID[stored.ID] = stored
	return replaced, nil
}

// Get returns a copy of the workflow with the given id.
func (r *Registry) Get(id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.byID[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return wf.clone(), nil
}

// List returns copies of every registered workflow in registration order.
func (r *Registry) List() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workflow, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// Len returns the number of registered workflows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
