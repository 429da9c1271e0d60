package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
)

// Worker is the Stage Worker Contract: run(ctx, input, report) → output |
// StageError, specialized to this repo's shared *State so stage outputs
// compose without a generic input/output interface per stage. Cooperative
// cancellation via ctx is mandatory; a worker must return promptly on
// cancel. report is local to the stage ([0,100]); the Accountant maps it
// onto the job's global band.
type Worker interface {
	Stage() jobdomain.StageID
	Run(ctx context.Context, st *State, report func(local float64)) error
}

// Registry maps StageID to the Worker responsible for it. This is the only
// place stage-id-to-code binding happens, adapted from the job-type handler
// registry: the Runner does not know concretely which implementation backs
// a stage, only that the registry can produce one.
type Registry struct {
	mu      sync.RWMutex
	workers map[jobdomain.StageID]Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[jobdomain.StageID]Worker)}
}

// Register binds a Worker to its stage. Duplicate registration for the same
// StageID is a wiring error and fails fast.
func (r *Registry) Register(w Worker) error {
	if w == nil {
		return fmt.Errorf("nil worker")
	}
	id := w.Stage()
	if id == "" {
		return fmt.Errorf("worker Stage() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[id]; exists {
		return fmt.Errorf("worker already registered for stage=%s", id)
	}
	r.workers[id] = w
	return nil
}

func (r *Registry) Get(id jobdomain.StageID) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}
