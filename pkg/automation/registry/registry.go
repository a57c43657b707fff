// Package registry tracks active runs and the per-resource locks that keep
// two runs from fighting over the same logical browsing identity.
package registry

import (
	"sync"

	"github.com/entrhq/relay/pkg/types"
)

// Registry owns the process-wide run and lock maps. It is a plain value
// injected into the orchestrator, not a singleton, so independent
// orchestrators can coexist in tests and multi-window hosts.
type Registry struct {
	mu    sync.Mutex
	locks map[string]string     // resourceID -> holding runID
	runs  map[string]*types.Run // runID -> run
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		locks: make(map[string]string),
		runs:  make(map[string]*types.Run),
	}
}

// Acquire takes the resource lock for a run. Returns false without side
// effects when the lock is already held; the caller surfaces the busy result
// before any step executes.
func (r *Registry) Acquire(resourceID, runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.locks[resourceID]; held {
		return false
	}
	r.locks[resourceID] = runID
	return true
}

// Release frees the resource lock. Releasing an unheld resource is a no-op,
// so every terminal path can route through the same call without
// double-release hazards.
func (r *Registry) Release(resourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, resourceID)
}

// Register adds a run to the active set.
func (r *Registry) Register(run *types.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

// Unregister removes a run from the active set. Safe to call for a run that
// was already removed.
func (r *Registry) Unregister(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// Get returns the active run with the given id.
func (r *Registry) Get(runID string) (*types.Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	return run, ok
}

// IsActive reports whether the run is still in the active set.
func (r *Registry) IsActive(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[runID]
	return ok
}

// ActiveRunFor returns the run currently holding the resource's lock, if any.
func (r *Registry) ActiveRunFor(resourceID string) (*types.Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID, held := r.locks[resourceID]
	if !held {
		return nil, false
	}
	run, ok := r.runs[runID]
	return run, ok
}

// IsResourceBusy reports whether the resource's lock is held.
func (r *Registry) IsResourceBusy(resourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.locks[resourceID]
	return held
}

// ActiveRuns returns all runs in the active set.
func (r *Registry) ActiveRuns() []*types.Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := make([]*types.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	return runs
}
