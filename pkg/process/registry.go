package process

import (
	"sort"
	"sync"

	"github.com/butter-bot-machines/childproc/pkg/metrics"
)

// Registry retains running processes so they stay reachable until their
// exit has been delivered, even when the caller dropped every reference.
type Registry struct {
	mu      sync.Mutex
	procs   map[string]*Process
	publish bool
}

var defaultRegistry = &Registry{procs: make(map[string]*Process), publish: true}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]*Process)}
}

// DefaultRegistry returns the process-wide registry. Its size is published
// as the childproc_running gauge.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Add retains p. Adding an already retained process is a no-op.
func (r *Registry) Add(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[p.ID()] = p
	r.updateLocked()
}

// Release drops p
func (r *Registry) Release(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.procs[p.ID()] == p {
		delete(r.procs, p.ID())
	}
	r.updateLocked()
}

// Get returns the retained process with the given ID
func (r *Registry) Get(id string) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[id]
	return p, ok
}

// FindPID returns the retained process whose current run has pid
func (r *Registry) FindPID(pid int) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.procs {
		if p.PID() == pid {
			return p, true
		}
	}
	return nil, false
}

// Contains reports whether p is retained
func (r *Registry) Contains(p *Process) bool {
	got, ok := r.Get(p.ID())
	return ok && got == p
}

// List returns the retained processes ordered by PID
func (r *Registry) List() []*Process {
	r.mu.Lock()
	procs := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	sort.Slice(procs, func(i, j int) bool {
		return procs[i].PID() < procs[j].PID()
	})
	return procs
}

// Len returns the number of retained processes
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

func (r *Registry) updateLocked() {
	if r.publish {
		metrics.SetRunning(len(r.procs))
	}
}
