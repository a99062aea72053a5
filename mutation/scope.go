package mutation

import "sync"

// Runner serializes execution of jobs submitted under the same scope id, or
// runs them immediately for ScopeParallel. Modeled on hcat's view.pollingFlag
// idiom — a boolean guarded by a mutex marking "something is already
// running" — generalized into a tiny FIFO so a *second* submission doesn't
// get dropped, it queues (spec.md §4.3 "concurrent mutate calls queue under
// the default scope"). Exported so a MutationCache can hold one Runner per
// scope id shared across every Observer registered under that scope.
type Runner struct {
	mu      sync.Mutex
	queues  map[string][]func()
	running map[string]bool
}

// NewRunner constructs an empty Runner.
func NewRunner() *Runner {
	return &Runner{
		queues:  make(map[string][]func()),
		running: make(map[string]bool),
	}
}

// Submit runs job immediately if scope is ScopeParallel, if id is empty, or
// if id's queue is idle; otherwise job is appended to id's queue and runs once every job
// ahead of it has completed, preserving submission order.
func (r *Runner) Submit(scope Scope, id string, job func()) {
	if scope == ScopeParallel || id == "" {
		go job()
		return
	}

	r.mu.Lock()
	if r.running[id] {
		r.queues[id] = append(r.queues[id], job)
		r.mu.Unlock()
		return
	}
	r.running[id] = true
	r.mu.Unlock()

	go r.drain(id, job)
}

func (r *Runner) drain(id string, first func()) {
	job := first
	for {
		job()

		r.mu.Lock()
		q := r.queues[id]
		if len(q) == 0 {
			r.running[id] = false
			delete(r.queues, id)
			r.mu.Unlock()
			return
		}
		job = q[0]
		r.queues[id] = q[1:]
		r.mu.Unlock()
	}
}
