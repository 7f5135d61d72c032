// Package registry implements the task registry: a process-wide mapping
// from task name to an executable function, built before workers start
// and frozen for the lifetime of the process.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// TaskFunc is the signature every registered task function must satisfy:
// positional args, keyword args, and a JSON-encodable result or error.
type TaskFunc func(args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// entry pairs a registered function with the one-line description the
// list_tasks CLI prints.
type entry struct {
	fn          TaskFunc
	description string
}

// Registry is a builder populated via Register before worker start, then
// frozen; workers consume an immutable snapshot. It never panics or
// returns an error on lookup of an unknown name — callers branch on the
// boolean, replacing decorator-registered task functions with an
// explicit sum type.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]entry
	frozen bool
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{tasks: make(map[string]entry)}
}

// Register adds a task function under name. It panics if called after
// Freeze — registration is a construction-time-only operation, not a
// runtime one.
func (r *Registry) Register(name string, fn TaskFunc) {
	r.RegisterWithDescription(name, fn, "")
}

// RegisterWithDescription is Register plus a one-line description used by
// the list_tasks CLI.
func (r *Registry) RegisterWithDescription(name string, fn TaskFunc, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		panic(fmt.Sprintf("registry: cannot register %q after Freeze", name))
	}
	if fn == nil {
		panic(fmt.Sprintf("registry: nil task function for %q", name))
	}

	r.tasks[name] = entry{fn: fn, description: description}
}

// Freeze marks the registry read-only. Workers must only be started after
// Freeze has been called.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the function registered under name and true, or
// (nil, false) if no such task is registered. Callers branch on the
// boolean instead of handling an error — an unknown name is not an
// exceptional condition, it is part of the normal control flow of a
// worker loop processing arbitrary producer input.
func (r *Registry) Lookup(name string) (TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[name]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// Names returns every registered task name, sorted. Used by the list_tasks
// CLI, which reads each name's description through Description.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Description returns the one-line description registered for name, if
// any.
func (r *Registry) Description(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[name].description
}
