package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// Registry maps action types to their executors. It is populated explicitly
// at startup; executing an unregistered type is a configuration error
// surfaced as a failed Result, never a lookup by convention.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: map[string]Executor{}}
}

// Register adds an executor for its declared type. Registering the same type
// twice is a programming error.
func (r *Registry) Register(ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	typ := ex.Type()
	if _, dup := r.executors[typ]; dup {
		panic(fmt.Sprintf("action: executor %q registered twice", typ))
	}
	r.executors[typ] = ex
}

// Get returns the executor for the given action type.
func (r *Registry) Get(typ string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[typ]
	return ex, ok
}

// Types lists the registered action types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for typ := range r.executors {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// ValidateAction checks an action's config against its executor. An unknown
// type yields a single problem naming the type.
func (r *Registry) ValidateAction(act rule.Action) []string {
	ex, ok := r.Get(act.Type)
	if !ok {
		return []string{fmt.Sprintf("unknown action type %q", act.Type)}
	}
	return ex.ValidateConfig(act.Config)
}
