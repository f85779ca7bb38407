package router

import (
	"maps"
	"slices"
	"sync"

	"github.com/nixpig/jobdash/internal/view"
)

// StatusBoard holds named status values set by the host application, e.g.
// "Has Computed: true", and the ids of jobs whose latest result is shown on
// the status page. It's locked independently of the route table.
type StatusBoard struct {
	vars   map[string]string
	pinned []uint64
	mu     sync.RWMutex
}

// NewStatusBoard creates an empty StatusBoard.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{vars: make(map[string]string)}
}

// Set overrides the value of name.
func (b *StatusBoard) Set(name, value string) {
	b.mu.Lock()
	b.vars[name] = value
	b.mu.Unlock()
}

// Get returns the value of name and whether it's set.
func (b *StatusBoard) Get(name string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.vars[name]

	return v, ok
}

// Vars returns every status value sorted by name.
func (b *StatusBoard) Vars() []view.StatusVar {
	b.mu.RLock()
	defer b.mu.RUnlock()

	vars := make([]view.StatusVar, 0, len(b.vars))

	for _, name := range slices.Sorted(maps.Keys(b.vars)) {
		vars = append(vars, view.StatusVar{Name: name, Value: b.vars[name]})
	}

	return vars
}

// Pin adds the job id to the status page. Pinning twice is a no-op.
func (b *StatusBoard) Pin(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !slices.Contains(b.pinned, id) {
		b.pinned = append(b.pinned, id)
	}
}

// Pinned returns the pinned job ids in pinning order.
func (b *StatusBoard) Pinned() []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.Clone(b.pinned)
}
