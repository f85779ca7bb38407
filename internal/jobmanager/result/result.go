// Package result holds the latest published output of a running job. A job
// body publishes whole snapshots; any number of readers can load the most
// recent one at any time without blocking.
package result

import (
	"html/template"
	"sync/atomic"
	"time"
)

// Placeholder is the content returned for a job that has not published
// anything yet.
const Placeholder template.HTML = "job just started"

// Snapshot is an immutable piece of render-ready content published by a job.
type Snapshot struct {
	Content     template.HTML
	PublishedAt time.Time
}

// Publisher is handed to a job body so it can report progress.
type Publisher interface {
	SetPage(content template.HTML)
}

// Cell stores the latest Snapshot of a single job. It's safe for one writer
// and many concurrent readers. The zero value is ready to use.
type Cell struct {
	// NOTE: Only the latest snapshot is kept; earlier ones are dropped on the
	// next SetPage. Results are expected to be small enough to fit in memory.
	v atomic.Pointer[Snapshot]
}

// NewCell creates an empty Cell.
func NewCell() *Cell {
	return &Cell{}
}

// SetPage atomically replaces the current snapshot. Readers see either the old
// or the new snapshot, never a mix.
func (c *Cell) SetPage(content template.HTML) {
	c.v.Store(&Snapshot{Content: content, PublishedAt: time.Now()})
}

// Load returns the most recently published Snapshot, or a Placeholder
// snapshot if nothing has been published.
func (c *Cell) Load() Snapshot {
	s := c.v.Load()
	if s == nil {
		return Snapshot{Content: Placeholder}
	}

	return *s
}

// Published reports whether SetPage has been called at least once.
func (c *Cell) Published() bool {
	return c.v.Load() != nil
}
