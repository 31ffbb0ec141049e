package converter

import "sync"

// Progress is a consistent snapshot of a run's counters.
type Progress struct {
	Total     int `json:"total" yaml:"total"`
	Processed int `json:"processed" yaml:"processed"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	// Cached counts successes served from the render cache. It is a subset of Succeeded.
	Cached int `json:"cached" yaml:"cached"`
}

// Percent returns processed*100/total. An empty run is complete.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 100
	}
	return p.Processed * 100 / p.Total
}

// Done reports whether every task has been processed.
func (p Progress) Done() bool {
	return p.Processed >= p.Total
}

// Counters are the aggregate tallies of one run.
// Processed == Succeeded + Failed holds whenever the lock is released.
type Counters struct {
	mu       sync.Mutex
	progress Progress
	changed  chan struct{}
}

// NewCounters creates zeroed counters for a run of total tasks.
func NewCounters(total int) *Counters {
	return &Counters{
		progress: Progress{Total: total},
		changed:  make(chan struct{}, 1),
	}
}

// Record counts one finished task. It must be called exactly once per task.
func (c *Counters) Record(succeeded, cached bool) {
	c.mu.Lock()
	if succeeded {
		c.progress.Succeeded++
		if cached {
			c.progress.Cached++
		}
	} else {
		c.progress.Failed++
	}
	c.progress.Processed++
	c.mu.Unlock()

	// Coalesce: a pending signal already covers this update.
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Snapshot returns the current counters.
func (c *Counters) Snapshot() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Changed delivers a signal after one or more Record calls.
func (c *Counters) Changed() <-chan struct{} {
	return c.changed
}
