package converter

import (
	"log/slog"
	"time"
)

// progressMonitor observes a run's counters and forwards snapshots to the hooks.
// It never holds the counters' lock while rendering, so workers are never delayed.
type progressMonitor struct {
	counters *Counters
	interval time.Duration
	hooks    Hooks
	logger   *slog.Logger
	renders  int
}

func newProgressMonitor(counters *Counters, interval time.Duration, hooks Hooks, logger *slog.Logger) *progressMonitor {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &progressMonitor{
		counters: counters,
		interval: interval,
		hooks:    hooks,
		logger:   logger.With(slog.String("component", "progressMonitor")),
	}
}

// start runs the monitor in its own goroutine. poolDone is closed once all
// workers have joined. The returned channel closes after the final render.
func (m *progressMonitor) start(poolDone <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.run(poolDone)
	}()
	return done
}

func (m *progressMonitor) run(poolDone <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

loop:
	for {
		snap := m.counters.Snapshot()
		if snap.Done() {
			break
		}
		m.render(snap)

		select {
		case <-ticker.C:
		case <-m.counters.Changed():
		case <-poolDone:
			// Aborted runs stop before every task is processed.
			break loop
		}
	}

	// The loop may exit between ticks; always show the true final state.
	final := m.counters.Snapshot()
	m.render(final)
	m.logger.Debug("Progress monitor finished", slog.Int("renders", m.renders), slog.Int("processed", final.Processed), slog.Int("total", final.Total))
}

func (m *progressMonitor) render(p Progress) {
	m.renders++
	if err := m.hooks.OnProgress(p); err != nil {
		m.logger.Warn("OnProgress hook returned an error", slog.String("error", err.Error()))
	}
}
