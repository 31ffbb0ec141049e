// Package hooks bridges converter run events to the CLI's presentation layer:
// the interactive TUI, a progress bar, a single status line, or logs only.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"

	"github.com/stackvity/diagram-converter/pkg/converter"
)

// Mode selects how progress is presented.
type Mode string

const (
	ModeTUI  Mode = "tui"
	ModeBar  Mode = "bar"
	ModeLine Mode = "line"
	ModeNone Mode = "none"
)

// --- TUI Message Structs ---

// PhaseMsg signals a change of the run phase.
type PhaseMsg struct{ Phase converter.Phase }

// TaskDiscoveredMsg signals that the enumerator queued a diagram.
type TaskDiscoveredMsg struct{ Path string }

// TaskStatusUpdateMsg signals a change in a task's processing status.
type TaskStatusUpdateMsg struct {
	Path     string
	Status   converter.Status
	Message  string
	Duration time.Duration
}

// ProgressMsg carries a snapshot of the run counters.
type ProgressMsg struct{ Progress converter.Progress }

// RunCompleteMsg signals the completion of the entire run.
type RunCompleteMsg struct{ Report converter.Report }

// TUIProgram is the part of *tea.Program the hooks use.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the part of *progressbar.ProgressBar the hooks use.
type ProgressBar interface {
	ChangeMax(newMax int)
	Set(num int) error
	Describe(description string)
	Finish() error
}

// Config wires the presentation targets. Only the target of the selected Mode is used.
type Config struct {
	Mode    Mode
	Verbose bool
	Program TUIProgram  // ModeTUI
	Bar     ProgressBar // ModeBar
	Out     io.Writer   // ModeLine, and the newline that ends ModeBar
}

// CLIHooks implements converter.Hooks. All methods are safe for concurrent use.
type CLIHooks struct {
	logger  *slog.Logger
	mode    Mode
	verbose bool
	program TUIProgram
	bar     ProgressBar
	out     io.Writer

	mu        sync.Mutex // serializes bar and line output
	lineDirty bool
	barMax    int
}

var (
	_ converter.Hooks = (*CLIHooks)(nil)
	_ TUIProgram      = (*tea.Program)(nil)
	_ ProgressBar     = (*progressbar.ProgressBar)(nil)
)

// NewCLIHooks creates hooks for cfg. A mode whose target is missing falls back to ModeNone.
func NewCLIHooks(logger *slog.Logger, cfg Config) *CLIHooks {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mode := cfg.Mode
	switch {
	case mode == ModeTUI && cfg.Program == nil,
		mode == ModeBar && cfg.Bar == nil,
		mode == ModeLine && cfg.Out == nil:
		mode = ModeNone
	case mode != ModeTUI && mode != ModeBar && mode != ModeLine:
		mode = ModeNone
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &CLIHooks{
		logger:  logger.With(slog.String("component", "hooks")),
		mode:    mode,
		verbose: cfg.Verbose,
		program: cfg.Program,
		bar:     cfg.Bar,
		out:     out,
		barMax:  -1,
	}
}

// Mode returns the presentation mode in effect.
func (h *CLIHooks) Mode() Mode { return h.mode }

// OnPhase implements converter.Hooks.
func (h *CLIHooks) OnPhase(phase converter.Phase) error {
	if h.mode == ModeTUI {
		h.program.Send(PhaseMsg{Phase: phase})
		return nil
	}
	h.logger.Debug("Run phase changed", slog.String("phase", string(phase)))
	return nil
}

// OnTaskDiscovered implements converter.Hooks.
func (h *CLIHooks) OnTaskDiscovered(path string) error {
	if h.mode == ModeTUI {
		h.program.Send(TaskDiscoveredMsg{Path: path})
	} else if h.verbose {
		h.logger.Debug("Diagram discovered", slog.String("path", path))
	}
	return nil
}

// OnTaskStatusUpdate implements converter.Hooks.
func (h *CLIHooks) OnTaskStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	if h.mode == ModeTUI {
		h.program.Send(TaskStatusUpdateMsg{Path: path, Status: status, Message: message, Duration: duration})
		return nil
	}

	if h.verbose {
		level := slog.LevelDebug
		msg := "Diagram status updated"
		attrs := []any{slog.String("path", path), slog.String("status", string(status))}
		if duration > 0 {
			attrs = append(attrs, slog.Duration("duration", duration))
		}
		if message != "" {
			key := "message"
			if status == converter.StatusFailed {
				key = "error"
			}
			attrs = append(attrs, slog.String(key, message))
		}
		switch status {
		case converter.StatusSuccess, converter.StatusCached, converter.StatusSkipped:
			level = slog.LevelInfo
		case converter.StatusFailed:
			level = slog.LevelError
			msg = "Diagram conversion failed"
		}
		h.logger.Log(context.Background(), level, msg, attrs...)
		return nil
	}

	if status == converter.StatusFailed {
		h.mu.Lock()
		h.breakLine()
		h.mu.Unlock()
		h.logger.Error("Diagram conversion failed", slog.String("path", path), slog.String("error", message))
	}
	return nil
}

// OnProgress implements converter.Hooks.
func (h *CLIHooks) OnProgress(p converter.Progress) error {
	switch h.mode {
	case ModeTUI:
		h.program.Send(ProgressMsg{Progress: p})
	case ModeBar:
		h.mu.Lock()
		defer h.mu.Unlock()
		// The total is only known once the scan is done.
		if p.Total != h.barMax {
			h.bar.ChangeMax(p.Total)
			h.barMax = p.Total
		}
		h.bar.Describe(fmt.Sprintf("✅ %d | ❌ %d", p.Succeeded, p.Failed))
		_ = h.bar.Set(p.Processed)
	case ModeLine:
		h.mu.Lock()
		defer h.mu.Unlock()
		_, _ = fmt.Fprintf(h.out, "\r%s", FormatProgressLine(p))
		h.lineDirty = true
	default:
		h.logger.Debug("Progress", slog.Int("processed", p.Processed), slog.Int("total", p.Total),
			slog.Int("succeeded", p.Succeeded), slog.Int("failed", p.Failed))
	}
	return nil
}

// OnRunComplete implements converter.Hooks.
func (h *CLIHooks) OnRunComplete(report converter.Report) error {
	switch h.mode {
	case ModeTUI:
		h.program.Send(RunCompleteMsg{Report: report})
	case ModeBar:
		h.mu.Lock()
		defer h.mu.Unlock()
		_ = h.bar.Finish()
		_, _ = fmt.Fprintln(h.out)
	case ModeLine:
		h.mu.Lock()
		defer h.mu.Unlock()
		h.breakLine()
	}
	return nil
}

// breakLine ends a pending status line so log output starts on a fresh one.
// Callers hold h.mu.
func (h *CLIHooks) breakLine() {
	if h.lineDirty {
		_, _ = fmt.Fprintln(h.out)
		h.lineDirty = false
	}
}

// FormatProgressLine renders the single-line progress display.
func FormatProgressLine(p converter.Progress) string {
	return fmt.Sprintf("Progress: %d%% (%d/%d) | ✅ %d | ❌ %d", p.Percent(), p.Processed, p.Total, p.Succeeded, p.Failed)
}
