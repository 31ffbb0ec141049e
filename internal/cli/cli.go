// Package cli wires the converter library to its command-line presentation:
// the external renderer, git filtering, progress display, the final report and
// the run-complete notification.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"

	"github.com/stackvity/diagram-converter/internal/cli/git"
	"github.com/stackvity/diagram-converter/internal/cli/hooks"
	"github.com/stackvity/diagram-converter/internal/cli/notify"
	"github.com/stackvity/diagram-converter/internal/cli/runner"
	"github.com/stackvity/diagram-converter/internal/cli/ui"
	"github.com/stackvity/diagram-converter/pkg/converter"
)

// Streams are the process outputs Run writes to.
type Streams struct {
	Out io.Writer // final report
	Err io.Writer // progress display and TUI
	// Interactive reports whether Err is a terminal.
	Interactive bool
}

// SelectProgressMode resolves the configured progress mode. "auto" picks the TUI
// on an interactive terminal and the single status line otherwise; a disabled
// TUI always degrades to the status line.
func SelectProgressMode(opts converter.Options, interactive bool) hooks.Mode {
	mode := hooks.Mode(opts.ProgressMode)
	if opts.ProgressMode == "" || opts.ProgressMode == "auto" {
		mode = hooks.ModeLine
		if interactive {
			mode = hooks.ModeTUI
		}
	}
	if mode == hooks.ModeTUI && !opts.TuiEnabled {
		mode = hooks.ModeLine
	}
	return mode
}

// Run executes a conversion with the validated opts and returns the process exit
// code. The error is the fatal run error, if any; it has already been logged.
func Run(ctx context.Context, opts converter.Options, logger *slog.Logger, streams Streams) (int, error) {
	if streams.Out == nil {
		streams.Out = io.Discard
	}
	if streams.Err == nil {
		streams.Err = io.Discard
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.Renderer == nil {
		mmdc := runner.NewMMDCRenderer(opts.Logger, runner.MMDCConfig{
			Command:    opts.ConverterCommand,
			ToolPath:   opts.ToolPath,
			Theme:      opts.Theme,
			Background: opts.Background,
		})
		opts.Renderer = mmdc
		if opts.WorkerInit == nil {
			opts.WorkerInit = mmdc.Preflight
		}
	}
	if opts.GitDiffMode != converter.GitDiffModeNone && opts.GitDiffMode != "" && opts.GitClient == nil {
		opts.GitClient = git.NewGoGitClient(opts.Logger)
	}

	mode := SelectProgressMode(opts, streams.Interactive)
	hookCfg := hooks.Config{Mode: mode, Verbose: opts.Verbose, Out: streams.Err}

	var program *tea.Program
	switch mode {
	case hooks.ModeTUI:
		program = tea.NewProgram(ui.NewModel(opts.AppVersion, cancel), tea.WithOutput(streams.Err))
		hookCfg.Program = program
	case hooks.ModeBar:
		hookCfg.Bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(streams.Err),
			progressbar.OptionSetDescription("Converting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
		)
	}
	cliHooks := hooks.NewCLIHooks(logger, hookCfg)
	opts.EventHooks = cliHooks
	logger.Debug("Progress presentation selected", slog.String("mode", string(cliHooks.Mode())))

	var (
		report converter.Report
		runErr error
	)
	if program != nil {
		report, runErr = runWithTUI(runCtx, program, opts, logger)
	} else {
		report, runErr = converter.Convert(runCtx, opts)
	}

	if runErr != nil && report.Summary.Outcome == "" {
		// Options were rejected before the run started; there is nothing to report.
		return 1, runErr
	}

	if err := WriteReport(streams.Out, report, opts.OutputFormat); err != nil {
		logger.Error("Failed to write report", slog.String("error", err.Error()))
	}

	if n := notify.NewNotifier(logger, opts.Notify); n != nil {
		if err := n.Publish(report); err != nil {
			logger.Warn("Run-complete notification failed", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Run cancelled", slog.Int("unprocessed", report.Summary.TaskCount-report.Summary.Processed))
		} else {
			logger.Error("Run aborted", slog.String("error", runErr.Error()))
		}
	}
	return report.ExitCode(), runErr
}

type convertResult struct {
	report converter.Report
	err    error
}

// runWithTUI runs the conversion in the background while the TUI owns the terminal.
func runWithTUI(ctx context.Context, program *tea.Program, opts converter.Options, logger *slog.Logger) (converter.Report, error) {
	done := make(chan convertResult, 1)
	go func() {
		report, err := converter.Convert(ctx, opts)
		done <- convertResult{report: report, err: err}
		// Queued after the run-complete message, so the final state is drawn first.
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		logger.Error("TUI exited with error", slog.String("error", err.Error()))
	}
	result := <-done
	return result.report, result.err
}
