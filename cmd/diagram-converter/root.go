package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackvity/diagram-converter/internal/cli"
	"github.com/stackvity/diagram-converter/internal/cli/config"
	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stackvity/diagram-converter/pkg/converter/cache"
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitCodeError carries the process exit code of a finished run through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		profileName string
	)

	cmd := &cobra.Command{
		Use:   "diagram-converter <source_dir> <output_dir> [tool_path] [thread_count]",
		Short: "Converts a directory of Mermaid diagrams to PNG images in parallel.",
		Long: `diagram-converter renders every .mmd file under <source_dir> to a .png file of the
same base name in <output_dir>, running up to 16 converter processes at once.

[tool_path] is the browser executable handed to the converter through
PUPPETEER_EXECUTABLE_PATH. [thread_count] between 1 and 16 sets the number of
workers; any other value uses the number of CPUs.

The run succeeds unless every processed diagram failed or the run was aborted.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:    cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid past this point; failures are logged where they happen.
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true

			opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, args, cmd.Flags(), cmd.ErrOrStderr())
			if err != nil {
				return &exitCodeError{code: 1, err: err}
			}

			code, err := cli.Run(cmd.Context(), opts, logger, cli.Streams{
				Out:         cmd.OutOrStdout(),
				Err:         cmd.ErrOrStderr(),
				Interactive: isTerminal(cmd.ErrOrStderr()),
			})
			if code != 0 || err != nil {
				return &exitCodeError{code: max(code, 1), err: err}
			}
			return nil
		},
	}
	cmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "Configuration file path (YAML, JSON or TOML); no file is read unless given")
	flags.StringVar(&profileName, "profile", "", "Name of a profile under 'profiles' in the configuration file")
	flags.BoolP("verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")
	flags.String("log-format", config.LogFormatText, `Log format ("text" or "json")`)

	// Converter
	flags.String("mmdc", converter.DefaultConverterCommand, "Converter executable name or path")
	flags.String("tool-path", "", "Browser executable exported as PUPPETEER_EXECUTABLE_PATH (same as [tool_path])")
	flags.String("theme", converter.DefaultTheme, "Diagram theme passed to the converter")
	flags.String("background", converter.DefaultBackground, "Background color passed to the converter")
	flags.Duration("timeout", converter.DefaultTimeout, "Maximum time for a single conversion")

	// Scheduling
	flags.Int("threads", converter.DefaultThreads, "Number of parallel workers, 1-16 (0 for CPU count; same as [thread_count])")
	flags.Int("max-tasks", converter.MaxTasks, "Maximum number of diagrams converted in one run")

	// Selection
	flags.StringArray("ignore", []string{}, "Glob patterns for files to skip (can be specified multiple times)")
	flags.Bool("git-diff-only", converter.DefaultGitDiffOnly, "Convert only diagrams modified in the Git working tree or index")
	flags.String("git-since", converter.DefaultGitSinceRef, "Convert only diagrams changed since the given Git reference")

	// Caching & verification
	flags.Bool("cache", converter.DefaultCacheEnabled, "Skip diagrams whose source and settings are unchanged since the last run")
	flags.Bool("clear-cache", false, "Delete the cache index before starting")
	flags.String("cache-format", cache.DefaultFormat, `Cache index format ("gob" or "json")`)
	flags.Bool("verify-output", converter.DefaultVerifyOutput, "Decode every rendered image and fail tasks whose output is unreadable")

	// Output
	flags.String("output-format", string(converter.DefaultOutputFormat), `Final report format ("text", "json" or "yaml")`)
	flags.String("progress", config.ProgressAuto, `Progress display ("auto", "tui", "bar", "line" or "none")`)
	flags.Bool("no-tui", false, "Disable interactive Terminal UI even if in a TTY")
	flags.String("notify-url", "", "NATS server URL to publish a run-completed event to")
	flags.String("notify-subject", converter.DefaultNotifySubject, "NATS subject for the run-completed event")

	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Execute runs the root command with signal-aware cancellation and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, newRootCmd(), os.Args[1:])
}

func execute(ctx context.Context, cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}
