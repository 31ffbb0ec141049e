// Package runner invokes the external Mermaid CLI (mmdc) to render diagrams.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stackvity/diagram-converter/pkg/converter/render"
)

const (
	// maxCapturedOutputBytes bounds what is kept of the converter's stdout/stderr.
	maxCapturedOutputBytes = 64 * 1024
	// maxErrorOutputBytes bounds the stderr excerpt attached to an error.
	maxErrorOutputBytes = 512
	// toolPathEnv tells the converter's headless browser which executable to launch.
	toolPathEnv = "PUPPETEER_EXECUTABLE_PATH"
)

// MMDCConfig selects the converter executable and the rendering options passed to it.
type MMDCConfig struct {
	Command    string // Name or path of the mmdc executable
	ToolPath   string // Optional browser executable, exported as PUPPETEER_EXECUTABLE_PATH
	Theme      string
	Background string
}

// MMDCRenderer implements converter.Renderer by running mmdc once per diagram.
// It is safe for concurrent use.
type MMDCRenderer struct {
	cfg    MMDCConfig
	logger *slog.Logger

	resolveOnce  sync.Once
	resolvedPath string
	resolveErr   error
}

var _ converter.Renderer = (*MMDCRenderer)(nil)

// NewMMDCRenderer creates a renderer. Empty config fields fall back to the converter defaults.
func NewMMDCRenderer(loggerHandler slog.Handler, cfg MMDCConfig) *MMDCRenderer {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if cfg.Command == "" {
		cfg.Command = converter.DefaultConverterCommand
	}
	if cfg.Theme == "" {
		cfg.Theme = converter.DefaultTheme
	}
	if cfg.Background == "" {
		cfg.Background = converter.DefaultBackground
	}
	return &MMDCRenderer{
		cfg:    cfg,
		logger: slog.New(loggerHandler).With(slog.String("component", "mmdcRenderer")),
	}
}

// Preflight resolves the converter executable. It has the converter.WorkerInitFunc
// signature; the lookup runs once and every worker shares its result.
func (r *MMDCRenderer) Preflight(ctx context.Context, workerID int) error {
	path, err := r.resolve()
	if err != nil {
		r.logger.Error("Converter executable not found", slog.Int("workerID", workerID), slog.String("command", r.cfg.Command), slog.String("error", err.Error()))
		return err
	}
	r.logger.Debug("Worker ready", slog.Int("workerID", workerID), slog.String("converter", path))
	return nil
}

func (r *MMDCRenderer) resolve() (string, error) {
	r.resolveOnce.Do(func() {
		path, err := exec.LookPath(r.cfg.Command)
		if err != nil {
			r.resolveErr = render.Wrap(render.ErrRenderToolNotFound, "%s: %v", r.cfg.Command, err)
			return
		}
		r.resolvedPath = path
	})
	return r.resolvedPath, r.resolveErr
}

// Args returns the converter arguments for one diagram.
func (r *MMDCRenderer) Args(inputPath, outputPath string) []string {
	return []string{"-i", inputPath, "-o", outputPath, "-t", r.cfg.Theme, "-b", r.cfg.Background}
}

// Render runs the converter for one diagram, killing it once timeout expires.
// A zero timeout only honours ctx.
func (r *MMDCRenderer) Render(ctx context.Context, inputPath, outputPath string, timeout time.Duration) error {
	logArgs := []any{slog.String("input", inputPath), slog.String("output", outputPath)}

	path, err := r.resolve()
	if err != nil {
		return err
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, r.Args(inputPath, outputPath)...)
	cmd.Env = os.Environ()
	if r.cfg.ToolPath != "" {
		cmd.Env = append(cmd.Env, toolPathEnv+"="+r.cfg.ToolPath)
	}
	configureProcessGroup(cmd)
	cmd.WaitDelay = time.Second

	var stdoutBuf, stderrBuf cappedBuffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	started := time.Now()
	if err := cmd.Start(); err != nil {
		r.logger.Error("Failed to start converter", append(logArgs, slog.String("command", path), slog.String("error", err.Error()))...)
		return render.Errorf("start %s: %v", path, err)
	}
	waitErr := cmd.Wait()
	elapsed := time.Since(started)

	stderr := strings.TrimSpace(stderrBuf.String())
	if s := strings.TrimSpace(stdoutBuf.String()); s != "" {
		r.logger.Debug("Converter stdout", append(logArgs, slog.String("stdout", s))...)
	}

	if waitErr == nil {
		r.logger.Debug("Converter finished", append(logArgs, slog.Duration("duration", elapsed))...)
		return nil
	}

	if runCtx.Err() != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return render.Wrap(render.ErrRenderTimeout, "%s: exceeded %s", inputPath, timeout)
		}
		return render.Wrap(render.ErrRenderTimeout, "%s: %v", inputPath, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		r.logger.Debug("Converter exited non-zero", append(logArgs, slog.Int("exitCode", exitErr.ExitCode()), slog.String("stderr", stderr))...)
		return render.Wrap(render.ErrRenderNonZeroExit, "%s: exit status %d%s", inputPath, exitErr.ExitCode(), excerpt(stderr))
	}
	return render.Errorf("%s: %v", inputPath, waitErr)
}

// cappedBuffer keeps the first maxCapturedOutputBytes written to it and
// silently drops the rest, so a chatty converter never fails on a full buffer.
type cappedBuffer struct {
	buf bytes.Buffer
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := maxCapturedOutputBytes - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }

func excerpt(stderr string) string {
	if stderr == "" {
		return ""
	}
	if len(stderr) > maxErrorOutputBytes {
		stderr = stderr[:maxErrorOutputBytes] + "... (truncated)"
	}
	return fmt.Sprintf(": %s", stderr)
}
