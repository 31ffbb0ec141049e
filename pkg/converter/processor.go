package converter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/stackvity/diagram-converter/pkg/converter/render"
)

// taskProcessor runs the per-task pipeline: cache check, render, verify, cache update.
// It holds no per-task state and is shared by all workers.
type taskProcessor struct {
	opts         *Options
	logger       *slog.Logger
	renderer     Renderer
	verifier     OutputVerifier
	cacheManager CacheManager
	cacheEnabled bool
	configHash   string
}

func newTaskProcessor(opts *Options, loggerHandler slog.Handler, renderer Renderer, verifier OutputVerifier, cacheMgr CacheManager) *taskProcessor {
	logger := slog.New(loggerHandler).With(slog.String("component", "processor"))
	if cacheMgr == nil {
		cacheMgr = &NoOpCacheManager{}
	}
	return &taskProcessor{
		opts:         opts,
		logger:       logger,
		renderer:     renderer,
		verifier:     verifier,
		cacheManager: cacheMgr,
		cacheEnabled: opts.CacheEnabled,
		configHash:   calculateConfigHash(opts),
	}
}

// Process converts one task. A non-nil error wraps ErrTaskExecution and means
// the task failed; the returned TaskResult is filled in either way.
func (p *taskProcessor) Process(ctx context.Context, workerID int, task Task) (TaskResult, error) {
	startTime := time.Now()
	result := TaskResult{
		InputPath:   task.InputPath,
		OutputPath:  task.OutputPath,
		CacheStatus: CacheStatusDisabled,
		WorkerID:    workerID,
	}
	logArgs := []any{slog.String("input", task.InputPath), slog.Int("workerID", workerID)}

	finish := func(status Status, err error) (TaskResult, error) {
		result.Status = status
		result.DurationMs = time.Since(startTime).Milliseconds()
		if err != nil {
			result.Error = err.Error()
		}
		return result, err
	}

	var (
		modTime    time.Time
		sourceHash string
	)
	if p.cacheEnabled {
		result.CacheStatus = CacheStatusMiss
		var statErr error
		modTime, sourceHash, statErr = fingerprint(task.InputPath)
		if statErr != nil {
			// Unreadable source: let the converter report the real failure.
			p.logger.Debug("Cannot fingerprint source, skipping cache", append(logArgs, slog.String("error", statErr.Error()))...)
			sourceHash = ""
		} else if hit, outputHash := p.cacheManager.Check(task.Name(), modTime, sourceHash, p.configHash); hit {
			if current, err := hashFile(task.OutputPath); err == nil && current == outputHash {
				result.CacheStatus = CacheStatusHit
				p.logger.Debug("Cache hit, render skipped", logArgs...)
				return finish(StatusCached, nil)
			}
			p.logger.Debug("Cache entry valid but output missing or changed, re-rendering", logArgs...)
		}
	}

	if err := p.renderer.Render(ctx, task.InputPath, task.OutputPath, p.opts.Timeout); err != nil {
		level := slog.LevelDebug
		if errors.Is(err, render.ErrRenderTimeout) {
			level = slog.LevelWarn
		}
		p.logger.Log(ctx, level, "Render failed", append(logArgs, slog.String("error", err.Error()))...)
		return finish(StatusFailed, fmt.Errorf("%w: %w", ErrTaskExecution, err))
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(task.OutputPath); err != nil {
			p.logger.Debug("Output verification failed", append(logArgs, slog.String("error", err.Error()))...)
			return finish(StatusFailed, fmt.Errorf("%w: %w", ErrTaskExecution, err))
		}
	}

	if p.cacheEnabled && sourceHash != "" {
		outputHash, err := hashFile(task.OutputPath)
		if err != nil {
			p.logger.Warn("Cannot hash rendered output, cache not updated", append(logArgs, slog.String("error", err.Error()))...)
		} else if err := p.cacheManager.Update(task.Name(), modTime, sourceHash, p.configHash, outputHash); err != nil {
			p.logger.Warn("Cache update failed", append(logArgs, slog.String("error", err.Error()))...)
		}
	}

	return finish(StatusSuccess, nil)
}

// calculateConfigHash covers every option that changes rendered bytes.
func calculateConfigHash(opts *Options) string {
	hasher := sha256.New()
	addToHash := func(h hash.Hash, key, value string) {
		h.Write([]byte(key + ":" + value + ";"))
	}
	addToHash(hasher, "ConverterCommand", opts.ConverterCommand)
	addToHash(hasher, "ToolPath", opts.ToolPath)
	addToHash(hasher, "Theme", opts.Theme)
	addToHash(hasher, "Background", opts.Background)
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

func fingerprint(path string) (time.Time, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, "", err
	}
	sum, err := hashFile(path)
	if err != nil {
		return time.Time{}, "", err
	}
	return info.ModTime(), sum, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
