package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackvity/diagram-converter/pkg/converter/cache"
	"github.com/stackvity/diagram-converter/pkg/converter/verify"
	"github.com/stackvity/diagram-converter/pkg/util"
)

// Engine runs one conversion: scan, fan out over the worker pool, join, report.
// An Engine is single-use.
type Engine struct {
	opts         *Options
	logger       *slog.Logger
	hooks        Hooks
	cacheManager CacheManager
	processor    *taskProcessor
	aggregator   *reportAggregator
	ctx          context.Context
	threads      int
}

// ResolveThreads returns the worker count for a requested value. A request in
// [1, MaxThreads] is used as-is; anything else falls back to the number of
// CPUs, clamped to the same range.
func ResolveThreads(requested int) int {
	if requested >= 1 && requested <= MaxThreads {
		return requested
	}
	return clampThreads(runtime.NumCPU())
}

func clampThreads(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxThreads:
		return MaxThreads
	default:
		return n
	}
}

// NewEngine validates opts, fills defaults, and wires the cache and verifier.
// The source directory is not touched here; access problems surface from Run.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("%w: Renderer implementation cannot be nil", ErrConfigValidation)
	}
	if opts.SourceDir == "" {
		return nil, fmt.Errorf("%w: source directory cannot be empty", ErrConfigValidation)
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("%w: output directory cannot be empty", ErrConfigValidation)
	}
	if opts.MaxTasks < 0 {
		return nil, fmt.Errorf("%w: max tasks cannot be negative", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.GitDiffMode == "" {
		opts.GitDiffMode = gitDiffModeFor(opts.GitConfig)
	}
	if opts.GitDiffMode != GitDiffModeNone && opts.GitClient == nil {
		return nil, fmt.Errorf("%w: GitClient required for git diff mode '%s'", ErrConfigValidation, opts.GitDiffMode)
	}
	opts.Threads = ResolveThreads(opts.Threads)

	logger := slog.New(opts.Logger).With(slog.String("component", "engine"), slog.String("runID", opts.RunID))

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create or access output directory '%s': %w", ErrConfigValidation, opts.OutputDir, err)
	}

	cacheMgr := resolveCacheManager(&opts, logger)
	opts.CacheManager = cacheMgr

	if opts.Verifier == nil && opts.VerifyOutput {
		opts.Verifier = verify.NewImageVerifier()
		logger.Debug("Output verification enabled with image decoder")
	}

	return &Engine{
		opts:         &opts,
		logger:       logger,
		hooks:        opts.EventHooks,
		cacheManager: cacheMgr,
		processor:    newTaskProcessor(&opts, opts.Logger, opts.Renderer, opts.Verifier, cacheMgr),
		aggregator:   newReportAggregator(),
		ctx:          ctx,
		threads:      opts.Threads,
	}, nil
}

func gitDiffModeFor(cfg GitConfig) GitDiffMode {
	switch {
	case cfg.SinceRef != "":
		return GitDiffModeSince
	case cfg.DiffOnly:
		return GitDiffModeDiffOnly
	default:
		return GitDiffModeNone
	}
}

// resolveCacheManager loads the render index. Any failure disables caching for
// this run instead of failing it.
func resolveCacheManager(opts *Options, logger *slog.Logger) CacheManager {
	if !opts.CacheEnabled {
		return &NoOpCacheManager{}
	}
	if opts.CacheFilePath == "" {
		opts.CacheFilePath = filepath.Join(opts.OutputDir, cache.FileName)
	}
	if opts.ClearCache {
		if err := os.Remove(opts.CacheFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Could not clear cache index", slog.String("path", opts.CacheFilePath), slog.String("error", err.Error()))
		} else {
			logger.Info("Cache index cleared", slog.String("path", opts.CacheFilePath))
		}
	}

	mgr := opts.CacheManager
	if mgr == nil {
		mgr = cache.NewFileIndex(opts.Logger, opts.AppVersion, opts.CacheFormat)
	}
	if err := mgr.Load(opts.CacheFilePath); err != nil {
		logger.Error("Cache index unusable, continuing without cache", slog.String("path", opts.CacheFilePath), slog.String("error", err.Error()))
		opts.CacheEnabled = false
		return &NoOpCacheManager{}
	}
	return mgr
}

// Run executes the conversion. Per-task failures are recorded in the Report and
// never returned. The returned error is non-nil only for fatal conditions: a
// directory access or git filter failure before the pool starts, a worker
// startup failure, or cancellation of the context passed to NewEngine.
func (e *Engine) Run() (Report, error) {
	e.setPhase(PhaseInit)
	e.logger.Info("Starting diagram conversion run",
		slog.String("source", e.opts.SourceDir),
		slog.String("output", e.opts.OutputDir),
		slog.Int("threads", e.threads),
		slog.Duration("timeout", e.opts.Timeout),
		slog.Bool("cacheEnabled", e.opts.CacheEnabled),
	)

	e.setPhase(PhaseScanning)
	scan, err := e.scan()
	if err != nil {
		e.logger.Error("Scan failed", slog.String("error", err.Error()))
		e.aggregator.addFatal(e.opts.SourceDir, err)
		report := e.buildReport(scan, Progress{}, 0, OutcomeFailed, true)
		e.complete(report)
		return report, err
	}
	e.announce(scan)

	if len(scan.Tasks) == 0 {
		e.setPhase(PhaseEmpty)
		e.logger.Info("No diagram files found", slog.String("source", e.opts.SourceDir))
		report := e.buildReport(scan, Progress{}, 0, OutcomeEmpty, false)
		e.persistCache()
		e.complete(report)
		return report, nil
	}

	progress, elapsed, runErr := e.runPool(scan.Tasks)

	aborted := errors.Is(runErr, ErrWorkerStartup) || (runErr != nil && progress.Processed < progress.Total)
	outcome := DetermineOutcome(len(scan.Tasks), progress, aborted)
	if runErr != nil && !aborted {
		// Cancelled after every task was already processed.
		e.logger.Info("Run cancelled after all tasks were processed", slog.String("reason", runErr.Error()))
		runErr = nil
	}
	if runErr != nil {
		e.aggregator.addFatal(e.opts.SourceDir, runErr)
	}

	e.persistCache()
	report := e.buildReport(scan, progress, elapsed, outcome, runErr != nil)
	e.complete(report)
	return report, runErr
}

func (e *Engine) scan() (ScanResult, error) {
	patterns := append([]string(nil), e.opts.IgnorePatterns...)
	filePatterns, err := util.LoadPatternFile(filepath.Join(e.opts.SourceDir, IgnoreFileName))
	if err != nil {
		e.logger.Warn("Ignoring unreadable ignore file", slog.String("file", IgnoreFileName), slog.String("error", err.Error()))
	} else if len(filePatterns) > 0 {
		e.logger.Debug("Loaded ignore file", slog.Int("patterns", len(filePatterns)))
		patterns = append(patterns, filePatterns...)
	}

	var include map[string]struct{}
	if e.opts.GitDiffMode != GitDiffModeNone {
		if _, err := os.Stat(e.opts.SourceDir); err != nil {
			return ScanResult{}, fmt.Errorf("%w: %s: %w", ErrDirectoryAccess, e.opts.SourceDir, err)
		}
		include, err = e.changedFiles()
		if err != nil {
			return ScanResult{}, err
		}
	}

	return ScanTasks(e.opts.SourceDir, e.opts.OutputDir, ScanOptions{
		MaxTasks:       e.opts.MaxTasks,
		IgnorePatterns: patterns,
		Include:        include,
	})
}

// changedFiles maps the git client's absolute paths onto paths under SourceDir,
// in the same form ScanTasks builds them.
func (e *Engine) changedFiles() (map[string]struct{}, error) {
	files, err := e.opts.GitClient.GetChangedFiles(e.opts.SourceDir, e.opts.GitDiffMode, e.opts.GitConfig.SinceRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGitFilter, err)
	}
	absSource, err := filepath.Abs(e.opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGitFilter, err)
	}
	include := make(map[string]struct{}, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(absSource, f)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		include[filepath.Join(e.opts.SourceDir, rel)] = struct{}{}
	}
	e.logger.Debug("Git filter active", slog.String("mode", string(e.opts.GitDiffMode)), slog.Int("changedFiles", len(include)))
	return include, nil
}

func (e *Engine) announce(scan ScanResult) {
	for _, t := range scan.Tasks {
		if err := e.hooks.OnTaskDiscovered(t.InputPath); err != nil {
			e.logger.Warn("OnTaskDiscovered hook returned an error", slog.String("error", err.Error()))
		}
	}
	for _, s := range scan.Skipped {
		if err := e.hooks.OnTaskStatusUpdate(s.Path, StatusSkipped, s.Reason, 0); err != nil {
			e.logger.Warn("OnTaskStatusUpdate hook returned an error", slog.String("error", err.Error()))
		}
	}
	if scan.Dropped > 0 {
		limit := e.opts.MaxTasks
		if limit <= 0 {
			limit = MaxTasks
		}
		e.logger.Warn("Task cap reached, extra diagram files were not queued",
			slog.Int("cap", limit), slog.Int("dropped", scan.Dropped))
	}
	e.logger.Info("Scan complete",
		slog.Int("tasks", len(scan.Tasks)),
		slog.Int("skipped", len(scan.Skipped)),
		slog.Int("dropped", scan.Dropped))
}

// runPool starts the workers and the progress monitor, and returns once both
// have finished. elapsed spans worker start to join.
func (e *Engine) runPool(tasks []Task) (Progress, time.Duration, error) {
	e.setPhase(PhaseRunning)

	counters := NewCounters(len(tasks))
	queue := NewWorkQueue(tasks)
	gate := newStopGate()

	poolDone := make(chan struct{})
	monitorDone := newProgressMonitor(counters, e.opts.ProgressInterval, e.hooks, e.logger).start(poolDone)

	workers := e.threads
	if workers > len(tasks) {
		workers = len(tasks)
	}
	e.logger.Debug("Starting worker pool", slog.Int("workers", workers))

	// Joining starts when the first worker finds no more work to claim.
	var joining sync.Once
	drained := func() { joining.Do(func() { e.setPhase(PhaseJoining) }) }

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.worker(&wg, i, queue, counters, gate, drained)
	}

	wg.Wait()
	drained()
	elapsed := time.Since(start)

	close(poolDone)
	<-monitorDone

	final := counters.Snapshot()
	e.logger.Debug("Worker pool joined",
		slog.Int("claimed", queue.Claimed()),
		slog.Int("processed", final.Processed),
		slog.Duration("elapsed", elapsed))

	if err := gate.cause(); err != nil {
		return final, elapsed, err
	}
	if err := e.ctx.Err(); err != nil {
		return final, elapsed, fmt.Errorf("run cancelled: %w", err)
	}
	return final, elapsed, nil
}

func (e *Engine) worker(wg *sync.WaitGroup, workerID int, queue *WorkQueue, counters *Counters, gate *stopGate, drained func()) {
	defer wg.Done()
	wLogger := e.logger.With(slog.Int("workerID", workerID))

	if e.opts.WorkerInit != nil {
		if err := e.opts.WorkerInit(e.ctx, workerID); err != nil {
			wLogger.Error("Worker failed to start, stopping the run", slog.String("error", err.Error()))
			gate.stop(fmt.Errorf("%w: worker %d: %w", ErrWorkerStartup, workerID, err))
			return
		}
	}
	wLogger.Debug("Worker started")

	handled := 0
	for !gate.stopped() && e.ctx.Err() == nil {
		task, ok := queue.ClaimNext()
		if !ok {
			break
		}
		result, err := e.processTask(workerID, task)
		counters.Record(err == nil, result.Status == StatusCached)
		e.aggregator.add(result, err)
		handled++

		if hookErr := e.hooks.OnTaskStatusUpdate(task.InputPath, result.Status, result.Error, time.Duration(result.DurationMs)*time.Millisecond); hookErr != nil {
			wLogger.Warn("OnTaskStatusUpdate hook returned an error", slog.String("error", hookErr.Error()))
		}
	}
	drained()
	wLogger.Debug("Worker finished", slog.Int("tasks", handled))
}

// processTask turns a panic inside the pipeline into a failure of that task.
func (e *Engine) processTask(workerID int, task Task) (result TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered while processing task", slog.String("input", task.InputPath), slog.Int("workerID", workerID), slog.Any("panicValue", r))
			err = fmt.Errorf("%w: panic: %v", ErrTaskExecution, r)
			result = TaskResult{
				InputPath:   task.InputPath,
				OutputPath:  task.OutputPath,
				Status:      StatusFailed,
				CacheStatus: CacheStatusDisabled,
				WorkerID:    workerID,
				Error:       err.Error(),
			}
		}
	}()

	if hookErr := e.hooks.OnTaskStatusUpdate(task.InputPath, StatusProcessing, "", 0); hookErr != nil {
		e.logger.Warn("OnTaskStatusUpdate hook returned an error", slog.String("error", hookErr.Error()))
	}
	return e.processor.Process(e.ctx, workerID, task)
}

func (e *Engine) persistCache() {
	if !e.opts.CacheEnabled {
		return
	}
	if err := e.cacheManager.Persist(e.opts.CacheFilePath); err != nil {
		e.logger.Error("Failed to persist cache index", slog.String("path", e.opts.CacheFilePath), slog.String("error", err.Error()))
	}
}

func (e *Engine) complete(report Report) {
	s := report.Summary
	e.logger.Info("Diagram conversion run finished",
		slog.String("outcome", string(s.Outcome)),
		slog.Int("processed", s.Processed),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("cached", s.Cached),
		slog.Duration("duration", s.Duration()),
	)
	if err := e.hooks.OnRunComplete(report); err != nil {
		e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", err.Error()))
	}
	e.setPhase(PhaseDone)
}

func (e *Engine) setPhase(phase Phase) {
	e.logger.Debug("Phase changed", slog.String("phase", string(phase)))
	if err := e.hooks.OnPhase(phase); err != nil {
		e.logger.Warn("OnPhase hook returned an error", slog.String("phase", string(phase)), slog.String("error", err.Error()))
	}
}

func (e *Engine) buildReport(scan ScanResult, p Progress, elapsed time.Duration, outcome Outcome, fatal bool) Report {
	tasks, errs := e.aggregator.snapshot()
	skipped := make([]SkippedInfo, len(scan.Skipped))
	copy(skipped, scan.Skipped)

	summary := ReportSummary{
		RunID:              e.opts.RunID,
		SourceDir:          e.opts.SourceDir,
		OutputDir:          e.opts.OutputDir,
		ProfileUsed:        e.opts.ProfileName,
		ConfigFilePath:     e.opts.ConfigFilePath,
		TaskCount:          len(scan.Tasks),
		Processed:          p.Processed,
		Succeeded:          p.Succeeded,
		Failed:             p.Failed,
		Cached:             p.Cached,
		Skipped:            len(scan.Skipped),
		Dropped:            scan.Dropped,
		Threads:            e.threads,
		DurationSeconds:    elapsed.Seconds(),
		Outcome:            outcome,
		FatalErrorOccurred: fatal,
		CacheEnabled:       e.opts.CacheEnabled,
		Timestamp:          time.Now().UTC(),
		SchemaVersion:      ReportSchemaVersion,
	}
	if tp, ok := Throughput(p.Succeeded, elapsed); ok {
		summary.ThroughputPerMinute = &tp
	}
	return Report{Summary: summary, Tasks: tasks, Skipped: skipped, Errors: errs}
}

// stopGate lets the first worker startup failure halt further claims.
type stopGate struct {
	once sync.Once
	ch   chan struct{}
	err  error
}

func newStopGate() *stopGate {
	return &stopGate{ch: make(chan struct{})}
}

func (g *stopGate) stop(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.ch)
	})
}

func (g *stopGate) stopped() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// cause must only be called after all workers have joined.
func (g *stopGate) cause() error {
	if !g.stopped() {
		return nil
	}
	return g.err
}

// reportAggregator collects per-task results from concurrent workers.
type reportAggregator struct {
	mu     sync.Mutex
	tasks  []TaskResult
	errors []ErrorInfo
}

func newReportAggregator() *reportAggregator {
	return &reportAggregator{
		tasks:  make([]TaskResult, 0, 64),
		errors: make([]ErrorInfo, 0, 8),
	}
}

func (a *reportAggregator) add(result TaskResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, result)
	if err != nil {
		a.errors = append(a.errors, ErrorInfo{Path: result.InputPath, Error: err.Error()})
	}
}

func (a *reportAggregator) addFatal(path string, err error) {
	a.mu.Lock()
	a.errors = append(a.errors, ErrorInfo{Path: path, Error: err.Error(), IsFatal: true})
	a.mu.Unlock()
}

// snapshot returns copies sorted by input path, so reports do not depend on
// which worker finished first.
func (a *reportAggregator) snapshot() ([]TaskResult, []ErrorInfo) {
	a.mu.Lock()
	tasks := make([]TaskResult, len(a.tasks))
	copy(tasks, a.tasks)
	errs := make([]ErrorInfo, len(a.errors))
	copy(errs, a.errors)
	a.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].InputPath < tasks[j].InputPath })
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].IsFatal != errs[j].IsFatal {
			return errs[i].IsFatal
		}
		return errs[i].Path < errs[j].Path
	})
	return tasks, errs
}
