package converter

import "errors"

// --- Exported Error Variables ---
// Callers check these with errors.Is. Run and Convert return only the fatal
// categories; per-task failures are recorded in the Report instead.

var (
	// ErrDirectoryAccess indicates the source directory could not be opened or listed.
	// It is fatal for the run and is returned before any worker starts.
	ErrDirectoryAccess = errors.New("cannot access source directory")

	// ErrTaskExecution indicates a single conversion failed: the converter exited
	// non-zero, timed out, could not be started, or produced no usable output.
	// It is recorded against the task in Report.Errors and never returned by Run.
	ErrTaskExecution = errors.New("task execution failed")

	// ErrWorkerStartup indicates a worker could not be brought up (for example the
	// converter executable could not be resolved). It aborts the run: no further
	// tasks are claimed, in-flight tasks finish, and Run returns the wrapped error.
	ErrWorkerStartup = errors.New("worker startup failed")

	// ErrConfigValidation indicates an error in the provided configuration options.
	ErrConfigValidation = errors.New("configuration validation failed")

	// ErrGitFilter indicates the changed-files set could not be computed for git filtering.
	ErrGitFilter = errors.New("git filter failed")
)
