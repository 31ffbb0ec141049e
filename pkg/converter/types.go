package converter

// Task is one input to output conversion unit. Tasks are immutable once built.
type Task struct {
	InputPath  string `json:"inputPath" yaml:"inputPath"`
	OutputPath string `json:"outputPath" yaml:"outputPath"`
}

// Name returns the base name of the task's input file.
func (t Task) Name() string {
	return baseName(t.InputPath)
}

// Status defines the possible processing states of a task during a run.
type Status string

// Constants representing the defined task statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCached     Status = "cached"
)

// Phase is a state of the run as a whole.
type Phase string

// INIT -> SCANNING -> (EMPTY -> DONE) | (RUNNING -> JOINING -> DONE)
const (
	PhaseInit     Phase = "init"
	PhaseScanning Phase = "scanning"
	PhaseEmpty    Phase = "empty"
	PhaseRunning  Phase = "running"
	PhaseJoining  Phase = "joining"
	PhaseDone     Phase = "done"
)

// Outcome classifies a finished run.
type Outcome string

const (
	// OutcomeEmpty means no eligible files were found. It is a successful no-op.
	OutcomeEmpty Outcome = "empty"
	// OutcomeSuccess means at least one task succeeded or nothing failed.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means every processed task failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeAborted means the run stopped early (worker startup failure or cancellation).
	OutcomeAborted Outcome = "aborted"
)

// OutputFormat defines the format of the final summary report.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// GitDiffMode defines the strategy for using Git differences to filter tasks.
type GitDiffMode string

const (
	GitDiffModeNone     GitDiffMode = "none"
	GitDiffModeDiffOnly GitDiffMode = "diffOnly"
	GitDiffModeSince    GitDiffMode = "since"
)

// CacheStatus describes how the cache treated a task.
type CacheStatus string

const (
	CacheStatusDisabled CacheStatus = "disabled"
	CacheStatusHit      CacheStatus = "hit"
	CacheStatusMiss     CacheStatus = "miss"
)
