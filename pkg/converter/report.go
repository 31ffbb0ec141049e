package converter

import (
	"time"
)

// Report summarizes the result of a single Convert run.
type Report struct {
	Summary ReportSummary `json:"summary" yaml:"summary"`
	Tasks   []TaskResult  `json:"tasks" yaml:"tasks"`
	Skipped []SkippedInfo `json:"skipped" yaml:"skipped"`
	Errors  []ErrorInfo   `json:"errors" yaml:"errors"`
}

// ReportSummary contains aggregated statistics for a run.
type ReportSummary struct {
	RunID          string `json:"runId" yaml:"runId"`
	SourceDir      string `json:"sourceDir" yaml:"sourceDir"`
	OutputDir      string `json:"outputDir" yaml:"outputDir"`
	ProfileUsed    string `json:"profileUsed,omitempty" yaml:"profileUsed,omitempty"`
	ConfigFilePath string `json:"configFilePath,omitempty" yaml:"configFilePath,omitempty"`

	TaskCount int `json:"taskCount" yaml:"taskCount"`
	Processed int `json:"processed" yaml:"processed"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Cached    int `json:"cached" yaml:"cached"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	// Dropped counts eligible files beyond the task cap.
	Dropped int `json:"dropped" yaml:"dropped"`

	Threads         int     `json:"threads" yaml:"threads"`
	DurationSeconds float64 `json:"durationSeconds" yaml:"durationSeconds"`
	// ThroughputPerMinute is omitted when nothing succeeded or no time elapsed.
	ThroughputPerMinute *float64 `json:"throughputPerMinute,omitempty" yaml:"throughputPerMinute,omitempty"`

	Outcome            Outcome   `json:"outcome" yaml:"outcome"`
	FatalErrorOccurred bool      `json:"fatalError" yaml:"fatalError"`
	CacheEnabled       bool      `json:"cacheEnabled" yaml:"cacheEnabled"`
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
	SchemaVersion      string    `json:"schemaVersion" yaml:"schemaVersion"`
}

// TaskResult details one processed task.
type TaskResult struct {
	InputPath   string      `json:"inputPath" yaml:"inputPath"`
	OutputPath  string      `json:"outputPath" yaml:"outputPath"`
	Status      Status      `json:"status" yaml:"status"`
	CacheStatus CacheStatus `json:"cacheStatus" yaml:"cacheStatus"`
	DurationMs  int64       `json:"durationMs" yaml:"durationMs"`
	WorkerID    int         `json:"workerId" yaml:"workerId"`
	Error       string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// SkippedInfo details a source file that never became a task.
type SkippedInfo struct {
	Path    string `json:"path" yaml:"path"`
	Reason  string `json:"reason" yaml:"reason"`
	Details string `json:"details,omitempty" yaml:"details,omitempty"`
}

// ErrorInfo details a task failure, or a fatal run error when IsFatal is set.
type ErrorInfo struct {
	Path    string `json:"path" yaml:"path"`
	Error   string `json:"error" yaml:"error"`
	IsFatal bool   `json:"isFatal" yaml:"isFatal"`
}

// Throughput returns successful conversions per minute. It is only defined when
// both succeeded and elapsed are positive.
func Throughput(succeeded int, elapsed time.Duration) (float64, bool) {
	seconds := elapsed.Seconds()
	if succeeded <= 0 || seconds <= 0 {
		return 0, false
	}
	return float64(succeeded) * 60 / seconds, true
}

// DetermineOutcome classifies a run from its final counters. An empty run is a
// success; a run where everything processed failed is a failure. Partial
// success is still a success.
func DetermineOutcome(taskCount int, p Progress, aborted bool) Outcome {
	switch {
	case aborted:
		return OutcomeAborted
	case taskCount == 0:
		return OutcomeEmpty
	case p.Succeeded == 0 && p.Failed > 0:
		return OutcomeFailed
	default:
		return OutcomeSuccess
	}
}

// ExitCode maps the outcome to a process exit status.
func (r Report) ExitCode() int {
	switch r.Summary.Outcome {
	case OutcomeEmpty, OutcomeSuccess:
		return 0
	default:
		return 1
	}
}

// Duration returns the measured wall-clock duration.
func (s ReportSummary) Duration() time.Duration {
	return time.Duration(s.DurationSeconds * float64(time.Second))
}
