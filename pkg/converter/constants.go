package converter

import "time"

// Hard limits for a single run.
const (
	// MaxTasks caps the number of tasks a single run enumerates.
	MaxTasks = 1000
	// MaxThreads caps the worker pool size.
	MaxThreads = 16
)

// File naming.
const (
	// InputExtension identifies diagram sources.
	InputExtension = ".mmd"
	// OutputExtension is appended to the source base name for rendered output.
	OutputExtension = ".png"
	// IgnoreFileName lists glob patterns, one per line, of sources to leave out.
	IgnoreFileName = ".diagramignore"
)

// Constants defining default values for configuration options.
// These are also used when setting up Viper defaults.
const (
	// DefaultThreads means runtime.NumCPU() clamped to MaxThreads.
	DefaultThreads = 0
	// DefaultTimeout bounds a single converter invocation.
	DefaultTimeout = 30 * time.Second
	// DefaultProgressInterval is the monitor's polling interval.
	DefaultProgressInterval = 200 * time.Millisecond
	// DefaultTheme is passed to the converter with -t.
	DefaultTheme = "dark"
	// DefaultBackground is passed to the converter with -b.
	DefaultBackground = "transparent"
	// DefaultConverterCommand is resolved through PATH when no absolute path is configured.
	DefaultConverterCommand = "mmdc"
	DefaultCacheEnabled     = false
	DefaultVerifyOutput     = false
	DefaultTuiEnabled       = true
	DefaultOutputFormat     = OutputFormatText
	DefaultGitDiffOnly      = false
	DefaultGitSinceRef      = ""
	DefaultVerbose          = false
	// DefaultNotifySubject is the NATS subject for run-complete events.
	DefaultNotifySubject = "diagrams.run.completed"
)

// ReportSchemaVersion indicates the version of the JSON report structure.
const ReportSchemaVersion = "1.0"

// Skip reasons used in the report.
const (
	SkipReasonIgnored    = "ignored_pattern"
	SkipReasonGitExclude = "excluded_by_git_diff"
)
