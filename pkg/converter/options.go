package converter

import (
	"context"
	"log/slog"
	"time"
)

// GitConfig holds settings related to Git filtering.
type GitConfig struct {
	DiffOnly bool   `mapstructure:"diffOnly"`
	SinceRef string `mapstructure:"sinceRef"`
}

// NotifyConfig holds settings for the run-complete event.
type NotifyConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Hooks defines callbacks for status updates during a run.
// Implementations MUST be thread-safe as methods may be called concurrently.
type Hooks interface {
	OnPhase(phase Phase) error
	OnTaskDiscovered(path string) error
	OnTaskStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnProgress(progress Progress) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

// OnPhase implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnPhase(phase Phase) error { return nil }

// OnTaskDiscovered implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnTaskDiscovered(path string) error { return nil }

// OnTaskStatusUpdate implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnTaskStatusUpdate(path string, status Status, message string, duration time.Duration) error {
	return nil
}

// OnProgress implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnProgress(progress Progress) error { return nil }

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// Renderer converts one diagram source into an image. A nil error is success;
// anything else, including an expired timeout, is a failure of that task only.
type Renderer interface {
	Render(ctx context.Context, inputPath, outputPath string, timeout time.Duration) error
}

// WorkerInitFunc prepares a worker before it claims its first task.
// A returned error is a worker startup failure.
type WorkerInitFunc func(ctx context.Context, workerID int) error

// OutputVerifier checks a rendered output after the converter reported success.
type OutputVerifier interface {
	Verify(outputPath string) error
}

// GitClient lists files changed in the repository containing repoPath.
// Returned paths are absolute.
type GitClient interface {
	GetChangedFiles(repoPath string, mode GitDiffMode, ref string) ([]string, error)
}

// CacheManager defines methods for interacting with the render cache.
type CacheManager interface {
	Load(cachePath string) error
	Check(key string, modTime time.Time, contentHash string, configHash string) (isHit bool, outputHash string)
	Update(key string, modTime time.Time, sourceHash string, configHash string, outputHash string) error
	Persist(cachePath string) error
}

// NoOpCacheManager is used when caching is disabled.
type NoOpCacheManager struct{}

// Load implements CacheManager, performs no action.
func (c *NoOpCacheManager) Load(cachePath string) error { return nil }

// Check implements CacheManager, always returns a cache miss.
func (c *NoOpCacheManager) Check(key string, modTime time.Time, contentHash string, configHash string) (bool, string) {
	return false, ""
}

// Update implements CacheManager, performs no action.
func (c *NoOpCacheManager) Update(key string, modTime time.Time, sourceHash string, configHash string, outputHash string) error {
	return nil
}

// Persist implements CacheManager, performs no action.
func (c *NoOpCacheManager) Persist(cachePath string) error { return nil }

// Options holds all configuration for a Convert run.
type Options struct {
	// --- Core Paths ---
	SourceDir string `mapstructure:"sourceDir"` // Required: directory scanned for .mmd files
	OutputDir string `mapstructure:"outputDir"` // Required: destination for rendered .png files

	// --- Converter ---
	ToolPath         string        `mapstructure:"toolPath"` // Browser executable exported as PUPPETEER_EXECUTABLE_PATH; empty keeps the converter's own resolution
	ConverterCommand string        `mapstructure:"mmdc"`     // Converter executable name or path
	Theme            string        `mapstructure:"theme"`
	Background       string        `mapstructure:"background"`
	Timeout          time.Duration `mapstructure:"timeout"` // Per-invocation bound

	// --- Pool ---
	Threads          int           `mapstructure:"threads"` // 0 = NumCPU, clamped to [1, MaxThreads]
	MaxTasks         int           `mapstructure:"maxTasks"`
	ProgressInterval time.Duration `mapstructure:"progressInterval"`

	// --- Filtering ---
	IgnorePatterns []string    `mapstructure:"ignore"`
	GitConfig      GitConfig   `mapstructure:"git"`
	GitDiffMode    GitDiffMode `mapstructure:"-"` // Derived from GitConfig

	// --- Cache & Verification ---
	CacheEnabled  bool   `mapstructure:"cache"`
	CacheFormat   string `mapstructure:"cacheFormat"`
	ClearCache    bool   `mapstructure:"-"`
	CacheFilePath string `mapstructure:"-"`
	VerifyOutput  bool   `mapstructure:"verifyOutput"`

	// --- Presentation (read by the CLI) ---
	Verbose      bool         `mapstructure:"verbose"`
	TuiEnabled   bool         `mapstructure:"tuiEnabled"`
	ProgressMode string       `mapstructure:"progress"`
	OutputFormat OutputFormat `mapstructure:"outputFormat"`
	LogFormat    string       `mapstructure:"logFormat"`
	Notify       NotifyConfig `mapstructure:"notify"`

	// --- Application Info ---
	AppVersion     string `mapstructure:"-"`
	ConfigFilePath string `mapstructure:"-"`
	ProfileName    string `mapstructure:"-"`
	RunID          string `mapstructure:"-"` // Generated when empty

	// --- Injected Dependencies ---
	EventHooks   Hooks          `mapstructure:"-"` // Optional: defaults to NoOpHooks
	Logger       slog.Handler   `mapstructure:"-"` // Required: logging backend
	Renderer     Renderer       `mapstructure:"-"` // Required: converter implementation
	WorkerInit   WorkerInitFunc `mapstructure:"-"` // Optional: per-worker startup check
	Verifier     OutputVerifier `mapstructure:"-"` // Optional: defaults to an image decoder when VerifyOutput is set
	GitClient    GitClient      `mapstructure:"-"` // Required when GitDiffMode != none
	CacheManager CacheManager   `mapstructure:"-"` // Optional: defaults to the file cache when CacheEnabled
}
