// Package config assembles converter.Options for the CLI from defaults, an
// optional config file and profile, a .env file, environment variables, flags
// and positional arguments, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stackvity/diagram-converter/pkg/converter/cache"
)

const (
	EnvPrefix = "DIAGRAMCONVERTER"
	// EnvFileName is read from the working directory when present.
	EnvFileName = ".env"

	ProgressAuto  = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// ProgressModes lists the accepted --progress values.
var ProgressModes = []string{ProgressAuto, "tui", "bar", "line", "none"}

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"threads":        "threads",
	"tool-path":      "toolPath",
	"mmdc":           "mmdc",
	"theme":          "theme",
	"background":     "background",
	"timeout":        "timeout",
	"max-tasks":      "maxTasks",
	"ignore":         "ignore",
	"git-diff-only":  "git.diffOnly",
	"git-since":      "git.sinceRef",
	"cache":          "cache",
	"cache-format":   "cacheFormat",
	"verify-output":  "verifyOutput",
	"output-format":  "outputFormat",
	"progress":       "progress",
	"log-format":     "logFormat",
	"notify-url":     "notify.url",
	"notify-subject": "notify.subject",
	"verbose":        "verbose",
}

// LoadAndValidate builds the run options. args are the positional arguments
// <source_dir> <output_dir> [tool_path] [thread_count]. Log output goes to logOut.
// Errors wrap converter.ErrConfigValidation, or converter.ErrDirectoryAccess when
// the source or output directory cannot be used.
func LoadAndValidate(cfgFile, profileName, appVersion string, args []string, flags *pflag.FlagSet, logOut io.Writer) (converter.Options, *slog.Logger, error) {
	var opts converter.Options
	if logOut == nil {
		logOut = os.Stderr
	}
	v := viper.New()

	// Early errors are reported before --verbose/--log-format are known.
	tempLogger := slog.New(newCharmHandler(logOut, slog.LevelInfo))

	if err := loadEnvFile(EnvFileName); err != nil {
		tempLogger.Error("Cannot read env file", slog.String("path", EnvFileName), slog.String("error", err.Error()))
		return opts, tempLogger, fmt.Errorf("%w: env file '%s': %w", converter.ErrConfigValidation, EnvFileName, err)
	}

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			tempLogger.Error("Error reading configuration file", slog.String("path", cfgFile), slog.String("error", err.Error()))
			return opts, tempLogger, fmt.Errorf("%w: error reading config file '%s': %w", converter.ErrConfigValidation, cfgFile, err)
		}
		opts.ConfigFilePath = v.ConfigFileUsed()
	}

	opts.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		profileSettings := v.Sub(profileKey)
		if profileSettings == nil {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file given)"
			}
			err := fmt.Errorf("%w: profile '%s' not found in config file '%s'", converter.ErrConfigValidation, profileName, configPath)
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		if err := v.MergeConfigMap(profileSettings.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.String("error", err.Error()))
			return opts, tempLogger, fmt.Errorf("%w: error merging profile '%s': %w", converter.ErrConfigValidation, profileName, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				tempLogger.Error("Error binding flag", slog.String("flag", name), slog.String("error", err.Error()))
				return opts, tempLogger, fmt.Errorf("%w: error binding flag '--%s': %w", converter.ErrConfigValidation, name, err)
			}
		}
	}

	opts.AppVersion = appVersion
	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.String("error", err.Error()))
		return opts, tempLogger, fmt.Errorf("%w: error unmarshalling configuration: %w", converter.ErrConfigValidation, err)
	}

	if flags != nil {
		if flags.Changed("no-tui") {
			if noTui, _ := flags.GetBool("no-tui"); noTui {
				opts.TuiEnabled = false
			}
		}
		if flags.Changed("clear-cache") {
			opts.ClearCache, _ = flags.GetBool("clear-cache")
		}
	}

	if err := applyPositionalArgs(&opts, args, tempLogger); err != nil {
		return opts, tempLogger, err
	}

	if !slices.Contains([]string{LogFormatText, LogFormatJSON}, opts.LogFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'logFormat' (flag --log-format). Allowed: %v", converter.ErrConfigValidation, opts.LogFormat, []string{LogFormatText, LogFormatJSON})
		tempLogger.Error(err.Error())
		return opts, tempLogger, err
	}
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := NewLogHandler(logOut, opts.LogFormat, logLevel)
	logger := slog.New(handler)
	opts.Logger = handler

	if err := validateAndDeriveOptions(&opts, logger); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.String("sourceDir", opts.SourceDir),
		slog.String("outputDir", opts.OutputDir),
		slog.Int("threads", opts.Threads),
		slog.Duration("timeout", opts.Timeout),
		slog.String("gitDiffMode", string(opts.GitDiffMode)),
		slog.Bool("tuiEnabled", opts.TuiEnabled),
	)
	return opts, logger, nil
}

// NewLogHandler returns the CLI's slog handler: charmbracelet/log for text, slog's JSON handler otherwise.
func NewLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if format == LogFormatJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return newCharmHandler(w, level)
}

func newCharmHandler(w io.Writer, level slog.Level) *charmlog.Logger {
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           charmlog.Level(level),
	})
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threads", converter.DefaultThreads)
	v.SetDefault("toolPath", "")
	v.SetDefault("mmdc", converter.DefaultConverterCommand)
	v.SetDefault("theme", converter.DefaultTheme)
	v.SetDefault("background", converter.DefaultBackground)
	v.SetDefault("timeout", converter.DefaultTimeout)
	v.SetDefault("maxTasks", converter.MaxTasks)
	v.SetDefault("progressInterval", converter.DefaultProgressInterval)

	v.SetDefault("ignore", []string{})
	v.SetDefault("git.diffOnly", converter.DefaultGitDiffOnly)
	v.SetDefault("git.sinceRef", converter.DefaultGitSinceRef)

	v.SetDefault("cache", converter.DefaultCacheEnabled)
	v.SetDefault("cacheFormat", cache.DefaultFormat)
	v.SetDefault("verifyOutput", converter.DefaultVerifyOutput)

	v.SetDefault("verbose", converter.DefaultVerbose)
	v.SetDefault("tuiEnabled", converter.DefaultTuiEnabled)
	v.SetDefault("progress", ProgressAuto)
	v.SetDefault("outputFormat", string(converter.DefaultOutputFormat))
	v.SetDefault("logFormat", LogFormatText)
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.subject", converter.DefaultNotifySubject)
}

// applyPositionalArgs gives positional arguments the highest precedence.
func applyPositionalArgs(opts *converter.Options, args []string, logger *slog.Logger) error {
	if len(args) < 2 {
		err := fmt.Errorf("%w: <source_dir> and <output_dir> are required", converter.ErrConfigValidation)
		logger.Error(err.Error())
		return err
	}
	if len(args) > 4 {
		err := fmt.Errorf("%w: at most 4 positional arguments are accepted, got %d", converter.ErrConfigValidation, len(args))
		logger.Error(err.Error())
		return err
	}
	opts.SourceDir = args[0]
	opts.OutputDir = args[1]
	if len(args) > 2 && args[2] != "" {
		opts.ToolPath = args[2]
	}
	if len(args) > 3 {
		n, err := strconv.Atoi(strings.TrimSpace(args[3]))
		if err != nil {
			// Non-numeric counts fall back to the processor count, like out-of-range ones.
			logger.Debug("Ignoring non-numeric thread count", slog.String("value", args[3]))
			n = converter.DefaultThreads
		}
		opts.Threads = n
	}
	return nil
}

func validateAndDeriveOptions(opts *converter.Options, logger *slog.Logger) error {
	// === Paths ===
	absSource, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve source directory '%s': %w", converter.ErrDirectoryAccess, opts.SourceDir, err)
		logger.Error(err.Error())
		return err
	}
	opts.SourceDir = absSource
	info, err := os.Stat(opts.SourceDir)
	if err != nil {
		err = fmt.Errorf("%w: source directory '%s': %w", converter.ErrDirectoryAccess, opts.SourceDir, err)
		logger.Error(err.Error(), slog.String("key", "sourceDir"))
		return err
	}
	if !info.IsDir() {
		err = fmt.Errorf("%w: source path '%s' is not a directory", converter.ErrDirectoryAccess, opts.SourceDir)
		logger.Error(err.Error(), slog.String("key", "sourceDir"))
		return err
	}

	absOutput, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve output directory '%s': %w", converter.ErrDirectoryAccess, opts.OutputDir, err)
		logger.Error(err.Error())
		return err
	}
	opts.OutputDir = absOutput
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		err = fmt.Errorf("%w: cannot create or access output directory '%s': %w", converter.ErrDirectoryAccess, opts.OutputDir, err)
		logger.Error(err.Error(), slog.String("key", "outputDir"))
		return err
	}

	// === Enums ===
	allowedOutputFormat := []converter.OutputFormat{converter.OutputFormatText, converter.OutputFormatJSON, converter.OutputFormatYAML}
	if !slices.Contains(allowedOutputFormat, opts.OutputFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", converter.ErrConfigValidation, opts.OutputFormat, allowedOutputFormat)
		logger.Error(err.Error())
		return err
	}
	if !slices.Contains(ProgressModes, opts.ProgressMode) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'progress' (flag --progress). Allowed: %v", converter.ErrConfigValidation, opts.ProgressMode, ProgressModes)
		logger.Error(err.Error())
		return err
	}
	allowedCacheFormat := []string{cache.FormatGob, cache.FormatJSON}
	if !slices.Contains(allowedCacheFormat, opts.CacheFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'cacheFormat' (flag --cache-format). Allowed: %v", converter.ErrConfigValidation, opts.CacheFormat, allowedCacheFormat)
		logger.Error(err.Error())
		return err
	}

	// === Numeric ranges ===
	if opts.Timeout <= 0 {
		err := fmt.Errorf("%w: invalid value '%s' for key 'timeout' (flag --timeout). Must be > 0", converter.ErrConfigValidation, opts.Timeout)
		logger.Error(err.Error())
		return err
	}
	if opts.MaxTasks < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'maxTasks' (flag --max-tasks). Must be >= 0", converter.ErrConfigValidation, opts.MaxTasks)
		logger.Error(err.Error())
		return err
	}
	if opts.ProgressInterval < 10*time.Millisecond {
		logger.Debug("Progress interval too small, using default", slog.Duration("value", opts.ProgressInterval))
		opts.ProgressInterval = converter.DefaultProgressInterval
	}

	requested := opts.Threads
	opts.Threads = converter.ResolveThreads(requested)
	if requested != opts.Threads && requested != converter.DefaultThreads {
		logger.Debug("Thread count out of range, using processor count", slog.Int("requested", requested), slog.Int("threads", opts.Threads))
	}

	// === Git ===
	opts.GitDiffMode = converter.GitDiffModeNone
	switch {
	case opts.GitConfig.DiffOnly && opts.GitConfig.SinceRef != "":
		err := fmt.Errorf("%w: cannot use --git-diff-only and --git-since together", converter.ErrConfigValidation)
		logger.Error(err.Error())
		return err
	case opts.GitConfig.DiffOnly:
		opts.GitDiffMode = converter.GitDiffModeDiffOnly
	case opts.GitConfig.SinceRef != "":
		opts.GitDiffMode = converter.GitDiffModeSince
	}

	// === Presentation ===
	if opts.Verbose && opts.TuiEnabled {
		logger.Debug("Verbose mode enabled, TUI disabled")
		opts.TuiEnabled = false
	}
	if opts.Notify.Subject == "" {
		opts.Notify.Subject = converter.DefaultNotifySubject
	}
	return nil
}
