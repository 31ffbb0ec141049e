package converter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stackvity/diagram-converter/pkg/util"
)

// ScanOptions narrows which eligible files become tasks.
type ScanOptions struct {
	// MaxTasks caps the result. 0 means MaxTasks.
	MaxTasks int
	// IgnorePatterns are glob patterns matched against file names.
	IgnorePatterns []string
	// Include, when non-nil, keeps only inputs whose absolute path is a key.
	Include map[string]struct{}
}

// ScanResult is the outcome of ScanTasks.
type ScanResult struct {
	Tasks   []Task
	Skipped []SkippedInfo
	// Dropped counts eligible files left out because the cap was reached.
	Dropped int
}

// ScanTasks lists sourceDir once and builds one task per eligible diagram source.
// Eligible entries are non-directories whose name ends in InputExtension and is
// longer than it. Order follows the directory listing (sorted by name), so two
// scans of an unchanged directory produce identical sequences. An empty result
// is not an error. A listing failure wraps ErrDirectoryAccess.
func ScanTasks(sourceDir, outputDir string, opts ScanOptions) (ScanResult, error) {
	var result ScanResult

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return result, fmt.Errorf("%w: %s: %w", ErrDirectoryAccess, sourceDir, err)
	}

	limit := opts.MaxTasks
	if limit <= 0 {
		limit = MaxTasks
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isEligibleName(name) {
			continue
		}
		inputPath := filepath.Join(sourceDir, name)

		if matched, pattern := util.MatchesAny(opts.IgnorePatterns, name); matched {
			result.Skipped = append(result.Skipped, SkippedInfo{
				Path:    inputPath,
				Reason:  SkipReasonIgnored,
				Details: "matched pattern: " + pattern,
			})
			continue
		}
		if opts.Include != nil {
			if _, ok := opts.Include[inputPath]; !ok {
				result.Skipped = append(result.Skipped, SkippedInfo{
					Path:   inputPath,
					Reason: SkipReasonGitExclude,
				})
				continue
			}
		}

		if len(result.Tasks) >= limit {
			result.Dropped++
			continue
		}
		result.Tasks = append(result.Tasks, Task{
			InputPath:  inputPath,
			OutputPath: OutputPathFor(outputDir, name),
		})
	}
	return result, nil
}

// OutputPathFor derives the rendered output path for a source file name.
func OutputPathFor(outputDir, name string) string {
	return filepath.Join(outputDir, strings.TrimSuffix(name, InputExtension)+OutputExtension)
}

func isEligibleName(name string) bool {
	return len(name) > len(InputExtension) && strings.HasSuffix(name, InputExtension)
}

func baseName(path string) string {
	return filepath.Base(path)
}
