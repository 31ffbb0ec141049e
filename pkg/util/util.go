package util

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// MatchesAny reports whether name matches any of the glob patterns, and returns
// the first matching pattern. Patterns are matched against the slash form of name,
// and a pattern without a slash is also tried against the last path element.
// Malformed patterns never match.
func MatchesAny(patterns []string, name string) (bool, string) {
	name = filepath.ToSlash(name)
	if name == "" || name == "." {
		return false, ""
	}
	base := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		base = name[i+1:]
	}
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			return true, pattern
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := filepath.Match(pattern, base); ok {
				return true, pattern
			}
		}
	}
	return false, ""
}

// LoadPatternFile reads glob patterns from path, one per line. Blank lines and
// lines starting with '#' are skipped. A missing file yields no patterns and no error.
func LoadPatternFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
