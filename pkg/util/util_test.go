package util_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stackvity/diagram-converter/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesAny(t *testing.T) {
	testCases := []struct {
		name            string
		patterns        []string
		input           string
		expectedMatch   bool
		expectedPattern string
	}{
		{name: "Exact name", patterns: []string{"flow.mmd"}, input: "flow.mmd", expectedMatch: true, expectedPattern: "flow.mmd"},
		{name: "Glob on name", patterns: []string{"draft-*"}, input: "draft-seq.mmd", expectedMatch: true, expectedPattern: "draft-*"},
		{name: "Glob against base of path", patterns: []string{"*.wip.mmd"}, input: "diagrams/a.wip.mmd", expectedMatch: true, expectedPattern: "*.wip.mmd"},
		{name: "Slash pattern needs full path", patterns: []string{"old/*.mmd"}, input: "a.mmd", expectedMatch: false},
		{name: "Slash pattern full path", patterns: []string{"old/*.mmd"}, input: "old/a.mmd", expectedMatch: true, expectedPattern: "old/*.mmd"},
		{name: "First match wins", patterns: []string{"x*", "*.mmd"}, input: "x.mmd", expectedMatch: true, expectedPattern: "x*"},
		{name: "No match", patterns: []string{"*.png"}, input: "a.mmd", expectedMatch: false},
		{name: "Blank pattern skipped", patterns: []string{"  "}, input: "a.mmd", expectedMatch: false},
		{name: "Malformed pattern", patterns: []string{"[a-"}, input: "a.mmd", expectedMatch: false},
		{name: "Empty name", patterns: []string{"*"}, input: "", expectedMatch: false},
		{name: "Dot name", patterns: []string{"*"}, input: ".", expectedMatch: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			matched, pattern := util.MatchesAny(tc.patterns, tc.input)
			assert.Equal(t, tc.expectedMatch, matched)
			assert.Equal(t, tc.expectedPattern, pattern)
		})
	}
}

func TestLoadPatternFile(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		patterns, err := util.LoadPatternFile(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		assert.Empty(t, patterns)
	})

	t.Run("Comments and blanks skipped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".diagramignore")
		content := "# drafts\n\ndraft-*\n  legacy.mmd  \n#trailing\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		patterns, err := util.LoadPatternFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"draft-*", "legacy.mmd"}, patterns)
	})
}
