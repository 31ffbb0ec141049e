package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile writes content to path, creating parent directories.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755), "create parent of %s", fullPath)
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644), "write %s", fullPath)
}

// CreateDummyDir ensures a directory exists at path.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Clean(path), 0o755), "create dir %s", path)
}

// CreateDiagrams writes one minimal Mermaid source per name into dir.
func CreateDiagrams(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		CreateDummyFile(t, filepath.Join(dir, name), "graph TD\n  A-->B\n")
	}
}

// DiscardHandler returns a slog.Handler that drops everything.
func DiscardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}
