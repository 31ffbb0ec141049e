package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a fresh root command and captures its output.
func executeCommand(t *testing.T, args ...string) (stdout string, stderr string, code int) {
	t.Helper()
	cmd := newRootCmd()
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	cmd.SetOut(stdoutBuf)
	cmd.SetErr(stderrBuf)

	code = execute(context.Background(), cmd, args)
	return stdoutBuf.String(), stderrBuf.String(), code
}

// writeFakeConverter writes a converter that writes "png" to the -o path and
// fails for inputs whose name contains "broken".
func writeFakeConverter(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script converter requires a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "mmdc")
	content := `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift ;;
    -o) out="$2"; shift ;;
  esac
  shift
done
case "$in" in
  *broken*) echo "Parse error on line 1" >&2; exit 1 ;;
esac
printf png > "$out"
`
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script
}

func writeDiagrams(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("graph TD\n  A-->B\n"), 0o644))
	}
}

func TestRootCmdHelp(t *testing.T) {
	stdout, stderr, code := executeCommand(t, "--help")

	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "diagram-converter <source_dir> <output_dir> [tool_path] [thread_count]")
	assert.Contains(t, stdout, "--version")
}

func TestRootCmdHelp_AllFlagsPresent(t *testing.T) {
	stdout, _, code := executeCommand(t, "--help")
	require.Equal(t, 0, code)

	newRootCmd().Flags().VisitAll(func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "Help output should contain flag --%s", f.Name)
		if f.Shorthand != "" {
			assert.Contains(t, stdout, "-"+f.Shorthand+",", "Help output should contain shorthand -%s", f.Shorthand)
		}
	})
}

func TestRootCmdVersion(t *testing.T) {
	originalVersion, originalCommit, originalDate := version, commit, date
	version, commit, date = "test-1.2.3", "testcommit123", "2024-01-01T10:00:00Z"
	defer func() {
		version, commit, date = originalVersion, originalCommit, originalDate
	}()

	stdout, stderr, code := executeCommand(t, "--version")

	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)
	assert.Equal(t, "diagram-converter version test-1.2.3 (commit: testcommit123, built: 2024-01-01T10:00:00Z)\n", stdout)
}

func TestRootCmdArgumentErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		errorMsg string
	}{
		{"No arguments", nil, "accepts between 2 and 4 arg(s), received 0"},
		{"Only source", []string{"./diagrams"}, "accepts between 2 and 4 arg(s), received 1"},
		{"Too many", []string{"a", "b", "c", "4", "e"}, "accepts between 2 and 4 arg(s), received 5"},
		{"Unknown flag", []string{"a", "b", "--unknown-flag"}, "unknown flag: --unknown-flag"},
		{"Invalid int flag", []string{"a", "b", "--threads", "abc"}, `invalid argument "abc" for "--threads" flag`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, code := executeCommand(t, tc.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tc.errorMsg)
		})
	}
}

func TestRootCmd_MissingSourceDir(t *testing.T) {
	base := t.TempDir()
	_, stderr, code := executeCommand(t, filepath.Join(base, "missing"), filepath.Join(base, "out"))

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, converter.ErrDirectoryAccess.Error())
	assert.NotContains(t, stderr, "Usage:", "run failures do not print usage")
}

func TestRootCmd_EmptySourceDir(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))

	stdout, _, code := executeCommand(t, src, filepath.Join(base, "out"), "--progress", "none")

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "No .mmd files found")
}

func TestRootCmd_ConvertsDiagrams(t *testing.T) {
	mmdc := writeFakeConverter(t)
	base := t.TempDir()
	src, out := filepath.Join(base, "src"), filepath.Join(base, "out")
	writeDiagrams(t, src, "flow.mmd", "seq.mmd", "README.md")

	stdout, stderr, code := executeCommand(t, src, out, "", "2",
		"--mmdc", mmdc, "--output-format", "json", "--progress", "line")

	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.FileExists(t, filepath.Join(out, "flow.png"))
	assert.FileExists(t, filepath.Join(out, "seq.png"))
	assert.NoFileExists(t, filepath.Join(out, "README.png"))
	assert.Contains(t, stderr, "Progress: 100% (2/2)")

	var report converter.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 2, report.Summary.Succeeded)
	assert.Equal(t, 2, report.Summary.Threads)
	assert.Equal(t, converter.OutcomeSuccess, report.Summary.Outcome)
}

func TestRootCmd_ExitCodes(t *testing.T) {
	mmdc := writeFakeConverter(t)

	testCases := []struct {
		name     string
		files    []string
		expected int
	}{
		{"partial failure succeeds", []string{"ok.mmd", "broken.mmd"}, 0},
		{"all failed", []string{"broken-1.mmd", "broken-2.mmd"}, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			base := t.TempDir()
			src := filepath.Join(base, "src")
			writeDiagrams(t, src, tc.files...)

			stdout, _, code := executeCommand(t, src, filepath.Join(base, "out"), "--mmdc", mmdc, "--progress", "none")
			assert.Equal(t, tc.expected, code)
			assert.Contains(t, stdout, "Failed conversions:")
		})
	}
}

func TestRootCmd_MissingConverter(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	writeDiagrams(t, src, "a.mmd")

	stdout, _, code := executeCommand(t, src, filepath.Join(base, "out"),
		"--mmdc", filepath.Join(base, "no-such-mmdc"), "--progress", "none")

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Conversion aborted")
}

func TestExecute_NonExitError(t *testing.T) {
	cmd := &cobra.Command{
		Use:           "failing",
		SilenceErrors: true,
		RunE:          func(*cobra.Command, []string) error { return assert.AnError },
	}
	assert.Equal(t, 1, execute(context.Background(), cmd, nil))
}

func TestExitCodeError(t *testing.T) {
	err := &exitCodeError{code: 1, err: converter.ErrWorkerStartup}
	assert.ErrorIs(t, err, converter.ErrWorkerStartup)
	assert.Equal(t, converter.ErrWorkerStartup.Error(), err.Error())
	assert.Equal(t, "exit status 1", (&exitCodeError{code: 1}).Error())
}
