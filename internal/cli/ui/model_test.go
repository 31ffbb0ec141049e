package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/diagram-converter/internal/cli/hooks"
	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, cancel func()) *Model {
	t.Helper()
	m := NewModel("1.2.3", cancel)
	_, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return m
}

func send(t *testing.T, m *Model, msgs ...tea.Msg) tea.Cmd {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		require.Same(t, m, next)
	}
	return cmd
}

func TestModel_Init(t *testing.T) {
	m := newTestModel(t, nil)
	cmd := m.Init()
	require.NotNil(t, cmd)
	_, ok := cmd().(spinner.TickMsg)
	assert.True(t, ok, "Init should start the spinner")
}

func TestModel_WindowSize(t *testing.T) {
	m := NewModel("", nil)
	assert.Equal(t, "Initializing...", m.View())

	send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.True(t, m.initialized)
	assert.Equal(t, 100, m.width)
	assert.Equal(t, 40, m.height)
	assert.Equal(t, "dev", m.appVersion)
}

func TestModel_QuitCancelsRun(t *testing.T) {
	testCases := []struct {
		name string
		key  tea.KeyMsg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cancelled := 0
			m := newTestModel(t, func() { cancelled++ })

			cmd := send(t, m, tc.key)
			require.NotNil(t, cmd)
			assert.Equal(t, tea.Quit(), cmd())
			assert.True(t, m.quitting)
			assert.Equal(t, 1, cancelled)
			assert.Equal(t, "Cancelling...\n", m.View())

			send(t, m, tc.key)
			assert.Equal(t, 1, cancelled, "second key press is ignored")
		})
	}
}

func TestModel_TaskLifecycle(t *testing.T) {
	m := newTestModel(t, nil)

	cmd := send(t, m,
		hooks.PhaseMsg{Phase: converter.PhaseScanning},
		hooks.TaskDiscoveredMsg{Path: "/src/a.mmd"},
		hooks.TaskDiscoveredMsg{Path: "/src/b.mmd"},
	)
	assert.Nil(t, cmd, "list refresh already scheduled")
	assert.True(t, m.listDirty)
	require.Len(t, m.items, 2)

	send(t, m, hooks.TaskDiscoveredMsg{Path: "/src/a.mmd"})
	assert.Len(t, m.items, 2, "duplicate discovery is ignored")

	send(t, m,
		hooks.PhaseMsg{Phase: converter.PhaseRunning},
		hooks.TaskStatusUpdateMsg{Path: "/src/a.mmd", Status: converter.StatusProcessing},
		hooks.TaskStatusUpdateMsg{Path: "/src/a.mmd", Status: converter.StatusSuccess, Duration: 120 * time.Millisecond},
		hooks.TaskStatusUpdateMsg{Path: "/src/b.mmd", Status: converter.StatusFailed, Message: "exit status 1"},
		hooks.TaskStatusUpdateMsg{Path: "/src/c.mmd", Status: converter.StatusSkipped, Message: converter.SkipReasonIgnored},
		hooks.ProgressMsg{Progress: converter.Progress{Total: 2, Processed: 2, Succeeded: 1, Failed: 1}},
	)

	assert.Equal(t, converter.StatusSuccess, m.items[0].status)
	assert.Equal(t, 120*time.Millisecond, m.items[0].duration)
	assert.Equal(t, converter.StatusFailed, m.items[1].status)
	assert.Equal(t, "exit status 1", m.items[1].message)
	require.Len(t, m.items, 3, "status for an unknown path adds it")
	assert.Equal(t, 1, m.skipped)
	assert.Equal(t, "Converting...", m.phaseLabel())

	send(t, m, UpdateListMsg{})
	assert.False(t, m.listDirty)
	assert.Len(t, m.list.Items(), 3)

	view := m.View()
	assert.Contains(t, view, "Diagram Converter 1.2.3")
	assert.Contains(t, view, "Progress: 100% (2/2) | ✅ 1 | ❌ 1")
	assert.Contains(t, view, "Skipped: 1")
}

func TestModel_RunCompleteQuits(t *testing.T) {
	m := newTestModel(t, func() { t.Fatal("completed run must not be cancelled") })

	report := converter.Report{
		Summary: converter.ReportSummary{
			TaskCount: 3, Processed: 1, Succeeded: 0, Failed: 1,
			Outcome: converter.OutcomeAborted, FatalErrorOccurred: true,
		},
		Errors: []converter.ErrorInfo{
			{Path: "/src/a.mmd", Error: "exit status 1"},
			{Path: "", Error: "worker startup failed: worker 0", IsFatal: true},
		},
	}
	cmd := send(t, m, hooks.RunCompleteMsg{Report: report})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.True(t, m.finished)
	assert.Equal(t, "Fatal error: worker startup failed: worker 0", m.fatalError)
	assert.Equal(t, converter.Progress{Total: 3, Processed: 1, Failed: 1}, m.counters)
	assert.Equal(t, "Complete (aborted)", m.phaseLabel())

	view := m.View()
	assert.Contains(t, view, "Fatal error: worker startup failed")

	send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.quitting)
}

func TestModel_SpinnerStopsWhenFinished(t *testing.T) {
	m := newTestModel(t, nil)
	send(t, m, hooks.RunCompleteMsg{Report: converter.Report{Summary: converter.ReportSummary{Outcome: converter.OutcomeEmpty}}})
	cmd := send(t, m, spinner.TickMsg{})
	assert.Nil(t, cmd)
}

func TestListItem_Description(t *testing.T) {
	testCases := []struct {
		item     listItem
		icon     string
		contains string
	}{
		{listItem{status: converter.StatusSuccess, duration: 1500 * time.Millisecond}, "[✓]", "1.50s"},
		{listItem{status: converter.StatusCached, duration: 3 * time.Millisecond}, "[C]", "3ms"},
		{listItem{status: converter.StatusFailed, message: "timed out"}, "[✗]", "timed out"},
		{listItem{status: converter.StatusSkipped, message: converter.SkipReasonGitExclude}, "[S]", converter.SkipReasonGitExclude},
		{listItem{status: converter.StatusProcessing}, "[…]", ""},
		{listItem{status: converter.StatusPending}, "[ ]", ""},
	}
	for _, tc := range testCases {
		t.Run(string(tc.item.status), func(t *testing.T) {
			desc := tc.item.Description()
			assert.Contains(t, desc, tc.icon)
			assert.Contains(t, desc, tc.contains)
		})
	}
}

func TestListItem_Title(t *testing.T) {
	item := listItem{path: "/src/docs/flow.mmd"}
	assert.Equal(t, "flow.mmd", item.Title())
	assert.Equal(t, "/src/docs/flow.mmd", item.FilterValue())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "", formatDuration(0))
	assert.Equal(t, "500µs", formatDuration(500*time.Microsecond))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2.00s", formatDuration(2*time.Second))
}

func TestSpread(t *testing.T) {
	line := spread(40, "left", "right")
	assert.True(t, strings.HasPrefix(line, "left"))
	assert.True(t, strings.HasSuffix(line, "right"))
}
