// Package ui is the interactive terminal view of a conversion run, built on Bubble Tea.
package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stackvity/diagram-converter/internal/cli/hooks"
	"github.com/stackvity/diagram-converter/pkg/converter"
)

// listHeightMargin is the number of rows taken by the header, progress bar and footer.
const listHeightMargin = 4

const listUpdateInterval = 50 * time.Millisecond

// Model is the TUI state. Bubble Tea calls Update and View from one goroutine,
// so no locking is needed; events from workers arrive as messages.
type Model struct {
	list     list.Model
	spinner  spinner.Model
	progress progress.Model

	width       int
	height      int
	initialized bool

	appVersion string
	cancelRun  context.CancelFunc

	items   []listItem
	itemMap map[string]int
	// listDirty is set when items changed and an UpdateListMsg is already scheduled.
	listDirty bool

	phase      converter.Phase
	counters   converter.Progress
	skipped    int
	startTime  time.Time
	finished   bool
	outcome    converter.Outcome
	fatalError string
	quitting   bool
}

type listItem struct {
	path     string
	status   converter.Status
	message  string
	duration time.Duration
}

// UpdateListMsg asks the model to push its items into the list component.
type UpdateListMsg struct{}

// NewModel creates the TUI model. cancelRun, when set, is called if the user quits early.
func NewModel(appVersion string, cancelRun context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if appVersion == "" {
		appVersion = "dev"
	}
	return &Model{
		list:       l,
		spinner:    s,
		progress:   progress.New(progress.WithDefaultGradient()),
		appVersion: appVersion,
		cancelRun:  cancelRun,
		itemMap:    make(map[string]int),
		phase:      converter.PhaseInit,
		startTime:  time.Now(),
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles terminal input and run events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(1, m.height-listHeightMargin))
		m.progress.Width = max(10, m.width-4)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.cancelRun != nil && !m.finished {
				m.cancelRun()
			}
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		if m.quitting || m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case hooks.PhaseMsg:
		m.phase = msg.Phase

	case hooks.TaskDiscoveredMsg:
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.addItem(listItem{path: msg.Path, status: converter.StatusPending})
			cmds = append(cmds, m.scheduleListUpdate())
		}

	case hooks.TaskStatusUpdateMsg:
		idx, ok := m.itemMap[msg.Path]
		if !ok {
			m.addItem(listItem{path: msg.Path})
			idx = len(m.items) - 1
		}
		item := &m.items[idx]
		if msg.Status == converter.StatusSkipped && item.status != converter.StatusSkipped {
			m.skipped++
		}
		item.status = msg.Status
		item.message = msg.Message
		if msg.Duration > 0 {
			item.duration = msg.Duration
		}
		cmds = append(cmds, m.scheduleListUpdate())

	case hooks.ProgressMsg:
		m.counters = msg.Progress

	case hooks.RunCompleteMsg:
		m.finished = true
		m.outcome = msg.Report.Summary.Outcome
		s := msg.Report.Summary
		m.counters = converter.Progress{Total: s.TaskCount, Processed: s.Processed, Succeeded: s.Succeeded, Failed: s.Failed, Cached: s.Cached}
		if s.FatalErrorOccurred {
			m.fatalError = "Run halted due to a fatal error."
			for _, e := range msg.Report.Errors {
				if e.IsFatal {
					m.fatalError = fmt.Sprintf("Fatal error: %s", e.Error)
					break
				}
			}
		}
		return m, tea.Quit

	case UpdateListMsg:
		m.listDirty = false
		items := make([]list.Item, len(m.items))
		for i, item := range m.items {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) addItem(item listItem) {
	m.items = append(m.items, item)
	m.itemMap[item.path] = len(m.items) - 1
}

// scheduleListUpdate coalesces list refreshes to one per listUpdateInterval.
func (m *Model) scheduleListUpdate() tea.Cmd {
	if m.listDirty {
		return nil
	}
	m.listDirty = true
	return tea.Tick(listUpdateInterval, func(time.Time) tea.Msg { return UpdateListMsg{} })
}

// View renders the header, progress bar, task list and footer.
func (m *Model) View() string {
	if m.quitting && !m.finished {
		return "Cancelling...\n"
	}
	if !m.initialized {
		return "Initializing..."
	}

	headerLeft := fmt.Sprintf("Diagram Converter %s", m.appVersion)
	headerRight := m.phaseLabel()
	if !m.finished {
		headerRight = m.spinner.View() + " " + headerRight
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width, headerLeft, headerRight))

	bar := m.progress.ViewAs(float64(m.counters.Percent()) / 100)

	elapsed := time.Since(m.startTime).Round(time.Millisecond)
	footerLeft := fmt.Sprintf("%s | Cached: %d | Skipped: %d | Elapsed: %s",
		hooks.FormatProgressLine(m.counters), m.counters.Cached, m.skipped, elapsed)
	footer := FooterStyle.Width(m.width).Render(spread(m.width, footerLeft, "q: quit"))

	errorView := ""
	if m.fatalError != "" {
		errorView = StatusStyleFailed.Render(m.fatalError) + "\n"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		bar,
		m.list.View(),
		errorView,
		footer,
	)
}

func (m *Model) phaseLabel() string {
	if m.finished && m.outcome != "" {
		return "Complete (" + string(m.outcome) + ")"
	}
	switch m.phase {
	case converter.PhaseScanning:
		return "Scanning..."
	case converter.PhaseRunning:
		return "Converting..."
	case converter.PhaseJoining:
		return "Finishing..."
	case converter.PhaseEmpty, converter.PhaseDone:
		return "Complete"
	default:
		return "Initializing..."
	}
}

// spread places left and right at the edges of a line of the given width.
func spread(width int, left, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.PlaceHorizontal(gap, lipgloss.Center, " "), right)
}

// FilterValue implements list.Item.
func (i listItem) FilterValue() string { return i.path }

// Title implements list.DefaultItem.
func (i listItem) Title() string { return filepath.Base(i.path) }

// Description implements list.DefaultItem.
func (i listItem) Description() string {
	var style lipgloss.Style
	icon := " "
	switch i.status {
	case converter.StatusSuccess:
		style, icon = StatusStyleSuccess, "✓"
	case converter.StatusFailed:
		style, icon = StatusStyleFailed, "✗"
	case converter.StatusSkipped:
		style, icon = StatusStyleSkipped, "S"
	case converter.StatusCached:
		style, icon = StatusStyleCached, "C"
	case converter.StatusProcessing:
		style, icon = StatusStyleProcessing, "…"
	default:
		style = StatusStylePending
	}

	details := ""
	switch i.status {
	case converter.StatusFailed, converter.StatusSkipped:
		details = i.message
	case converter.StatusSuccess, converter.StatusCached:
		details = formatDuration(i.duration)
	}
	return fmt.Sprintf("%s %s", style.Render("["+icon+"]"), details)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- Styles ---

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("62")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("56")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusSuccess    = lipgloss.Color("40")
	ColorStatusFailed     = lipgloss.Color("196")
	ColorStatusSkipped    = lipgloss.Color("214")
	ColorStatusCached     = lipgloss.Color("39")
	ColorStatusPending    = lipgloss.Color("244")
	ColorStatusProcessing = lipgloss.Color("205")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess    = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed     = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleSkipped    = lipgloss.NewStyle().Foreground(ColorStatusSkipped)
	StatusStyleCached     = lipgloss.NewStyle().Foreground(ColorStatusCached)
	StatusStylePending    = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
