// Package testutil provides mocks and fakes for the interfaces defined in
// pkg/converter, so components can be tested in isolation.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stackvity/diagram-converter/pkg/converter/render"
	"github.com/stretchr/testify/mock"
)

// MockRenderer is a testify mock of converter.Renderer.
type MockRenderer struct {
	mock.Mock
}

// Render mocks the Render method.
func (m *MockRenderer) Render(ctx context.Context, inputPath, outputPath string, timeout time.Duration) error {
	args := m.Called(ctx, inputPath, outputPath, timeout)
	return args.Error(0)
}

// MockVerifier is a testify mock of converter.OutputVerifier.
type MockVerifier struct {
	mock.Mock
}

// Verify mocks the Verify method.
func (m *MockVerifier) Verify(outputPath string) error {
	return m.Called(outputPath).Error(0)
}

// MockCacheManager is a testify mock of converter.CacheManager.
type MockCacheManager struct {
	mock.Mock
}

// Load mocks the Load method.
func (m *MockCacheManager) Load(cachePath string) error {
	return m.Called(cachePath).Error(0)
}

// Check mocks the Check method.
func (m *MockCacheManager) Check(key string, modTime time.Time, contentHash string, configHash string) (isHit bool, outputHash string) {
	args := m.Called(key, modTime, contentHash, configHash)
	isHit, _ = args.Get(0).(bool)
	outputHash, _ = args.Get(1).(string)
	return
}

// Update mocks the Update method.
func (m *MockCacheManager) Update(key string, modTime time.Time, sourceHash string, configHash string, outputHash string) error {
	return m.Called(key, modTime, sourceHash, configHash, outputHash).Error(0)
}

// Persist mocks the Persist method.
func (m *MockCacheManager) Persist(cachePath string) error {
	return m.Called(cachePath).Error(0)
}

// MockGitClient is a testify mock of converter.GitClient.
type MockGitClient struct {
	mock.Mock
}

// GetChangedFiles mocks the GetChangedFiles method.
func (m *MockGitClient) GetChangedFiles(repoPath string, mode converter.GitDiffMode, ref string) (files []string, err error) {
	args := m.Called(repoPath, mode, ref)
	files, _ = args.Get(0).([]string)
	return files, args.Error(1)
}

// MockHooks is a testify mock of converter.Hooks. Hooks are called from
// several goroutines; testify mocks are safe for that.
type MockHooks struct {
	mock.Mock
}

// OnPhase mocks the OnPhase method.
func (m *MockHooks) OnPhase(phase converter.Phase) error {
	return m.Called(phase).Error(0)
}

// OnTaskDiscovered mocks the OnTaskDiscovered method.
func (m *MockHooks) OnTaskDiscovered(path string) error {
	return m.Called(path).Error(0)
}

// OnTaskStatusUpdate mocks the OnTaskStatusUpdate method.
func (m *MockHooks) OnTaskStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	return m.Called(path, status, message, duration).Error(0)
}

// OnProgress mocks the OnProgress method.
func (m *MockHooks) OnProgress(progress converter.Progress) error {
	return m.Called(progress).Error(0)
}

// OnRunComplete mocks the OnRunComplete method.
func (m *MockHooks) OnRunComplete(report converter.Report) error {
	return m.Called(report).Error(0)
}

// RecordingHooks stores everything a run reports. It is safe for concurrent use.
type RecordingHooks struct {
	mu       sync.Mutex
	Phases   []converter.Phase
	Progress []converter.Progress
	Statuses map[string][]converter.Status
	Reports  []converter.Report
	// Events interleaves phases ("phase:<name>") and finished tasks ("done:<base name>").
	Events []string
}

// NewRecordingHooks returns empty RecordingHooks.
func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{Statuses: make(map[string][]converter.Status)}
}

func (h *RecordingHooks) OnPhase(phase converter.Phase) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Phases = append(h.Phases, phase)
	h.Events = append(h.Events, "phase:"+string(phase))
	return nil
}

func (h *RecordingHooks) OnTaskDiscovered(path string) error {
	return h.OnTaskStatusUpdate(path, converter.StatusPending, "", 0)
}

func (h *RecordingHooks) OnTaskStatusUpdate(path string, status converter.Status, _ string, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Statuses[path] = append(h.Statuses[path], status)
	switch status {
	case converter.StatusSuccess, converter.StatusFailed, converter.StatusCached:
		h.Events = append(h.Events, "done:"+filepath.Base(path))
	}
	return nil
}

func (h *RecordingHooks) OnProgress(p converter.Progress) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Progress = append(h.Progress, p)
	return nil
}

func (h *RecordingHooks) OnRunComplete(report converter.Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Reports = append(h.Reports, report)
	return nil
}

// PhaseList returns a copy of the recorded phases.
func (h *RecordingHooks) PhaseList() []converter.Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]converter.Phase(nil), h.Phases...)
}

// EventList returns a copy of the recorded phase and completion events.
func (h *RecordingHooks) EventList() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Events...)
}

// LastProgress returns the last rendered progress and whether any was rendered.
func (h *RecordingHooks) LastProgress() (converter.Progress, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Progress) == 0 {
		return converter.Progress{}, false
	}
	return h.Progress[len(h.Progress)-1], true
}

// FakeRenderer writes a small file for each input instead of running a converter.
// Inputs whose base name is in Fail return a non-zero exit error. Delay applies
// to every input, or only to those in Slow when Slow is set; a Delay longer than
// the timeout returns a timeout error. It tracks peak concurrency.
type FakeRenderer struct {
	Fail    map[string]bool
	Slow    map[string]bool
	Delay   time.Duration
	Content []byte

	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
}

// Render implements converter.Renderer.
func (f *FakeRenderer) Render(ctx context.Context, inputPath, outputPath string, timeout time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, inputPath)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 && (f.Slow == nil || f.Slow[filepath.Base(inputPath)]) {
		wait := f.Delay
		if timeout > 0 && timeout < wait {
			wait = timeout
		}
		select {
		case <-ctx.Done():
			return render.Wrap(render.ErrRenderTimeout, "%s: %v", inputPath, ctx.Err())
		case <-time.After(wait):
		}
		if wait < f.Delay {
			return render.Wrap(render.ErrRenderTimeout, "%s: exceeded %s", inputPath, timeout)
		}
	}

	if f.Fail[filepath.Base(inputPath)] {
		return render.Wrap(render.ErrRenderNonZeroExit, "%s: exit status 1", inputPath)
	}
	content := f.Content
	if content == nil {
		content = []byte(fmt.Sprintf("rendered:%s", filepath.Base(inputPath)))
	}
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return render.Errorf("write %s: %v", outputPath, err)
	}
	return nil
}

// Calls returns the inputs passed to Render, in call order.
func (f *FakeRenderer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// MaxInFlight returns the highest number of concurrent Render calls observed.
func (f *FakeRenderer) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// MockLoggerHandler is a testify mock of slog.Handler.
type MockLoggerHandler struct {
	mock.Mock
}

// Enabled mocks the Enabled method.
func (m *MockLoggerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	enabled, _ := m.Called(ctx, level).Get(0).(bool)
	return enabled
}

// Handle mocks the Handle method.
func (m *MockLoggerHandler) Handle(ctx context.Context, r slog.Record) error {
	return m.Called(ctx, r).Error(0)
}

// WithAttrs mocks the WithAttrs method.
func (m *MockLoggerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h, ok := m.Called(attrs).Get(0).(slog.Handler); ok {
		return h
	}
	return m
}

// WithGroup mocks the WithGroup method.
func (m *MockLoggerHandler) WithGroup(name string) slog.Handler {
	if h, ok := m.Called(name).Get(0).(slog.Handler); ok {
		return h
	}
	return m
}
