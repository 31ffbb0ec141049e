package converter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stackvity/diagram-converter/pkg/converter/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	err    error
	output string
	calls  int
}

func (r *stubRenderer) Render(ctx context.Context, in, out string, timeout time.Duration) error {
	r.calls++
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(out, []byte(r.output), 0o644)
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(string) error { return v.err }

// memoryCache is a minimal in-memory CacheManager.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][4]string
	modTime map[string]time.Time
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][4]string{}, modTime: map[string]time.Time{}}
}

func (c *memoryCache) Load(string) error    { return nil }
func (c *memoryCache) Persist(string) error { return nil }

func (c *memoryCache) Check(key string, modTime time.Time, contentHash, configHash string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.modTime[key].Equal(modTime) || e[0] != contentHash || e[1] != configHash {
		return false, ""
	}
	return true, e[2]
}

func (c *memoryCache) Update(key string, modTime time.Time, sourceHash, configHash, outputHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = [4]string{sourceHash, configHash, outputHash}
	c.modTime[key] = modTime
	return nil
}

func newProcessorTask(t *testing.T) Task {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "flow.mmd")
	require.NoError(t, os.WriteFile(in, []byte("graph LR\n  A-->B\n"), 0o644))
	return Task{InputPath: in, OutputPath: filepath.Join(dir, "flow.png")}
}

func TestTaskProcessor_Success(t *testing.T) {
	task := newProcessorTask(t)
	opts := &Options{Timeout: time.Second}
	p := newTaskProcessor(opts, discardLogger().Handler(), &stubRenderer{output: "png"}, nil, nil)

	result, err := p.Process(context.Background(), 3, task)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, CacheStatusDisabled, result.CacheStatus)
	assert.Equal(t, 3, result.WorkerID)
	assert.Empty(t, result.Error)
}

func TestTaskProcessor_RenderFailure(t *testing.T) {
	task := newProcessorTask(t)
	renderErr := render.Wrap(render.ErrRenderTimeout, "flow.mmd")
	p := newTaskProcessor(&Options{}, discardLogger().Handler(), &stubRenderer{err: renderErr}, nil, nil)

	result, err := p.Process(context.Background(), 0, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskExecution)
	assert.ErrorIs(t, err, render.ErrRenderTimeout)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, err.Error(), result.Error)
}

func TestTaskProcessor_VerificationFailure(t *testing.T) {
	task := newProcessorTask(t)
	verifyErr := errors.New("not an image")
	p := newTaskProcessor(&Options{}, discardLogger().Handler(), &stubRenderer{output: "x"}, stubVerifier{err: verifyErr}, nil)

	result, err := p.Process(context.Background(), 0, task)
	assert.ErrorIs(t, err, ErrTaskExecution)
	assert.ErrorIs(t, err, verifyErr)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestTaskProcessor_Cache(t *testing.T) {
	task := newProcessorTask(t)
	cacheMgr := newMemoryCache()
	renderer := &stubRenderer{output: "png-bytes"}
	opts := &Options{CacheEnabled: true, Theme: "dark"}
	p := newTaskProcessor(opts, discardLogger().Handler(), renderer, nil, cacheMgr)

	first, err := p.Process(context.Background(), 0, task)
	require.NoError(t, err)
	assert.Equal(t, CacheStatusMiss, first.CacheStatus)
	assert.Equal(t, 1, renderer.calls)

	second, err := p.Process(context.Background(), 0, task)
	require.NoError(t, err)
	assert.Equal(t, StatusCached, second.Status)
	assert.Equal(t, CacheStatusHit, second.CacheStatus)
	assert.Equal(t, 1, renderer.calls)

	// Tampered output forces a re-render even though the entry is valid.
	require.NoError(t, os.WriteFile(task.OutputPath, []byte("edited"), 0o644))
	third, err := p.Process(context.Background(), 0, task)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, third.Status)
	assert.Equal(t, 2, renderer.calls)
}

func TestTaskProcessor_FailedRenderNotCached(t *testing.T) {
	task := newProcessorTask(t)
	cacheMgr := newMemoryCache()
	p := newTaskProcessor(&Options{CacheEnabled: true}, discardLogger().Handler(), &stubRenderer{err: errors.New("exit 1")}, nil, cacheMgr)

	_, err := p.Process(context.Background(), 0, task)
	require.Error(t, err)
	assert.Empty(t, cacheMgr.entries)
}

func TestCalculateConfigHash(t *testing.T) {
	base := &Options{Theme: "dark", Background: "transparent", ConverterCommand: "mmdc"}
	same := &Options{Theme: "dark", Background: "transparent", ConverterCommand: "mmdc", Threads: 8}
	other := &Options{Theme: "forest", Background: "transparent", ConverterCommand: "mmdc"}
	withTool := &Options{Theme: "dark", Background: "transparent", ConverterCommand: "mmdc", ToolPath: "/usr/bin/chromium"}

	assert.Equal(t, calculateConfigHash(base), calculateConfigHash(same), "pool settings do not affect output")
	assert.NotEqual(t, calculateConfigHash(base), calculateConfigHash(other))
	assert.NotEqual(t, calculateConfigHash(base), calculateConfigHash(withTool))
}
