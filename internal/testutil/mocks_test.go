package testutil_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stackvity/diagram-converter/internal/testutil"
	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stackvity/diagram-converter/pkg/converter/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ converter.Renderer       = (*testutil.MockRenderer)(nil)
	_ converter.Renderer       = (*testutil.FakeRenderer)(nil)
	_ converter.OutputVerifier = (*testutil.MockVerifier)(nil)
	_ converter.CacheManager   = (*testutil.MockCacheManager)(nil)
	_ converter.GitClient      = (*testutil.MockGitClient)(nil)
	_ converter.Hooks          = (*testutil.MockHooks)(nil)
	_ converter.Hooks          = (*testutil.RecordingHooks)(nil)
)

func TestFakeRenderer(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "flow.mmd")
	out := filepath.Join(dir, "flow.png")

	t.Run("Writes output", func(t *testing.T) {
		f := &testutil.FakeRenderer{}
		require.NoError(t, f.Render(context.Background(), in, out, time.Second))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "rendered:flow.mmd", string(data))
		assert.Equal(t, []string{in}, f.Calls())
		assert.Equal(t, 1, f.MaxInFlight())
	})

	t.Run("Scripted failure", func(t *testing.T) {
		f := &testutil.FakeRenderer{Fail: map[string]bool{"flow.mmd": true}}
		err := f.Render(context.Background(), in, out, time.Second)
		assert.ErrorIs(t, err, render.ErrRenderNonZeroExit)
	})

	t.Run("Timeout", func(t *testing.T) {
		f := &testutil.FakeRenderer{Delay: time.Second}
		err := f.Render(context.Background(), in, out, 10*time.Millisecond)
		assert.ErrorIs(t, err, render.ErrRenderTimeout)
	})
}
