package converter_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stackvity/diagram-converter/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTasks(n int) []converter.Task {
	tasks := make([]converter.Task, n)
	for i := range tasks {
		tasks[i] = converter.Task{
			InputPath:  fmt.Sprintf("/src/d%04d.mmd", i),
			OutputPath: fmt.Sprintf("/out/d%04d.png", i),
		}
	}
	return tasks
}

func TestWorkQueue_SequentialOrder(t *testing.T) {
	tasks := makeTasks(3)
	q := converter.NewWorkQueue(tasks)
	assert.Equal(t, 3, q.Len())

	for i := 0; i < 3; i++ {
		task, ok := q.ClaimNext()
		require.True(t, ok)
		assert.Equal(t, tasks[i], task)
		assert.Equal(t, i+1, q.Claimed())
	}

	_, ok := q.ClaimNext()
	assert.False(t, ok)
	_, ok = q.ClaimNext()
	assert.False(t, ok, "exhausted queue stays exhausted")
	assert.Equal(t, 3, q.Claimed(), "cursor never passes the end")
}

func TestWorkQueue_Empty(t *testing.T) {
	q := converter.NewWorkQueue(nil)
	_, ok := q.ClaimNext()
	assert.False(t, ok)
	assert.Zero(t, q.Claimed())
}

// TestWorkQueue_ExactlyOnce claims concurrently from N goroutines and checks
// that every task is handed out exactly once.
func TestWorkQueue_ExactlyOnce(t *testing.T) {
	for _, tc := range []struct{ tasks, claimers int }{
		{0, 1}, {1, 8}, {7, 3}, {100, 1}, {1000, 16}, {513, 32},
	} {
		t.Run(fmt.Sprintf("T=%d/N=%d", tc.tasks, tc.claimers), func(t *testing.T) {
			tasks := makeTasks(tc.tasks)
			q := converter.NewWorkQueue(tasks)

			var mu sync.Mutex
			claims := make(map[string]int, tc.tasks)
			var wg sync.WaitGroup
			for i := 0; i < tc.claimers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						task, ok := q.ClaimNext()
						if !ok {
							return
						}
						mu.Lock()
						claims[task.InputPath]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Len(t, claims, tc.tasks)
			for _, task := range tasks {
				assert.Equal(t, 1, claims[task.InputPath], "task %s", task.InputPath)
			}
			assert.Equal(t, tc.tasks, q.Claimed())
		})
	}
}
