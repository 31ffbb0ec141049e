package converter

import "sync"

// WorkQueue hands out tasks from a fixed sequence, one caller per task.
// The cursor only moves forward and never passes the end of the sequence.
type WorkQueue struct {
	mu     sync.Mutex
	tasks  []Task
	cursor int
}

// NewWorkQueue creates a queue over tasks. The slice must not be modified afterwards.
func NewWorkQueue(tasks []Task) *WorkQueue {
	return &WorkQueue{tasks: tasks}
}

// ClaimNext returns the next unclaimed task, or false once the sequence is exhausted.
// It is safe for concurrent use.
func (q *WorkQueue) ClaimNext() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor >= len(q.tasks) {
		return Task{}, false
	}
	task := q.tasks[q.cursor]
	q.cursor++
	return task, true
}

// Claimed returns how many tasks have been handed out.
func (q *WorkQueue) Claimed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Len returns the length of the task sequence.
func (q *WorkQueue) Len() int {
	return len(q.tasks)
}
