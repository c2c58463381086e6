// Package postcommit implements the commit-then-dispatch queue for deferred
// side effects. Orchestrators append tasks while a database transaction is
// open; the tasks are handed to the background runner only after the
// transaction commits, and are discarded on rollback.
package postcommit

import "context"

// Task is one best-effort action scheduled to run after commit.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue collects tasks for the current transaction. It is not safe for
// concurrent use; each transaction gets its own queue.
type Queue struct {
	tasks []Task
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add appends a named task.
func (q *Queue) Add(name string, run func(ctx context.Context) error) {
	if run == nil {
		return
	}
	q.tasks = append(q.tasks, Task{Name: name, Run: run})
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int { return len(q.tasks) }

func (q *Queue) drain() []Task {
	tasks := q.tasks
	q.tasks = nil
	return tasks
}
