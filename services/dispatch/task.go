package dispatch

import (
	"context"
	"sync"
)

// Status is the lifecycle state of a submitted task.
type Status string

const (
	// StatusPending means the task is queued and has not started.
	StatusPending Status = "pending"
	// StatusRunning means a worker is executing the task.
	StatusRunning Status = "running"
	// StatusSucceeded means the task finished without error.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the task returned an error or panicked.
	StatusFailed Status = "failed"
	// StatusCanceled means the task's context ended before or during
	// execution.
	StatusCanceled Status = "canceled"
)

// Task is a handle to one submitted job.
//
// The submitter keeps the handle; the result is delivered through Wait or
// observed via Done and Status. A Task is safe for concurrent use and its
// result is immutable once the task finishes.
type Task struct {
	// ID uniquely identifies the task; it correlates the task_* events
	// the dispatcher emits.
	ID string

	// Name is the caller-supplied job name, used in events.
	Name string

	mu     sync.Mutex
	status Status
	result any
	err    error
	done   chan struct{}
}

func newTask(id, name string) *Task {
	return &Task{
		ID:     id,
		Name:   name,
		status: StatusPending,
		done:   make(chan struct{}),
	}
}

// Status reports the task's current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done returns a channel that is closed when the task finishes, whatever
// the outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends, and returns the job's
// result and error. The ctx passed here only bounds the wait; it does not
// cancel the job (cancel the Submit context for that).
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// setRunning transitions pending -> running. It reports false when the
// task already finished (canceled while queued).
func (t *Task) setRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return false
	}
	t.status = StatusRunning
	return true
}

// finish records the terminal state exactly once and releases waiters.
func (t *Task) finish(status Status, result any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusSucceeded || t.status == StatusFailed || t.status == StatusCanceled {
		return
	}
	t.status = status
	t.result = result
	t.err = err
	close(t.done)
}
