// Package dispatch runs service jobs on a fixed worker pool with a
// bounded queue.
//
// The background services (scans, learning exports, PR description
// generation) submit work here instead of spawning goroutines ad hoc:
// the pool bounds concurrency, the queue bounds memory, and every task
// transition is emitted for observability. Submit hands back a Task
// handle the caller can wait on.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/emit"
)

// ErrQueueFull is returned by Submit when the queue has no free slot.
var ErrQueueFull = errors.New("dispatch queue is full")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatcher is closed")

// JobFunc is the unit of work a service submits. The context is the one
// given to Submit; jobs must honor its cancellation.
type JobFunc func(ctx context.Context) (any, error)

// Option configures a Dispatcher.
type Option func(*config)

type config struct {
	queueDepth int
	emitter    emit.Emitter
}

// WithQueueDepth bounds the number of queued-but-not-running tasks.
// Submissions beyond the bound fail with ErrQueueFull rather than block.
//
// Default: 64.
func WithQueueDepth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// WithEmitter sets the emitter that receives task_start and
// task_complete events.
//
// Default: emit.NewNullEmitter().
func WithEmitter(e emit.Emitter) Option {
	return func(c *config) {
		if e != nil {
			c.emitter = e
		}
	}
}

// Dispatcher is a fixed pool of workers consuming a bounded job queue.
//
// All methods are safe for concurrent use.
type Dispatcher struct {
	queue   chan *job
	emitter emit.Emitter
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type job struct {
	task *Task
	ctx  context.Context
	fn   JobFunc
}

// New starts a dispatcher with the given number of workers. A
// non-positive count is raised to 1.
func New(workers int, opts ...Option) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	cfg := config{queueDepth: 64, emitter: emit.NewNullEmitter()}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Dispatcher{
		queue:   make(chan *job, cfg.queueDepth),
		emitter: cfg.emitter,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues fn for execution and returns its Task handle. The ctx
// governs the job itself: if it ends before a worker picks the job up,
// the task finishes canceled without running.
//
// Submit never blocks: a full queue returns ErrQueueFull immediately so
// callers can shed load or retry.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn JobFunc) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("Submit: job func is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// The read lock spans the send so Close cannot close the channel
	// between the closed check and the enqueue.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	t := newTask(uuid.NewString(), name)
	select {
	case d.queue <- &job{task: t, ctx: ctx, fn: fn}:
		return t, nil
	default:
		return nil, ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up by a
// worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops intake, lets the workers drain the queued tasks, and waits
// for them to finish. Close is idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.run(j)
	}
}

func (d *Dispatcher) run(j *job) {
	t := j.task

	if j.ctx.Err() != nil {
		t.finish(StatusCanceled, nil, j.ctx.Err())
		d.emitComplete(t, 0, j.ctx.Err())
		return
	}

	if !t.setRunning() {
		return
	}
	d.emitter.Emit(emit.Event{
		RequestID: t.ID,
		Msg:       emit.MsgTaskStart,
		Meta:      map[string]interface{}{"task": t.Name},
	})

	start := time.Now()
	result, err := d.invoke(j)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		t.finish(StatusSucceeded, result, nil)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		t.finish(StatusCanceled, nil, err)
	default:
		t.finish(StatusFailed, nil, err)
	}
	d.emitComplete(t, elapsed, err)
}

// invoke runs the job, converting a panic into a task failure so one bad
// job cannot take down a worker.
func (d *Dispatcher) invoke(j *job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("job %q panicked: %v", j.task.Name, r)
		}
	}()
	return j.fn(j.ctx)
}

func (d *Dispatcher) emitComplete(t *Task, elapsed time.Duration, err error) {
	meta := map[string]interface{}{
		"task":        t.Name,
		"status":      string(t.Status()),
		"duration_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		meta["error"] = err.Error()
	}
	d.emitter.Emit(emit.Event{
		RequestID: t.ID,
		Msg:       emit.MsgTaskComplete,
		Meta:      meta,
	})
}
