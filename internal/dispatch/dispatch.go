// Package dispatch runs blocking work off the delivery goroutine and hands
// each result back as a single callback on that goroutine. State that is only
// mutated inside callbacks needs no locking.
package dispatch

import (
	"context"

	"go.uber.org/zap"
)

// Work is a zero-argument unit of work that produces a value or fails.
type Work func() (any, error)

// Callback receives exactly one of a value or an error.
type Callback func(value any, err error)

// Task is a single-resolution handle for submitted work. It resolves when
// the completion callback has been delivered.
type Task struct {
	value any
	err   error
	done  chan struct{}
}

// Done is closed once the task's callback has been delivered.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task resolves and returns its outcome. The dispatcher
// loop must be running for tasks to resolve.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.value, t.err
	}
}

// Dispatcher executes work on per-task goroutines and serializes completion
// delivery. Submissions are independent: no de-duplication, no queue limit,
// no cancellation - a submitted task always runs to completion and its
// callback fires exactly once.
type Dispatcher struct {
	log        *zap.Logger
	deliveries chan func()
}

// New creates a dispatcher.
func New(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:        log,
		deliveries: make(chan func(), 64),
	}
}

// Run delivers completion callbacks one at a time until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case deliver := <-d.deliveries:
			deliver()
		}
	}
}

// Submit runs work on its own goroutine and delivers the outcome to callback
// on the delivery loop. A nil callback is allowed; failures are then logged
// rather than dropped. The returned task resolves after delivery.
func (d *Dispatcher) Submit(work Work, callback Callback) *Task {
	task := &Task{done: make(chan struct{})}

	go func() {
		value, err := work()
		d.deliveries <- func() {
			task.value = value
			task.err = err
			if callback != nil {
				callback(value, err)
			} else if err != nil {
				d.log.Warn("background task failed", zap.Error(err))
			}
			close(task.done)
		}
	}()

	return task
}
