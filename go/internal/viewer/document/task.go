package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// RasterFunc produces pixels. It should watch ctx and give up early when it
// is canceled, but returning a result anyway is allowed.
type RasterFunc func(ctx context.Context) (image.Image, error)

// Task is an in-flight rasterization.
type Task struct {
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}

	img image.Image
	err error
}

// Go starts fn on its own goroutine and returns the task tracking it.
func Go(ctx context.Context, fn RasterFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()

		img, err := fn(ctx)
		if err != nil && ctx.Err() != nil && !errors.Is(err, ErrCanceled) {
			err = fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		t.img, t.err = img, err
	}()
	return t
}

// Failed returns a task that has already failed with err.
func Failed(err error) *Task {
	t := &Task{cancel: func() {}, done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// Cancel asks the task to stop. It never blocks and is safe to call any
// number of times, including after completion.
func (t *Task) Cancel() {
	t.cancelOnce.Do(t.cancel)
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result waits for the task and returns its output.
func (t *Task) Result() (image.Image, error) {
	<-t.done
	return t.img, t.err
}
