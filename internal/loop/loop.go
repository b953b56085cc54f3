// Package loop provides the single goroutine that owns all GATT state.
//
// D-Bus method handlers and the dispatch worker never touch characteristic
// state directly; they hand closures to the loop, which runs them one at a
// time in submission order.
package loop

import (
	"context"
	"errors"
)

// ErrStopped is returned by Do when the loop is not running.
var ErrStopped = errors.New("event loop stopped")

// Loop serializes closures onto one goroutine.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// New creates a loop with room for backlog pending tasks.
func New(backlog int) *Loop {
	if backlog < 1 {
		backlog = 1
	}
	return &Loop{
		tasks: make(chan func(), backlog),
		done:  make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(fn func()) error {
	if l.stopped() {
		return ErrStopped
	}
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Post queues fn without waiting and reports false if the loop has stopped.
// Post never blocks, so it is safe to call from a task already running on
// the loop; when the backlog is full the hand-off completes in the
// background.
func (l *Loop) Post(fn func()) bool {
	if l.stopped() {
		return false
	}
	select {
	case l.tasks <- fn:
	default:
		go func() {
			select {
			case l.tasks <- fn:
			case <-l.done:
			}
		}()
	}
	return true
}

func (l *Loop) stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
