// Package eventloop runs closures one at a time on a single goroutine.
// Everything that touches timer state goes through it, so state changes
// made inside one closure are atomic with respect to every other caller.
package eventloop

import (
	"context"
	"errors"
	"log"
)

var ErrStopped = errors.New("event loop stopped")

type Loop struct {
	tasks chan func()
	done  chan struct{}
}

func New(buffer int) *Loop {
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Post queues fn. It returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Run executes queued closures until ctx is cancelled. A panicking closure
// is logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer log.Println("Event loop stopped.")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			l.runTask(fn)
		}
	}
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered panic in event loop task: %v", r)
		}
	}()
	fn()
}
