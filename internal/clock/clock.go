// Package clock abstracts wall-clock reads and repeating timers so the
// countdowns can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Handle identifies an armed interval. The zero Handle is never issued.
type Handle int64

type Clock interface {
	Now() time.Time
	SetInterval(fn func(), every time.Duration) Handle
	ClearInterval(h Handle)
}

// Poster schedules fn onto the goroutine that owns timer state.
type Poster func(fn func()) bool

// Real fires intervals from ticker goroutines but never runs fn on them:
// each tick is handed to post, so callbacks execute on the owning loop.
// A tick already posted when ClearInterval runs still executes.
type Real struct {
	post Poster

	mu     sync.Mutex
	nextID Handle
	stops  map[Handle]chan struct{}
}

func NewReal(post Poster) *Real {
	return &Real{post: post, stops: make(map[Handle]chan struct{})}
}

func (c *Real) Now() time.Time { return time.Now() }

func (c *Real) SetInterval(fn func(), every time.Duration) Handle {
	c.mu.Lock()
	c.nextID++
	h := c.nextID
	stop := make(chan struct{})
	c.stops[h] = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !c.post(fn) {
					return
				}
			}
		}
	}()
	return h
}

func (c *Real) ClearInterval(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.stops[h]; ok {
		close(stop)
		delete(c.stops, h)
	}
}

// Stop clears every armed interval.
func (c *Real) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, stop := range c.stops {
		close(stop)
		delete(c.stops, h)
	}
}
