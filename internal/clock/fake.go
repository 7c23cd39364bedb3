package clock

import (
	"sort"
	"time"
)

type fakeInterval struct {
	id    Handle
	fn    func()
	every time.Duration
	next  time.Time
}

// Fake is a manually driven Clock. Interval callbacks run synchronously
// inside Advance, in deadline order. Not safe for concurrent use.
type Fake struct {
	now       time.Time
	nextID    Handle
	intervals map[Handle]*fakeInterval
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start, intervals: make(map[Handle]*fakeInterval)}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) SetInterval(fn func(), every time.Duration) Handle {
	f.nextID++
	f.intervals[f.nextID] = &fakeInterval{id: f.nextID, fn: fn, every: every, next: f.now.Add(every)}
	return f.nextID
}

func (f *Fake) ClearInterval(h Handle) {
	delete(f.intervals, h)
}

// Armed returns the number of live intervals.
func (f *Fake) Armed() int { return len(f.intervals) }

// Advance moves time forward by d, firing every interval deadline that
// falls inside the window.
func (f *Fake) Advance(d time.Duration) {
	target := f.now.Add(d)
	for {
		due := f.due(target)
		if due == nil {
			break
		}
		f.now = due.next
		due.next = due.next.Add(due.every)
		due.fn()
	}
	f.now = target
}

// Jump moves time forward without firing anything, as if the process had
// been suspended. Armed intervals resume one period after the new now.
func (f *Fake) Jump(d time.Duration) {
	f.now = f.now.Add(d)
	for _, iv := range f.intervals {
		iv.next = f.now.Add(iv.every)
	}
}

func (f *Fake) due(target time.Time) *fakeInterval {
	var candidates []*fakeInterval
	for _, iv := range f.intervals {
		if !iv.next.After(target) {
			candidates = append(candidates, iv)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].next.Equal(candidates[j].next) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].next.Before(candidates[j].next)
	})
	return candidates[0]
}
