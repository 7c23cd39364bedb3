package storage

import (
	"context"
	"time"

	"studytimer/internal/event"
)

// Persisted key namespace. Values are plain strings; the two state records
// are JSON documents.
const (
	KeyTimerEndTime      = "timerEndTime"   // epoch-ms deadline, present only while running
	KeyTimerRunning      = "timerRunning"   // "true" / "false"
	KeyTimerCallback     = "timerCallback"  // "pomodoro" or absent
	KeyTimerRemaining    = "timerRemaining" // seconds, present only while stopped
	KeyTimerStopped      = "timerStopped"   // "true" or absent
	KeyPomodoroState     = "pomodoroState"
	KeyPomodoroSettings  = "pomodoroSettings"
	KeyStudyScheduleData = "studyScheduleData"
)

// KV is the keyed string store both timers persist into. Get reports
// absence with ok=false rather than an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// EventLog keeps the completion history.
type EventLog interface {
	SaveEvent(ctx context.Context, e event.Event) (int64, error)
	GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error)
}

type Storage interface {
	Init(ctx context.Context) error
	KV
	EventLog
	Close() error
}

// MatchesType reports whether t is in types. An empty filter matches everything.
func MatchesType(t event.EventType, types []event.EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}
