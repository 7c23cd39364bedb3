package event

import "time"

type EventType string

const (
	EventTypeTimerComplete   EventType = "timer_complete"
	EventTypePomodoro        EventType = "pomodoro_phase"
	EventTypeStudyPhase      EventType = "study_phase"
	EventTypeSessionComplete EventType = "session_complete"
	EventTypeAppStart        EventType = "app_start"
	EventTypeAppStop         EventType = "app_stop"
)

// Event structure to store in DB
type Event struct {
	ID        int64     `db:"id" json:"id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Type      EventType `db:"type" json:"type"`
	Tag       string    `db:"tag" json:"tag,omitempty"`     // Pomodoro phase, study phase or session subject
	Value     float64   `db:"value" json:"value,omitempty"` // Duration in seconds
	Notes     string    `db:"notes" json:"notes,omitempty"`
}

// Recorder accepts history events. Implementations must not block the caller.
type Recorder interface {
	Record(e Event)
}

// RecorderFunc adapts a plain function to Recorder.
type RecorderFunc func(e Event)

func (f RecorderFunc) Record(e Event) { f(e) }

// Discard drops every event.
var Discard Recorder = RecorderFunc(func(Event) {})

type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
