package schedule

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

type Phase string

const (
	PhaseStudy Phase = "study"
	PhaseBreak Phase = "break"
)

type Session struct {
	ID             string    `json:"id"`
	Day            int       `json:"day"`
	Subject        string    `json:"subject"`
	StudyDuration  int       `json:"studyDuration"` // minutes
	BreakDuration  int       `json:"breakDuration"` // minutes
	Status         Status    `json:"status"`
	CurrentTime    int       `json:"currentTime"`    // seconds elapsed in the current phase
	TotalStudyTime int       `json:"totalStudyTime"` // seconds
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PhaseSeconds is the configured length of phase p.
func (s Session) PhaseSeconds(p Phase) int {
	if p == PhaseBreak {
		return s.BreakDuration * 60
	}
	return s.StudyDuration * 60
}

// Mode is either Running or Paused. A nil Mode means stopped.
type Mode interface {
	mode() string
}

// Running counts down towards an absolute deadline.
type Running struct {
	Target time.Time
}

// Paused holds the time that was left when the countdown was paused.
type Paused struct {
	Remaining time.Duration
}

func (Running) mode() string { return "running" }
func (Paused) mode() string  { return "paused" }

// GlobalTimer is the countdown of the active session.
type GlobalTimer struct {
	Mode      Mode
	Total     int // seconds in the current phase
	Elapsed   int // seconds
	StartTime time.Time
}

// Remaining returns the time left at now, never negative.
func (g GlobalTimer) Remaining(now time.Time) time.Duration {
	switch m := g.Mode.(type) {
	case Running:
		if d := m.Target.Sub(now); d > 0 {
			return d
		}
	case Paused:
		if m.Remaining > 0 {
			return m.Remaining
		}
	}
	return 0
}

// State names the mode for display: running, paused or stopped.
func (g GlobalTimer) State() string {
	if g.Mode == nil {
		return "stopped"
	}
	return g.Mode.mode()
}

// globalTimerJSON is the stored layout. targetTime is non-null only while
// running, remainingTimeMS is meaningful only while paused.
type globalTimerJSON struct {
	IsRunning       bool   `json:"isRunning"`
	IsPaused        bool   `json:"isPaused"`
	CurrentTime     int    `json:"currentTime"`
	TotalTime       int    `json:"totalTime"`
	TargetTime      *int64 `json:"targetTime"`
	RemainingTimeMS int64  `json:"remainingTimeMS"`
	StartTime       *int64 `json:"startTime"`
}

func (g GlobalTimer) MarshalJSON() ([]byte, error) {
	out := globalTimerJSON{CurrentTime: g.Elapsed, TotalTime: g.Total}
	switch m := g.Mode.(type) {
	case Running:
		target := m.Target.UnixMilli()
		out.IsRunning = true
		out.TargetTime = &target
	case Paused:
		out.IsRunning = true
		out.IsPaused = true
		out.RemainingTimeMS = m.Remaining.Milliseconds()
	}
	if !g.StartTime.IsZero() {
		start := g.StartTime.UnixMilli()
		out.StartTime = &start
	}
	return json.Marshal(out)
}

// UnmarshalJSON maps the stored flags onto a Mode. A record claiming to run
// without a target decodes as stopped.
func (g *GlobalTimer) UnmarshalJSON(data []byte) error {
	var in globalTimerJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*g = GlobalTimer{Total: in.TotalTime, Elapsed: in.CurrentTime}
	switch {
	case in.IsRunning && in.IsPaused:
		g.Mode = Paused{Remaining: time.Duration(in.RemainingTimeMS) * time.Millisecond}
	case in.IsRunning && in.TargetTime != nil:
		g.Mode = Running{Target: time.UnixMilli(*in.TargetTime)}
	}
	if in.StartTime != nil {
		g.StartTime = time.UnixMilli(*in.StartTime)
	}
	return nil
}

type TimerState struct {
	ActiveSessionID *string     `json:"activeSessionId"`
	Phase           Phase       `json:"phase"`
	GlobalTimer     GlobalTimer `json:"globalTimer"`
}

func idleTimerState() TimerState {
	return TimerState{Phase: PhaseStudy}
}

func (ts TimerState) active() (string, bool) {
	if ts.ActiveSessionID == nil || *ts.ActiveSessionID == "" {
		return "", false
	}
	return *ts.ActiveSessionID, true
}

// Data is the document stored under the study schedule key.
type Data struct {
	Sessions   []Session  `json:"sessions"`
	TimerState TimerState `json:"timerState"`
}

type PromptKind string

const (
	PromptStartBreak PromptKind = "start_break"
	PromptStartNext  PromptKind = "start_next"
	PromptAllDone    PromptKind = "all_done"
)

// Prompt is a phase transition waiting for the user's confirmation.
type Prompt struct {
	Kind      PromptKind `json:"kind"`
	SessionID string     `json:"sessionId,omitempty"`
	Message   string     `json:"message"`
}

// SessionUpdate carries the fields to change; nil fields are left alone.
type SessionUpdate struct {
	Day           *int    `json:"day,omitempty"`
	Subject       *string `json:"subject,omitempty"`
	StudyDuration *int    `json:"studyDuration,omitempty"`
	BreakDuration *int    `json:"breakDuration,omitempty"`
}
