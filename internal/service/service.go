// Package service is the command surface shared by the socket and HTTP
// front ends. Every call is marshalled onto the event loop that owns the
// timers.
package service

import (
	"context"
	"time"

	"studytimer/internal/countdown"
	apperrors "studytimer/internal/errors"
	"studytimer/internal/event"
	"studytimer/internal/eventloop"
	"studytimer/internal/pomodoro"
	"studytimer/internal/schedule"
	"studytimer/internal/storage"
)

type Service struct {
	loop     *eventloop.Loop
	engine   *countdown.Engine
	cycle    *pomodoro.Cycle
	schedule *schedule.Scheduler
	input    *countdown.ManualInput
	history  storage.EventLog
}

func New(loop *eventloop.Loop, engine *countdown.Engine, cycle *pomodoro.Cycle, sched *schedule.Scheduler, input *countdown.ManualInput, history storage.EventLog) *Service {
	return &Service{
		loop:     loop,
		engine:   engine,
		cycle:    cycle,
		schedule: sched,
		input:    input,
		history:  history,
	}
}

type PomodoroStatus struct {
	Enabled  bool              `json:"enabled"`
	State    *pomodoro.State   `json:"state,omitempty"`
	Settings pomodoro.Settings `json:"settings"`
}

type Status struct {
	Timer    countdown.Snapshot `json:"timer"`
	Input    InputValue         `json:"input"`
	Pomodoro PomodoroStatus     `json:"pomodoro"`
	Study    schedule.Snapshot  `json:"study"`
}

type InputValue struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (s *Service) do(ctx context.Context, fn func() error) error {
	var inner error
	if err := s.loop.Call(ctx, func() { inner = fn() }); err != nil {
		return err
	}
	return inner
}

func (s *Service) unlocked() error {
	if !s.engine.ControlsEnabled() {
		return apperrors.Locked("a study session is active, stop it to use the timer")
	}
	return nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() error {
		st.Timer = s.engine.Snapshot()
		st.Input.Hours, st.Input.Minutes = s.input.Value()
		st.Pomodoro.Settings = s.cycle.Settings()
		if ps, ok := s.cycle.State(); ok && st.Timer.Chained {
			st.Pomodoro.Enabled = true
			st.Pomodoro.State = &ps
		}
		st.Study = s.schedule.Snapshot()
		return nil
	})
	return st, err
}

// Activate re-runs recovery for both timers, as when the user comes back.
func (s *Service) Activate(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.engine.RecoverOnActivate()
		s.schedule.Recover()
		return nil
	})
}

func (s *Service) SetInput(ctx context.Context, hours, minutes int) error {
	return s.do(ctx, func() error {
		if err := s.unlocked(); err != nil {
			return err
		}
		return s.input.Set(hours, minutes)
	})
}

// StartTimer starts the primary countdown. seconds <= 0 resumes a stopped
// countdown or uses the entered hours and minutes.
func (s *Service) StartTimer(ctx context.Context, seconds int) error {
	return s.do(ctx, func() error {
		if err := s.unlocked(); err != nil {
			return err
		}
		// An explicit duration replaces a stopped Pomodoro phase, so the
		// chain it belonged to is over.
		replacesChain := seconds > 0 && !s.engine.Running() && s.engine.Snapshot().Chained
		started, err := s.engine.Start(seconds, nil, false)
		if err != nil {
			return err
		}
		if !started {
			return apperrors.Conflict("timer_running", "the timer is already running", nil)
		}
		if replacesChain {
			s.cycle.Discard()
		}
		return nil
	})
}

func (s *Service) StopTimer(ctx context.Context) error {
	return s.do(ctx, func() error {
		if err := s.unlocked(); err != nil {
			return err
		}
		s.engine.Stop()
		return nil
	})
}

func (s *Service) ResetTimer(ctx context.Context) error {
	return s.do(ctx, func() error {
		if err := s.unlocked(); err != nil {
			return err
		}
		s.engine.Reset()
		s.cycle.Discard()
		return nil
	})
}

// EnablePomodoro starts a cycle with settings, or with the last configured
// settings when settings is nil.
func (s *Service) EnablePomodoro(ctx context.Context, settings *pomodoro.Settings) (pomodoro.Settings, error) {
	var used pomodoro.Settings
	err := s.do(ctx, func() error {
		if err := s.unlocked(); err != nil {
			return err
		}
		used = s.cycle.Settings()
		if settings != nil {
			used = *settings
		}
		return s.cycle.Enable(used)
	})
	return used, err
}

func (s *Service) DisablePomodoro(ctx context.Context) error {
	return s.do(ctx, func() error {
		if err := s.unlocked(); err != nil {
			return err
		}
		s.cycle.Disable()
		return nil
	})
}

func (s *Service) AddSession(ctx context.Context, day int, subject string, studyMinutes, breakMinutes int) (schedule.Session, error) {
	var sess schedule.Session
	err := s.do(ctx, func() error {
		var err error
		sess, err = s.schedule.AddSession(day, subject, studyMinutes, breakMinutes)
		return err
	})
	return sess, err
}

// Sessions lists the schedule, filtered to day when day >= 0.
func (s *Service) Sessions(ctx context.Context, day int) ([]schedule.Session, error) {
	var out []schedule.Session
	err := s.do(ctx, func() error {
		out = s.schedule.Sessions(day)
		return nil
	})
	return out, err
}

func (s *Service) BeginEdit(ctx context.Context, id string) (schedule.Session, error) {
	var sess schedule.Session
	err := s.do(ctx, func() error {
		var err error
		sess, err = s.schedule.BeginEdit(id)
		return err
	})
	return sess, err
}

func (s *Service) CancelEdit(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.schedule.CancelEdit()
		return nil
	})
}

func (s *Service) UpdateSession(ctx context.Context, id string, u schedule.SessionUpdate) (schedule.Session, error) {
	var sess schedule.Session
	err := s.do(ctx, func() error {
		var err error
		sess, err = s.schedule.UpdateSession(id, u)
		return err
	})
	return sess, err
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		return s.schedule.DeleteSession(id)
	})
}

func (s *Service) ResetSession(ctx context.Context, id string) (schedule.Session, error) {
	var sess schedule.Session
	err := s.do(ctx, func() error {
		var err error
		sess, err = s.schedule.ResetSession(id)
		return err
	})
	return sess, err
}

func (s *Service) StartStudy(ctx context.Context, id string, phase schedule.Phase) error {
	return s.do(ctx, func() error {
		switch phase {
		case "", schedule.PhaseStudy, schedule.PhaseBreak:
		default:
			return apperrors.BadRequest("invalid_phase", "phase must be study or break")
		}
		if !s.schedule.StartTimer(id, phase) {
			return apperrors.Conflict("session_not_startable", "session is missing or already completed", map[string]string{"id": id})
		}
		return nil
	})
}

func (s *Service) PauseStudy(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.schedule.PauseTimer() {
			return apperrors.Conflict("not_running", "no study timer is running", nil)
		}
		return nil
	})
}

func (s *Service) ResumeStudy(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.schedule.ResumeTimer() {
			return apperrors.Conflict("not_paused", "no study timer is paused", nil)
		}
		return nil
	})
}

func (s *Service) StopStudy(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.schedule.StopTimer(true)
		return nil
	})
}

func (s *Service) ResetStudy(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.schedule.ResetTimer() {
			return apperrors.Conflict("no_active_session", "no study session is active", nil)
		}
		return nil
	})
}

func (s *Service) ConfirmPrompt(ctx context.Context) error {
	return s.do(ctx, func() error {
		if _, ok := s.schedule.Pending(); !ok {
			return apperrors.NotFound("no_prompt", "nothing is waiting for confirmation")
		}
		if !s.schedule.Confirm() {
			return apperrors.Conflict("session_not_startable", "the next session can no longer be started", nil)
		}
		return nil
	})
}

func (s *Service) DismissPrompt(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.schedule.Dismiss() {
			return apperrors.NotFound("no_prompt", "nothing is waiting for confirmation")
		}
		return nil
	})
}

// History returns recorded completions in [start, end]. The event log is
// safe for concurrent use, so this does not go through the loop.
func (s *Service) History(ctx context.Context, start, end time.Time, types ...event.EventType) ([]event.Event, error) {
	if s.history == nil {
		return nil, nil
	}
	events, err := s.history.GetEvents(ctx, start, end, types...)
	if err != nil {
		return nil, apperrors.Internal("failed to read history: " + err.Error())
	}
	return events, nil
}
