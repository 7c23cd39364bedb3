// Package pomodoro chains the primary countdown through work and break
// phases. The transition itself is the pure function Next; Cycle applies it
// each time the countdown completes and re-arms the countdown.
package pomodoro

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"studytimer/internal/clock"
	apperrors "studytimer/internal/errors"
	"studytimer/internal/event"
	"studytimer/internal/storage"
)

type Phase string

const (
	PhaseWork       Phase = "work"
	PhaseShortBreak Phase = "shortBreak"
	PhaseLongBreak  Phase = "longBreak"
)

type Settings struct {
	WorkMinutes       int `json:"workMinutes"`
	ShortBreakMinutes int `json:"shortBreakMinutes"`
	LongBreakMinutes  int `json:"longBreakMinutes"`
	MaxCycles         int `json:"maxCycles"`
}

// DefaultSettings are used whenever no valid settings are stored.
func DefaultSettings() Settings {
	return Settings{WorkMinutes: 25, ShortBreakMinutes: 5, LongBreakMinutes: 15, MaxCycles: 4}
}

func (s Settings) Validate() error {
	if s.WorkMinutes <= 0 || s.ShortBreakMinutes <= 0 || s.LongBreakMinutes <= 0 || s.MaxCycles <= 0 {
		return apperrors.BadRequest("invalid_settings", "pomodoro durations and cycle count must be positive")
	}
	return nil
}

// Seconds returns the length of phase p.
func (s Settings) Seconds(p Phase) int {
	switch p {
	case PhaseShortBreak:
		return s.ShortBreakMinutes * 60
	case PhaseLongBreak:
		return s.LongBreakMinutes * 60
	default:
		return s.WorkMinutes * 60
	}
}

type State struct {
	Session  Phase    `json:"session"`
	Cycle    int      `json:"cycle"`
	Settings Settings `json:"settings"`
}

func Initial(s Settings) State {
	return State{Session: PhaseWork, Cycle: 0, Settings: s}
}

// Next returns the state following the completion of s.Session.
func Next(s State) State {
	next := s
	switch s.Session {
	case PhaseWork:
		next.Cycle = s.Cycle + 1
		if next.Cycle >= s.Settings.MaxCycles {
			next.Session = PhaseLongBreak
			next.Cycle = 0
		} else {
			next.Session = PhaseShortBreak
		}
	case PhaseShortBreak, PhaseLongBreak:
		next.Session = PhaseWork
	default:
		next.Session = PhaseWork
		next.Cycle = 0
	}
	return next
}

// Timer is the part of the countdown engine the cycle drives.
type Timer interface {
	Start(seconds int, onComplete func(), chained bool) (bool, error)
	Reset()
	Alert(title, body string)
}

type Cycle struct {
	timer    Timer
	store    storage.KV
	clock    clock.Clock
	recorder event.Recorder
	defaults Settings

	state *State
}

// New builds a cycle. defaults are offered by Settings until the user
// configures their own; invalid defaults fall back to DefaultSettings.
func New(timer Timer, store storage.KV, clk clock.Clock, recorder event.Recorder, defaults Settings) *Cycle {
	if defaults.Validate() != nil {
		defaults = DefaultSettings()
	}
	if recorder == nil {
		recorder = event.Discard
	}
	return &Cycle{timer: timer, store: store, clock: clk, recorder: recorder, defaults: defaults}
}

// Enable stores s as the configured settings and starts a fresh work phase.
func (c *Cycle) Enable(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if raw, err := json.Marshal(s); err == nil {
		c.set(storage.KeyPomodoroSettings, string(raw))
	}

	st := Initial(s)
	c.save(st)
	c.timer.Reset()
	if _, err := c.timer.Start(s.Seconds(PhaseWork), c.Advance, true); err != nil {
		return fmt.Errorf("start work phase: %w", err)
	}
	log.Printf("Pomodoro enabled: %+v", s)
	return nil
}

// Advance is the countdown's completion callback for a chained phase.
func (c *Cycle) Advance() {
	cur := c.current()
	next := Next(cur)
	c.save(next)

	c.recorder.Record(event.Event{
		Timestamp: c.clock.Now(),
		Type:      event.EventTypePomodoro,
		Tag:       string(cur.Session),
		Value:     float64(cur.Settings.Seconds(cur.Session)),
		Notes:     fmt.Sprintf("next=%s cycle=%d", next.Session, next.Cycle),
	})

	title, body := announce(next)
	c.timer.Alert(title, body)

	if _, err := c.timer.Start(next.Settings.Seconds(next.Session), c.Advance, true); err != nil {
		log.Printf("Error: failed to start pomodoro %s phase: %v", next.Session, err)
	}
}

// Disable stops the countdown and drops runtime progress. The configured
// settings stay stored.
func (c *Cycle) Disable() {
	c.timer.Reset()
	c.Discard()
	log.Println("Pomodoro disabled.")
}

// Discard forgets the current phase and cycle count.
func (c *Cycle) Discard() {
	c.state = nil
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.store.Remove(ctx, storage.KeyPomodoroState); err != nil {
		log.Printf("Warning: failed to remove %s: %v", storage.KeyPomodoroState, err)
	}
}

// Resume reloads the persisted state for a recovered chained countdown and
// returns the completion callback to attach.
func (c *Cycle) Resume() func() {
	st := c.current()
	c.state = &st
	return c.Advance
}

// Settings returns the last configured settings, or the defaults.
func (c *Cycle) Settings() Settings {
	if raw, ok := c.get(storage.KeyPomodoroSettings); ok {
		var s Settings
		if err := json.Unmarshal([]byte(raw), &s); err == nil && s.Validate() == nil {
			return s
		}
	}
	return c.defaults
}

// State returns the runtime state, if a cycle is in progress.
func (c *Cycle) State() (State, bool) {
	if c.state != nil {
		return *c.state, true
	}
	if st, ok := c.load(); ok {
		return st, true
	}
	return State{}, false
}

// current returns the in-memory state, the stored one, or a fresh work
// phase with DefaultSettings when nothing usable is stored.
func (c *Cycle) current() State {
	if c.state != nil {
		return *c.state
	}
	if st, ok := c.load(); ok {
		return st
	}
	log.Println("Pomodoro state missing, falling back to default settings.")
	return Initial(DefaultSettings())
}

func (c *Cycle) load() (State, bool) {
	raw, ok := c.get(storage.KeyPomodoroState)
	if !ok {
		return State{}, false
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		log.Printf("Warning: unreadable pomodoro state: %v", err)
		return State{}, false
	}
	if st.Settings.Validate() != nil {
		st.Settings = DefaultSettings()
	}
	if st.Cycle < 0 || st.Cycle >= st.Settings.MaxCycles {
		st.Cycle = 0
	}
	switch st.Session {
	case PhaseWork, PhaseShortBreak, PhaseLongBreak:
	default:
		st.Session = PhaseWork
	}
	return st, true
}

func (c *Cycle) save(st State) {
	c.state = &st
	raw, err := json.Marshal(st)
	if err != nil {
		log.Printf("Warning: failed to encode pomodoro state: %v", err)
		return
	}
	c.set(storage.KeyPomodoroState, string(raw))
}

func (c *Cycle) get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("Warning: failed to read %s: %v", key, err)
		return "", false
	}
	return v, ok
}

func (c *Cycle) set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.store.Set(ctx, key, value); err != nil {
		log.Printf("Warning: failed to persist %s: %v", key, err)
	}
}

func announce(next State) (title, body string) {
	minutes := next.Settings.Seconds(next.Session) / 60
	switch next.Session {
	case PhaseShortBreak:
		return "Short break", fmt.Sprintf("Take %d minutes.", minutes)
	case PhaseLongBreak:
		return "Long break", fmt.Sprintf("Cycle complete, take %d minutes.", minutes)
	default:
		return "Back to work", fmt.Sprintf("Focus for %d minutes.", minutes)
	}
}
