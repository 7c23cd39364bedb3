// Package countdown implements the primary timer: a countdown anchored to an
// absolute deadline that is persisted on every state change, so the same
// deadline is resumed after a restart instead of a re-derived one.
package countdown

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"strconv"
	"time"

	"studytimer/internal/clock"
	"studytimer/internal/display"
	apperrors "studytimer/internal/errors"
	"studytimer/internal/event"
	"studytimer/internal/notify"
	"studytimer/internal/sound"
	"studytimer/internal/storage"
)

// CallbackPomodoro is the persisted marker for a chained Pomodoro completion.
const CallbackPomodoro = "pomodoro"

const (
	DefaultTickInterval = 200 * time.Millisecond
	storeTimeout        = 2 * time.Second
)

var ErrEmptyInput = apperrors.BadRequest("empty_input", "set hours or minutes before starting the timer")

// Input supplies the duration typed by the user when Start is called
// without one.
type Input interface {
	Seconds() int
}

type Options struct {
	Clock        clock.Clock
	Store        storage.KV
	Notifier     notify.Notifier
	Sound        sound.Player
	Display      display.Display
	Input        Input
	Recorder     event.Recorder
	TickInterval time.Duration
}

type Engine struct {
	clock    clock.Clock
	store    storage.KV
	notifier notify.Notifier
	sound    sound.Player
	display  display.Display
	input    Input
	recorder event.Recorder
	interval time.Duration

	running    bool
	handle     clock.Handle
	endTime    time.Time
	remaining  int
	total      int
	onComplete func()
	chained    bool

	controlsEnabled bool

	resolveChain func() func()
	onExpired    func()
}

func New(opts Options) *Engine {
	e := &Engine{
		clock:           opts.Clock,
		store:           opts.Store,
		notifier:        opts.Notifier,
		sound:           opts.Sound,
		display:         opts.Display,
		input:           opts.Input,
		recorder:        opts.Recorder,
		interval:        opts.TickInterval,
		controlsEnabled: true,
	}
	if e.sound == nil {
		e.sound = sound.Nop{}
	}
	if e.display == nil {
		e.display = display.Discard
	}
	if e.recorder == nil {
		e.recorder = event.Discard
	}
	if e.interval <= 0 {
		e.interval = DefaultTickInterval
	}
	return e
}

// BindChain registers how a persisted Pomodoro chain is re-attached on
// recovery. resolve returns the completion callback to use; expired runs
// when the chained deadline already passed while the process was inactive.
func (e *Engine) BindChain(resolve func() func(), expired func()) {
	e.resolveChain = resolve
	e.onExpired = expired
}

// Start arms the countdown. It is a no-op returning false while running.
// seconds <= 0 resumes the stopped remaining value, or falls back to Input.
func (e *Engine) Start(seconds int, onComplete func(), chained bool) (bool, error) {
	if e.running {
		return false, nil
	}

	duration := seconds
	if duration <= 0 {
		if e.remaining > 0 {
			duration = e.remaining
			if onComplete == nil {
				onComplete, chained = e.onComplete, e.chained
			}
		} else if e.input != nil {
			duration = e.input.Seconds()
		}
	}
	if duration <= 0 {
		return false, ErrEmptyInput
	}

	// Millisecond precision, same as the persisted anchor
	e.endTime = time.UnixMilli(e.clock.Now().Add(time.Duration(duration) * time.Second).UnixMilli())
	e.total = duration
	e.onComplete = onComplete
	e.chained = chained

	e.set(storage.KeyTimerEndTime, strconv.FormatInt(e.endTime.UnixMilli(), 10))
	e.set(storage.KeyTimerRunning, "true")
	if chained {
		e.set(storage.KeyTimerCallback, CallbackPomodoro)
	} else {
		e.remove(storage.KeyTimerCallback)
	}
	e.remove(storage.KeyTimerRemaining, storage.KeyTimerStopped)

	e.arm()
	e.tick()
	return true, nil
}

func (e *Engine) tick() {
	if !e.running {
		return
	}
	remaining := secondsUntil(e.endTime, e.clock.Now())
	if remaining > 0 {
		e.remaining = remaining
		e.display.Show(display.Format(remaining))
		return
	}

	e.remaining = 0
	e.display.Show(display.Format(0))
	e.halt()
	e.clearAnchor()

	cb := e.onComplete
	e.onComplete = nil
	e.chained = false
	e.recordCompletion()
	if cb != nil {
		cb()
		return
	}
	e.Alert("Timer finished", "Time's up!")
}

// Stop halts the countdown and persists the remaining seconds as a resumable
// snapshot. The anchor record is removed.
func (e *Engine) Stop() {
	if e.running {
		e.remaining = max(secondsUntil(e.endTime, e.clock.Now()), 0)
	}
	e.halt()

	if e.remaining > 0 {
		e.set(storage.KeyTimerRemaining, strconv.Itoa(e.remaining))
		e.set(storage.KeyTimerStopped, "true")
	} else {
		e.remove(storage.KeyTimerRemaining, storage.KeyTimerStopped)
	}
	e.set(storage.KeyTimerRunning, "false")
	e.remove(storage.KeyTimerEndTime)
	if !e.chained {
		e.remove(storage.KeyTimerCallback)
	}
}

// Reset stops the countdown and clears every persisted record.
func (e *Engine) Reset() {
	e.halt()
	e.remaining = 0
	e.total = 0
	e.onComplete = nil
	e.chained = false
	e.remove(
		storage.KeyTimerEndTime,
		storage.KeyTimerRunning,
		storage.KeyTimerCallback,
		storage.KeyTimerRemaining,
		storage.KeyTimerStopped,
	)
	e.display.Show(display.Format(0))
}

// RecoverOnActivate reconciles the persisted records with the wall clock.
// It runs on start and whenever the user comes back, and is safe to repeat.
func (e *Engine) RecoverOnActivate() {
	endRaw, hasEnd := e.get(storage.KeyTimerEndTime)
	runningFlag, _ := e.get(storage.KeyTimerRunning)

	if hasEnd && runningFlag == "true" {
		endMs, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil {
			log.Printf("Warning: discarding unreadable timer anchor %q: %v", endRaw, err)
			e.clearAnchor()
			return
		}
		end := time.UnixMilli(endMs)
		if e.running && e.endTime.Equal(end) {
			e.tick()
			return
		}
		e.halt()

		callback, _ := e.get(storage.KeyTimerCallback)
		chained := callback == CallbackPomodoro

		if !e.clock.Now().Before(end) {
			log.Printf("Timer deadline %s passed while inactive, completing.", end.Format(time.RFC3339))
			e.remaining = 0
			e.onComplete = nil
			e.chained = false
			e.display.Show(display.Format(0))
			e.clearAnchor()
			e.recordCompletion()
			e.Alert("Timer finished", "Time's up!")
			if chained && e.onExpired != nil {
				e.onExpired()
			}
			return
		}

		e.endTime = end
		e.total = 0
		e.chained = chained
		e.onComplete = e.chainCallback(chained)
		log.Printf("Resuming timer anchored at %s", end.Format(time.RFC3339))
		e.arm()
		e.tick()
		return
	}

	if hasEnd {
		log.Printf("Warning: timer anchor without running flag, clearing.")
		e.remove(storage.KeyTimerEndTime)
	}

	if e.running {
		// The store lost the anchor; the in-memory countdown stays authoritative
		e.tick()
		return
	}

	if stopped, _ := e.get(storage.KeyTimerStopped); stopped == "true" {
		raw, _ := e.get(storage.KeyTimerRemaining)
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			log.Printf("Warning: discarding unreadable stopped snapshot %q", raw)
			e.remove(storage.KeyTimerRemaining, storage.KeyTimerStopped)
			return
		}
		callback, _ := e.get(storage.KeyTimerCallback)
		e.remaining = secs
		e.chained = callback == CallbackPomodoro
		e.onComplete = e.chainCallback(e.chained)
		e.display.Show(display.Format(secs))
	}
}

// Alert plays the completion sound and raises a notification, unless a study
// session is active: the study scheduler then owns user alerts.
func (e *Engine) Alert(title, body string) {
	if e.studyScheduleActive() {
		log.Printf("Suppressing timer notification %q, study session active", title)
		return
	}
	e.sound.Play()
	notify.Send(e.notifier, title, body)
}

func (e *Engine) SetControlsEnabled(enabled bool) { e.controlsEnabled = enabled }
func (e *Engine) ControlsEnabled() bool           { return e.controlsEnabled }
func (e *Engine) Running() bool                   { return e.running }
func (e *Engine) Remaining() int                  { return e.remaining }

type Snapshot struct {
	Running         bool       `json:"running"`
	Remaining       int        `json:"remaining"`
	Display         string     `json:"display"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	Chained         bool       `json:"chained"`
	ControlsEnabled bool       `json:"controlsEnabled"`
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Running:         e.running,
		Remaining:       e.remaining,
		Display:         display.Format(e.remaining),
		Chained:         e.chained,
		ControlsEnabled: e.controlsEnabled,
	}
	if e.running {
		end := e.endTime
		s.EndTime = &end
	}
	return s
}

func (e *Engine) chainCallback(chained bool) func() {
	if chained && e.resolveChain != nil {
		return e.resolveChain()
	}
	return nil
}

func (e *Engine) arm() {
	e.running = true
	e.handle = e.clock.SetInterval(e.tick, e.interval)
}

func (e *Engine) halt() {
	if e.handle != 0 {
		e.clock.ClearInterval(e.handle)
		e.handle = 0
	}
	e.running = false
}

func (e *Engine) clearAnchor() {
	e.set(storage.KeyTimerRunning, "false")
	e.remove(storage.KeyTimerEndTime, storage.KeyTimerCallback)
}

func (e *Engine) recordCompletion() {
	e.recorder.Record(event.Event{
		Timestamp: e.clock.Now(),
		Type:      event.EventTypeTimerComplete,
		Value:     float64(e.total),
	})
}

func (e *Engine) studyScheduleActive() bool {
	raw, ok := e.get(storage.KeyStudyScheduleData)
	if !ok {
		return false
	}
	var data struct {
		TimerState struct {
			ActiveSessionID *string `json:"activeSessionId"`
		} `json:"timerState"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return false
	}
	return data.TimerState.ActiveSessionID != nil && *data.TimerState.ActiveSessionID != ""
}

func (e *Engine) get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	v, ok, err := e.store.Get(ctx, key)
	if err != nil {
		log.Printf("Warning: failed to read %s: %v", key, err)
		return "", false
	}
	return v, ok
}

func (e *Engine) set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := e.store.Set(ctx, key, value); err != nil {
		log.Printf("Warning: failed to persist %s: %v", key, err)
	}
}

func (e *Engine) remove(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	for _, key := range keys {
		if err := e.store.Remove(ctx, key); err != nil {
			log.Printf("Warning: failed to remove %s: %v", key, err)
		}
	}
}

func secondsUntil(end, now time.Time) int {
	return int(math.Round(float64(end.Sub(now)) / float64(time.Second)))
}
