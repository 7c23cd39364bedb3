package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studytimer/internal/clock"
	"studytimer/internal/countdown"
	apperrors "studytimer/internal/errors"
	"studytimer/internal/event"
	"studytimer/internal/eventloop"
	"studytimer/internal/notify"
	"studytimer/internal/pomodoro"
	"studytimer/internal/schedule"
	"studytimer/internal/storage"
	"studytimer/internal/storage/memory"
)

type fixture struct {
	svc   *Service
	loop  *eventloop.Loop
	clk   *clock.Fake
	store *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	store := memory.New()
	notes := &notify.Recorder{}
	input := &countdown.ManualInput{}
	recorder := event.RecorderFunc(func(e event.Event) {
		_, _ = store.SaveEvent(context.Background(), e)
	})

	engine := countdown.New(countdown.Options{Clock: clk, Store: store, Notifier: notes, Input: input, Recorder: recorder})
	cycle := pomodoro.New(engine, store, clk, recorder, pomodoro.DefaultSettings())
	engine.BindChain(cycle.Resume, cycle.Discard)
	sched := schedule.New(schedule.Options{Clock: clk, Store: store, Notifier: notes, Recorder: recorder, Exclusion: engine})

	loop := eventloop.New(16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{
		svc:   New(loop, engine, cycle, sched, input, store),
		loop:  loop,
		clk:   clk,
		store: store,
	}
}

// advance moves the fake clock on the loop goroutine, where the timers live.
func (f *fixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, f.loop.Call(context.Background(), func() { f.clk.Advance(d) }))
}

func TestTimerFromInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.StartTimer(ctx, 0)
	assert.True(t, apperrors.IsCode(err, "empty_input"))

	require.NoError(t, f.svc.SetInput(ctx, 0, 30))
	require.NoError(t, f.svc.StartTimer(ctx, 0))
	assert.True(t, apperrors.IsCode(f.svc.StartTimer(ctx, 60), "timer_running"))

	f.advance(t, 10*time.Minute)
	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Timer.Running)
	assert.Equal(t, 20*60, st.Timer.Remaining)
	assert.Equal(t, "00:20:00", st.Timer.Display)
	assert.Equal(t, InputValue{Hours: 0, Minutes: 30}, st.Input)

	require.NoError(t, f.svc.StopTimer(ctx))
	require.NoError(t, f.svc.Activate(ctx))
	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Timer.Running)
	assert.Equal(t, 20*60, st.Timer.Remaining)
}

func TestStudySessionLocksTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.AddSession(ctx, 2, "Chemistry", 25, 5)
	require.NoError(t, err)
	require.NoError(t, f.svc.StartStudy(ctx, sess.ID, schedule.PhaseStudy))

	err = f.svc.StartTimer(ctx, 60)
	assert.True(t, apperrors.IsCode(err, "timer_locked"))
	_, err = f.svc.EnablePomodoro(ctx, nil)
	assert.True(t, apperrors.IsCode(err, "timer_locked"))

	require.NoError(t, f.svc.PauseStudy(ctx))
	assert.True(t, apperrors.IsCode(f.svc.PauseStudy(ctx), "not_running"))
	require.NoError(t, f.svc.ResumeStudy(ctx))

	require.NoError(t, f.svc.DeleteSession(ctx, sess.ID))
	require.NoError(t, f.svc.StartTimer(ctx, 60))
}

func TestStudyPromptFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.AddSession(ctx, 2, "Chemistry", 1, 1)
	require.NoError(t, err)
	assert.True(t, apperrors.IsCode(f.svc.ConfirmPrompt(ctx), "no_prompt"))
	assert.True(t, apperrors.IsCode(f.svc.StartStudy(ctx, sess.ID, "nap"), "invalid_phase"))

	require.NoError(t, f.svc.StartStudy(ctx, sess.ID, ""))
	f.advance(t, time.Minute)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Study.Prompt)
	assert.Equal(t, schedule.PromptStartBreak, st.Study.Prompt.Kind)

	require.NoError(t, f.svc.ConfirmPrompt(ctx))
	f.advance(t, time.Minute)

	sessions, err := f.svc.Sessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, schedule.StatusCompleted, sessions[0].Status)
	assert.True(t, apperrors.IsCode(f.svc.StartStudy(ctx, sess.ID, schedule.PhaseStudy), "session_not_startable"))

	history, err := f.svc.History(ctx, f.clk.Now().Add(-time.Hour), f.clk.Now(), event.EventTypeSessionComplete)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Chemistry", history[0].Tag)
}

func TestPomodoroStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	custom := pomodoro.Settings{WorkMinutes: 1, ShortBreakMinutes: 1, LongBreakMinutes: 2, MaxCycles: 2}
	used, err := f.svc.EnablePomodoro(ctx, &custom)
	require.NoError(t, err)
	assert.Equal(t, custom, used)

	f.advance(t, time.Minute)
	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Pomodoro.Enabled)
	assert.Equal(t, pomodoro.PhaseShortBreak, st.Pomodoro.State.Session)

	require.NoError(t, f.svc.DisablePomodoro(ctx))
	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Pomodoro.Enabled)
	assert.Equal(t, custom, st.Pomodoro.Settings)
}

func TestStudySessionStopsRunningTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.StartTimer(ctx, 600))
	sess, err := f.svc.AddSession(ctx, 2, "Chemistry", 25, 5)
	require.NoError(t, err)
	require.NoError(t, f.svc.StartStudy(ctx, sess.ID, schedule.PhaseStudy))

	assert.True(t, apperrors.IsCode(f.svc.StopTimer(ctx), "timer_locked"))

	f.advance(t, 5*time.Minute)
	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Timer.Running)
	assert.Equal(t, 600, st.Timer.Remaining)
	assert.False(t, st.Timer.ControlsEnabled)

	history, err := f.svc.History(ctx, f.clk.Now().Add(-time.Hour), f.clk.Now(), event.EventTypeTimerComplete)
	require.NoError(t, err)
	assert.Empty(t, history)

	// The stopped countdown resumes once the session is gone
	require.NoError(t, f.svc.StopStudy(ctx))
	require.NoError(t, f.svc.StartTimer(ctx, 0))
	f.advance(t, time.Minute)
	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Timer.Running)
	assert.Equal(t, 540, st.Timer.Remaining)
}

func TestStudySessionHaltsPomodoro(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	custom := pomodoro.Settings{WorkMinutes: 1, ShortBreakMinutes: 1, LongBreakMinutes: 2, MaxCycles: 2}
	_, err := f.svc.EnablePomodoro(ctx, &custom)
	require.NoError(t, err)

	sess, err := f.svc.AddSession(ctx, 2, "Chemistry", 25, 5)
	require.NoError(t, err)
	require.NoError(t, f.svc.StartStudy(ctx, sess.ID, schedule.PhaseStudy))

	f.advance(t, 5*time.Minute)
	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Timer.Running)
	require.NotNil(t, st.Pomodoro.State)
	assert.Equal(t, pomodoro.PhaseWork, st.Pomodoro.State.Session)
	assert.Equal(t, 0, st.Pomodoro.State.Cycle)

	history, err := f.svc.History(ctx, f.clk.Now().Add(-time.Hour), f.clk.Now(), event.EventTypePomodoro)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestExplicitDurationEndsStoppedPomodoro(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnablePomodoro(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.StopTimer(ctx))
	assert.True(t, f.store.Has(storage.KeyPomodoroState))

	require.NoError(t, f.svc.StartTimer(ctx, 60))
	assert.False(t, f.store.Has(storage.KeyPomodoroState))
	assert.False(t, f.store.Has(storage.KeyTimerCallback))

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Pomodoro.Enabled)
	assert.False(t, st.Timer.Chained)
}

func TestResumingStoppedPomodoroKeepsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnablePomodoro(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.StopTimer(ctx))
	require.NoError(t, f.svc.StartTimer(ctx, 0))

	assert.True(t, f.store.Has(storage.KeyPomodoroState))
	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Pomodoro.Enabled)
}
