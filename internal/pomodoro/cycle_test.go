package pomodoro

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studytimer/internal/clock"
	"studytimer/internal/countdown"
	"studytimer/internal/notify"
	"studytimer/internal/storage"
	"studytimer/internal/storage/memory"
)

func TestNextTransitions(t *testing.T) {
	s := Settings{WorkMinutes: 25, ShortBreakMinutes: 5, LongBreakMinutes: 15, MaxCycles: 4}
	st := Initial(s)

	var sessions []Phase
	var cycles []int
	for i := 0; i < 9; i++ {
		st = Next(st)
		sessions = append(sessions, st.Session)
		cycles = append(cycles, st.Cycle)
	}
	assert.Equal(t, []Phase{
		PhaseShortBreak, PhaseWork, PhaseShortBreak, PhaseWork, PhaseShortBreak, PhaseWork,
		PhaseLongBreak, PhaseWork, PhaseShortBreak,
	}, sessions)
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3, 0, 0, 1}, cycles)
}

func TestNextSingleCycleAlwaysLongBreak(t *testing.T) {
	st := Initial(Settings{WorkMinutes: 1, ShortBreakMinutes: 1, LongBreakMinutes: 1, MaxCycles: 1})
	st = Next(st)
	assert.Equal(t, PhaseLongBreak, st.Session)
	assert.Equal(t, 0, st.Cycle)
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	assert.Error(t, Settings{WorkMinutes: 25, ShortBreakMinutes: 0, LongBreakMinutes: 15, MaxCycles: 4}.Validate())
	assert.Error(t, Settings{WorkMinutes: 25, ShortBreakMinutes: 5, LongBreakMinutes: 15, MaxCycles: 0}.Validate())
}

type fixture struct {
	clk    *clock.Fake
	store  *memory.Store
	notes  *notify.Recorder
	engine *countdown.Engine
	cycle  *Cycle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:   clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)),
		store: memory.New(),
		notes: &notify.Recorder{},
	}
	f.engine = countdown.New(countdown.Options{Clock: f.clk, Store: f.store, Notifier: f.notes})
	f.cycle = New(f.engine, f.store, f.clk, nil, DefaultSettings())
	f.engine.BindChain(f.cycle.Resume, f.cycle.Discard)
	return f
}

func TestCycleRunsToLongBreak(t *testing.T) {
	f := newFixture(t)
	s := Settings{WorkMinutes: 2, ShortBreakMinutes: 1, LongBreakMinutes: 3, MaxCycles: 4}
	require.NoError(t, f.cycle.Enable(s))
	assert.Equal(t, 120, f.engine.Remaining())

	expect := []struct {
		session Phase
		cycle   int
	}{
		{PhaseShortBreak, 1}, {PhaseWork, 1},
		{PhaseShortBreak, 2}, {PhaseWork, 2},
		{PhaseShortBreak, 3}, {PhaseWork, 3},
		{PhaseLongBreak, 0}, {PhaseWork, 0},
	}
	current := PhaseWork
	for i, want := range expect {
		f.clk.Advance(time.Duration(s.Seconds(current)) * time.Second)
		st, ok := f.cycle.State()
		require.True(t, ok)
		assert.Equal(t, want.session, st.Session, "step %d", i)
		assert.Equal(t, want.cycle, st.Cycle, "step %d", i)
		assert.True(t, f.engine.Running(), "chain must re-arm at step %d", i)
		current = st.Session
	}
	assert.Len(t, f.notes.Sent, len(expect))
	assert.Equal(t, "Long break", f.notes.Sent[6].Title)
}

func TestDisableKeepsSettings(t *testing.T) {
	f := newFixture(t)
	custom := Settings{WorkMinutes: 50, ShortBreakMinutes: 10, LongBreakMinutes: 30, MaxCycles: 3}
	require.NoError(t, f.cycle.Enable(custom))

	// Into the first short break
	f.clk.Advance(50 * time.Minute)
	st, _ := f.cycle.State()
	require.Equal(t, PhaseShortBreak, st.Session)

	f.cycle.Disable()
	assert.False(t, f.engine.Running())
	assert.False(t, f.store.Has(storage.KeyPomodoroState))
	assert.False(t, f.store.Has(storage.KeyTimerEndTime))
	_, ok := f.cycle.State()
	assert.False(t, ok)

	assert.Equal(t, custom, f.cycle.Settings())
	require.NoError(t, f.cycle.Enable(f.cycle.Settings()))
	assert.Equal(t, 50*60, f.engine.Remaining())
}

func TestEnableRejectsInvalidSettings(t *testing.T) {
	f := newFixture(t)
	err := f.cycle.Enable(Settings{WorkMinutes: 0, ShortBreakMinutes: 5, LongBreakMinutes: 15, MaxCycles: 4})
	assert.Error(t, err)
	assert.False(t, f.engine.Running())
	assert.False(t, f.store.Has(storage.KeyPomodoroSettings))
}

func TestRecoveredChainFallsBackToDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := f.clk.Now().Add(30 * time.Second)
	require.NoError(t, f.store.Set(ctx, storage.KeyTimerEndTime, strconv.FormatInt(end.UnixMilli(), 10)))
	require.NoError(t, f.store.Set(ctx, storage.KeyTimerRunning, "true"))
	require.NoError(t, f.store.Set(ctx, storage.KeyTimerCallback, countdown.CallbackPomodoro))

	f.engine.RecoverOnActivate()
	require.True(t, f.engine.Running())

	f.clk.Advance(30 * time.Second)
	st, ok := f.cycle.State()
	require.True(t, ok)
	assert.Equal(t, DefaultSettings(), st.Settings)
	assert.Equal(t, PhaseShortBreak, st.Session)
	assert.Equal(t, 5*60, f.engine.Remaining())
}

func TestRecoveredChainKeepsStoredProgress(t *testing.T) {
	f := newFixture(t)
	s := Settings{WorkMinutes: 1, ShortBreakMinutes: 1, LongBreakMinutes: 2, MaxCycles: 2}
	require.NoError(t, f.cycle.Enable(s))
	f.clk.Advance(time.Minute) // short break, cycle 1
	f.clk.Advance(time.Minute) // work, cycle 1

	// Restart: fresh engine and cycle over the same store
	engine := countdown.New(countdown.Options{Clock: f.clk, Store: f.store, Notifier: f.notes})
	cycle := New(engine, f.store, f.clk, nil, DefaultSettings())
	engine.BindChain(cycle.Resume, cycle.Discard)
	f.engine.Reset()
	// Reset cleared the records the old engine owned; put the anchor back
	// to simulate a crash rather than a reset.
	ctx := context.Background()
	end := f.clk.Now().Add(40 * time.Second)
	require.NoError(t, f.store.Set(ctx, storage.KeyTimerEndTime, strconv.FormatInt(end.UnixMilli(), 10)))
	require.NoError(t, f.store.Set(ctx, storage.KeyTimerRunning, "true"))
	require.NoError(t, f.store.Set(ctx, storage.KeyTimerCallback, countdown.CallbackPomodoro))

	engine.RecoverOnActivate()
	f.clk.Advance(40 * time.Second)
	st, ok := cycle.State()
	require.True(t, ok)
	assert.Equal(t, PhaseLongBreak, st.Session)
	assert.Equal(t, 0, st.Cycle)
	assert.Equal(t, 2*60, engine.Remaining())
}

func TestExpiredChainOnRecoveryDiscardsProgress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cycle.Enable(Settings{WorkMinutes: 1, ShortBreakMinutes: 1, LongBreakMinutes: 1, MaxCycles: 4}))
	require.True(t, f.store.Has(storage.KeyPomodoroState))

	engine := countdown.New(countdown.Options{Clock: f.clk, Store: f.store, Notifier: f.notes})
	cycle := New(engine, f.store, f.clk, nil, DefaultSettings())
	engine.BindChain(cycle.Resume, cycle.Discard)
	f.clk.Jump(10 * time.Minute)

	engine.RecoverOnActivate()
	assert.False(t, engine.Running())
	assert.False(t, f.store.Has(storage.KeyPomodoroState))
	assert.True(t, f.store.Has(storage.KeyPomodoroSettings))
}
