package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studytimer/internal/clock"
	apperrors "studytimer/internal/errors"
	"studytimer/internal/event"
	"studytimer/internal/notify"
	"studytimer/internal/sound"
	"studytimer/internal/storage"
	"studytimer/internal/storage/memory"
)

type gate struct {
	enabled bool
	stops   int
}

func (g *gate) Stop()                            { g.stops++ }
func (g *gate) SetControlsEnabled(enabled bool) { g.enabled = enabled }

type harness struct {
	clk    *clock.Fake
	store  *memory.Store
	notes  *notify.Recorder
	sound  *sound.Counter
	gate   *gate
	events []event.Event
	ids    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		clk:   clock.NewFake(time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC)),
		store: memory.New(),
		notes: &notify.Recorder{},
		sound: &sound.Counter{},
		gate:  &gate{enabled: true},
	}
}

func (h *harness) scheduler() *Scheduler {
	s := New(Options{
		Clock:     h.clk,
		Store:     h.store,
		Notifier:  h.notes,
		Sound:     h.sound,
		Exclusion: h.gate,
		Recorder:  event.RecorderFunc(func(e event.Event) { h.events = append(h.events, e) }),
		NewID: func() string {
			h.ids++
			return fmt.Sprintf("s%d", h.ids)
		},
	})
	s.Recover()
	return s
}

func (h *harness) stored(t *testing.T) Data {
	t.Helper()
	raw, ok, err := h.store.Get(context.Background(), storage.KeyStudyScheduleData)
	require.NoError(t, err)
	require.True(t, ok)
	var d Data
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	return d
}

func mustAdd(t *testing.T, s *Scheduler, subject string, study, brk int) Session {
	t.Helper()
	sess, err := s.AddSession(1, subject, study, brk)
	require.NoError(t, err)
	return sess
}

func TestAddSessionValidation(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()

	_, err := s.AddSession(1, "  ", 25, 5)
	assert.True(t, apperrors.IsCode(err, "invalid_session"))
	_, err = s.AddSession(1, "Math", 0, 5)
	assert.Error(t, err)
	_, err = s.AddSession(1, "Math", 25, -1)
	assert.Error(t, err)
	assert.Empty(t, s.Sessions(-1))
	assert.False(t, h.store.Has(storage.KeyStudyScheduleData))

	sess := mustAdd(t, s, " Math ", 25, 5)
	assert.Equal(t, "Math", sess.Subject)
	assert.Equal(t, StatusIdle, sess.Status)
	assert.Len(t, h.stored(t).Sessions, 1)
}

func TestSessionsFilteredByDay(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	_, err := s.AddSession(1, "Math", 25, 5)
	require.NoError(t, err)
	_, err = s.AddSession(2, "Physics", 25, 5)
	require.NoError(t, err)

	assert.Len(t, s.Sessions(-1), 2)
	monday := s.Sessions(1)
	require.Len(t, monday, 1)
	assert.Equal(t, "Math", monday[0].Subject)
}

func TestStartTimerLocksPrimaryTimer(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)

	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	assert.False(t, h.gate.enabled)
	assert.Equal(t, 1, h.gate.stops, "primary countdown stopped")
	snap := s.Snapshot()
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, 1500, snap.Remaining)

	d := h.stored(t)
	require.NotNil(t, d.TimerState.ActiveSessionID)
	assert.Equal(t, sess.ID, *d.TimerState.ActiveSessionID)
	assert.Equal(t, StatusRunning, d.Sessions[0].Status)
}

func TestStartTimerNoOps(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	assert.False(t, s.StartTimer("missing", PhaseStudy))

	sess := mustAdd(t, s, "Math", 1, 1)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(time.Minute)
	require.True(t, s.Confirm())
	h.clk.Advance(time.Minute)
	require.Equal(t, StatusCompleted, s.Sessions(-1)[0].Status)

	assert.False(t, s.StartTimer(sess.ID, PhaseStudy))
	assert.True(t, h.gate.enabled)
}

func TestStartingAnotherSessionStopsTheFirst(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	a := mustAdd(t, s, "Math", 25, 5)
	b := mustAdd(t, s, "Physics", 30, 5)

	require.True(t, s.StartTimer(a.ID, PhaseStudy))
	h.clk.Advance(time.Minute)
	require.True(t, s.StartTimer(b.ID, PhaseStudy))

	var running int
	for _, sess := range s.Sessions(-1) {
		if sess.Status == StatusRunning || sess.Status == StatusPaused {
			running++
		}
	}
	assert.Equal(t, 1, running)
	assert.Equal(t, StatusIdle, s.Sessions(-1)[0].Status)
	assert.Equal(t, b.ID, s.Snapshot().ActiveSessionID)
	assert.False(t, h.gate.enabled)
}

func TestPauseResumeIsLossless(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))

	h.clk.Advance(90 * time.Second)
	require.True(t, s.PauseTimer())
	assert.False(t, s.PauseTimer())
	assert.Equal(t, StatusPaused, s.Sessions(-1)[0].Status)

	d := h.stored(t)
	p, ok := d.TimerState.GlobalTimer.Mode.(Paused)
	require.True(t, ok)
	assert.Equal(t, 1410*time.Second, p.Remaining)

	h.clk.Advance(10 * time.Minute)
	assert.Equal(t, 1410, s.Snapshot().Remaining)

	stops := h.gate.stops
	require.True(t, s.ResumeTimer())
	assert.Equal(t, stops+1, h.gate.stops)
	assert.False(t, s.ResumeTimer())
	h.clk.Advance(10 * time.Second)
	assert.Equal(t, 1400, s.Snapshot().Remaining)
	assert.False(t, h.gate.enabled)
}

func TestEditingActiveSessionKeepsProgress(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(5 * time.Minute)

	_, err := s.BeginEdit(sess.ID)
	require.NoError(t, err)
	forty := 40
	updated, err := s.UpdateSession(sess.ID, SessionUpdate{StudyDuration: &forty})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.StudyDuration)
	assert.Empty(t, s.Editing())

	snap := s.Snapshot()
	assert.Equal(t, 35*60, snap.Remaining)
	assert.Equal(t, 40*60, snap.Total)
	assert.Equal(t, "running", snap.State)
}

func TestEditingPausedSessionStaysPaused(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(20 * time.Minute)
	require.True(t, s.PauseTimer())

	ten := 10
	_, err := s.UpdateSession(sess.ID, SessionUpdate{StudyDuration: &ten})
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, "paused", snap.State)
	assert.Equal(t, 0, snap.Remaining)

	require.True(t, s.ResumeTimer())
	h.clk.Advance(time.Second)
	p, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, PromptStartBreak, p.Kind)
}

func TestUpdateSessionRejectsInvalidFields(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)

	empty := ""
	_, err := s.UpdateSession(sess.ID, SessionUpdate{Subject: &empty})
	assert.Error(t, err)
	assert.Equal(t, "Math", s.Sessions(-1)[0].Subject)

	_, err = s.UpdateSession("missing", SessionUpdate{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeletingActiveSessionReleasesPrimaryTimer(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	a := mustAdd(t, s, "Math", 25, 5)
	b := mustAdd(t, s, "Physics", 25, 5)
	require.True(t, s.StartTimer(a.ID, PhaseStudy))
	_, err := s.BeginEdit(a.ID)
	require.NoError(t, err)
	require.False(t, h.gate.enabled)

	require.NoError(t, s.DeleteSession(a.ID))
	assert.True(t, h.gate.enabled)
	assert.Empty(t, s.Editing())
	assert.False(t, s.Active())
	assert.Equal(t, 0, h.clk.Armed())

	sessions := s.Sessions(-1)
	require.Len(t, sessions, 1)
	assert.Equal(t, b.ID, sessions[0].ID)
	assert.Nil(t, h.stored(t).TimerState.ActiveSessionID)

	assert.ErrorIs(t, s.DeleteSession(a.ID), ErrSessionNotFound)
}

func TestStudyCompletionPromptsForBreak(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))

	h.clk.Advance(25 * time.Minute)
	assert.Equal(t, 1, h.sound.Plays)
	require.Len(t, h.notes.Sent, 1)
	assert.Equal(t, "Study session complete", h.notes.Sent[0].Title)
	assert.True(t, h.gate.enabled)
	assert.Equal(t, 0, h.clk.Armed())

	p, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, PromptStartBreak, p.Kind)
	assert.Equal(t, sess.ID, p.SessionID)

	// Nothing starts until the user confirms
	h.clk.Advance(time.Hour)
	assert.Equal(t, "stopped", s.Snapshot().State)

	require.True(t, s.Confirm())
	assert.Equal(t, 1, h.sound.Stops)
	snap := s.Snapshot()
	assert.Equal(t, PhaseBreak, snap.Phase)
	assert.Equal(t, 300, snap.Remaining)
	assert.Equal(t, "Break Time: Math", h.notes.Sent[1].Title)
}

func TestBreakCompletionOffersNextIdleSession(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	a := mustAdd(t, s, "Math", 1, 1)
	b := mustAdd(t, s, "Physics", 1, 1)

	require.True(t, s.StartTimer(a.ID, PhaseStudy))
	h.clk.Advance(time.Minute)
	require.True(t, s.Confirm())
	h.clk.Advance(time.Minute)

	first := s.Sessions(-1)[0]
	assert.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, 60, first.TotalStudyTime)
	assert.False(t, s.Active())
	assert.True(t, h.gate.enabled)

	p, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, PromptStartNext, p.Kind)
	assert.Equal(t, b.ID, p.SessionID)

	require.True(t, s.Confirm())
	assert.Equal(t, b.ID, s.Snapshot().ActiveSessionID)
	h.clk.Advance(time.Minute)
	require.True(t, s.Confirm())
	h.clk.Advance(time.Minute)

	p, ok = s.Pending()
	require.True(t, ok)
	assert.Equal(t, PromptAllDone, p.Kind)
	require.True(t, s.Confirm())
	_, ok = s.Pending()
	assert.False(t, ok)

	var completions int
	for _, e := range h.events {
		if e.Type == event.EventTypeSessionComplete {
			completions++
		}
	}
	assert.Equal(t, 2, completions)
}

func TestFindNextSessionScansForward(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, mustAdd(t, s, fmt.Sprintf("Subject %d", i), 25, 5).ID)
	}
	s.sessions[0].Status = StatusIdle
	s.sessions[3].Status = StatusCompleted
	s.sessions[4].Status = StatusIdle

	next, ok := s.FindNextSession(ids[2])
	require.True(t, ok)
	assert.Equal(t, ids[4], next.ID)

	s.sessions[4].Status = StatusCompleted
	s.sessions[5].Status = StatusCompleted
	_, ok = s.FindNextSession(ids[2])
	assert.False(t, ok, "earlier idle sessions are never selected")

	_, ok = s.FindNextSession("missing")
	assert.False(t, ok)
}

func TestResetTimerFoldsStudiedTime(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(10 * time.Minute)

	require.True(t, s.ResetTimer())
	got := s.Sessions(-1)[0]
	assert.Equal(t, StatusIdle, got.Status)
	assert.Equal(t, 0, got.CurrentTime)
	assert.Equal(t, 600, got.TotalStudyTime)
	assert.True(t, h.gate.enabled)
	assert.False(t, s.ResetTimer())
}

func TestDismissBreakCompletesSession(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 1, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(time.Minute)

	require.True(t, s.Dismiss())
	got := s.Sessions(-1)[0]
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 60, got.TotalStudyTime)
	assert.False(t, s.Active())
	assert.False(t, s.Dismiss())
}

func TestResetSessionRevivesCompleted(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 1, 1)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))

	_, err := s.ResetSession(sess.ID)
	assert.True(t, apperrors.IsCode(err, "session_active"))

	h.clk.Advance(time.Minute)
	require.True(t, s.Dismiss())
	revived, err := s.ResetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, revived.Status)
	assert.True(t, s.StartTimer(sess.ID, PhaseStudy))
}

func TestRecoverResumesRunningSession(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(time.Minute)
	s.halt()

	// Restart two minutes later
	h.clk.Jump(2 * time.Minute)
	h.gate.enabled = true
	h.gate.stops = 0
	restored := h.scheduler()
	assert.False(t, h.gate.enabled)
	assert.Equal(t, 1, h.gate.stops)
	snap := restored.Snapshot()
	assert.Equal(t, sess.ID, snap.ActiveSessionID)
	assert.Equal(t, 22*60, snap.Remaining)

	// Idempotent
	restored.Recover()
	assert.Equal(t, 22*60, restored.Snapshot().Remaining)
	assert.Equal(t, 1, h.clk.Armed())
}

func TestRecoverCompletesExpiredPhaseOnce(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	s.halt()

	h.clk.Jump(time.Hour)
	restored := h.scheduler()
	restored.Recover()
	assert.Len(t, h.notes.Sent, 1)
	p, ok := restored.Pending()
	require.True(t, ok)
	assert.Equal(t, PromptStartBreak, p.Kind)
	assert.True(t, h.gate.enabled)
}

func TestRecoverRestoresBreakPrompt(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 1, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(time.Minute)
	_, ok := s.Pending()
	require.True(t, ok)

	restored := h.scheduler()
	p, ok := restored.Pending()
	require.True(t, ok)
	assert.Equal(t, PromptStartBreak, p.Kind)
	assert.Len(t, h.notes.Sent, 1)
}

func TestRecoverPausedSessionDoesNotTick(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler()
	sess := mustAdd(t, s, "Math", 25, 5)
	require.True(t, s.StartTimer(sess.ID, PhaseStudy))
	h.clk.Advance(5 * time.Minute)
	require.True(t, s.PauseTimer())

	h.clk.Jump(time.Hour)
	h.gate.enabled = true
	h.gate.stops = 0
	restored := h.scheduler()
	assert.False(t, h.gate.enabled)
	assert.Equal(t, 1, h.gate.stops)
	assert.Equal(t, "paused", restored.Snapshot().State)
	assert.Equal(t, 20*60, restored.Snapshot().Remaining)
	assert.Equal(t, 0, h.clk.Armed())
}

func TestRecoverClearsDanglingActiveSession(t *testing.T) {
	h := newHarness(t)
	raw := `{"sessions":[{"id":"a","day":1,"subject":"Math","studyDuration":25,"breakDuration":5,"status":"running"}],` +
		`"timerState":{"activeSessionId":"gone","phase":"study","globalTimer":{"isRunning":true,"isPaused":false,"currentTime":0,"totalTime":1500,"targetTime":1,"remainingTimeMS":0,"startTime":null}}}`
	require.NoError(t, h.store.Set(context.Background(), storage.KeyStudyScheduleData, raw))

	s := h.scheduler()
	assert.False(t, s.Active())
	assert.True(t, h.gate.enabled)
	assert.Equal(t, StatusIdle, s.Sessions(-1)[0].Status)
	assert.Nil(t, h.stored(t).TimerState.ActiveSessionID)
}

func TestRecoverIgnoresUnreadableData(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(context.Background(), storage.KeyStudyScheduleData, "{not json"))
	s := h.scheduler()
	assert.Empty(t, s.Sessions(-1))
	assert.False(t, s.Active())
}

func TestGlobalTimerJSONLayout(t *testing.T) {
	target := time.UnixMilli(1_700_000_000_000)
	raw, err := json.Marshal(GlobalTimer{Mode: Running{Target: target}, Total: 1500, Elapsed: 60})
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, true, fields["isRunning"])
	assert.Equal(t, false, fields["isPaused"])
	assert.Equal(t, float64(target.UnixMilli()), fields["targetTime"])

	raw, err = json.Marshal(GlobalTimer{Mode: Paused{Remaining: 90 * time.Second}, Total: 1500})
	require.NoError(t, err)
	fields = nil
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, true, fields["isPaused"])
	assert.Nil(t, fields["targetTime"])
	assert.Equal(t, float64(90000), fields["remainingTimeMS"])

	raw, err = json.Marshal(GlobalTimer{})
	require.NoError(t, err)
	fields = nil
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, false, fields["isRunning"])
	assert.Nil(t, fields["targetTime"])

	// Running without a target is not a usable countdown
	var g GlobalTimer
	require.NoError(t, json.Unmarshal([]byte(`{"isRunning":true,"isPaused":false,"targetTime":null}`), &g))
	assert.Nil(t, g.Mode)
}
