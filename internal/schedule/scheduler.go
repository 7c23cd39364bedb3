// Package schedule runs the study schedule: a list of subject sessions with
// at most one active study or break countdown. While a session is active the
// primary timer's controls are disabled.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"studytimer/internal/clock"
	"studytimer/internal/display"
	apperrors "studytimer/internal/errors"
	"studytimer/internal/event"
	"studytimer/internal/notify"
	"studytimer/internal/sound"
	"studytimer/internal/storage"
)

const (
	DefaultTickInterval = time.Second
	storeTimeout        = 2 * time.Second
)

var ErrSessionNotFound = apperrors.NotFound("session_not_found", "study session not found")

// Exclusion is the primary timer. While a session owns the display the
// primary countdown is stopped and its controls are disabled.
type Exclusion interface {
	Stop()
	SetControlsEnabled(enabled bool)
}

type Options struct {
	Clock        clock.Clock
	Store        storage.KV
	Notifier     notify.Notifier
	Sound        sound.Player
	Display      display.Display
	Recorder     event.Recorder
	Exclusion    Exclusion
	TickInterval time.Duration
	NewID        func() string
}

type Scheduler struct {
	clock     clock.Clock
	store     storage.KV
	notifier  notify.Notifier
	sound     sound.Player
	display   display.Display
	recorder  event.Recorder
	exclusion Exclusion
	interval  time.Duration
	newID     func() string

	sessions []Session
	state    TimerState
	handle   clock.Handle
	ticking  bool
	loaded   bool

	editingID string
	prompt    *Prompt
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		clock:     opts.Clock,
		store:     opts.Store,
		notifier:  opts.Notifier,
		sound:     opts.Sound,
		display:   opts.Display,
		recorder:  opts.Recorder,
		exclusion: opts.Exclusion,
		interval:  opts.TickInterval,
		newID:     opts.NewID,
		state:     idleTimerState(),
	}
	if s.sound == nil {
		s.sound = sound.Nop{}
	}
	if s.display == nil {
		s.display = display.Discard
	}
	if s.recorder == nil {
		s.recorder = event.Discard
	}
	if s.exclusion == nil {
		s.exclusion = noExclusion{}
	}
	if s.interval <= 0 {
		s.interval = DefaultTickInterval
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

type noExclusion struct{}

func (noExclusion) Stop()                   {}
func (noExclusion) SetControlsEnabled(bool) {}

func validate(day int, subject string, study, brk int) error {
	if subject == "" {
		return apperrors.BadRequest("invalid_session", "subject is required")
	}
	if study <= 0 || brk <= 0 {
		return apperrors.BadRequest("invalid_session", "study and break durations must be positive")
	}
	if day < 0 || day > 6 {
		return apperrors.BadRequest("invalid_session", "day must be between 0 (Sunday) and 6")
	}
	return nil
}

// AddSession appends an idle session.
func (s *Scheduler) AddSession(day int, subject string, studyMinutes, breakMinutes int) (Session, error) {
	subject = strings.TrimSpace(subject)
	if err := validate(day, subject, studyMinutes, breakMinutes); err != nil {
		return Session{}, err
	}
	now := s.clock.Now()
	sess := Session{
		ID:            s.newID(),
		Day:           day,
		Subject:       subject,
		StudyDuration: studyMinutes,
		BreakDuration: breakMinutes,
		Status:        StatusIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.sessions = append(s.sessions, sess)
	s.persist()
	return sess, nil
}

// BeginEdit marks id as the session being edited and returns it.
func (s *Scheduler) BeginEdit(id string) (Session, error) {
	idx := s.find(id)
	if idx < 0 {
		return Session{}, ErrSessionNotFound
	}
	s.editingID = id
	return s.sessions[idx], nil
}

func (s *Scheduler) CancelEdit()     { s.editingID = "" }
func (s *Scheduler) Editing() string { return s.editingID }

// UpdateSession applies u. When the session is active the countdown keeps the
// progress already made: the new remaining time is the new phase length minus
// the time elapsed so far, and the run/pause mode is preserved.
func (s *Scheduler) UpdateSession(id string, u SessionUpdate) (Session, error) {
	idx := s.find(id)
	if idx < 0 {
		return Session{}, ErrSessionNotFound
	}
	updated := s.sessions[idx]
	if u.Day != nil {
		updated.Day = *u.Day
	}
	if u.Subject != nil {
		updated.Subject = strings.TrimSpace(*u.Subject)
	}
	if u.StudyDuration != nil {
		updated.StudyDuration = *u.StudyDuration
	}
	if u.BreakDuration != nil {
		updated.BreakDuration = *u.BreakDuration
	}
	if err := validate(updated.Day, updated.Subject, updated.StudyDuration, updated.BreakDuration); err != nil {
		return Session{}, err
	}

	now := s.clock.Now()
	updated.UpdatedAt = now
	s.sessions[idx] = updated

	if act, ok := s.state.active(); ok && act == id && s.state.GlobalTimer.Mode != nil {
		s.rescale(updated, now)
	}
	if s.editingID == id {
		s.editingID = ""
	}
	s.persist()
	return updated, nil
}

func (s *Scheduler) rescale(sess Session, now time.Time) {
	g := &s.state.GlobalTimer
	elapsed := time.Duration(g.Total)*time.Second - g.Remaining(now)
	total := sess.PhaseSeconds(s.state.Phase)
	remaining := time.Duration(total)*time.Second - elapsed
	if remaining < 0 {
		remaining = 0
	}
	g.Total = total
	switch g.Mode.(type) {
	case Running:
		g.Mode = Running{Target: now.Add(remaining)}
	case Paused:
		g.Mode = Paused{Remaining: remaining}
	}
	s.show(remaining)
	log.Printf("Active session %s rescaled to %ds, %s left", sess.ID, total, remaining.Round(time.Second))
}

// DeleteSession removes id, stopping its countdown first when it is active.
func (s *Scheduler) DeleteSession(id string) error {
	idx := s.find(id)
	if idx < 0 {
		return ErrSessionNotFound
	}
	if act, ok := s.state.active(); ok && act == id {
		s.StopTimer(true)
		idx = s.find(id)
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if s.editingID == id {
		s.editingID = ""
	}
	if s.prompt != nil && s.prompt.SessionID == id {
		s.clearPrompt()
	}
	s.persist()
	return nil
}

// ResetSession revives a completed session that is not active.
func (s *Scheduler) ResetSession(id string) (Session, error) {
	idx := s.find(id)
	if idx < 0 {
		return Session{}, ErrSessionNotFound
	}
	if act, ok := s.state.active(); ok && act == id {
		return Session{}, apperrors.Conflict("session_active", "stop or reset the running timer first", nil)
	}
	sess := &s.sessions[idx]
	sess.Status = StatusIdle
	sess.CurrentTime = 0
	sess.UpdatedAt = s.clock.Now()
	s.persist()
	return *sess, nil
}

// StartTimer starts phase of session id. It reports false without changing
// anything when the session is missing or completed. Any other active
// session is stopped first.
func (s *Scheduler) StartTimer(id string, phase Phase) bool {
	if phase == "" {
		phase = PhaseStudy
	}
	idx := s.find(id)
	if idx < 0 || s.sessions[idx].Status == StatusCompleted {
		return false
	}
	if act, ok := s.state.active(); ok && act != id {
		log.Printf("Stopping session %s to start %s", act, id)
		s.StopTimer(true)
	}
	s.halt()
	s.clearPrompt()

	now := s.clock.Now()
	sess := &s.sessions[idx]
	total := sess.PhaseSeconds(phase)
	sess.Status = StatusRunning
	sess.CurrentTime = 0
	sess.UpdatedAt = now

	activeID := id
	s.state = TimerState{
		ActiveSessionID: &activeID,
		Phase:           phase,
		GlobalTimer: GlobalTimer{
			Mode:      Running{Target: now.Add(time.Duration(total) * time.Second)},
			Total:     total,
			StartTime: now,
		},
	}
	s.takeOver()
	s.arm()
	s.persist()
	s.show(time.Duration(total) * time.Second)

	if phase == PhaseBreak {
		notify.Send(s.notifier, "Break Time: "+sess.Subject, fmt.Sprintf("Relax for %d minutes.", sess.BreakDuration))
	}
	log.Printf("Study %s phase started for %q (%ds)", phase, sess.Subject, total)
	return true
}

// PauseTimer freezes the remaining time. It reports false unless running.
func (s *Scheduler) PauseTimer() bool {
	m, ok := s.state.GlobalTimer.Mode.(Running)
	if !ok {
		return false
	}
	remaining := m.Target.Sub(s.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	s.halt()
	s.state.GlobalTimer.Mode = Paused{Remaining: remaining}
	if sess := s.activeSession(); sess != nil {
		sess.Status = StatusPaused
	}
	s.persist()
	s.show(remaining)
	return true
}

// ResumeTimer re-anchors a paused countdown. It reports false unless paused.
func (s *Scheduler) ResumeTimer() bool {
	m, ok := s.state.GlobalTimer.Mode.(Paused)
	if !ok {
		return false
	}
	s.state.GlobalTimer.Mode = Running{Target: s.clock.Now().Add(m.Remaining)}
	if sess := s.activeSession(); sess != nil {
		sess.Status = StatusRunning
	}
	s.takeOver()
	s.arm()
	s.persist()
	s.show(m.Remaining)
	return true
}

// StopTimer halts the countdown and re-enables the primary timer. With
// resetState the active pointer and countdown are cleared as well; a session
// left running or paused returns to idle.
func (s *Scheduler) StopTimer(resetState bool) {
	s.halt()
	s.exclusion.SetControlsEnabled(true)
	if resetState {
		if sess := s.activeSession(); sess != nil && (sess.Status == StatusRunning || sess.Status == StatusPaused) {
			sess.Status = StatusIdle
			sess.CurrentTime = 0
			sess.UpdatedAt = s.clock.Now()
		}
		s.state = idleTimerState()
		s.display.Show(display.Format(0))
	} else {
		s.state.GlobalTimer.Mode = nil
	}
	s.persist()
}

// ResetTimer abandons the active session: time studied so far is kept in
// TotalStudyTime and the session goes back to idle.
func (s *Scheduler) ResetTimer() bool {
	sess := s.activeSession()
	if sess == nil {
		return false
	}
	if s.state.Phase == PhaseStudy {
		sess.TotalStudyTime += s.elapsedSeconds(s.clock.Now())
	}
	sess.Status = StatusIdle
	sess.CurrentTime = 0
	sess.UpdatedAt = s.clock.Now()
	s.clearPrompt()
	s.StopTimer(true)
	return true
}

// UpdateTimer is the 1 Hz tick.
func (s *Scheduler) UpdateTimer() {
	if !s.ticking {
		return
	}
	m, ok := s.state.GlobalTimer.Mode.(Running)
	if !ok {
		return
	}
	idx := s.activeIndex()
	if idx < 0 {
		log.Printf("Warning: active study session disappeared, stopping timer.")
		s.StopTimer(true)
		return
	}

	remaining := m.Target.Sub(s.clock.Now())
	if remaining <= 0 {
		s.state.GlobalTimer.Elapsed = s.state.GlobalTimer.Total
		s.sessions[idx].CurrentTime = s.state.GlobalTimer.Total
		s.show(0)
		s.completePhase(idx)
		return
	}

	elapsed := s.state.GlobalTimer.Total - ceilSeconds(remaining)
	s.state.GlobalTimer.Elapsed = elapsed
	s.sessions[idx].CurrentTime = elapsed
	s.show(remaining)
	s.persist()
}

func (s *Scheduler) completePhase(idx int) {
	if s.state.Phase == PhaseBreak {
		s.completeBreakPhase(idx)
		return
	}
	s.completeStudyPhase(idx)
}

// completeStudyPhase stops the countdown but keeps the session active, and
// asks the user to start the break.
func (s *Scheduler) completeStudyPhase(idx int) {
	sess := s.sessions[idx]
	s.StopTimer(false)
	s.sound.Play()
	notify.Send(s.notifier, "Study session complete", fmt.Sprintf("%s: time for a %d minute break.", sess.Subject, sess.BreakDuration))
	s.recorder.Record(event.Event{
		Timestamp: s.clock.Now(),
		Type:      event.EventTypeStudyPhase,
		Tag:       string(PhaseStudy),
		Value:     float64(sess.StudyDuration * 60),
		Notes:     sess.Subject,
	})
	s.prompt = breakPrompt(sess)
}

// completeBreakPhase finishes the session and offers the next idle session
// further down the list.
func (s *Scheduler) completeBreakPhase(idx int) {
	sess := &s.sessions[idx]
	sess.Status = StatusCompleted
	sess.TotalStudyTime += sess.StudyDuration * 60
	sess.CurrentTime = 0
	sess.UpdatedAt = s.clock.Now()
	done := *sess

	s.StopTimer(true)
	s.sound.Play()
	notify.Send(s.notifier, "Break over", done.Subject+" completed.")
	s.recorder.Record(event.Event{
		Timestamp: s.clock.Now(),
		Type:      event.EventTypeStudyPhase,
		Tag:       string(PhaseBreak),
		Value:     float64(done.BreakDuration * 60),
		Notes:     done.Subject,
	})
	s.recordSessionComplete(done)

	if next, ok := s.FindNextSession(done.ID); ok {
		s.prompt = &Prompt{
			Kind:      PromptStartNext,
			SessionID: next.ID,
			Message:   fmt.Sprintf("Start next session: %s (%d min)?", next.Subject, next.StudyDuration),
		}
		return
	}
	s.prompt = &Prompt{Kind: PromptAllDone, Message: "All sessions completed!"}
}

// FindNextSession returns the first idle session after currentID in list
// order. Earlier sessions are never selected.
func (s *Scheduler) FindNextSession(currentID string) (Session, bool) {
	idx := s.find(currentID)
	if idx < 0 {
		return Session{}, false
	}
	for i := idx + 1; i < len(s.sessions); i++ {
		if s.sessions[i].Status == StatusIdle {
			return s.sessions[i], true
		}
	}
	return Session{}, false
}

// Pending returns the transition waiting for confirmation, if any.
func (s *Scheduler) Pending() (Prompt, bool) {
	if s.prompt == nil {
		return Prompt{}, false
	}
	return *s.prompt, true
}

// Confirm runs the pending transition. It reports false when nothing is
// pending or the transition could not start.
func (s *Scheduler) Confirm() bool {
	p := s.prompt
	if p == nil {
		return false
	}
	s.clearPrompt()
	switch p.Kind {
	case PromptStartBreak:
		return s.StartTimer(p.SessionID, PhaseBreak)
	case PromptStartNext:
		return s.StartTimer(p.SessionID, PhaseStudy)
	default:
		return true
	}
}

// Dismiss declines the pending transition. Declining the break completes the
// session without it.
func (s *Scheduler) Dismiss() bool {
	p := s.prompt
	if p == nil {
		return false
	}
	s.clearPrompt()
	if p.Kind != PromptStartBreak {
		return true
	}
	if act, ok := s.state.active(); ok && act == p.SessionID {
		if sess := s.activeSession(); sess != nil {
			sess.Status = StatusCompleted
			sess.TotalStudyTime += sess.StudyDuration * 60
			sess.CurrentTime = 0
			sess.UpdatedAt = s.clock.Now()
			s.recordSessionComplete(*sess)
		}
		s.StopTimer(true)
	}
	return true
}

// Recover loads the stored schedule once and reconciles the active
// countdown with the wall clock. It is safe to call repeatedly.
func (s *Scheduler) Recover() {
	if !s.loaded {
		s.load()
		s.loaded = true
	}
	act, ok := s.state.active()
	if !ok {
		return
	}
	idx := s.find(act)
	if idx < 0 {
		log.Printf("Warning: active study session %s no longer exists, clearing timer.", act)
		s.halt()
		s.state = idleTimerState()
		s.exclusion.SetControlsEnabled(true)
		s.persist()
		return
	}

	switch m := s.state.GlobalTimer.Mode.(type) {
	case Running:
		if s.ticking {
			s.UpdateTimer()
			return
		}
		if !s.clock.Now().Before(m.Target) {
			log.Printf("Study %s phase of %q ended while inactive, completing.", s.state.Phase, s.sessions[idx].Subject)
			s.state.GlobalTimer.Elapsed = s.state.GlobalTimer.Total
			s.completePhase(idx)
			return
		}
		s.sessions[idx].Status = StatusRunning
		s.takeOver()
		s.arm()
		s.UpdateTimer()
	case Paused:
		s.sessions[idx].Status = StatusPaused
		s.takeOver()
		s.show(m.Remaining)
	default:
		// Study phase done, break not yet confirmed
		if s.state.Phase == PhaseStudy && s.sessions[idx].Status == StatusRunning && s.prompt == nil {
			s.prompt = breakPrompt(s.sessions[idx])
		}
	}
}

// Sessions returns a copy of the list, filtered to day when day >= 0.
func (s *Scheduler) Sessions(day int) []Session {
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if day < 0 || sess.Day == day {
			out = append(out, sess)
		}
	}
	return out
}

type Snapshot struct {
	ActiveSessionID string  `json:"activeSessionId,omitempty"`
	Subject         string  `json:"subject,omitempty"`
	Phase           Phase   `json:"phase"`
	State           string  `json:"state"`
	Remaining       int     `json:"remaining"`
	Total           int     `json:"total"`
	Display         string  `json:"display"`
	Editing         string  `json:"editing,omitempty"`
	Prompt          *Prompt `json:"prompt,omitempty"`
}

func (s *Scheduler) Snapshot() Snapshot {
	g := s.state.GlobalTimer
	remaining := ceilSeconds(g.Remaining(s.clock.Now()))
	snap := Snapshot{
		Phase:     s.state.Phase,
		State:     g.State(),
		Remaining: remaining,
		Total:     g.Total,
		Display:   display.Format(remaining),
		Editing:   s.editingID,
	}
	if sess := s.activeSession(); sess != nil {
		snap.ActiveSessionID = sess.ID
		snap.Subject = sess.Subject
	}
	if s.prompt != nil {
		p := *s.prompt
		snap.Prompt = &p
	}
	return snap
}

// Data returns the document as it is persisted.
func (s *Scheduler) Data() Data {
	sessions := s.sessions
	if sessions == nil {
		sessions = []Session{}
	}
	return Data{Sessions: sessions, TimerState: s.state}
}

// Active reports whether a session currently owns the timer.
func (s *Scheduler) Active() bool {
	_, ok := s.state.active()
	return ok
}

func breakPrompt(sess Session) *Prompt {
	return &Prompt{
		Kind:      PromptStartBreak,
		SessionID: sess.ID,
		Message:   fmt.Sprintf("Start %d minute break for %s?", sess.BreakDuration, sess.Subject),
	}
}

func (s *Scheduler) recordSessionComplete(sess Session) {
	s.recorder.Record(event.Event{
		Timestamp: s.clock.Now(),
		Type:      event.EventTypeSessionComplete,
		Tag:       sess.Subject,
		Value:     float64(sess.StudyDuration * 60),
		Notes:     sess.ID,
	})
}

func (s *Scheduler) clearPrompt() {
	if s.prompt != nil {
		s.prompt = nil
		s.sound.Stop()
	}
}

func (s *Scheduler) elapsedSeconds(now time.Time) int {
	g := s.state.GlobalTimer
	if g.Mode == nil {
		return g.Elapsed
	}
	return max(g.Total-ceilSeconds(g.Remaining(now)), 0)
}

func (s *Scheduler) find(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Scheduler) activeIndex() int {
	act, ok := s.state.active()
	if !ok {
		return -1
	}
	return s.find(act)
}

func (s *Scheduler) activeSession() *Session {
	if idx := s.activeIndex(); idx >= 0 {
		return &s.sessions[idx]
	}
	return nil
}

// takeOver stops the primary countdown and locks its controls.
func (s *Scheduler) takeOver() {
	s.exclusion.Stop()
	s.exclusion.SetControlsEnabled(false)
}

func (s *Scheduler) arm() {
	s.halt()
	s.ticking = true
	s.handle = s.clock.SetInterval(s.UpdateTimer, s.interval)
}

func (s *Scheduler) halt() {
	if s.handle != 0 {
		s.clock.ClearInterval(s.handle)
		s.handle = 0
	}
	s.ticking = false
}

func (s *Scheduler) show(remaining time.Duration) {
	s.display.Show(display.Format(ceilSeconds(remaining)))
}

func (s *Scheduler) load() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	raw, ok, err := s.store.Get(ctx, storage.KeyStudyScheduleData)
	if err != nil {
		log.Printf("Warning: failed to read %s: %v", storage.KeyStudyScheduleData, err)
		return
	}
	if !ok {
		return
	}
	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		log.Printf("Warning: unreadable study schedule, starting empty: %v", err)
		return
	}
	s.sessions = data.Sessions
	s.state = data.TimerState
	if s.state.Phase != PhaseBreak {
		s.state.Phase = PhaseStudy
	}

	// Only the active session may be running or paused
	act, _ := s.state.active()
	for i := range s.sessions {
		st := s.sessions[i].Status
		if s.sessions[i].ID != act && (st == StatusRunning || st == StatusPaused) {
			s.sessions[i].Status = StatusIdle
			s.sessions[i].CurrentTime = 0
		}
	}
}

func (s *Scheduler) persist() {
	raw, err := json.Marshal(s.Data())
	if err != nil {
		log.Printf("Warning: failed to encode study schedule: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Set(ctx, storage.KeyStudyScheduleData, string(raw)); err != nil {
		log.Printf("Warning: failed to persist %s: %v", storage.KeyStudyScheduleData, err)
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
