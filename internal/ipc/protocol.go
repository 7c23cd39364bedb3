package ipc

import (
	"encoding/json"
	"fmt"

	"studytimer/internal/pomodoro"
	"studytimer/internal/schedule"
)

// Command represents a command sent over the socket
type Command struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// --- Command Argument Structs ---

type TimerSetArgs struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type TimerStartArgs struct {
	Seconds int `json:"seconds,omitempty"` // 0 resumes or uses the entered value
}

type PomodoroEnableArgs struct {
	Settings *pomodoro.Settings `json:"settings,omitempty"` // nil reuses the last settings
}

type SessionAddArgs struct {
	Day           int    `json:"day"`
	Subject       string `json:"subject"`
	StudyDuration int    `json:"studyDuration"`
	BreakDuration int    `json:"breakDuration"`
}

type SessionListArgs struct {
	Day *int `json:"day,omitempty"`
}

type SessionIDArgs struct {
	ID string `json:"id"`
}

type SessionUpdateArgs struct {
	ID string `json:"id"`
	schedule.SessionUpdate
}

type StudyStartArgs struct {
	ID    string         `json:"id"`
	Phase schedule.Phase `json:"phase,omitempty"`
}

type HistoryArgs struct {
	Days  int      `json:"days"`
	Types []string `json:"types,omitempty"`
}

// --- Command Names (Constants) ---

const (
	CmdPing            = "ping"
	CmdStatus          = "status"
	CmdActivate        = "activate"
	CmdTimerSet        = "timer_set"
	CmdTimerStart      = "timer_start"
	CmdTimerStop       = "timer_stop"
	CmdTimerReset      = "timer_reset"
	CmdPomodoroEnable  = "pomodoro_enable"
	CmdPomodoroDisable = "pomodoro_disable"
	CmdSessionAdd      = "session_add"
	CmdSessionList     = "session_list"
	CmdSessionEdit     = "session_edit"
	CmdSessionCancel   = "session_cancel_edit"
	CmdSessionUpdate   = "session_update"
	CmdSessionDelete   = "session_delete"
	CmdSessionReset    = "session_reset"
	CmdStudyStart      = "study_start"
	CmdStudyPause      = "study_pause"
	CmdStudyResume     = "study_resume"
	CmdStudyStop       = "study_stop"
	CmdStudyReset      = "study_reset"
	CmdPromptConfirm   = "prompt_confirm"
	CmdPromptDismiss   = "prompt_dismiss"
	CmdHistory         = "history"
)

// DecodeArgs converts the generic args of a decoded Command into out.
func DecodeArgs(input interface{}, output interface{}) error {
	if input == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal args map: %w", err)
	}
	if err := json.Unmarshal(jsonBytes, output); err != nil {
		return fmt.Errorf("failed to unmarshal args into struct: %w", err)
	}
	return nil
}
