package app

import (
	"context"
	"fmt"
	"time"

	apperrors "studytimer/internal/errors"
	"studytimer/internal/event"
	"studytimer/internal/ipc"
	"studytimer/internal/schedule"
)

// processCommand routes the command to the correct handler
func (a *App) processCommand(ctx context.Context, cmd ipc.Command) ipc.Response {
	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong"}

	case ipc.CmdStatus:
		st, err := a.svc.Status(ctx)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{Success: true, Data: st}

	case ipc.CmdActivate:
		return result(a.svc.Activate(ctx), "Timers reconciled")

	case ipc.CmdTimerSet:
		var args ipc.TimerSetArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		return result(a.svc.SetInput(ctx, args.Hours, args.Minutes), fmt.Sprintf("Timer set to %02d:%02d", args.Hours, args.Minutes))

	case ipc.CmdTimerStart:
		var args ipc.TimerStartArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		return result(a.svc.StartTimer(ctx, args.Seconds), "Timer started")

	case ipc.CmdTimerStop:
		return result(a.svc.StopTimer(ctx), "Timer stopped")

	case ipc.CmdTimerReset:
		return result(a.svc.ResetTimer(ctx), "Timer reset")

	case ipc.CmdPomodoroEnable:
		var args ipc.PomodoroEnableArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		used, err := a.svc.EnablePomodoro(ctx, args.Settings)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{
			Success: true,
			Message: fmt.Sprintf("Pomodoro enabled: %d/%d/%d min, long break every %d", used.WorkMinutes, used.ShortBreakMinutes, used.LongBreakMinutes, used.MaxCycles),
			Data:    used,
		}

	case ipc.CmdPomodoroDisable:
		return result(a.svc.DisablePomodoro(ctx), "Pomodoro disabled")

	case ipc.CmdSessionAdd:
		var args ipc.SessionAddArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		sess, err := a.svc.AddSession(ctx, args.Day, args.Subject, args.StudyDuration, args.BreakDuration)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{Success: true, Message: fmt.Sprintf("Session '%s' added", sess.Subject), Data: sess}

	case ipc.CmdSessionList:
		var args ipc.SessionListArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		day := -1
		if args.Day != nil {
			day = *args.Day
		}
		sessions, err := a.svc.Sessions(ctx, day)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{Success: true, Data: sessions}

	case ipc.CmdSessionEdit:
		var args ipc.SessionIDArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		sess, err := a.svc.BeginEdit(ctx, args.ID)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{Success: true, Message: fmt.Sprintf("Editing '%s'", sess.Subject), Data: sess}

	case ipc.CmdSessionCancel:
		return result(a.svc.CancelEdit(ctx), "Edit cancelled")

	case ipc.CmdSessionUpdate:
		var args ipc.SessionUpdateArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		sess, err := a.svc.UpdateSession(ctx, args.ID, args.SessionUpdate)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{Success: true, Message: fmt.Sprintf("Session '%s' updated", sess.Subject), Data: sess}

	case ipc.CmdSessionDelete:
		var args ipc.SessionIDArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		return result(a.svc.DeleteSession(ctx, args.ID), "Session deleted")

	case ipc.CmdSessionReset:
		var args ipc.SessionIDArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		sess, err := a.svc.ResetSession(ctx, args.ID)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{Success: true, Message: fmt.Sprintf("Session '%s' reset", sess.Subject), Data: sess}

	case ipc.CmdStudyStart:
		var args ipc.StudyStartArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		if args.Phase == "" {
			args.Phase = schedule.PhaseStudy
		}
		return result(a.svc.StartStudy(ctx, args.ID, args.Phase), fmt.Sprintf("Study %s phase started", args.Phase))

	case ipc.CmdStudyPause:
		return result(a.svc.PauseStudy(ctx), "Study timer paused")

	case ipc.CmdStudyResume:
		return result(a.svc.ResumeStudy(ctx), "Study timer resumed")

	case ipc.CmdStudyStop:
		return result(a.svc.StopStudy(ctx), "Study timer stopped")

	case ipc.CmdStudyReset:
		return result(a.svc.ResetStudy(ctx), "Study session reset")

	case ipc.CmdPromptConfirm:
		return result(a.svc.ConfirmPrompt(ctx), "Confirmed")

	case ipc.CmdPromptDismiss:
		return result(a.svc.DismissPrompt(ctx), "Dismissed")

	case ipc.CmdHistory:
		var args ipc.HistoryArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd.Name, err)
		}
		if args.Days <= 0 {
			args.Days = 7
		}
		types := make([]event.EventType, 0, len(args.Types))
		for _, t := range args.Types {
			types = append(types, event.EventType(t))
		}
		end := time.Now()
		events, err := a.svc.History(ctx, end.AddDate(0, 0, -args.Days), end, types...)
		if err != nil {
			return failure(err)
		}
		return ipc.Response{Success: true, Data: events}

	default:
		return ipc.Response{Success: false, Code: "unknown_command", Message: fmt.Sprintf("Unknown command: %s", cmd.Name)}
	}
}

func result(err error, message string) ipc.Response {
	if err != nil {
		return failure(err)
	}
	return ipc.Response{Success: true, Message: message}
}

func failure(err error) ipc.Response {
	apiErr := apperrors.From(err)
	return ipc.Response{Success: false, Code: apiErr.Code, Message: apiErr.Message}
}

func invalidArgs(name string, err error) ipc.Response {
	return ipc.Response{Success: false, Code: "invalid_args", Message: fmt.Sprintf("Invalid args for %s: %v", name, err)}
}
