package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"studytimer/internal/ipc"
	"studytimer/internal/service"
)

// watch shows a live view of both timers until q or Esc is pressed.
func watch(socket string, interval time.Duration) error {
	app := tview.NewApplication()
	timerView := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	timerView.SetBorder(true).SetTitle(" Timer ")
	studyView := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	studyView.SetBorder(true).SetTitle(" Study ")
	footer := tview.NewTextView().SetDynamicColors(true).SetText("[gray]q to quit")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(timerView, 0, 1, false).
		AddItem(studyView, 0, 1, false).
		AddItem(footer, 1, 0, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return ev
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			timerText, studyText := pollStatus(socket)
			app.QueueUpdateDraw(func() {
				timerView.SetText(timerText)
				studyView.SetText(studyText)
			})
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	return app.SetRoot(layout, true).Run()
}

func pollStatus(socket string) (string, string) {
	resp, err := ipc.Send(socket, ipc.Command{Name: ipc.CmdStatus})
	if err != nil {
		msg := fmt.Sprintf("\n[red]%v", err)
		return msg, msg
	}
	var st service.Status
	if err := ipc.DecodeData(resp, &st); err != nil {
		msg := fmt.Sprintf("\n[red]bad status: %v", err)
		return msg, msg
	}
	return formatTimer(st), formatStudy(st)
}

func formatTimer(st service.Status) string {
	var b strings.Builder
	color := "white"
	if st.Timer.Running {
		color = "green"
	}
	fmt.Fprintf(&b, "\n[%s::b]%s[-::-]\n", color, st.Timer.Display)
	if st.Pomodoro.Enabled && st.Pomodoro.State != nil {
		fmt.Fprintf(&b, "pomodoro: %s, cycle %d/%d\n", st.Pomodoro.State.Session, st.Pomodoro.State.Cycle, st.Pomodoro.Settings.MaxCycles)
	}
	if !st.Timer.ControlsEnabled {
		b.WriteString("[yellow]locked by study session[-]\n")
	}
	return b.String()
}

func formatStudy(st service.Status) string {
	s := st.Study
	var b strings.Builder
	if s.ActiveSessionID == "" {
		b.WriteString("\n[gray]no active session[-]\n")
	} else {
		color := "green"
		if s.State == "paused" {
			color = "yellow"
		}
		fmt.Fprintf(&b, "\n[::b]%s[::-] (%s)\n[%s::b]%s[-::-] %s\n", s.Subject, s.Phase, color, s.Display, s.State)
	}
	if s.Prompt != nil {
		fmt.Fprintf(&b, "\n[aqua]%s[-]\nconfirm or dismiss with the prompt command\n", s.Prompt.Message)
	}
	return b.String()
}
