package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"studytimer/internal/config"
	"studytimer/internal/display"
	"studytimer/internal/event"
	"studytimer/internal/ipc"
	"studytimer/internal/pomodoro"
	"studytimer/internal/schedule"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "studytimer-cli",
	Short: "CLI tool to interact with the Study Timer daemon",
	Long:  `A command-line interface to drive the countdown, Pomodoro and study schedule of the running Study Timer daemon via its Unix socket.`,
}

// --- Client Helper Functions ---

// request sends cmd and exits on transport errors or a failed response.
func request(cmd ipc.Command) ipc.Response {
	resp, err := ipc.Send(socketPath, cmd)
	if err != nil {
		log.Fatalf("Error talking to daemon (%s): %v\nIs the Study Timer daemon running?", socketPath, err)
	}
	if !resp.Success {
		msg := resp.Message
		if resp.Code != "" {
			msg = fmt.Sprintf("%s (%s)", msg, resp.Code)
		}
		fmt.Fprintln(os.Stderr, render(os.Stderr, errorStyle, "Error:"), msg)
		os.Exit(1)
	}
	return resp
}

func sendCommand(cmd ipc.Command) {
	resp := request(cmd)
	fmt.Println(render(os.Stdout, successStyle, "Success:"), resp.Message)
	if resp.Data != nil {
		prettyData, err := json.MarshalIndent(resp.Data, "", "  ")
		if err == nil {
			fmt.Println("Data:")
			fmt.Println(string(prettyData))
		} else {
			fmt.Println("Data (raw):", resp.Data)
		}
	}
}

func sessionID(args []string) ipc.SessionIDArgs {
	return ipc.SessionIDArgs{ID: args[0]}
}

// --- Command Definitions ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the Study Timer daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdPing})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the countdown, Pomodoro and study timer state",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStatus})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live view of both timers",
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		if err := watch(socketPath, interval); err != nil {
			log.Fatalf("Error running live view: %v", err)
		}
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Reconcile both timers with the wall clock (as when the window regains focus)",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdActivate})
	},
}

// Timer Command Group
var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control the countdown timer",
}

var timerSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the hours and minutes used by the next start",
	Run: func(cmd *cobra.Command, args []string) {
		hours, _ := cmd.Flags().GetInt("hours")
		minutes, _ := cmd.Flags().GetInt("minutes")
		sendCommand(ipc.Command{Name: ipc.CmdTimerSet, Args: ipc.TimerSetArgs{Hours: hours, Minutes: minutes}})
	},
}

var timerStartCmd = &cobra.Command{
	Use:   "start [duration]",
	Short: "Start the countdown (e.g., '25m', '1h30m'); without a duration resumes or uses the set value",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var seconds int
		if len(args) == 1 {
			d, err := time.ParseDuration(args[0])
			if err != nil || d < time.Second {
				log.Fatalf("Error: Invalid duration %q", args[0])
			}
			seconds = int(d / time.Second)
		}
		sendCommand(ipc.Command{Name: ipc.CmdTimerStart, Args: ipc.TimerStartArgs{Seconds: seconds}})
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Pause the countdown, keeping the remaining time",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdTimerStop})
	},
}

var timerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Stop the countdown and clear it (also ends any Pomodoro chain)",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdTimerReset})
	},
}

// Pomodoro Command Group
var pomodoroCmd = &cobra.Command{
	Use:   "pomodoro",
	Short: "Control Pomodoro mode",
}

var pomodoroEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable Pomodoro mode and start a work phase",
	Run: func(cmd *cobra.Command, args []string) {
		var pa ipc.PomodoroEnableArgs
		flags := cmd.Flags()
		if flags.Changed("work") || flags.Changed("short") || flags.Changed("long") || flags.Changed("cycles") {
			work, _ := flags.GetInt("work")
			short, _ := flags.GetInt("short")
			long, _ := flags.GetInt("long")
			cycles, _ := flags.GetInt("cycles")
			pa.Settings = &pomodoro.Settings{WorkMinutes: work, ShortBreakMinutes: short, LongBreakMinutes: long, MaxCycles: cycles}
		}
		sendCommand(ipc.Command{Name: ipc.CmdPomodoroEnable, Args: pa})
	},
}

var pomodoroDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable Pomodoro mode and reset the countdown",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdPomodoroDisable})
	},
}

// Session Command Group
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage study schedule sessions",
}

var sessionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a study session to a day of the week",
	Run: func(cmd *cobra.Command, args []string) {
		dayStr, _ := cmd.Flags().GetString("day")
		subject, _ := cmd.Flags().GetString("subject")
		study, _ := cmd.Flags().GetInt("study")
		brk, _ := cmd.Flags().GetInt("break")
		day, err := parseDay(dayStr)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		sendCommand(ipc.Command{Name: ipc.CmdSessionAdd, Args: ipc.SessionAddArgs{
			Day: day, Subject: subject, StudyDuration: study, BreakDuration: brk,
		}})
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, optionally for one day",
	Run: func(cmd *cobra.Command, args []string) {
		var la ipc.SessionListArgs
		if dayStr, _ := cmd.Flags().GetString("day"); dayStr != "" {
			day, err := parseDay(dayStr)
			if err != nil {
				log.Fatalf("Error: %v", err)
			}
			la.Day = &day
		}
		resp := request(ipc.Command{Name: ipc.CmdSessionList, Args: la})
		var sessions []schedule.Session
		if err := ipc.DecodeData(resp, &sessions); err != nil {
			log.Fatalf("Error decoding sessions: %v", err)
		}
		printSessions(sessions)
	},
}

func printSessions(sessions []schedule.Session) {
	if len(sessions) == 0 {
		fmt.Println(render(os.Stdout, dimStyle, "No sessions."))
		return
	}
	fmt.Println(render(os.Stdout, headerStyle, fmt.Sprintf("%d sessions", len(sessions))))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDAY\tSUBJECT\tSTUDY\tBREAK\tSTATUS\tSTUDIED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%dm\t%s\t%s\n",
			s.ID, dayName(s.Day), s.Subject, s.StudyDuration, s.BreakDuration, s.Status, display.Format(s.TotalStudyTime))
	}
	w.Flush()
}

var sessionEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Mark a session as being edited",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdSessionEdit, Args: sessionID(args)})
	},
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel-edit",
	Short: "Leave edit mode without changes",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdSessionCancel})
	},
}

var sessionUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a session; a running timer is rescaled to the new duration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ua := ipc.SessionUpdateArgs{ID: args[0]}
		flags := cmd.Flags()
		if flags.Changed("day") {
			dayStr, _ := flags.GetString("day")
			day, err := parseDay(dayStr)
			if err != nil {
				log.Fatalf("Error: %v", err)
			}
			ua.Day = &day
		}
		if flags.Changed("subject") {
			subject, _ := flags.GetString("subject")
			ua.Subject = &subject
		}
		if flags.Changed("study") {
			study, _ := flags.GetInt("study")
			ua.StudyDuration = &study
		}
		if flags.Changed("break") {
			brk, _ := flags.GetInt("break")
			ua.BreakDuration = &brk
		}
		sendCommand(ipc.Command{Name: ipc.CmdSessionUpdate, Args: ua})
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session (stops its timer if active)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdSessionDelete, Args: sessionID(args)})
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Return an inactive session to idle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdSessionReset, Args: sessionID(args)})
	},
}

var sessionImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Add every session listed in a YAML schedule file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := readScheduleFile(args[0])
		if err != nil {
			log.Fatalf("Error reading schedule: %v", err)
		}
		for i, e := range entries {
			day, err := parseDay(e.Day)
			if err != nil {
				log.Fatalf("Error in entry %d: %v", i+1, err)
			}
			request(ipc.Command{Name: ipc.CmdSessionAdd, Args: ipc.SessionAddArgs{
				Day: day, Subject: e.Subject, StudyDuration: e.Study, BreakDuration: e.Break,
			}})
		}
		fmt.Println(render(os.Stdout, successStyle, "Success:"), fmt.Sprintf("Imported %d sessions", len(entries)))
	},
}

var sessionExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the schedule as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		resp := request(ipc.Command{Name: ipc.CmdSessionList})
		var sessions []schedule.Session
		if err := ipc.DecodeData(resp, &sessions); err != nil {
			log.Fatalf("Error decoding sessions: %v", err)
		}
		out, err := encodeSchedule(sessions)
		if err != nil {
			log.Fatalf("Error encoding schedule: %v", err)
		}
		os.Stdout.Write(out)
	},
}

// Study Command Group
var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Control the study session timer",
}

var studyStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start the study phase of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStudyStart, Args: ipc.StudyStartArgs{ID: args[0], Phase: schedule.PhaseStudy}})
	},
}

var studyBreakCmd = &cobra.Command{
	Use:   "break <id>",
	Short: "Start the break phase of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStudyStart, Args: ipc.StudyStartArgs{ID: args[0], Phase: schedule.PhaseBreak}})
	},
}

var studyPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the study timer",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStudyPause})
	},
}

var studyResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused study timer",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStudyResume})
	},
}

var studyStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the study timer and return the session to idle",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStudyStop})
	},
}

var studyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Stop the active session, keeping the time studied so far",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStudyReset})
	},
}

// Prompt Command Group
var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Answer the pending study prompt",
}

var promptConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Accept the pending prompt (start the break or the next session)",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdPromptConfirm})
	},
}

var promptDismissCmd = &cobra.Command{
	Use:   "dismiss",
	Short: "Decline the pending prompt",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdPromptDismiss})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded timer completions",
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		types, _ := cmd.Flags().GetStringSlice("type")
		resp := request(ipc.Command{Name: ipc.CmdHistory, Args: ipc.HistoryArgs{Days: days, Types: types}})
		var events []event.Event
		if err := ipc.DecodeData(resp, &events); err != nil {
			log.Fatalf("Error decoding history: %v", err)
		}
		if len(events) == 0 {
			fmt.Println(render(os.Stdout, dimStyle, "No events."))
			return
		}
		fmt.Println(render(os.Stdout, headerStyle, fmt.Sprintf("%d events in the last %d days", len(events), days)))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tTAG\tNOTES")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Type, e.Tag, strings.TrimSpace(e.Notes))
		}
		w.Flush()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.DefaultSocketPath(), "Path to the daemon's Unix socket")

	watchCmd.Flags().Duration("interval", time.Second, "Refresh interval")
	rootCmd.AddCommand(pingCmd, statusCmd, watchCmd, activateCmd)

	// --- Timer Commands ---
	timerSetCmd.Flags().Int("hours", 0, "Hours")
	timerSetCmd.Flags().IntP("minutes", "m", 0, "Minutes")
	timerCmd.AddCommand(timerSetCmd, timerStartCmd, timerStopCmd, timerResetCmd)
	rootCmd.AddCommand(timerCmd)

	// --- Pomodoro Commands ---
	pomodoroEnableCmd.Flags().Int("work", 25, "Work phase length in minutes")
	pomodoroEnableCmd.Flags().Int("short", 5, "Short break length in minutes")
	pomodoroEnableCmd.Flags().Int("long", 15, "Long break length in minutes")
	pomodoroEnableCmd.Flags().Int("cycles", 4, "Work phases before a long break")
	pomodoroCmd.AddCommand(pomodoroEnableCmd, pomodoroDisableCmd)
	rootCmd.AddCommand(pomodoroCmd)

	// --- Session Commands ---
	sessionAddCmd.Flags().StringP("day", "d", "", "Day of week, 0-6 or name (required)")
	sessionAddCmd.Flags().StringP("subject", "s", "", "Subject (required)")
	sessionAddCmd.Flags().Int("study", 25, "Study minutes")
	sessionAddCmd.Flags().Int("break", 5, "Break minutes")
	sessionAddCmd.MarkFlagRequired("day")
	sessionAddCmd.MarkFlagRequired("subject")
	sessionListCmd.Flags().StringP("day", "d", "", "Only list this day")
	sessionUpdateCmd.Flags().StringP("day", "d", "", "New day")
	sessionUpdateCmd.Flags().StringP("subject", "s", "", "New subject")
	sessionUpdateCmd.Flags().Int("study", 0, "New study minutes")
	sessionUpdateCmd.Flags().Int("break", 0, "New break minutes")
	sessionCmd.AddCommand(sessionAddCmd, sessionListCmd, sessionEditCmd, sessionCancelCmd,
		sessionUpdateCmd, sessionDeleteCmd, sessionResetCmd, sessionImportCmd, sessionExportCmd)
	rootCmd.AddCommand(sessionCmd)

	// --- Study Commands ---
	studyCmd.AddCommand(studyStartCmd, studyBreakCmd, studyPauseCmd, studyResumeCmd, studyStopCmd, studyResetCmd)
	rootCmd.AddCommand(studyCmd)

	promptCmd.AddCommand(promptConfirmCmd, promptDismissCmd)
	rootCmd.AddCommand(promptCmd)

	historyCmd.Flags().IntP("days", "d", 7, "Number of past days to include")
	historyCmd.Flags().StringSliceP("type", "t", nil, "Only these event types (e.g., timer_complete, study_phase)")
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
