package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sevlyar/go-daemon"
	flag "github.com/spf13/pflag"

	"studytimer/internal/app"
	"studytimer/internal/config"
)

var (
	configPath = flag.StringP("config", "c", "", "Path to configuration file (e.g., config.yaml). Defaults to ./config.yaml, ~/.config/studytimer/config.yaml, /etc/studytimer/config.yaml")
	logPath    = flag.String("log", "", "Path to log file (optional, defaults to stderr)")
	daemonize  = flag.BoolP("daemon", "d", false, "Detach and run in the background")
	pidPath    = flag.String("pid", "", "PID file used in daemon mode (defaults next to the socket)")
)

// setupLogging configures the log output destination.
func setupLogging(logFilePath string) (*os.File, error) {
	if logFilePath == "" {
		log.SetOutput(os.Stderr)
		log.Println("Logging to stderr")
		return nil, nil
	}

	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	log.SetOutput(file)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Printf("Logging to file: %s", logFilePath)
	return file, nil
}

// detach re-executes the binary in the background. The parent returns
// done=true and should exit.
func detach() (release func(), done bool) {
	pid := *pidPath
	if pid == "" {
		pid = filepath.Join(filepath.Dir(config.DefaultSocketPath()), "studytimer.pid")
	}
	wd, _ := os.Getwd()
	dctx := &daemon.Context{
		PidFileName: pid,
		PidFilePerm: 0644,
		WorkDir:     wd,
		Umask:       027,
		Args:        os.Args,
	}

	child, err := dctx.Reborn()
	if err != nil {
		log.Fatalf("FATAL: Failed to daemonize: %v", err)
	}
	if child != nil {
		fmt.Printf("studytimer started in background (pid %d)\n", child.Pid)
		return nil, true
	}
	return func() {
		if err := dctx.Release(); err != nil {
			log.Printf("Warning: Failed to release pid file: %v", err)
		}
	}, false
}

func main() {
	flag.Parse()

	if *daemonize {
		release, done := detach()
		if done {
			return
		}
		defer release()
	}

	logFile, logErr := setupLogging(*logPath)
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Error setting up file logging: %v. Logging to stderr instead.\n", logErr)
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to create application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("FATAL: Application exited with error: %v", err)
	}

	log.Println("Study Timer finished successfully.")
}
