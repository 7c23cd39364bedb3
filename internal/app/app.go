package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"studytimer/internal/clock"
	"studytimer/internal/collector"
	"studytimer/internal/collector/x11"
	"studytimer/internal/config"
	"studytimer/internal/countdown"
	"studytimer/internal/display"
	"studytimer/internal/event"
	"studytimer/internal/eventloop"
	"studytimer/internal/httpapi"
	"studytimer/internal/ipc"
	"studytimer/internal/notify"
	"studytimer/internal/pomodoro"
	"studytimer/internal/schedule"
	"studytimer/internal/service"
	"studytimer/internal/sound"
	"studytimer/internal/storage"
)

type App struct {
	cfg     *config.Config
	storage storage.Storage

	loop      *eventloop.Loop
	clock     *clock.Real
	hub       *display.Hub
	engine    *countdown.Engine
	cycle     *pomodoro.Cycle
	scheduler *schedule.Scheduler
	svc       *service.Service

	focus      collector.Watcher
	activation *collector.Activation

	// --- Socket Handling ---
	socketPath string
	listener   *net.UnixListener
	httpServer *http.Server

	eventChan chan event.Event

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		eventChan:  make(chan event.Event, 100),
		socketPath: cfg.SocketPath,
		loop:       eventloop.New(64),
		hub:        display.NewHub(cfg.CORSOrigins...),
		ctx:        ctx,
		cancel:     cancel,
	}
	if a.socketPath == "" {
		a.socketPath = config.DefaultSocketPath()
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		cancel()
		return nil, err
	}
	a.storage = store

	notifiers := notify.Multi{notify.Log{}, a.hub}
	if cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.Async{Notifier: notify.Desktop{Icon: cfg.Notify.Icon}})
	}
	player := sound.Open(cfg.Sound.File, cfg.Sound.Repeat, cfg.Sound.Volume)
	recorder := event.RecorderFunc(a.record)
	input := &countdown.ManualInput{}

	a.clock = clock.NewReal(a.loop.Post)
	a.engine = countdown.New(countdown.Options{
		Clock:        a.clock,
		Store:        store,
		Notifier:     notifiers,
		Sound:        player,
		Display:      a.hub.Channel(display.ChannelTimer),
		Input:        input,
		Recorder:     recorder,
		TickInterval: cfg.TimerTick(),
	})
	a.cycle = pomodoro.New(a.engine, store, a.clock, recorder, pomodoro.Settings{
		WorkMinutes:       cfg.Pomodoro.WorkMinutes,
		ShortBreakMinutes: cfg.Pomodoro.ShortBreakMinutes,
		LongBreakMinutes:  cfg.Pomodoro.LongBreakMinutes,
		MaxCycles:         cfg.Pomodoro.MaxCycles,
	})
	a.engine.BindChain(a.cycle.Resume, a.cycle.Discard)
	a.scheduler = schedule.New(schedule.Options{
		Clock:        a.clock,
		Store:        store,
		Notifier:     notifiers,
		Sound:        player,
		Display:      a.hub.Channel(display.ChannelStudy),
		Recorder:     recorder,
		Exclusion:    a.engine,
		TickInterval: cfg.ScheduleTick(),
	})
	a.svc = service.New(a.loop, a.engine, a.cycle, a.scheduler, input, store)

	if cfg.Focus.Enabled {
		w, err := x11.NewFocusWatcher()
		if err != nil {
			log.Printf("Warning: Failed to initialize X11 focus watcher: %v. Focus activation disabled.", err)
		} else {
			a.focus = w
			a.activation = collector.NewActivation(cfg.Focus.WindowClasses, func() {
				log.Println("Timer window focused, reconciling timers.")
				a.loop.Post(a.recoverTimers)
			})
		}
	}

	return a, nil
}

// recoverTimers reconciles both timers with the wall clock. Runs on the loop.
func (a *App) recoverTimers() {
	a.engine.RecoverOnActivate()
	a.scheduler.Recover()
}

// record queues an event for the event log without blocking the loop.
func (a *App) record(e event.Event) {
	select {
	case a.eventChan <- e:
	default:
		log.Printf("Warning: event queue full, dropping %s event", e.Type)
	}
}

// setupSocket checks for existing socket and creates the listener
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, 1*time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		log.Printf("Stale socket file found at %s, removing.", a.socketPath)
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}
	if err := os.Chmod(a.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set permissions on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	log.Printf("Listening for commands on %s", a.socketPath)
	return nil
}

// listenForCommands accepts connections and handles them
func (a *App) listenForCommands() {
	defer a.wg.Done()
	defer log.Println("Socket command listener stopped.")

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("Failed to accept connection: %v", err)
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		a.wg.Add(1)
		go a.handleConnection(conn)
	}
}

// handleConnection reads command, processes it, and sends response
func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()
	defer a.wg.Done()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			log.Printf("Failed to decode command: %v", err)
		}
		_ = encoder.Encode(ipc.Response{Success: false, Message: "Failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	log.Printf("Received command: %s", cmd.Name)

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	response := a.processCommand(ctx, cmd)

	if err := encoder.Encode(response); err != nil {
		log.Printf("Failed to send response: %v", err)
	}
}

func (a *App) startHTTP() {
	if a.cfg.HTTPAddr == "" {
		log.Println("HTTP API: DISABLED")
		return
	}
	a.httpServer = &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           httpapi.New(a.svc, a.hub, a.cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP API listening on %s", a.cfg.HTTPAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()
}

func (a *App) startFocusWatcher() {
	if a.focus == nil {
		log.Println("X11 focus activation: DISABLED")
		return
	}
	log.Println("X11 focus activation: ENABLED")
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.focus.Start(a.ctx, 500*time.Millisecond, a.activation.Observe)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("X11 focus watcher error: %v", err)
		}
	}()
}

func (a *App) Run() error {
	defer a.cleanup()

	log.Println("Starting Study Timer daemon...")

	if err := a.setupSocket(); err != nil {
		return fmt.Errorf("failed to set up socket: %w", err)
	}

	a.handleSignals()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = a.loop.Run(a.ctx)
	}()

	// Timers resume from the store before any command is served
	if err := a.loop.Call(a.ctx, a.recoverTimers); err != nil {
		return fmt.Errorf("initial recovery: %w", err)
	}

	a.wg.Add(1)
	go a.processEvents()

	a.wg.Add(1)
	go a.listenForCommands()

	a.startHTTP()
	a.startFocusWatcher()

	_, err := a.storage.SaveEvent(a.ctx, event.Event{Timestamp: time.Now(), Type: event.EventTypeAppStart})
	if err != nil {
		log.Printf("Warning: Failed to save AppStart event: %v", err)
	}

	log.Println("Study Timer daemon running. Send commands via studytimer-cli or socket.")
	<-a.ctx.Done()

	log.Println("Shutdown signal received, waiting for components...")

	if a.listener != nil {
		if err := a.listener.Close(); err != nil {
			log.Printf("Error closing socket listener: %v", err)
		}
	}
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		}
		cancel()
	}
	if a.focus != nil {
		if err := a.focus.Stop(); err != nil {
			log.Printf("Error stopping X11 focus watcher: %v", err)
		}
	}

	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		<-loopDone
		close(waitChan)
	}()

	select {
	case <-waitChan:
		log.Println("All application goroutines finished.")
	case <-time.After(5 * time.Second):
		log.Println("Warning: Timeout waiting for application goroutines to stop.")
	}

	log.Println("Study Timer daemon finished.")
	return nil
}

// Shutdown stops Run.
func (a *App) Shutdown() { a.cancel() }

// processEvents writes recorded completions to the event log.
func (a *App) processEvents() {
	defer a.wg.Done()
	defer log.Println("Event processor stopped.")

	for {
		select {
		case <-a.ctx.Done():
			return
		case e := <-a.eventChan:
			if e.Timestamp.IsZero() {
				e.Timestamp = time.Now()
			}
			if _, err := a.storage.SaveEvent(a.ctx, e); err != nil {
				log.Printf("Error saving event (Type: %s, Tag: %s): %v", e.Type, e.Tag, err)
				continue
			}
			log.Printf("Event saved: Type=%s, Tag=%s, Notes=%s", e.Type, e.Tag, e.Notes)
		}
	}
}

// handleSignals shuts down on SIGINT/SIGTERM. SIGCONT means the process
// was resumed after a suspend, so the timers are reconciled.
func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCONT)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-a.ctx.Done():
				return
			case sig := <-sigChan:
				if sig == syscall.SIGCONT {
					log.Println("Resumed, reconciling timers.")
					a.loop.Post(a.recoverTimers)
					continue
				}
				log.Printf("Received signal: %v. Initiating shutdown...", sig)
				a.cancel()
				return
			}
		}
	}()
}

func (a *App) cleanup() {
	log.Println("Running cleanup...")
	a.cancel()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer saveCancel()
	_, err := a.storage.SaveEvent(saveCtx, event.Event{Timestamp: time.Now(), Type: event.EventTypeAppStop})
	if err != nil {
		log.Printf("Warning: Failed to save AppStop event: %v", err)
	}

	a.clock.Stop()
	a.hub.Close()

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}

	if a.listener != nil {
		if _, err := os.Stat(a.socketPath); err == nil {
			log.Printf("Removing socket file: %s", a.socketPath)
			if err := os.Remove(a.socketPath); err != nil {
				log.Printf("Warning: Failed to remove socket file %s: %v", a.socketPath, err)
			}
		}
	}

	log.Println("Cleanup finished.")
}
