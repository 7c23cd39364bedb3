package x11

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"studytimer/internal/collector"
)

// FocusWatcher polls the EWMH active window.
type FocusWatcher struct {
	X         *xgbutil.XUtil
	lastFocus collector.FocusInfo
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewFocusWatcher() (*FocusWatcher, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	// _NET_ACTIVE_WINDOW needs an EWMH window manager
	if _, err := ewmh.CurrentDesktopGet(X); err != nil {
		log.Printf("Warning: EWMH potentially not supported by Window Manager: %v", err)
	}

	return &FocusWatcher{
		X:        X,
		stopChan: make(chan struct{}),
	}, nil
}

func (w *FocusWatcher) activeWindow() (collector.FocusInfo, error) {
	activeWinID, err := ewmh.ActiveWindowGet(w.X)
	if err != nil {
		return collector.FocusInfo{}, fmt.Errorf("could not get active window ID: %w", err)
	}
	if activeWinID == 0 {
		return collector.FocusInfo{}, nil
	}

	title, err := ewmh.WmNameGet(w.X, activeWinID)
	if err != nil || title == "" {
		title, _ = icccm.WmNameGet(w.X, activeWinID)
	}

	var appName string
	if classHints, err := icccm.WmClassGet(w.X, activeWinID); err == nil && classHints != nil {
		appName = classHints.Class
	}
	return collector.FocusInfo{AppName: appName, Title: title}, nil
}

func (w *FocusWatcher) Start(ctx context.Context, interval time.Duration, onChange func(collector.FocusInfo)) error {
	log.Printf("Starting X11 focus watcher (interval: %s)", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// The WM may not report a window right after connecting
	var err error
	for i := 0; i < 3; i++ {
		if w.lastFocus, err = w.activeWindow(); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		log.Printf("Warning: Failed to get initial window focus: %v", err)
	}
	onChange(w.lastFocus)

	for {
		select {
		case <-ctx.Done():
			log.Println("X11 focus watcher stopping due to context cancellation.")
			return ctx.Err()
		case <-w.stopChan:
			log.Println("X11 focus watcher stopping.")
			return nil
		case <-ticker.C:
			current, err := w.activeWindow()
			if err != nil {
				continue
			}
			if current != w.lastFocus {
				w.lastFocus = current
				onChange(current)
			}
		}
	}
}

func (w *FocusWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.X.Conn().Close()
	})
	return nil
}
