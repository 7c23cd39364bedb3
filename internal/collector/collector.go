// Package collector watches the desktop for the user coming back to the
// timer, which is when persisted timers are reconciled.
package collector

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FocusInfo describes the focused window.
type FocusInfo struct {
	AppName string // WM_CLASS class
	Title   string
}

// Watcher reports every change of the focused window to onChange until ctx
// is cancelled or Stop is called.
type Watcher interface {
	Start(ctx context.Context, interval time.Duration, onChange func(FocusInfo)) error
	Stop() error
}

// Activation fires onActivate when focus moves onto one of the configured
// window classes from a window that is not one of them.
type Activation struct {
	classes    []string
	onActivate func()

	mu      sync.Mutex
	focused bool
}

func NewActivation(classes []string, onActivate func()) *Activation {
	normalized := make([]string, 0, len(classes))
	for _, c := range classes {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			normalized = append(normalized, c)
		}
	}
	return &Activation{classes: normalized, onActivate: onActivate}
}

// Observe is a Watcher callback.
func (a *Activation) Observe(info FocusInfo) {
	match := a.matches(info.AppName)
	a.mu.Lock()
	fire := match && !a.focused
	a.focused = match
	a.mu.Unlock()
	if fire && a.onActivate != nil {
		a.onActivate()
	}
}

func (a *Activation) matches(appName string) bool {
	name := strings.ToLower(appName)
	for _, c := range a.classes {
		if name == c {
			return true
		}
	}
	return false
}
