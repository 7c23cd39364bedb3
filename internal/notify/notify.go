// Package notify delivers best-effort user notifications.
package notify

import (
	"errors"
	"log"

	"github.com/gen2brain/beeep"
)

type Notifier interface {
	Notify(title, body string) error
}

// Desktop raises a desktop notification through the platform's
// notification service.
type Desktop struct {
	Icon string
}

func (d Desktop) Notify(title, body string) error {
	return beeep.Notify(title, body, d.Icon)
}

// Async hands each notification to its own goroutine, so a slow or hung
// notification service never stalls the caller. Failures are logged.
type Async struct {
	Notifier Notifier
}

func (a Async) Notify(title, body string) error {
	go Send(a.Notifier, title, body)
	return nil
}

// Log writes notifications to the process log.
type Log struct{}

func (Log) Notify(title, body string) error {
	log.Printf("Notification: [%s] %s", title, body)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send delivers a notification and logs any failure instead of returning it.
func Send(n Notifier, title, body string) {
	if n == nil {
		return
	}
	if err := n.Notify(title, body); err != nil {
		log.Printf("Warning: notification %q failed: %v", title, err)
	}
}

// Recorder captures notifications in memory. Useful in tests.
type Recorder struct {
	Sent []Message
	Err  error
}

type Message struct {
	Title string
	Body  string
}

func (r *Recorder) Notify(title, body string) error {
	r.Sent = append(r.Sent, Message{Title: title, Body: body})
	return r.Err
}
