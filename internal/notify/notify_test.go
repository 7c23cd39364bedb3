package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiDeliversToAll(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{Err: errors.New("dbus unavailable")}
	c := &Recorder{}

	err := Multi{a, b, c}.Notify("Timer", "Time's up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dbus unavailable")
	assert.Len(t, a.Sent, 1)
	assert.Len(t, c.Sent, 1)
	assert.Equal(t, Message{Title: "Timer", Body: "Time's up"}, c.Sent[0])
}

func TestSendSwallowsErrors(t *testing.T) {
	r := &Recorder{Err: errors.New("nope")}
	assert.NotPanics(t, func() { Send(r, "a", "b") })
	assert.NotPanics(t, func() { Send(nil, "a", "b") })
	assert.Len(t, r.Sent, 1)
}

type blocking struct {
	release chan struct{}
	calls   chan Message
}

func (b *blocking) Notify(title, body string) error {
	b.calls <- Message{Title: title, Body: body}
	<-b.release
	return errors.New("service gone")
}

func TestAsyncDoesNotWait(t *testing.T) {
	b := &blocking{release: make(chan struct{}), calls: make(chan Message, 1)}
	defer close(b.release)

	done := make(chan error, 1)
	go func() { done <- Async{Notifier: b}.Notify("Timer", "Time's up") }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Async.Notify waited for the notifier")
	}
	select {
	case msg := <-b.calls:
		assert.Equal(t, Message{Title: "Timer", Body: "Time's up"}, msg)
	case <-time.After(time.Second):
		t.Fatal("notification never delivered")
	}
}
