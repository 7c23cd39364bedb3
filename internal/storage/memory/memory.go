// Package memory is an in-process Storage used by tests and by the
// "memory" backend when nothing should survive a restart.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"studytimer/internal/event"
	"studytimer/internal/storage"
)

var ErrClosed = errors.New("memory store is closed")

type Store struct {
	mu     sync.Mutex
	kv     map[string]string
	events []event.Event
	nextID int64
	closed bool

	// FailWrites makes Set and Remove fail, for exercising best-effort paths.
	FailWrites bool
}

func New() *Store {
	return &Store{kv: make(map[string]string)}
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) Init(ctx context.Context) error { return nil }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.FailWrites {
		return errors.New("write rejected")
	}
	s.kv[key] = value
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.FailWrites {
		return errors.New("write rejected")
	}
	delete(s.kv, key)
	return nil
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.kv[key]
	return ok
}

func (s *Store) SaveEvent(ctx context.Context, e event.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.nextID++
	e.ID = s.nextID
	s.events = append(s.events, e)
	return e.ID, nil
}

func (s *Store) GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []event.Event
	for _, e := range s.events {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		if !storage.MatchesType(e.Type, eventTypes) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
