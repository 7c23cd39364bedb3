package countdown

import (
	"sync"

	apperrors "studytimer/internal/errors"
)

// ManualInput holds the hours and minutes last entered for the primary
// timer. It is read from the loop and written from the service, so it
// carries its own lock.
type ManualInput struct {
	mu      sync.Mutex
	hours   int
	minutes int
}

func (m *ManualInput) Set(hours, minutes int) error {
	if hours < 0 || hours > 99 {
		return apperrors.BadRequest("invalid_input", "hours must be between 0 and 99")
	}
	if minutes < 0 || minutes > 59 {
		return apperrors.BadRequest("invalid_input", "minutes must be between 0 and 59")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours, m.minutes = hours, minutes
	return nil
}

func (m *ManualInput) Value() (hours, minutes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hours, m.minutes
}

func (m *ManualInput) Seconds() int {
	h, min := m.Value()
	return h*3600 + min*60
}
