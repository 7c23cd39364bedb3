package display

import "fmt"

// Display receives the formatted remaining time on every tick.
type Display interface {
	Show(text string)
}

// Format renders whole seconds as HH:MM:SS. Negative values render as zero.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Func adapts a function to Display.
type Func func(text string)

func (f Func) Show(text string) { f(text) }

var Discard Display = Func(func(string) {})
