package sound

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player plays the completion alert. Play returns immediately.
type Player interface {
	Play()
	Stop()
}

// Nop is used when no sound file is configured or audio init failed.
type Nop struct{}

func (Nop) Play() {}
func (Nop) Stop() {}

// Speaker loops a decoded WAV buffer through the system audio device.
type Speaker struct {
	buffer *beep.Buffer
	repeat int
	volume float64

	mu      sync.Mutex
	playing atomic.Bool // cleared from the speaker goroutine
}

var speakerOnce sync.Once

// NewSpeaker decodes path into memory and initializes the audio device.
// repeat is the number of times the clip plays per alert.
func NewSpeaker(path string, repeat int, volume float64) (*Speaker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sound file %s: %w", path, err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sound file %s: %w", path, err)
	}
	defer streamer.Close()

	var initErr error
	speakerOnce.Do(func() {
		initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", initErr)
	}

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)

	if repeat < 1 {
		repeat = 1
	}
	return &Speaker{buffer: buffer, repeat: repeat, volume: volume}, nil
}

func (s *Speaker) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing.Load() {
		speaker.Clear()
	}
	clip := beep.Loop(s.repeat, s.buffer.Streamer(0, s.buffer.Len()))
	volumeCtrl := &effects.Volume{
		Streamer: clip,
		Base:     2,
		Volume:   s.volume,
		Silent:   false,
	}
	s.playing.Store(true)
	speaker.Play(beep.Seq(volumeCtrl, beep.Callback(func() {
		s.playing.Store(false)
	})))
}

func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing.Swap(false) {
		speaker.Clear()
	}
}

// Open returns a Speaker for path, or Nop when path is empty or the audio
// device is unavailable.
func Open(path string, repeat int, volume float64) Player {
	if path == "" {
		return Nop{}
	}
	p, err := NewSpeaker(path, repeat, volume)
	if err != nil {
		log.Printf("Warning: sound disabled: %v", err)
		return Nop{}
	}
	return p
}

// Counter counts calls. Useful in tests.
type Counter struct {
	Plays, Stops int
}

func (c *Counter) Play() { c.Plays++ }
func (c *Counter) Stop() { c.Stops++ }
