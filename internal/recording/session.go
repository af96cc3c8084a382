// Package recording captures a microphone take for voice cloning. A take and
// an uploaded file are mutually exclusive inputs.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
)

// State is the recording state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// DefaultTick is how often the elapsed-seconds counter advances.
const DefaultTick = time.Second

const recordedSampleName = "recording.wav"

var (
	// ErrAlreadyRecording is returned by Start while a take is in progress.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by Stop when idle.
	ErrNotRecording = errors.New("not recording")
)

// Session drives one capture device. It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	capture core.MicrophoneCapture
	log     *logger.Logger
	tick    time.Duration

	state     State
	track     core.CaptureTrack
	chunks    [][]byte
	collected chan struct{}
	stopTick  chan struct{}
	stopping  bool
	seconds   int

	recorded *core.Sample
	file     *core.Sample
}

// NewSession creates an idle session. tick <= 0 selects DefaultTick.
func NewSession(capture core.MicrophoneCapture, log *logger.Logger, tick time.Duration) *Session {
	if tick <= 0 {
		tick = DefaultTick
	}

	return &Session{
		capture: capture,
		log:     log,
		tick:    tick,
		state:   StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Seconds returns the elapsed counter of the current or last take.
func (s *Session) Seconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.seconds
}

// Start opens the device and begins a take. It is refused while a finalized
// take exists; call Reset first. A device failure leaves the session idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return ErrAlreadyRecording
	}

	if s.recorded != nil {
		return &core.ValidationError{
			Field:   "recording",
			Message: "a recorded sample already exists; reset it before recording again",
		}
	}

	track, err := s.capture.Open(ctx)
	if err != nil {
		return &core.DeviceAccessError{Err: err}
	}

	s.file = nil
	s.track = track
	s.chunks = nil
	s.seconds = 0
	s.state = StateRecording
	s.collected = make(chan struct{})
	s.stopTick = make(chan struct{})

	go s.collect(track.Chunks(), s.collected)
	go s.count(s.stopTick)

	s.log.Info("Recording started")

	return nil
}

// Stop releases the device and finalizes everything captured so far into one
// sample. Only one caller finalizes a take; concurrent callers get
// ErrNotRecording.
func (s *Session) Stop() (core.Sample, error) {
	s.mu.Lock()

	if s.state != StateRecording || s.stopping {
		s.mu.Unlock()

		return core.Sample{}, ErrNotRecording
	}

	track := s.track
	collected := s.collected
	s.stopping = true
	close(s.stopTick)
	s.stopTick = nil
	s.mu.Unlock()

	stopErr := track.Stop()
	if stopErr != nil {
		s.log.Warn("Failed to release capture device cleanly: %v", stopErr)
	}

	<-collected

	s.mu.Lock()
	defer s.mu.Unlock()

	sample := core.Sample{Name: recordedSampleName, Data: bytes.Join(s.chunks, nil)}
	s.recorded = &sample
	s.chunks = nil
	s.track = nil
	s.stopping = false
	s.state = StateIdle

	s.log.Info("Recording stopped after %ds, %d bytes captured", s.seconds, len(sample.Data))

	return sample, nil
}

// Reset discards the finalized take. It does nothing while recording.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return
	}

	s.recorded = nil
	s.seconds = 0
}

// SelectFile makes an uploaded file the cloning input and discards any
// finalized take. It is refused while recording.
func (s *Session) SelectFile(name string, data []byte) error {
	if len(data) == 0 {
		return &core.ValidationError{Field: "file", Message: fmt.Sprintf("%s is empty", name)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return ErrAlreadyRecording
	}

	s.recorded = nil
	s.seconds = 0
	s.file = &core.Sample{Name: name, Data: data}

	return nil
}

// Recorded returns the finalized take, if any.
func (s *Session) Recorded() (core.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recorded == nil {
		return core.Sample{}, false
	}

	return *s.recorded, true
}

// Samples returns the current cloning input: the selected file or the
// finalized take. It is empty while recording.
func (s *Session) Samples() []core.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.file != nil:
		return []core.Sample{*s.file}
	case s.recorded != nil:
		return []core.Sample{*s.recorded}
	default:
		return nil
	}
}

func (s *Session) collect(chunks <-chan []byte, collected chan struct{}) {
	defer close(collected)

	for chunk := range chunks {
		s.mu.Lock()
		s.chunks = append(s.chunks, chunk)
		s.mu.Unlock()
	}
}

func (s *Session) count(stop <-chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.seconds++
			s.mu.Unlock()
		}
	}
}
