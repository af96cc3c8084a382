// Package playback decodes synthesized audio and keeps at most one source
// playing through a shared output gain stage.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
)

// State is the playback state.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Session owns the single active source. Play preempts whatever is playing.
type Session struct {
	mu      sync.Mutex
	decoder core.AudioDecoder
	output  *Output
	log     *logger.Logger

	source     core.Source
	done       chan struct{}
	generation uint64
}

// NewSession creates a session that plays through output.
func NewSession(decoder core.AudioDecoder, output *Output, log *logger.Logger) *Session {
	return &Session{
		decoder: decoder,
		output:  output,
		log:     log,
	}
}

// Output returns the gain stage the session plays through.
func (s *Session) Output() *Output {
	return s.output
}

// State reports whether a source is active.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return StateIdle
	}

	return StatePlaying
}

// IsPlaying reports whether a source is active.
func (s *Session) IsPlaying() bool {
	return s.State() == StatePlaying
}

// Play stops any active source, decodes data and starts it. A decode failure
// is returned as *core.DecodeError and leaves the session idle.
func (s *Session) Play(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		s.log.Info("Stopping active playback for a new source")
		_ = s.stopLocked()
	}

	buf, err := s.decoder.Decode(ctx, data)
	if err != nil {
		return asDecodeError(err)
	}

	s.generation++
	generation := s.generation

	source, err := s.output.start(buf, func() {
		go s.finish(generation)
	})
	if err != nil {
		return err
	}

	s.source = source
	s.done = make(chan struct{})

	return nil
}

// Stop halts the active source. It is a no-op when idle.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopLocked()
}

// Done returns a channel closed when the current source ends or is stopped.
// When idle the channel is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		closed := make(chan struct{})
		close(closed)

		return closed
	}

	return s.done
}

// Wait blocks until the current source ends or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) stopLocked() error {
	if s.source == nil {
		return nil
	}

	s.generation++

	source := s.source
	err := source.Stop()

	s.clearLocked(source)

	if err != nil {
		s.log.Warn("Failed to stop playback source: %v", err)

		return err
	}

	return nil
}

// finish handles natural completion. Completions from preempted or stopped
// sources are ignored.
func (s *Session) finish(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.source == nil {
		return
	}

	s.clearLocked(s.source)
}

func (s *Session) clearLocked(source core.Source) {
	s.output.detach(source)
	s.source = nil

	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

func asDecodeError(err error) error {
	var decodeErr *core.DecodeError
	if errors.As(err, &decodeErr) {
		return err
	}

	return &core.DecodeError{Err: err}
}
