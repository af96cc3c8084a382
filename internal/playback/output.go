package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/book-expert/voice-studio/internal/core"
)

// Output is the shared gain stage every source is started through. Volume
// and mute belong to the output, not to a source, so they survive preemption.
type Output struct {
	mu       sync.Mutex
	device   core.OutputDevice
	volume   float64
	muted    bool
	attached core.Source
}

// NewOutput creates a gain stage in front of device. volume is clamped to
// [0, 1]; NaN means full volume.
func NewOutput(device core.OutputDevice, volume float64) *Output {
	return &Output{device: device, volume: clamp(volume)}
}

// Volume returns the configured volume, unaffected by mute.
func (o *Output) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.volume
}

// Muted reports whether output is muted.
func (o *Output) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.muted
}

// Gain is the effective multiplier applied to sources.
func (o *Output) Gain() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.gainLocked()
}

// SetVolume changes the volume. Values outside [0, 1] are rejected.
func (o *Output) SetVolume(volume float64) error {
	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return &core.ValidationError{
			Field:   "volume",
			Message: fmt.Sprintf("must be between 0 and 1, got %.2f", volume),
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.volume = volume
	o.applyLocked()

	return nil
}

// Mute silences output and keeps the volume for Unmute.
func (o *Output) Mute() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.muted = true
	o.applyLocked()
}

// Unmute restores the volume that was set before Mute.
func (o *Output) Unmute() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.muted = false
	o.applyLocked()
}

func (o *Output) start(buf *core.AudioBuffer, onEnded func()) (core.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	source, err := o.device.Start(buf, o.gainLocked(), onEnded)
	if err != nil {
		return nil, fmt.Errorf("failed to start output: %w", err)
	}

	o.attached = source

	return source, nil
}

func (o *Output) detach(source core.Source) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.attached == source {
		o.attached = nil
	}
}

func (o *Output) gainLocked() float64 {
	if o.muted {
		return 0
	}

	return o.volume
}

func (o *Output) applyLocked() {
	control, ok := o.attached.(core.GainControl)
	if ok {
		control.SetGain(o.gainLocked())
	}
}

func clamp(value float64) float64 {
	switch {
	case math.IsNaN(value):
		return 1
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
