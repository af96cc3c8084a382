// Package core defines the domain types, error taxonomy and capability interfaces
// shared by the voice studio components.
package core

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by a KVStore when a key has never been written.
var ErrKeyNotFound = errors.New("key not found")

// Gateway is the remote speech provider as seen by the orchestrator. In
// production it is reached through the proxy relay.
type Gateway interface {
	ListVoices(ctx context.Context) ([]Voice, error)
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
	CloneVoice(ctx context.Context, name string, samples []Sample) (string, error)
	RenameVoice(ctx context.Context, voiceID, name string) error
	DeleteVoice(ctx context.Context, voiceID string) error
	FetchHistory(ctx context.Context) ([]RemoteHistoryItem, error)
	DeleteHistoryItem(ctx context.Context, historyItemID string) error
	FetchHistoryAudio(ctx context.Context, historyItemID string) ([]byte, error)
}

// KVStore is the durable key-value surface used for local state. Writes replace
// the whole value stored under a key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// AudioDecoder turns encoded audio bytes into a playable buffer.
type AudioDecoder interface {
	Decode(ctx context.Context, data []byte) (*AudioBuffer, error)
}

// OutputDevice starts playback of a decoded buffer. onEnded is invoked at most
// once, when the source finishes on its own or after Stop.
type OutputDevice interface {
	Start(buf *AudioBuffer, gain float64, onEnded func()) (Source, error)
}

// Source is a single playing audio handle.
type Source interface {
	Stop() error
}

// GainControl is implemented by sources that can follow volume changes while
// they play.
type GainControl interface {
	SetGain(gain float64)
}

// MicrophoneCapture acquires the capture device.
type MicrophoneCapture interface {
	Open(ctx context.Context) (CaptureTrack, error)
}

// CaptureTrack streams captured audio. Chunks is closed after Stop once every
// buffered chunk has been delivered.
type CaptureTrack interface {
	Chunks() <-chan []byte
	Stop() error
}

// Notifier receives user-facing notifications for failed operations.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}
