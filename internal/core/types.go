package core

import (
	"fmt"
	"math"
	"time"
)

// VoiceCategory distinguishes provider voices from user clones.
type VoiceCategory string

const (
	CategoryBuiltIn VoiceCategory = "built-in"
	CategoryCloned  VoiceCategory = "cloned"
)

// Default synthesis parameters.
const (
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.75
	DefaultStyle           = 0.0
	DefaultModelID         = "eleven_multilingual_v2"
)

// Voice is a provider voice.
type Voice struct {
	ID         string        `json:"voice_id"`
	Name       string        `json:"name"`
	Category   VoiceCategory `json:"category"`
	PreviewURL string        `json:"preview_url,omitempty"`
}

// VoiceSettings is the tunable synthesis bundle.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings returns the settings a fresh studio starts with.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       DefaultStability,
		SimilarityBoost: DefaultSimilarityBoost,
		Style:           DefaultStyle,
		UseSpeakerBoost: true,
	}
}

// Validate checks that every ratio lies in [0, 1].
func (s VoiceSettings) Validate() error {
	ratios := []struct {
		field string
		value float64
	}{
		{"stability", s.Stability},
		{"similarity_boost", s.SimilarityBoost},
		{"style", s.Style},
	}

	for _, ratio := range ratios {
		if math.IsNaN(ratio.value) || ratio.value < 0 || ratio.value > 1 {
			return &ValidationError{
				Field:   ratio.field,
				Message: fmt.Sprintf("must be between 0 and 1, got %.2f", ratio.value),
			}
		}
	}

	return nil
}

// SynthesisRequest is built per call and never persisted.
type SynthesisRequest struct {
	Text     string
	VoiceID  string
	ModelID  string
	Settings VoiceSettings
}

// Artifact is one piece of synthesized audio. It is not mutated after creation.
type Artifact struct {
	Audio       []byte
	Text        string
	VoiceID     string
	ContentType string
	CreatedAt   time.Time
}

// HistoryEntry records a past synthesis for recall. Duration is in seconds.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	VoiceID   string    `json:"voiceId"`
	VoiceName string    `json:"voiceName"`
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"`
}

// Preset is a named snapshot of a voice and its settings.
type Preset struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	VoiceID  string        `json:"voiceId"`
	Settings VoiceSettings `json:"settings"`
}

// RemoteHistoryItem is a history record kept by the provider.
type RemoteHistoryItem struct {
	ID          string `json:"history_item_id"`
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
	VoiceName   string `json:"voice_name"`
	DateUnix    int64  `json:"date_unix"`
	ContentType string `json:"content_type,omitempty"`
}

// Sample is one audio input for voice cloning: an uploaded file or a finalized
// recording.
type Sample struct {
	Name string
	Data []byte
}

// AudioFormat is a container format recognised by the decoder.
type AudioFormat string

const (
	FormatMP3  AudioFormat = "mp3"
	FormatWAV  AudioFormat = "wav"
	FormatOGG  AudioFormat = "ogg"
	FormatFLAC AudioFormat = "flac"
)

// AudioBuffer is decoded audio ready for an OutputDevice.
type AudioBuffer struct {
	Format   AudioFormat
	Data     []byte
	Duration time.Duration
}
