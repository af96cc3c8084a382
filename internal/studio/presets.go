package studio

import (
	"context"
	"fmt"

	"github.com/book-expert/voice-studio/internal/core"
)

// SavePreset snapshots the selected voice and active settings under name.
func (s *Studio) SavePreset(ctx context.Context, name string) (core.Preset, error) {
	name = trimName(name)
	if name == "" {
		return core.Preset{}, s.fail(&core.ValidationError{Field: "preset name", Message: "is required"})
	}

	s.mu.Lock()
	preset := core.Preset{Name: name, VoiceID: s.selectedID, Settings: s.settings}
	s.mu.Unlock()

	if preset.VoiceID == "" {
		return core.Preset{}, s.fail(&core.ValidationError{Field: "voice", Message: "select a voice before saving a preset"})
	}

	saved, err := s.store.AddPreset(ctx, preset)
	if err != nil {
		return core.Preset{}, s.fail(err)
	}

	return saved, nil
}

// ApplyPreset restores a preset's voice and settings.
func (s *Studio) ApplyPreset(presetID string) (core.Preset, error) {
	preset, ok := s.store.Preset(presetID)
	if !ok {
		return core.Preset{}, s.fail(&core.ValidationError{
			Field:   "preset",
			Message: fmt.Sprintf("%q does not exist", presetID),
		})
	}

	err := preset.Settings.Validate()
	if err != nil {
		return core.Preset{}, s.fail(err)
	}

	s.mu.Lock()
	s.selectedID = preset.VoiceID
	s.settings = preset.Settings
	s.mu.Unlock()

	return preset, nil
}

// DeletePreset removes a preset.
func (s *Studio) DeletePreset(ctx context.Context, presetID string) error {
	err := s.store.RemovePreset(ctx, presetID)
	if err != nil {
		return s.fail(err)
	}

	return nil
}

// Presets returns the saved presets.
func (s *Studio) Presets() []core.Preset {
	return s.store.Presets()
}
