package studio

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/localstore"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/textutil"
)

// Synthesize turns req into audio. On success it creates the artifact, then
// appends a history entry, then starts playback, in that order. The artifact
// is returned even when playback fails; the error is then the playback error.
//
// Completions of older calls still record history but do not replace the
// last artifact or interrupt the playback started by a newer call.
func (s *Studio) Synthesize(ctx context.Context, req core.SynthesisRequest) (core.Artifact, error) {
	voice, err := s.validateSynthesis(req)
	if err != nil {
		return core.Artifact{}, s.fail(err)
	}

	if req.ModelID == "" {
		req.ModelID = s.modelID
	}

	key := scope{op: core.OpSynthesize}
	seq := s.calls.begin(key)
	defer s.calls.end(key)

	audio, err := s.gateway.Synthesize(ctx, req)
	if err != nil {
		return core.Artifact{}, s.fail(err)
	}

	artifact := core.Artifact{
		Audio:       audio,
		Text:        req.Text,
		VoiceID:     req.VoiceID,
		ContentType: contentTypeMPEG,
		CreatedAt:   s.now().UTC(),
	}
	artifactID := localstore.NewID()

	s.recordHistory(ctx, artifactID, artifact, voice.Name)

	s.mu.Lock()
	current := s.calls.accept(key, seq)

	if current {
		s.lastArtifact = &artifact
		s.lastArtifactID = artifactID
	}
	s.mu.Unlock()

	if !current {
		s.log.Info("Discarding playback of superseded synthesis %d", seq)

		return artifact, nil
	}

	if s.player == nil {
		return artifact, nil
	}

	err = s.player.Play(ctx, audio)
	if err != nil {
		return artifact, s.fail(err)
	}

	return artifact, nil
}

// Generate synthesizes text with the selected voice and active settings.
func (s *Studio) Generate(ctx context.Context, text string) (core.Artifact, error) {
	s.mu.Lock()
	req := core.SynthesisRequest{
		Text:     text,
		VoiceID:  s.selectedID,
		ModelID:  s.modelID,
		Settings: s.settings,
	}
	s.mu.Unlock()

	return s.Synthesize(ctx, req)
}

// LastArtifact returns the artifact of the newest applied synthesis.
func (s *Studio) LastArtifact() (core.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastArtifact == nil {
		return core.Artifact{}, false
	}

	return *s.lastArtifact, true
}

// PlayLast replays the last artifact.
func (s *Studio) PlayLast(ctx context.Context) error {
	artifact, ok := s.LastArtifact()
	if !ok {
		return s.fail(&core.ValidationError{Field: "artifact", Message: "nothing has been generated yet"})
	}

	return s.play(ctx, artifact.Audio)
}

// StopPlayback stops whatever is playing.
func (s *Studio) StopPlayback() error {
	if s.player == nil {
		return nil
	}

	return s.player.Stop()
}

// IsPlaying reports whether a source is active.
func (s *Studio) IsPlaying() bool {
	return s.player != nil && s.player.IsPlaying()
}

// Export stores the last artifact through the configured exporter.
func (s *Studio) Export(ctx context.Context) (objectstore.ExportResult, error) {
	if s.exporter == nil {
		return objectstore.ExportResult{}, s.fail(ErrExportDisabled)
	}

	s.mu.Lock()
	artifact, artifactID := s.lastArtifact, s.lastArtifactID
	s.mu.Unlock()

	if artifact == nil {
		return objectstore.ExportResult{}, s.fail(&core.ValidationError{
			Field:   "artifact",
			Message: "nothing has been generated yet",
		})
	}

	result, err := s.exporter.Export(ctx, artifactID, *artifact)
	if err != nil {
		return objectstore.ExportResult{}, s.fail(err)
	}

	return result, nil
}

func (s *Studio) play(ctx context.Context, audio []byte) error {
	if s.player == nil {
		return s.fail(ErrPlaybackDisabled)
	}

	err := s.player.Play(ctx, audio)
	if err != nil {
		return s.fail(err)
	}

	return nil
}

func (s *Studio) validateSynthesis(req core.SynthesisRequest) (core.Voice, error) {
	if textutil.IsBlank(req.Text) {
		return core.Voice{}, &core.ValidationError{Field: "text", Message: "is required"}
	}

	if req.VoiceID == "" {
		return core.Voice{}, &core.ValidationError{Field: "voice", Message: "is required"}
	}

	err := req.Settings.Validate()
	if err != nil {
		return core.Voice{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	voice, ok := s.findVoiceLocked(req.VoiceID)
	if !ok {
		return core.Voice{}, &core.ValidationError{
			Field:   "voice",
			Message: fmt.Sprintf("%q is not a known voice", req.VoiceID),
		}
	}

	return voice, nil
}

// recordHistory appends the history entry. A persistence failure keeps the
// entry in memory and is only logged.
func (s *Studio) recordHistory(ctx context.Context, id string, artifact core.Artifact, voiceName string) {
	_, err := s.store.AddHistory(ctx, core.HistoryEntry{
		ID:        id,
		Text:      textutil.Normalize(artifact.Text),
		VoiceID:   artifact.VoiceID,
		VoiceName: voiceName,
		Timestamp: artifact.CreatedAt,
		Duration:  textutil.EstimateDuration(artifact.Text),
	})
	if err != nil {
		s.log.Warn("History entry %s kept in memory only: %v", id, err)
	}
}

func trimName(name string) string {
	return strings.TrimSpace(name)
}

func validateClone(name string, samples []core.Sample) error {
	if len(samples) == 0 {
		return &core.ValidationError{Field: "samples", Message: "at least one sample or file is required"}
	}

	for _, sample := range samples {
		if len(sample.Data) == 0 {
			return &core.ValidationError{Field: "samples", Message: fmt.Sprintf("%s is empty", sample.Name)}
		}
	}

	if name == "" {
		return &core.ValidationError{Field: "name", Message: "is required"}
	}

	return nil
}
