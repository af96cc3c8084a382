// Package studio is the request orchestrator of the voice studio. It mediates
// every gateway call, keeps the voice selection and synthesis settings,
// records local history, drives playback and reports failures through a
// notifier.
//
// Every operation is a blocking call. Callers that want concurrency run
// operations in their own goroutines; completions that arrive out of order
// are reconciled by per-operation sequence numbers so an older call never
// overwrites state set by a newer one.
package studio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/localstore"
	"github.com/book-expert/voice-studio/internal/objectstore"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultAudioCacheEntries bounds the history audio cache.
const DefaultAudioCacheEntries = 32

const contentTypeMPEG = "audio/mpeg"

var (
	// ErrExportDisabled is returned by Export when no exporter is configured.
	ErrExportDisabled = errors.New("export is not configured")
	// ErrPlaybackDisabled is returned by play operations without a player.
	ErrPlaybackDisabled = errors.New("playback is not configured")
	// ErrMissingDependency is returned by New without a gateway, store or logger.
	ErrMissingDependency = errors.New("studio dependency is missing")
)

// Player is the playback session the studio drives.
type Player interface {
	Play(ctx context.Context, data []byte) error
	Stop() error
	IsPlaying() bool
}

// Exporter persists artifacts outside the studio.
type Exporter interface {
	Export(ctx context.Context, id string, artifact core.Artifact) (objectstore.ExportResult, error)
}

// Deps are the collaborators of a Studio. Player, Notifier and Exporter are
// optional.
type Deps struct {
	Gateway  core.Gateway
	Store    *localstore.Store
	Player   Player
	Notifier core.Notifier
	Exporter Exporter
	Log      *logger.Logger
}

// Options tunes a Studio.
type Options struct {
	ModelID           string
	AudioCacheEntries int
	Now               func() time.Time
}

// Studio orchestrates one client's session. It is safe for concurrent use.
type Studio struct {
	gateway  core.Gateway
	store    *localstore.Store
	player   Player
	notifier core.Notifier
	exporter Exporter
	log      *logger.Logger
	audio    *lru.Cache[string, []byte]
	modelID  string
	now      func() time.Time
	calls    *tracker

	mu             sync.Mutex
	voices         []core.Voice
	selectedID     string
	settings       core.VoiceSettings
	lastArtifact   *core.Artifact
	lastArtifactID string
	remoteHistory  []core.RemoteHistoryItem
}

// New creates a studio with default settings and no voice selected.
func New(deps Deps, opts Options) (*Studio, error) {
	if deps.Gateway == nil || deps.Store == nil || deps.Log == nil {
		return nil, ErrMissingDependency
	}

	if opts.AudioCacheEntries <= 0 {
		opts.AudioCacheEntries = DefaultAudioCacheEntries
	}

	if opts.ModelID == "" {
		opts.ModelID = core.DefaultModelID
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache, err := lru.New[string, []byte](opts.AudioCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio cache: %w", err)
	}

	return &Studio{
		gateway:  deps.Gateway,
		store:    deps.Store,
		player:   deps.Player,
		notifier: deps.Notifier,
		exporter: deps.Exporter,
		log:      deps.Log,
		audio:    cache,
		modelID:  opts.ModelID,
		now:      opts.Now,
		calls:    newTracker(),
		settings: core.DefaultVoiceSettings(),
	}, nil
}

// Loading reports whether any call of op is in flight.
func (s *Studio) Loading(op core.Operation) bool {
	return s.calls.loading(op)
}

// Voices returns the last applied voice list.
func (s *Studio) Voices() []core.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.voices)
}

// SelectedVoice returns the selected voice, if any.
func (s *Studio) SelectedVoice() (core.Voice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findVoiceLocked(s.selectedID)
}

// SelectedVoiceID returns the selected voice id or "".
func (s *Studio) SelectedVoiceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.selectedID
}

// SelectVoice selects a voice from the loaded list. An empty id clears the
// selection.
func (s *Studio) SelectVoice(voiceID string) error {
	s.mu.Lock()
	_, known := s.findVoiceLocked(voiceID)

	if voiceID == "" || known {
		s.selectedID = voiceID
	}
	s.mu.Unlock()

	if voiceID != "" && !known {
		return s.fail(&core.ValidationError{Field: "voice", Message: fmt.Sprintf("%q is not a known voice", voiceID)})
	}

	return nil
}

// Settings returns the active synthesis settings.
func (s *Studio) Settings() core.VoiceSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings
}

// SetSettings replaces the active synthesis settings.
func (s *Studio) SetSettings(settings core.VoiceSettings) error {
	err := settings.Validate()
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings

	return nil
}

// ListVoices fetches the voice list. A selection that is no longer listed is
// cleared and an empty selection falls back to the first voice.
func (s *Studio) ListVoices(ctx context.Context) ([]core.Voice, error) {
	key := scope{op: core.OpListVoices}
	seq := s.calls.begin(key)
	defer s.calls.end(key)

	voices, err := s.gateway.ListVoices(ctx)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls.accept(key, seq) {
		s.voices = slices.Clone(voices)

		if _, ok := s.findVoiceLocked(s.selectedID); !ok {
			s.selectedID = ""
		}

		if s.selectedID == "" && len(s.voices) > 0 {
			s.selectedID = s.voices[0].ID
		}
	}

	return voices, nil
}

// CloneVoice creates a voice from samples and selects it.
func (s *Studio) CloneVoice(ctx context.Context, name string, samples []core.Sample) (core.Voice, error) {
	name = trimName(name)

	err := validateClone(name, samples)
	if err != nil {
		return core.Voice{}, s.fail(err)
	}

	key := scope{op: core.OpCloneVoice}
	seq := s.calls.begin(key)
	defer s.calls.end(key)

	voiceID, err := s.gateway.CloneVoice(ctx, name, samples)
	if err != nil {
		return core.Voice{}, s.fail(err)
	}

	if voiceID == "" {
		return core.Voice{}, s.fail(&core.ProviderContractError{
			Op:      core.OpCloneVoice,
			Message: "clone succeeded but no voice id was returned",
		})
	}

	voice := core.Voice{ID: voiceID, Name: name, Category: core.CategoryCloned}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findVoiceLocked(voiceID); !exists {
		s.voices = append(s.voices, voice)
	}

	if s.calls.accept(key, seq) {
		s.selectedID = voiceID
	}

	s.log.Info("Cloned voice %s (%s) from %d sample(s)", name, voiceID, len(samples))

	return voice, nil
}

// RenameVoice renames a voice.
func (s *Studio) RenameVoice(ctx context.Context, voiceID, name string) error {
	name = trimName(name)

	switch {
	case voiceID == "":
		return s.fail(&core.ValidationError{Field: "voice", Message: "is required"})
	case name == "":
		return s.fail(&core.ValidationError{Field: "name", Message: "is required"})
	}

	key := scope{op: core.OpRenameVoice, target: voiceID}
	seq := s.calls.begin(key)
	defer s.calls.end(key)

	err := s.gateway.RenameVoice(ctx, voiceID, name)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls.accept(key, seq) {
		index := s.voiceIndexLocked(voiceID)
		if index >= 0 {
			s.voices[index].Name = name
		}
	}

	return nil
}

// DeleteVoice deletes a voice and clears the selection if it was selected.
func (s *Studio) DeleteVoice(ctx context.Context, voiceID string) error {
	if voiceID == "" {
		return s.fail(&core.ValidationError{Field: "voice", Message: "is required"})
	}

	key := scope{op: core.OpDeleteVoice, target: voiceID}
	seq := s.calls.begin(key)
	defer s.calls.end(key)

	err := s.gateway.DeleteVoice(ctx, voiceID)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls.accept(key, seq) {
		s.voices = slices.DeleteFunc(s.voices, func(voice core.Voice) bool { return voice.ID == voiceID })

		if s.selectedID == voiceID {
			s.selectedID = ""
		}
	}

	s.log.Info("Deleted voice %s", voiceID)

	return nil
}

// fail reports err to the notifier and returns it unchanged.
func (s *Studio) fail(err error) error {
	var storageErr *core.StorageParseError
	if errors.As(err, &storageErr) {
		s.log.Warn("%v", err)

		return err
	}

	s.log.Error("Studio operation failed: %v", err)

	if s.notifier != nil {
		s.notifier.Notify(core.NotificationFor(err))
	}

	return err
}

func (s *Studio) findVoiceLocked(voiceID string) (core.Voice, bool) {
	index := s.voiceIndexLocked(voiceID)
	if index < 0 {
		return core.Voice{}, false
	}

	return s.voices[index], true
}

func (s *Studio) voiceIndexLocked(voiceID string) int {
	if voiceID == "" {
		return -1
	}

	return slices.IndexFunc(s.voices, func(voice core.Voice) bool { return voice.ID == voiceID })
}
