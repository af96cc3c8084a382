// Package localstore keeps the studio's local history and voice presets.
//
// Both collections are loaded once when the store is opened and rewritten in
// full to the backing KV store after every mutation. Corrupt or foreign data
// under either key is logged and replaced by an empty collection.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/google/uuid"
)

// Storage keys.
const (
	HistoryKey = "tts-history"
	PresetsKey = "voice-presets"
)

// DefaultHistoryLimit is the number of history entries kept.
const DefaultHistoryLimit = 10

var (
	// ErrEntryNotFound is returned when removing an id that is not stored.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrPresetName is returned for a blank preset name.
	ErrPresetName = errors.New("preset name is required")
)

// Store holds both collections in memory and persists them on mutation.
type Store struct {
	mu      sync.Mutex
	kv      core.KVStore
	log     *logger.Logger
	limit   int
	history []core.HistoryEntry
	presets []core.Preset
}

// Open loads both collections from kv. It never fails on bad stored data.
func Open(ctx context.Context, kv core.KVStore, log *logger.Logger, historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	store := &Store{
		kv:    kv,
		log:   log,
		limit: historyLimit,
	}

	store.history = load[core.HistoryEntry](ctx, store, HistoryKey)
	if len(store.history) > store.limit {
		store.history = store.history[:store.limit]
	}

	store.presets = load[core.Preset](ctx, store, PresetsKey)

	return store
}

// NewID returns a time-ordered identifier, unique within this client only.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// History returns the entries newest first.
func (s *Store) History() []core.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.history)
}

// AddHistory prepends entry, evicting the oldest entries past the limit. An
// empty ID is filled in. The entry stays in memory even if persisting fails.
func (s *Store) AddHistory(ctx context.Context, entry core.HistoryEntry) (core.HistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append([]core.HistoryEntry{entry}, s.history...)
	if len(s.history) > s.limit {
		s.history = s.history[:s.limit]
	}

	return entry, s.persist(ctx, HistoryKey, s.history)
}

// RemoveHistory deletes one entry.
func (s *Store) RemoveHistory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.history)
	s.history = slices.DeleteFunc(s.history, func(entry core.HistoryEntry) bool { return entry.ID == id })

	if len(s.history) == before {
		return fmt.Errorf("%w: history %s", ErrEntryNotFound, id)
	}

	return s.persist(ctx, HistoryKey, s.history)
}

// ClearHistory deletes every entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = []core.HistoryEntry{}

	return s.persist(ctx, HistoryKey, s.history)
}

// Presets returns the saved presets in save order.
func (s *Store) Presets() []core.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.presets)
}

// Preset looks up one preset.
func (s *Store) Preset(id string) (core.Preset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := slices.IndexFunc(s.presets, func(preset core.Preset) bool { return preset.ID == id })
	if index < 0 {
		return core.Preset{}, false
	}

	return s.presets[index], true
}

// AddPreset appends a preset, filling in an empty ID.
func (s *Store) AddPreset(ctx context.Context, preset core.Preset) (core.Preset, error) {
	preset.Name = strings.TrimSpace(preset.Name)
	if preset.Name == "" {
		return core.Preset{}, ErrPresetName
	}

	if preset.ID == "" {
		preset.ID = NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.presets = append(s.presets, preset)

	return preset, s.persist(ctx, PresetsKey, s.presets)
}

// RemovePreset deletes one preset.
func (s *Store) RemovePreset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.presets)
	s.presets = slices.DeleteFunc(s.presets, func(preset core.Preset) bool { return preset.ID == id })

	if len(s.presets) == before {
		return fmt.Errorf("%w: preset %s", ErrEntryNotFound, id)
	}

	return s.persist(ctx, PresetsKey, s.presets)
}

// persist rewrites the whole collection under key. Callers hold mu.
func (s *Store) persist(ctx context.Context, key string, collection any) error {
	data, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	err = s.kv.Put(ctx, key, data)
	if err != nil {
		s.log.Error("Failed to persist %s: %v", key, err)

		return fmt.Errorf("failed to persist %s: %w", key, err)
	}

	return nil
}

func load[T any](ctx context.Context, s *Store, key string) []T {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrKeyNotFound) {
			s.log.Warn("Failed to read %s, starting empty: %v", key, err)
		}

		return nil
	}

	var collection []T

	err = json.Unmarshal(data, &collection)
	if err != nil {
		s.log.Warn("%v", &core.StorageParseError{Key: key, Err: err})

		return nil
	}

	return collection
}
