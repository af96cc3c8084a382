package localstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/kv"
	"github.com/book-expert/voice-studio/internal/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWriteFailed = errors.New("disk full")

type failingKV struct {
	*kv.MemoryStore
}

func (f failingKV) Put(context.Context, string, []byte) error {
	return errWriteFailed
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "localstore-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func entry(text string) core.HistoryEntry {
	return core.HistoryEntry{
		Text:      text,
		VoiceID:   "v1",
		VoiceName: "Rachel",
		Timestamp: time.Now().UTC(),
	}
}

func TestOpen_EmptyStore(t *testing.T) {
	t.Parallel()

	store := localstore.Open(context.Background(), kv.NewMemoryStore(), newTestLogger(t), 0)

	assert.Empty(t, store.History())
	assert.Empty(t, store.Presets())
}

func TestOpen_MalformedDataFallsBackToEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history string
		presets string
	}{
		{name: "garbage", history: "{not json", presets: "%%%"},
		{name: "old object shape", history: `{"entries":[]}`, presets: `{"v":1}`},
		{name: "wrong element type", history: `[1,2,3]`, presets: `["x"]`},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			backing := kv.NewMemoryStore()
			require.NoError(t, backing.Put(ctx, localstore.HistoryKey, []byte(testCase.history)))
			require.NoError(t, backing.Put(ctx, localstore.PresetsKey, []byte(testCase.presets)))

			store := localstore.Open(ctx, backing, newTestLogger(t), 10)

			assert.Empty(t, store.History())
			assert.Empty(t, store.Presets())
		})
	}
}

func TestAddHistory_NewestFirstAndBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := localstore.Open(ctx, kv.NewMemoryStore(), newTestLogger(t), localstore.DefaultHistoryLimit)

	for i := 1; i <= 11; i++ {
		added, err := store.AddHistory(ctx, entry(fmt.Sprintf("text %d", i)))
		require.NoError(t, err)
		assert.NotEmpty(t, added.ID)
	}

	history := store.History()
	require.Len(t, history, 10)
	assert.Equal(t, "text 11", history[0].Text)
	assert.Equal(t, "text 2", history[9].Text, "the first inserted entry is evicted")
}

func TestAddHistory_PersistsWholeCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backing := kv.NewMemoryStore()
	log := newTestLogger(t)

	store := localstore.Open(ctx, backing, log, 10)
	first, err := store.AddHistory(ctx, entry("first"))
	require.NoError(t, err)
	_, err = store.AddHistory(ctx, entry("second"))
	require.NoError(t, err)

	reopened := localstore.Open(ctx, backing, log, 10)
	history := reopened.History()
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Text)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestRemoveAndClearHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backing := kv.NewMemoryStore()
	store := localstore.Open(ctx, backing, newTestLogger(t), 10)

	kept, err := store.AddHistory(ctx, entry("keep"))
	require.NoError(t, err)
	removed, err := store.AddHistory(ctx, entry("remove"))
	require.NoError(t, err)

	require.NoError(t, store.RemoveHistory(ctx, removed.ID))
	require.ErrorIs(t, store.RemoveHistory(ctx, removed.ID), localstore.ErrEntryNotFound)

	require.Len(t, store.History(), 1)
	assert.Equal(t, kept.ID, store.History()[0].ID)

	require.NoError(t, store.ClearHistory(ctx))
	assert.Empty(t, store.History())

	raw, err := backing.Get(ctx, localstore.HistoryKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestPresets_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backing := kv.NewMemoryStore()
	log := newTestLogger(t)
	store := localstore.Open(ctx, backing, log, 10)

	settings := core.VoiceSettings{Stability: 0.31, SimilarityBoost: 0.92, Style: 0.15, UseSpeakerBoost: false}

	saved, err := store.AddPreset(ctx, core.Preset{Name: " Narrator ", VoiceID: "v2", Settings: settings})
	require.NoError(t, err)
	assert.Equal(t, "Narrator", saved.Name)

	reopened := localstore.Open(ctx, backing, log, 10)

	loaded, ok := reopened.Preset(saved.ID)
	require.True(t, ok)
	assert.Equal(t, settings, loaded.Settings)
	assert.Equal(t, "v2", loaded.VoiceID)

	require.NoError(t, reopened.RemovePreset(ctx, saved.ID))
	assert.Empty(t, reopened.Presets())
	require.ErrorIs(t, reopened.RemovePreset(ctx, saved.ID), localstore.ErrEntryNotFound)
}

func TestAddPreset_BlankName(t *testing.T) {
	t.Parallel()

	store := localstore.Open(context.Background(), kv.NewMemoryStore(), newTestLogger(t), 10)

	_, err := store.AddPreset(context.Background(), core.Preset{Name: "  "})
	require.ErrorIs(t, err, localstore.ErrPresetName)
}

func TestKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backing := kv.NewMemoryStore()
	store := localstore.Open(ctx, backing, newTestLogger(t), 10)

	_, err := store.AddHistory(ctx, entry("h"))
	require.NoError(t, err)
	_, err = store.AddPreset(ctx, core.Preset{Name: "p", VoiceID: "v1"})
	require.NoError(t, err)

	history, err := backing.Get(ctx, localstore.HistoryKey)
	require.NoError(t, err)
	presets, err := backing.Get(ctx, localstore.PresetsKey)
	require.NoError(t, err)

	assert.Contains(t, string(history), `"text":"h"`)
	assert.Contains(t, string(presets), `"name":"p"`)
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := localstore.Open(ctx, failingKV{kv.NewMemoryStore()}, newTestLogger(t), 10)

	_, err := store.AddHistory(ctx, entry("unsaved"))
	require.ErrorIs(t, err, errWriteFailed)
	assert.Len(t, store.History(), 1)
}

func TestNewID_TimeOrdered(t *testing.T) {
	t.Parallel()

	first := localstore.NewID()
	time.Sleep(2 * time.Millisecond)
	second := localstore.NewID()

	assert.NotEqual(t, first, second)
	assert.Less(t, first, second)
}
