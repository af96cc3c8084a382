package studio

import (
	"context"
	"slices"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/objectstore"
)

// FetchHistory loads the provider-side history. On failure the previously
// fetched list is left untouched.
func (s *Studio) FetchHistory(ctx context.Context) ([]core.RemoteHistoryItem, error) {
	key := scope{op: core.OpFetchHistory}
	seq := s.calls.begin(key)
	defer s.calls.end(key)

	items, err := s.gateway.FetchHistory(ctx)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls.accept(key, seq) {
		s.remoteHistory = slices.Clone(items)
	}

	return items, nil
}

// RemoteHistory returns the last applied provider-side history.
func (s *Studio) RemoteHistory() []core.RemoteHistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.remoteHistory)
}

// DeleteHistoryEntry deletes one provider history item.
func (s *Studio) DeleteHistoryEntry(ctx context.Context, historyItemID string) error {
	if historyItemID == "" {
		return s.fail(&core.ValidationError{Field: "history item", Message: "is required"})
	}

	key := scope{op: core.OpDeleteHistory, target: historyItemID}
	seq := s.calls.begin(key)
	defer s.calls.end(key)

	err := s.gateway.DeleteHistoryItem(ctx, historyItemID)
	if err != nil {
		return s.fail(err)
	}

	s.audio.Remove(historyItemID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls.accept(key, seq) {
		s.remoteHistory = slices.DeleteFunc(s.remoteHistory, func(item core.RemoteHistoryItem) bool {
			return item.ID == historyItemID
		})
	}

	return nil
}

// FetchHistoryAudio returns the audio of a provider history item. Recently
// fetched audio is served from a bounded cache without a network call.
func (s *Studio) FetchHistoryAudio(ctx context.Context, historyItemID string) ([]byte, error) {
	if historyItemID == "" {
		return nil, s.fail(&core.ValidationError{Field: "history item", Message: "is required"})
	}

	cached, ok := s.audio.Get(historyItemID)
	if ok {
		return cached, nil
	}

	key := scope{op: core.OpFetchHistoryAudio, target: historyItemID}
	s.calls.begin(key)
	defer s.calls.end(key)

	audio, err := s.gateway.FetchHistoryAudio(ctx, historyItemID)
	if err != nil {
		return nil, s.fail(err)
	}

	s.audio.Add(historyItemID, audio)

	return audio, nil
}

// PlayHistoryItem fetches a provider history item's audio and plays it.
func (s *Studio) PlayHistoryItem(ctx context.Context, historyItemID string) error {
	audio, err := s.FetchHistoryAudio(ctx, historyItemID)
	if err != nil {
		return err
	}

	return s.play(ctx, audio)
}

// ExportHistoryItem stores a provider history item's audio through the
// configured exporter.
func (s *Studio) ExportHistoryItem(ctx context.Context, historyItemID string) (objectstore.ExportResult, error) {
	if s.exporter == nil {
		return objectstore.ExportResult{}, s.fail(ErrExportDisabled)
	}

	audio, err := s.FetchHistoryAudio(ctx, historyItemID)
	if err != nil {
		return objectstore.ExportResult{}, err
	}

	result, err := s.exporter.Export(ctx, historyItemID, core.Artifact{
		Audio:       audio,
		ContentType: contentTypeMPEG,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return objectstore.ExportResult{}, s.fail(err)
	}

	return result, nil
}

// History returns the local history, newest first.
func (s *Studio) History() []core.HistoryEntry {
	return s.store.History()
}

// RemoveHistory deletes one local history entry.
func (s *Studio) RemoveHistory(ctx context.Context, id string) error {
	err := s.store.RemoveHistory(ctx, id)
	if err != nil {
		return s.fail(err)
	}

	return nil
}

// ClearHistory deletes every local history entry.
func (s *Studio) ClearHistory(ctx context.Context) error {
	err := s.store.ClearHistory(ctx)
	if err != nil {
		return s.fail(err)
	}

	return nil
}
