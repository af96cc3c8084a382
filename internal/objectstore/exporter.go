package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/google/uuid"
)

const exportKeyFmt = "tts-%s%s"

// ErrNothingToExport is returned when the artifact carries no audio.
var ErrNothingToExport = errors.New("artifact has no audio to export")

// Store is an object store that can describe where a key ends up.
type Store interface {
	core.ObjectStore
	Location(key string) string
}

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ExportResult describes a stored artifact.
type ExportResult struct {
	Key      string
	Location string
	Size     int
}

// Exporter writes artifacts to a store and, when a publisher is configured,
// announces each export as an AudioChunkCreatedEvent.
type Exporter struct {
	store     Store
	publisher Publisher
	subject   string
	log       *logger.Logger
}

// NewExporter creates an exporter. publisher may be nil.
func NewExporter(store Store, publisher Publisher, subject string, log *logger.Logger) *Exporter {
	return &Exporter{
		store:     store,
		publisher: publisher,
		subject:   subject,
		log:       log,
	}
}

// ExportKey returns the object key for an artifact id, "tts-{id}.mp3" for
// MPEG audio.
func ExportKey(id, contentType string) string {
	return fmt.Sprintf(exportKeyFmt, fileutil.SanitizeFilename(id), extensionFor(contentType))
}

// Export stores the artifact under its export key. A failed announcement is
// logged and does not fail the export.
func (e *Exporter) Export(ctx context.Context, id string, artifact core.Artifact) (ExportResult, error) {
	if len(artifact.Audio) == 0 {
		return ExportResult{}, ErrNothingToExport
	}

	key := ExportKey(id, artifact.ContentType)

	err := e.store.Upload(ctx, key, artifact.Audio)
	if err != nil {
		return ExportResult{}, fmt.Errorf("failed to export artifact %s: %w", id, err)
	}

	result := ExportResult{Key: key, Location: e.store.Location(key), Size: len(artifact.Audio)}
	e.log.Info("Exported artifact %s to %s", id, result.Location)

	if e.publisher != nil && e.subject != "" {
		publishErr := e.announce(id, key)
		if publishErr != nil {
			e.log.Warn("Failed to announce export of %s: %v", id, publishErr)
		}
	}

	return result, nil
}

func (e *Exporter) announce(id, key string) error {
	event := events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: id,
			EventID:    uuid.NewString(),
		},
		AudioKey:   key,
		PageNumber: 1,
		TotalPages: 1,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal export event: %w", err)
	}

	err = e.publisher.Publish(e.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish export event on %s: %w", e.subject, err)
	}

	return nil
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".mp3"
	}

	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	default:
		return ".mp3"
	}
}
