package objectstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		natsServer.Shutdown()
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	return natsConnection
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "objectstore-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)

	return p.err
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	natsConnection := startTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNatsObjectStore(jetstreamContext, "VOICE_STUDIO_AUDIO")
	require.NoError(t, err)

	ctx := context.Background()
	audio := []byte("ID3 exported audio")

	require.NoError(t, store.Upload(ctx, "tts-1.mp3", audio))

	downloaded, err := store.Download(ctx, "tts-1.mp3")
	require.NoError(t, err)
	assert.Equal(t, audio, downloaded)
	assert.Equal(t, "nats://VOICE_STUDIO_AUDIO/tts-1.mp3", store.Location("tts-1.mp3"))

	rebound, err := objectstore.NewNatsObjectStore(jetstreamContext, "VOICE_STUDIO_AUDIO")
	require.NoError(t, err)

	again, err := rebound.Download(ctx, "tts-1.mp3")
	require.NoError(t, err)
	assert.Equal(t, audio, again)
}

func TestFileObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "exports")

	store, err := objectstore.NewFileObjectStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "tts-abc.mp3", []byte("audio")))

	data, err := os.ReadFile(filepath.Join(dir, "tts-abc.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	downloaded, err := store.Download(ctx, "tts-abc.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), downloaded)
}

func TestExportKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tts-abc.mp3", objectstore.ExportKey("abc", "audio/mpeg"))
	assert.Equal(t, "tts-abc.wav", objectstore.ExportKey("abc", "audio/wav"))
	assert.Equal(t, "tts-a_b.mp3", objectstore.ExportKey("a/b", ""))
}

func TestExporter_FileStoreWithEvent(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileObjectStore(t.TempDir())
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	exporter := objectstore.NewExporter(store, publisher, "voice-studio.exports", newTestLogger(t))

	result, err := exporter.Export(context.Background(), "0192-abc", core.Artifact{
		Audio:       []byte("ID3-data"),
		Text:        "Hello",
		VoiceID:     "v1",
		ContentType: "audio/mpeg",
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "tts-0192-abc.mp3", result.Key)
	assert.Equal(t, 8, result.Size)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "voice-studio.exports", publisher.subjects[0])

	var event events.AudioChunkCreatedEvent
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &event))
	assert.Equal(t, "tts-0192-abc.mp3", event.AudioKey)
	assert.Equal(t, "0192-abc", event.Header.WorkflowID)
	assert.NotEmpty(t, event.Header.EventID)
}

func TestExporter_PublishFailureDoesNotFailExport(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileObjectStore(t.TempDir())
	require.NoError(t, err)

	publisher := &recordingPublisher{err: errors.New("no responders")}
	exporter := objectstore.NewExporter(store, publisher, "voice-studio.exports", newTestLogger(t))

	_, err = exporter.Export(context.Background(), "x", core.Artifact{Audio: []byte("a")})
	require.NoError(t, err)
}

func TestExporter_EmptyArtifact(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileObjectStore(t.TempDir())
	require.NoError(t, err)

	exporter := objectstore.NewExporter(store, nil, "", newTestLogger(t))

	_, err = exporter.Export(context.Background(), "x", core.Artifact{})
	require.ErrorIs(t, err, objectstore.ErrNothingToExport)
}

func TestExporter_NatsPublisher(t *testing.T) {
	t.Parallel()

	natsConnection := startTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNatsObjectStore(jetstreamContext, "EXPORTS")
	require.NoError(t, err)

	received := make(chan *nats.Msg, 1)

	sub, err := natsConnection.ChanSubscribe("voice-studio.exports", received)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, natsConnection.Flush())

	exporter := objectstore.NewExporter(store, natsConnection, "voice-studio.exports", newTestLogger(t))

	result, err := exporter.Export(context.Background(), "n1", core.Artifact{Audio: []byte("x"), ContentType: "audio/mpeg"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		var event events.AudioChunkCreatedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		assert.Equal(t, result.Key, event.AudioKey)
	case <-time.After(5 * time.Second):
		t.Fatal("export event was not published")
	}
}
