// Package worker provides a NATS worker that turns processed-text events into
// synthesized audio through the speech gateway.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/textutil"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	handleMessageTimeout = 60 * time.Second
	audioKeySuffix       = ".mp3"
)

var (
	// ErrTextKeyEmpty indicates that the event does not point at any text.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrVoiceEmpty indicates that neither the event nor the worker names a voice.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrTextEmpty indicates that the downloaded text is blank.
	ErrTextEmpty = errors.New("text cannot be blank")
)

// Synthesizer is the part of the gateway the worker needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error)
}

// Options tunes how jobs are synthesized.
type Options struct {
	// VoiceID is used when an event carries no voice.
	VoiceID  string
	ModelID  string
	Settings core.VoiceSettings
	// CompletedSubject receives the audio event when the job message has no
	// reply subject.
	CompletedSubject string
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	synth          Synthesizer
	opts           Options
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	synth Synthesizer,
	opts Options,
	log *logger.Logger,
) *NatsWorker {
	if opts.ModelID == "" {
		opts.ModelID = core.DefaultModelID
	}

	if opts.Settings == (core.VoiceSettings{}) {
		opts.Settings = core.DefaultVoiceSettings()
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		synth:          synth,
		opts:           opts,
		log:            log,
	}
}

// Run starts the worker and blocks until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Synthesis worker listening on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)

		return
	}

	audioKey, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, synthesizes it and uploads the audio.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	voiceID := event.Voice
	if voiceID == "" {
		voiceID = w.opts.VoiceID
	}

	switch {
	case event.TextKey == "":
		return "", ErrTextKeyEmpty
	case voiceID == "":
		return "", ErrVoiceEmpty
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	text := textutil.Normalize(string(textData))
	if text == "" {
		return "", fmt.Errorf("%w: key '%s'", ErrTextEmpty, event.TextKey)
	}

	audioData, err := w.synth.Synthesize(ctx, core.SynthesisRequest{
		Text:     text,
		VoiceID:  voiceID,
		ModelID:  w.opts.ModelID,
		Settings: w.opts.Settings,
	})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize page %d: %w", event.PageNumber, err)
	}

	audioKey := uuid.NewString() + audioKeySuffix

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Synthesized page %d/%d of workflow %s into %s",
		event.PageNumber, event.TotalPages, event.Header.WorkflowID, audioKey)

	return audioKey, nil
}

// publishReplyEvent answers a request, or announces on CompletedSubject when
// the job was published without a reply subject.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	switch {
	case msg.Reply != "":
		err = msg.Respond(replyData)
	case w.opts.CompletedSubject != "":
		err = w.natsConnection.Publish(w.opts.CompletedSubject, replyData)
	default:
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
