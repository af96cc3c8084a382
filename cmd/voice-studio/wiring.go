package main

import (
	"context"
	"fmt"

	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/kv"
	"github.com/book-expert/voice-studio/internal/localstore"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/book-expert/voice-studio/internal/relayclient"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/nats-io/nats.go"
)

// studioOptions selects the optional collaborators a command needs.
type studioOptions struct {
	playback bool
	export   bool
}

// wired is a studio together with the pieces commands drive directly.
type wired struct {
	studio  *studio.Studio
	session *playback.Session
	store   *localstore.Store
}

// jetStream connects to NATS once per command.
func (e *env) jetStream() (nats.JetStreamContext, *nats.Conn, error) {
	nc, err := nats.Connect(e.cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", e.cfg.NATS.URL, err)
	}

	e.onClose(func() error {
		nc.Close()

		return nil
	})

	js, err := nc.JetStream()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return js, nc, nil
}

func (e *env) kvStore(js nats.JetStreamContext) (core.KVStore, error) {
	switch e.cfg.Storage.Backend {
	case config.BackendMemory:
		e.log.Warn("Using in-memory state; history and presets are discarded on exit")

		return kv.NewMemoryStore(), nil
	case config.BackendNATS:
		store, err := kv.NewNatsStore(js, e.cfg.Storage.KVBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open state bucket: %w", err)
		}

		return store, nil
	default:
		store, err := kv.NewFileStore(e.cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open state directory: %w", err)
		}

		return store, nil
	}
}

func (e *env) exporter(js nats.JetStreamContext, nc *nats.Conn) (*objectstore.Exporter, error) {
	var (
		store     objectstore.Store
		publisher objectstore.Publisher
	)

	if e.cfg.Storage.ExportBackend == config.BackendNATS {
		natsStore, err := objectstore.NewNatsObjectStore(js, e.cfg.Storage.ExportBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open export bucket: %w", err)
		}

		store = natsStore
	} else {
		fileStore, err := objectstore.NewFileObjectStore(e.cfg.Storage.ExportDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open export directory: %w", err)
		}

		store = fileStore
	}

	if nc != nil && e.cfg.Storage.ExportSubject != "" {
		publisher = nc
	}

	return objectstore.NewExporter(store, publisher, e.cfg.Storage.ExportSubject, e.log), nil
}

func (e *env) needsNATS(opts studioOptions) bool {
	if e.cfg.Storage.Backend == config.BackendNATS {
		return true
	}

	return opts.export && (e.cfg.Storage.ExportBackend == config.BackendNATS || e.cfg.Storage.ExportSubject != "")
}

// notifier prints failure notifications for the user.
func (e *env) notifier() core.Notifier {
	return core.NotifierFunc(func(n core.Notification) {
		fmt.Fprintf(e.stderr, "%s: %s\n", n.Title, n.Description)
	})
}

func (e *env) playbackSession() *playback.Session {
	args := e.cfg.Playback.Args
	if len(args) == 0 {
		args = playback.DefaultPlayerArgs()
	}

	device := playback.NewProcessDevice(e.cfg.Playback.Command, args, e.log)
	session := playback.NewSession(playback.NewDecoder(), playback.NewOutput(device, e.cfg.OutputVolume()), e.log)

	e.onClose(session.Stop)

	return session
}

func (e *env) recorder() *recording.Session {
	args := e.cfg.Recording.Args
	if len(args) == 0 {
		args = recording.DefaultRecorderArgs()
	}

	capture := recording.NewProcessCapture(e.cfg.Recording.Command, args, e.cfg.Recording.ChunkBytes, e.log)

	return recording.NewSession(capture, e.log, recording.DefaultTick)
}

// buildStudio wires a studio against the relay and the configured storage.
func (e *env) buildStudio(ctx context.Context, opts studioOptions) (*wired, error) {
	var (
		js  nats.JetStreamContext
		nc  *nats.Conn
		err error
	)

	if e.needsNATS(opts) {
		js, nc, err = e.jetStream()
		if err != nil {
			return nil, err
		}
	}

	backing, err := e.kvStore(js)
	if err != nil {
		return nil, err
	}

	store := localstore.Open(ctx, backing, e.log, e.cfg.Studio.HistoryLimit)
	deps := studio.Deps{
		Gateway:  relayclient.New(e.cfg.Studio.RelayURL, e.cfg.StudioTimeout()),
		Store:    store,
		Notifier: e.notifier(),
		Log:      e.log,
	}

	result := &wired{store: store}

	if opts.playback {
		result.session = e.playbackSession()
		deps.Player = result.session
	}

	if opts.export {
		exporter, exportErr := e.exporter(js, nc)
		if exportErr != nil {
			return nil, exportErr
		}

		deps.Exporter = exporter
	}

	result.studio, err = studio.New(deps, studio.Options{
		ModelID:           e.cfg.Provider.ModelID,
		AudioCacheEntries: e.cfg.Studio.AudioCache,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create studio: %w", err)
	}

	return result, nil
}
