package main

import (
	"fmt"

	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/relayclient"
	"github.com/book-expert/voice-studio/internal/worker"
	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var sel selection

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Synthesize processed-text events from NATS through the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			w, err := e.buildStudio(cmd.Context(), studioOptions{})
			if err != nil {
				return err
			}

			voiceID := e.cfg.Worker.VoiceID

			if sel.presetID != "" {
				preset, presetErr := w.studio.ApplyPreset(sel.presetID)
				if presetErr != nil {
					return presetErr
				}

				voiceID = preset.VoiceID
			}

			if sel.voiceID != "" {
				voiceID = sel.voiceID
			}

			settings := sel.settings.apply(cmd, w.studio.Settings())

			err = settings.Validate()
			if err != nil {
				return err
			}

			js, nc, err := e.jetStream()
			if err != nil {
				return err
			}

			store, err := objectstore.NewNatsObjectStore(js, e.cfg.Worker.Bucket)
			if err != nil {
				return fmt.Errorf("failed to open worker bucket: %w", err)
			}

			synthWorker := worker.NewNatsWorker(nc, e.cfg.Worker.Subject, store,
				relayclient.New(e.cfg.Studio.RelayURL, e.cfg.StudioTimeout()),
				worker.Options{
					VoiceID:          voiceID,
					ModelID:          e.cfg.Provider.ModelID,
					Settings:         settings,
					CompletedSubject: e.cfg.Worker.CompletedSubject,
				}, e.log)

			return synthWorker.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&sel.voiceID, "voice", "", "voice id for events that carry none (overrides worker.voice_id)")
	cmd.Flags().StringVar(&sel.presetID, "preset", "", "take voice and settings from a saved preset")
	sel.settings.register(cmd)

	return cmd
}
