package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/book-expert/voice-studio/internal/textutil"
	"github.com/spf13/cobra"
)

const (
	outputFileMode = 0o644
	textPreviewLen = 60
)

// settingsFlags are the synthesis settings overridable on the command line.
type settingsFlags struct {
	stability    float64
	similarity   float64
	style        float64
	speakerBoost bool
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	defaults := core.DefaultVoiceSettings()

	cmd.Flags().Float64Var(&f.stability, "stability", defaults.Stability, "voice stability, 0 to 1")
	cmd.Flags().Float64Var(&f.similarity, "similarity", defaults.SimilarityBoost, "similarity boost, 0 to 1")
	cmd.Flags().Float64Var(&f.style, "style", defaults.Style, "style exaggeration, 0 to 1")
	cmd.Flags().BoolVar(&f.speakerBoost, "speaker-boost", defaults.UseSpeakerBoost, "enable speaker boost")
}

// apply overrides only the settings whose flags were given.
func (f *settingsFlags) apply(cmd *cobra.Command, settings core.VoiceSettings) core.VoiceSettings {
	if cmd.Flags().Changed("stability") {
		settings.Stability = f.stability
	}

	if cmd.Flags().Changed("similarity") {
		settings.SimilarityBoost = f.similarity
	}

	if cmd.Flags().Changed("style") {
		settings.Style = f.style
	}

	if cmd.Flags().Changed("speaker-boost") {
		settings.UseSpeakerBoost = f.speakerBoost
	}

	return settings
}

// outputFlags adjust the shared output before anything plays.
type outputFlags struct {
	volume float64
	mute   bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.volume, "volume", 1, "playback volume, 0 to 1 (defaults to the configured volume)")
	cmd.Flags().BoolVar(&f.mute, "mute", false, "start with output muted")
}

func (f *outputFlags) apply(cmd *cobra.Command, output *playback.Output) error {
	if cmd.Flags().Changed("volume") {
		err := output.SetVolume(f.volume)
		if err != nil {
			return err
		}
	}

	if f.mute {
		output.Mute()
	}

	return nil
}

// selection picks a voice and settings, optionally from a preset.
type selection struct {
	voiceID  string
	presetID string
	settings settingsFlags
}

func (sel *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sel.voiceID, "voice", "", "voice id (defaults to the first listed voice)")
	cmd.Flags().StringVar(&sel.presetID, "preset", "", "apply a saved preset before other flags")
	sel.settings.register(cmd)
}

// apply loads the voice list and then applies preset, voice and settings.
func (sel *selection) apply(ctx context.Context, cmd *cobra.Command, s *studio.Studio) error {
	_, err := s.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("failed to load voices: %w", err)
	}

	if sel.presetID != "" {
		_, err = s.ApplyPreset(sel.presetID)
		if err != nil {
			return err
		}
	}

	if sel.voiceID != "" {
		err = s.SelectVoice(sel.voiceID)
		if err != nil {
			return err
		}
	}

	return s.SetSettings(sel.settings.apply(cmd, s.Settings()))
}

func speakCmd() *cobra.Command {
	var (
		sel      selection
		out      outputFlags
		output   string
		noPlay   bool
		doExport bool
	)

	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize text and play it",
		Long:  "Synthesize text with the selected voice. Text is read from stdin when no argument or \"-\" is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			text, err := readText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			play := e.cfg.AutoPlayEnabled()
			if cmd.Flags().Changed("no-play") {
				play = !noPlay
			}

			w, err := e.buildStudio(ctx, studioOptions{playback: play, export: doExport})
			if err != nil {
				return err
			}

			if w.session != nil {
				err = out.apply(cmd, w.session.Output())
				if err != nil {
					return err
				}
			}

			err = sel.apply(ctx, cmd, w.studio)
			if err != nil {
				return err
			}

			return speak(ctx, cmd.OutOrStdout(), w, text, output, doExport)
		},
	}

	sel.register(cmd)
	out.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the audio to this file")
	cmd.Flags().BoolVar(&noPlay, "no-play", false, "do not play the audio (defaults to the inverse of studio.auto_play)")
	cmd.Flags().BoolVar(&doExport, "export", false, "export the audio to the configured store")

	return cmd
}

func speak(ctx context.Context, out io.Writer, w *wired, text, output string, doExport bool) error {
	artifact, err := w.studio.Generate(ctx, text)
	if err != nil && len(artifact.Audio) == 0 {
		return err
	}

	voice, _ := w.studio.SelectedVoice()
	fmt.Fprintf(out, "Generated %s for %q with %s\n",
		fileutil.FormatFileSize(int64(len(artifact.Audio))), textutil.Truncate(text, textPreviewLen), voice.Name)

	if output != "" {
		writeErr := os.WriteFile(output, artifact.Audio, outputFileMode)
		if writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", output, writeErr)
		}

		fmt.Fprintf(out, "Saved %s\n", output)
	}

	if doExport {
		result, exportErr := w.studio.Export(ctx)
		if exportErr != nil {
			return exportErr
		}

		fmt.Fprintf(out, "Exported %s\n", result.Location)
	}

	if err != nil {
		return err
	}

	if w.session != nil && w.session.IsPlaying() {
		return w.session.Wait(ctx)
	}

	return nil
}

func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read text from stdin: %w", err)
	}

	return strings.TrimRight(string(data), "\n"), nil
}
