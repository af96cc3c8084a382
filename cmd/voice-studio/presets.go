package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func presetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Save and reuse voice and settings combinations",
	}

	cmd.AddCommand(presetsSaveCmd())
	cmd.AddCommand(presetsListCmd())
	cmd.AddCommand(presetsApplyCmd())
	cmd.AddCommand(presetsDeleteCmd())

	return cmd
}

func presetsSaveCmd() *cobra.Command {
	var sel selection

	cmd := &cobra.Command{
		Use:   "save [name]",
		Short: "Save the chosen voice and settings as a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			w, err := e.buildStudio(ctx, studioOptions{})
			if err != nil {
				return err
			}

			err = sel.apply(ctx, cmd, w.studio)
			if err != nil {
				return err
			}

			preset, err := w.studio.SavePreset(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %s (%s)\n", preset.Name, preset.ID)

			return nil
		},
	}

	sel.register(cmd)

	return cmd
}

func presetsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved presets",
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

			presets := w.studio.Presets()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), presets)
			}

			rows := make([][]any, 0, len(presets))
			for _, preset := range presets {
				rows = append(rows, []any{
					preset.ID,
					preset.Name,
					preset.VoiceID,
					fmt.Sprintf("%.2f/%.2f/%.2f", preset.Settings.Stability, preset.Settings.SimilarityBoost, preset.Settings.Style),
					preset.Settings.UseSpeakerBoost,
				})
			}

			return printTable(cmd.OutOrStdout(), []any{"ID", "NAME", "VOICE", "STAB/SIM/STYLE", "BOOST"}, rows)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, flagJSON, false, "output as JSON")

	return cmd
}

func presetsApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply [preset-id]",
		Short: "Resolve a preset against the current voice list",
		Long:  "Resolve a preset and print the voice and settings it selects. Use speak --preset to synthesize with it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			w, err := e.buildStudio(ctx, studioOptions{})
			if err != nil {
				return err
			}

			_, err = w.studio.ListVoices(ctx)
			if err != nil {
				return err
			}

			preset, err := w.studio.ApplyPreset(args[0])
			if err != nil {
				return err
			}

			voiceName := "(voice no longer available)"
			if voice, ok := w.studio.SelectedVoice(); ok {
				voiceName = voice.Name
			}

			settings := w.studio.Settings()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, stability %.2f, similarity %.2f, style %.2f, speaker boost %t\n",
				preset.Name, voiceName, settings.Stability, settings.SimilarityBoost, settings.Style, settings.UseSpeakerBoost)

			return nil
		},
	}
}

func presetsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [preset-id]",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			w, err := e.buildStudio(cmd.Context(), studioOptions{})
			if err != nil {
				return err
			}

			err = w.studio.DeletePreset(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %s\n", args[0])

			return nil
		},
	}
}
