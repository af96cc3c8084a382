package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func voicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List and manage provider voices",
	}

	cmd.AddCommand(voicesListCmd())
	cmd.AddCommand(voicesRenameCmd())
	cmd.AddCommand(voicesDeleteCmd())

	return cmd
}

func voicesListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available voices",
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

			voices, err := w.studio.ListVoices(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), voices)
			}

			rows := make([][]any, 0, len(voices))
			for _, voice := range voices {
				rows = append(rows, []any{voice.ID, voice.Name, voice.Category})
			}

			return printTable(cmd.OutOrStdout(), []any{"ID", "NAME", "CATEGORY"}, rows)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, flagJSON, false, "output as JSON")

	return cmd
}

func voicesRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename [voice-id] [name]",
		Short: "Rename a cloned voice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			w, err := e.buildStudio(cmd.Context(), studioOptions{})
			if err != nil {
				return err
			}

			err = w.studio.RenameVoice(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Renamed voice %s to %s\n", args[0], args[1])

			return nil
		},
	}
}

func voicesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [voice-id]",
		Short: "Delete a cloned voice",
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

			err = w.studio.DeleteVoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted voice %s\n", args[0])

			return nil
		},
	}
}
