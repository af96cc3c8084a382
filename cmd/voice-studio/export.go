package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [history-item-id]",
		Short: "Export a provider history item to the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			w, err := e.buildStudio(cmd.Context(), studioOptions{export: true})
			if err != nil {
				return err
			}

			result, err := w.studio.ExportHistoryItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s (%d bytes) to %s\n", result.Key, result.Size, result.Location)

			return nil
		},
	}
}
