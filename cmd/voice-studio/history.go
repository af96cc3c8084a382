package main

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/textutil"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02 15:04"

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse provider and local synthesis history",
	}

	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyDeleteCmd())
	cmd.AddCommand(historyPlayCmd())
	cmd.AddCommand(historyAudioCmd())
	cmd.AddCommand(historyLocalCmd())

	return cmd
}

func historyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the provider-side history",
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

			items, err := w.studio.FetchHistory(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), items)
			}

			rows := make([][]any, 0, len(items))
			for _, item := range items {
				rows = append(rows, []any{
					item.ID,
					item.VoiceName,
					time.Unix(item.DateUnix, 0).Format(dateLayout),
					textutil.Truncate(item.Text, textPreviewLen),
				})
			}

			return printTable(cmd.OutOrStdout(), []any{"ID", "VOICE", "DATE", "TEXT"}, rows)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, flagJSON, false, "output as JSON")

	return cmd
}

func historyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [history-item-id]",
		Short: "Delete a provider history item",
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

			err = w.studio.DeleteHistoryEntry(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted history item %s\n", args[0])

			return nil
		},
	}
}

func historyPlayCmd() *cobra.Command {
	var out outputFlags

	cmd := &cobra.Command{
		Use:   "play [history-item-id]",
		Short: "Play a provider history item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			w, err := e.buildStudio(cmd.Context(), studioOptions{playback: true})
			if err != nil {
				return err
			}

			err = out.apply(cmd, w.session.Output())
			if err != nil {
				return err
			}

			err = w.studio.PlayHistoryItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return w.session.Wait(cmd.Context())
		},
	}

	out.register(cmd)

	return cmd
}

func historyAudioCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "audio [history-item-id]",
		Short: "Download the audio of a provider history item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("tts-%s.mp3", fileutil.SanitizeFilename(args[0]))
			}

			if !fileutil.IsValidAudioFile(output) {
				return &core.ValidationError{Field: "output", Message: fmt.Sprintf("%s needs an audio file extension", output)}
			}

			w, err := e.buildStudio(cmd.Context(), studioOptions{})
			if err != nil {
				return err
			}

			audio, err := w.studio.FetchHistoryAudio(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			err = os.WriteFile(output, audio, outputFileMode)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", output, fileutil.FormatFileSize(int64(len(audio))))

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default tts-{id}.mp3)")

	return cmd
}

func historyLocalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Manage the local history of recent generations",
	}

	cmd.AddCommand(historyLocalListCmd())
	cmd.AddCommand(historyLocalRemoveCmd())
	cmd.AddCommand(historyLocalClearCmd())

	return cmd
}

func historyLocalListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent local generations, newest first",
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

			entries := w.studio.History()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			return printTable(cmd.OutOrStdout(), []any{"ID", "VOICE", "WHEN", "LENGTH", "TEXT"}, localRows(entries))
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, flagJSON, false, "output as JSON")

	return cmd
}

func localRows(entries []core.HistoryEntry) [][]any {
	rows := make([][]any, 0, len(entries))

	for _, entry := range entries {
		rows = append(rows, []any{
			entry.ID,
			entry.VoiceName,
			entry.Timestamp.Local().Format(dateLayout),
			fileutil.FormatDuration(entry.Duration),
			textutil.Truncate(entry.Text, textPreviewLen),
		})
	}

	return rows
}

func historyLocalRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [entry-id]",
		Short: "Remove one local history entry",
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

			return w.studio.RemoveHistory(cmd.Context(), args[0])
		},
	}
}

func historyLocalClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the local history",
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

			return w.studio.ClearHistory(cmd.Context())
		},
	}
}
