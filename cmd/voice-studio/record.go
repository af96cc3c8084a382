package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/spf13/cobra"
)

const defaultTakeLength = 10 * time.Second

// stopOnEnter returns a channel that is closed once a line is read from in.
// End of input never closes it.
func stopOnEnter(in io.Reader) <-chan struct{} {
	early := make(chan struct{})

	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if err == nil {
			close(early)
		}
	}()

	return early
}

// take records until length elapses, early is closed or ctx is done. An
// interrupted take is still finalized.
func take(
	ctx context.Context,
	rec *recording.Session,
	length time.Duration,
	early <-chan struct{},
	out io.Writer,
) (core.Sample, error) {
	err := rec.Start(ctx)
	if err != nil {
		return core.Sample{}, err
	}

	fmt.Fprintf(out, "Recording for up to %s, press Enter to stop early\n", fileutil.FormatDuration(length.Seconds()))

	timer := time.NewTimer(length)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-early:
	case <-ctx.Done():
	}

	sample, err := rec.Stop()
	if err != nil {
		return core.Sample{}, err
	}

	fmt.Fprintf(out, "Captured %ds, %s\n", rec.Seconds(), fileutil.FormatFileSize(int64(len(sample.Data))))

	return sample, nil
}

func recordCmd() *cobra.Command {
	var (
		length time.Duration
		output string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice sample from the microphone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			sample, err := take(cmd.Context(), e.recorder(), length, stopOnEnter(cmd.InOrStdin()), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if len(sample.Data) == 0 {
				return &core.ValidationError{Field: "recording", Message: "nothing was captured"}
			}

			err = os.WriteFile(output, sample.Data, outputFileMode)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", output)

			return nil
		},
	}

	cmd.Flags().DurationVarP(&length, "duration", "d", defaultTakeLength, "maximum take length")
	cmd.Flags().StringVarP(&output, "output", "o", "recording.wav", "file to write the take to")

	return cmd
}

func cloneCmd() *cobra.Command {
	var (
		files  []string
		record bool
		length time.Duration
	)

	cmd := &cobra.Command{
		Use:   "clone [name]",
		Short: "Clone a voice from sample files or a microphone take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rec := e.recorder()

			var early <-chan struct{}
			if record {
				early = stopOnEnter(cmd.InOrStdin())
			}

			samples, err := cloneSamples(ctx, rec, files, record, takeLimits{length: length, early: early}, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			w, err := e.buildStudio(ctx, studioOptions{})
			if err != nil {
				return err
			}

			voice, err := w.studio.CloneVoice(ctx, args[0], samples)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cloned voice %s (%s)\n", voice.Name, voice.ID)

			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "audio sample file (repeatable)")
	cmd.Flags().BoolVar(&record, "record", false, "record a sample from the microphone instead of using files")
	cmd.Flags().DurationVarP(&length, "duration", "d", defaultTakeLength, "maximum take length with --record")

	return cmd
}

// takeLimits bound a microphone take.
type takeLimits struct {
	length time.Duration
	early  <-chan struct{}
}

// cloneSamples collects the cloning input. A single file or a take goes
// through the recorder so the two inputs stay mutually exclusive. Cancelling
// ctx during a take aborts the clone.
func cloneSamples(
	ctx context.Context,
	rec *recording.Session,
	files []string,
	record bool,
	limits takeLimits,
	out io.Writer,
) ([]core.Sample, error) {
	if record {
		if len(files) > 0 {
			return nil, &core.ValidationError{Field: "samples", Message: "use either --file or --record"}
		}

		_, err := take(ctx, rec, limits.length, limits.early, out)
		if err != nil {
			return nil, err
		}

		err = ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("recording interrupted: %w", err)
		}

		return rec.Samples(), nil
	}

	samples, err := readSamples(files)
	if err != nil {
		return nil, err
	}

	if len(samples) != 1 {
		return samples, nil
	}

	err = rec.SelectFile(samples[0].Name, samples[0].Data)
	if err != nil {
		return nil, err
	}

	return rec.Samples(), nil
}

func readSamples(files []string) ([]core.Sample, error) {
	samples := make([]core.Sample, 0, len(files))

	for _, file := range files {
		if !fileutil.IsValidSampleFile(file, "") {
			return nil, &core.ValidationError{Field: "file", Message: fmt.Sprintf("%s is not a supported audio file", file)}
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read sample %s: %w", file, err)
		}

		samples = append(samples, core.Sample{Name: filepath.Base(file), Data: data})
	}

	return samples, nil
}
