package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/spf13/cobra"
)

// Log file names.
const (
	bootstrapLogFile = "voice-studio-bootstrap.log"
	logFile          = "voice-studio.log"
)

// Flag names shared by several commands.
const (
	flagConfig = "config"
	flagJSON   = "json"
)

type appKey struct{}

var errNoApp = errors.New("command context carries no application")

// cli owns the environment loaded for the executing command.
type cli struct {
	env *env
}

// close releases the environment, if one was loaded.
func (c *cli) close() error {
	if c.env == nil {
		return nil
	}

	return c.env.Close()
}

func newRootCmd(c *cli) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "voice-studio",
		Short:         "Speech synthesis studio with a credential-holding relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadEnv(configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			c.env = loaded
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, loaded))

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, flagConfig, "", "path to a TOML config file (defaults to the central configurator)")

	root.AddCommand(serveCmd())
	root.AddCommand(speakCmd())
	root.AddCommand(voicesCmd())
	root.AddCommand(cloneCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(presetsCmd())
	root.AddCommand(recordCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(workerCmd())

	return root
}

// env is the loaded configuration and logger shared by every command.
type env struct {
	cfg    *config.Config
	log    *logger.Logger
	stderr io.Writer
	closer []func() error
}

func loadEnv(configPath string, stderr io.Writer) (*env, error) {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	var cfg *config.Config

	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := logger.New(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	return &env{cfg: cfg, log: finalLog, stderr: stderr}, nil
}

func envFrom(cmd *cobra.Command) (*env, error) {
	value, ok := cmd.Context().Value(appKey{}).(*env)
	if !ok {
		return nil, errNoApp
	}

	return value, nil
}

// onClose registers fn to run when the command finishes, in reverse order.
func (e *env) onClose(fn func() error) {
	e.closer = append(e.closer, fn)
}

// Close releases every registered resource and the logger.
func (e *env) Close() error {
	var errs []error

	for i := len(e.closer) - 1; i >= 0; i-- {
		errs = append(errs, e.closer[i]())
	}

	err := e.log.Close()
	if err != nil {
		errs = append(errs, fmt.Errorf("error closing logger: %w", err))
	}

	return errors.Join(errs...)
}
