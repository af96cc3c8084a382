package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/book-expert/voice-studio/internal/relay"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy relay in front of the speech provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			if addr != "" {
				e.cfg.Server.Addr = addr
			}

			return e.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

// relayHandler builds the relay router from the configuration.
func (e *env) relayHandler() http.Handler {
	upstream := provider.NewClient(e.cfg.Provider.BaseURL, e.cfg.APIKey(), e.cfg.Provider.ModelID, e.cfg.ProviderTimeout())
	if !upstream.HasCredential() {
		e.log.Warn("Environment variable %s is empty; provider routes will answer 500", e.cfg.Provider.APIKeyEnv)
	}

	server := relay.NewServer(upstream, e.log, relay.Options{
		AllowedOrigins: e.cfg.Server.AllowedOrigins,
		RateLimitRPM:   e.cfg.Server.RateLimitRPM,
		RateLimitBurst: e.cfg.Server.RateLimitBurst,
		MaxUploadBytes: e.cfg.MaxUploadBytes(),
	})

	return server.Router()
}

func (e *env) serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              e.cfg.Server.Addr,
		Handler:           e.relayHandler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		e.log.System("Relay listening on %s, forwarding to %s", e.cfg.Server.Addr, e.cfg.Provider.BaseURL)

		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout())
		defer cancel()

		e.log.Info("Shutting down relay")

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("relay shutdown failed: %w", err)
		}

		return nil
	})

	return group.Wait()
}
