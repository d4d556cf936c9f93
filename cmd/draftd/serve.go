package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/draft-protocol/draftd/internal/api"
	"github.com/draft-protocol/draftd/internal/config"
	"github.com/draft-protocol/draftd/internal/mcpserver"
	"github.com/draft-protocol/draftd/internal/middleware"
	"github.com/draft-protocol/draftd/internal/retention"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	transport string
	host      string
	port      int
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the governance tools",
		Long: `Serve the DRAFT governance tools over one transport:

  stdio            MCP over stdin/stdout (default)
  sse              MCP over server-sent events
  streamable-http  MCP over streamable HTTP at /mcp
  rest             REST mirror plus the /ws/tools websocket`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.transport != "" {
				if err := os.Setenv("DRAFT_TRANSPORT", opts.transport); err != nil {
					return err
				}
			}
			if opts.host != "" {
				if err := os.Setenv("DRAFT_HOST", opts.host); err != nil {
					return err
				}
			}
			if opts.port != 0 {
				if err := os.Setenv("DRAFT_PORT", strconv.Itoa(opts.port)); err != nil {
					return err
				}
			}

			a, err := bootstrap(root, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "stdio, sse, streamable-http or rest (overrides DRAFT_TRANSPORT)")
	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (overrides DRAFT_HOST)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (overrides DRAFT_PORT)")

	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	a.logger.Info("Starting server",
		"transport", cfg.Transport,
		"oracle", a.oracle.Name(),
		"db", cfg.DBPath,
		"version", mcpserver.Version)

	if cfg.SessionTTL > 0 {
		retention.NewWorker(a.eng, cfg.SessionTTL, 0, nil, a.logger).Start(ctx)
	}

	mcp := mcpserver.New(a.svc, a.logger)

	if cfg.Transport == config.TransportStdio {
		a.logger.Info("Serving MCP on stdio")
		if err := mcpserver.ServeStdio(ctx, mcp); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}

	conns := api.NewConns()
	var handler http.Handler
	switch cfg.Transport {
	case config.TransportREST:
		limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
		limiter.StartEviction(ctx)
		handler = api.NewRouter(api.RouterOptions{
			Service:        a.svc,
			DB:             a.repo,
			Conns:          conns,
			Limiter:        limiter,
			AllowedOrigins: cfg.AllowedOrigins,
			Version:        mcpserver.Version,
			Logger:         a.logger,
		})
	default:
		h, err := mcpserver.HTTPHandler(mcp, cfg.Transport, "http://"+cfg.Addr())
		if err != nil {
			return err
		}
		handler = h
	}

	// SSE streams stay open, so there is no write timeout.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server listening", "addr", srv.Addr, "transport", cfg.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down gracefully...")
	conns.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Server stopped successfully")
	return nil
}
