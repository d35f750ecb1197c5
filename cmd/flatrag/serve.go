package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/config"
	chiTransport "github.com/kailas-cloud/flatrag/internal/transport/chi"
	mcpTransport "github.com/kailas-cloud/flatrag/internal/transport/mcp"
	"github.com/kailas-cloud/flatrag/internal/version"
)

func newServeCmd(opts *options) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer eng.Close()

			cfg := eng.Config()
			if cmd.Flags().Changed("port") {
				cfg, err = eng.UpdateConfig(func(c config.Config) config.Config {
					c.HTTP.Port = port
					return c
				})
				if err != nil {
					return err
				}
			}

			logger.Info("Starting flatrag API server",
				zap.String("version", version.Version),
				zap.String("commit", version.Commit),
				zap.Int("http_port", cfg.HTTP.Port),
				zap.String("data_dir", cfg.Storage.DataDir),
			)

			addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      chiTransport.NewServer(eng, logger, chiTransport.WithIngestRoot(cfg.Storage.DataDir)).Handler(),
				ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
				WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}
			logger.Info("Received shutdown signal")

			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error during shutdown", zap.Error(err))
			}
			logger.Info("Server stopped gracefully")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default from config)")
	return cmd
}

func newMCPCmd(opts *options) *cobra.Command {
	var (
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve search and query as MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer eng.Close()

			srv := mcpTransport.NewServer(eng, logger)

			switch transport {
			case "stdio":
				logger.Info("Serving MCP over stdio")
				return server.ServeStdio(srv)
			case "sse":
				sse := server.NewSSEServer(srv, server.WithBaseURL("http://"+addr))
				logger.Info("Serving MCP over SSE", zap.String("addr", addr))
				return sse.Start(addr)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "stdio or sse")
	cmd.Flags().StringVar(&addr, "addr", "localhost:8081", "listen address for sse")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flatrag %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
