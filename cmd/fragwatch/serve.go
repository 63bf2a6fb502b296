package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/fragwatch/fragwatch"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and fire scheduled deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := g.load(os.Stdout)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			svc, err := fragwatch.New(cfg, fragwatch.WithLogger(logger))
			if err != nil {
				return err
			}
			defer closeService(ctx, svc)

			if err := svc.Start(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           svc.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				logger.Info("fragwatch: listening", "addr", cfg.HTTP.Addr, "version", version)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logger.Info("fragwatch: shutting down")
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func newMCPCmd(g *globalFlags) *cobra.Command {
	var schedules bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the fragwatch MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// stdout is the protocol channel.
			cfg, logger, err := g.load(os.Stderr)
			if err != nil {
				return err
			}
			cfg.Delivery.Stdout, cfg.Delivery.StdoutJSON = false, false
			svc, err := fragwatch.New(cfg, fragwatch.WithLogger(logger))
			if err != nil {
				return err
			}
			defer closeService(ctx, svc)
			if schedules {
				if err := svc.Start(ctx); err != nil {
					return err
				}
			}

			srv := mcp.NewServer(&mcp.Implementation{Name: "fragwatch", Version: version}, nil)
			svc.RegisterMCP(srv)
			slog.Info("fragwatch: mcp on stdio")
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&schedules, "schedules", false, "also fire persisted schedules while the session lasts")
	return cmd
}
