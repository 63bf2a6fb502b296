// Command fragwatch tracks player match stats, ranks groups and delivers
// scheduled reports.
//
//	fragwatch serve                       HTTP API + scheduled deliveries
//	fragwatch collect g1 --window 7d      rank a group now, print it
//	fragwatch collect --player neo        one player's summary
//	fragwatch program g1 123456789 21:00  schedule daily/weekly/monthly reports
//	fragwatch players add g1 neo          track a player
//	fragwatch mcp                         MCP tools over stdio
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/fragwatch/fragwatch"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fragwatch:", err)
		cancel()
		os.Exit(1)
	}
}

type globalFlags struct {
	config   string
	logLevel string
	json     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "fragwatch",
		Short:         "Track player match stats, rank groups and deliver scheduled reports.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "print reports as JSON lines instead of tables")

	root.AddCommand(
		newServeCmd(g),
		newCollectCmd(g),
		newRunCmd(g),
		newProgramCmd(g),
		newCancelCmd(g),
		newPlayersCmd(g),
		newMCPCmd(g),
	)
	return root
}

// load reads the configuration and installs a JSON slog handler on logOut.
func (g *globalFlags) load(logOut io.Writer) (*fragwatch.Config, *slog.Logger, error) {
	cfg, err := fragwatch.LoadConfig(g.config)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.json {
		cfg.Delivery.StdoutJSON = true
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// open builds a Service for one-shot commands. Logs go to stderr so stdout
// carries only reports.
func (g *globalFlags) open(mutate func(*fragwatch.Config)) (*fragwatch.Service, error) {
	cfg, logger, err := g.load(os.Stderr)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	return fragwatch.New(cfg, fragwatch.WithLogger(logger))
}

func closeService(ctx context.Context, svc *fragwatch.Service) {
	if err := svc.Close(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("fragwatch: close", "error", err)
	}
}
