// Command radar collects market signals, scores them against the solo SaaS
// thesis, and turns recurring patterns into build-ready opportunities.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelkehle/opportunity-radar/internal/app"
	"github.com/joelkehle/opportunity-radar/internal/config"
	"github.com/joelkehle/opportunity-radar/internal/logging"
)

// Set with -ldflags "-X main.version=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "radar",
		Short:         "Solo SaaS opportunity radar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		collectCmd(g),
		processCmd(g),
		reprocessCmd(g),
		detectCmd(g),
		anomaliesCmd(g),
		generateCmd(g),
		digestCmd(g),
		quarterlyCmd(g),
		alertsCmd(g),
		serveCmd(g),
		scheduleCmd(g),
		onceCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "radar version %s (build: %s)\n", version, buildTime)
			},
		},
	)
	return cmd
}

// open loads configuration and builds the application. The returned func
// releases it.
func (g *globals) open(ctx context.Context) (*app.App, *logrus.Logger, func(), error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	log, logFile, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		logFile.Close()
		return nil, nil, nil, err
	}
	closeAll := func() {
		if err := a.Close(context.Background()); err != nil {
			log.WithError(err).Warn("shutdown")
		}
		logFile.Close()
	}
	return a, log, closeAll, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
