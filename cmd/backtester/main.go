package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"backtester/internal/config"
	"backtester/internal/metrics"
	"backtester/internal/util"
)

const (
	version           = "0.1.0"
	defaultConfigPath = "config/backtester.yaml"
)

func main() {
	app := cli.NewApp()
	app.Name = "backtester"
	app.Version = version
	app.Usage = "event-driven backtests over historical daily bars"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   defaultConfigPath,
			Usage:   "path to the YAML configuration file",
			EnvVars: []string{"BACKTESTER_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: "optional dotenv file loaded before the configuration",
		},
	}
	app.Before = setup
	app.After = teardown
	app.Commands = []*cli.Command{
		runCommand,
		strategiesCommand,
		symbolsCommand,
		runsCommand,
		fetchCommand,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "backtester: %v\n", err)
		os.Exit(1)
	}
}

type appState struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics interface{ Close() error }
}

func state(c *cli.Context) *appState {
	return c.App.Metadata["state"].(*appState)
}

// setup loads configuration and the logger, and starts the metrics endpoint
// when one is configured.
func setup(c *cli.Context) error {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return err
	}

	path := c.String("config")
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !c.IsSet("config"):
		cfg = config.Default()
	default:
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := util.NewLogger(firstNonEmpty(cfg.Logging.Level, "info"), cfg.Logging.Format)
	util.SetDefault(log)

	st := &appState{cfg: cfg, log: log}
	if cfg.Metrics.Addr != "" {
		st.metrics = metrics.Serve(cfg.Metrics.Addr)
		log.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata["state"] = st
	return nil
}

func teardown(c *cli.Context) error {
	st, ok := c.App.Metadata["state"].(*appState)
	if !ok || st.metrics == nil {
		return nil
	}
	return st.metrics.Close()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
