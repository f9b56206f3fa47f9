// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/contextfreeinfo/sing"
	"github.com/contextfreeinfo/sing/internal/config"
	"github.com/contextfreeinfo/sing/internal/logging"
	"github.com/urfave/cli/v3"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Open a window and run the script",
		ArgsUsage: "SCRIPT",
		Flags:     runFlags(),
		Action:    runAction,
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a TOML configuration file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: trace, debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text or json",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "Window title",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Window width when not fullscreen",
		},
		&cli.IntFlag{
			Name:  "height",
			Usage: "Window height when not fullscreen",
		},
		&cli.BoolFlag{
			Name:  "fullscreen",
			Usage: "Run fullscreen",
		},
		&cli.StringFlag{
			Name:  "on-error",
			Usage: "What a failing update or draw does: continue or fatal",
		},
		&cli.IntFlag{
			Name:  "warmup",
			Usage: "Frames to let pass before init runs",
		},
	}
}

// loadConfig reads --config when given and applies flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("title") {
		cfg.Window.Title = cmd.String("title")
	}
	if cmd.IsSet("width") {
		cfg.Window.Width = int(cmd.Int("width"))
	}
	if cmd.IsSet("height") {
		cfg.Window.Height = int(cmd.Int("height"))
	}
	if cmd.IsSet("fullscreen") {
		cfg.Window.Fullscreen = cmd.Bool("fullscreen")
	}
	if cmd.IsSet("on-error") {
		cfg.Frames.OnError = cmd.String("on-error")
	}
	if cmd.IsSet("warmup") {
		cfg.Frames.Warmup = int(cmd.Int("warmup"))
	}
	return cfg, cfg.Validate()
}

func hostOptions(ctx context.Context, cfg *config.Config, logger *slog.Logger) []sing.Option {
	return []sing.Option{
		sing.WithContext(ctx),
		sing.WithLogger(logger),
		sing.WithWarmupFrames(cfg.Frames.Warmup),
		sing.WithErrorPolicy(sing.ErrorPolicy(cfg.Frames.OnError)),
		sing.WithMaxConsecutiveErrors(cfg.Frames.MaxConsecutiveErrors),
		sing.WithMaxSteps(cfg.Frames.MaxSteps),
		sing.WithMaxConcurrentLoads(cfg.Fonts.MaxConcurrentLoads),
	}
}

func windowOptions(cfg *config.Config) sing.WindowOptions {
	return sing.WindowOptions{
		Title:      cfg.Window.Title,
		Width:      cfg.Window.Width,
		Height:     cfg.Window.Height,
		Fullscreen: cfg.Window.Fullscreen,
		Resizable:  cfg.Window.Resizable,
		QuitKey:    cfg.Window.QuitKey,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return cli.Exit("exactly one script path is required", 1)
	}
	scriptPath := cmd.Args().First()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(err, 1)
	}
	handler, err := logging.SetupHandler(cfg.Log.Level, cfg.Log.Format, nil)
	if err != nil {
		return cli.Exit(err, 1)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := sing.New(scriptPath, hostOptions(ctx, cfg, logger)...)
	if err != nil {
		return cli.Exit(fmt.Errorf("preparing %s: %w", scriptPath, err), 1)
	}
	defer func() {
		if err := host.Close(); err != nil {
			logger.Warn("Closing host failed", "error", err)
		}
	}()

	if err := host.Load(); err != nil {
		replayStartup(ctx, host, handler, logger)
		return cli.Exit(fmt.Errorf("loading %s: %w", scriptPath, err), 1)
	}
	if err := sing.Run(ctx, host, windowOptions(cfg)); err != nil {
		replayStartup(ctx, host, handler, logger)
		return cli.Exit(fmt.Errorf("running %s: %w", scriptPath, err), 1)
	}

	last := host.Hub().Snapshot()
	logger.Info("Run finished", "script", host.Path(), "last_frame", last.Frame, "elapsed", last.Elapsed)
	return nil
}

// replayStartup shows what the script printed during startup when the
// configured level hid it.
func replayStartup(ctx context.Context, host *sing.Host, handler slog.Handler, logger *slog.Logger) {
	if handler.Enabled(ctx, slog.LevelInfo) {
		return
	}
	if err := host.ReplayStartupOutput(logging.SetupHandlerText("info", os.Stderr)); err != nil {
		logger.Warn("Replaying script output failed", "error", err)
	}
}
