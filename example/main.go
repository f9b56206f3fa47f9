// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

// Example of driving a script through the library API instead of the sing command.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/contextfreeinfo/sing"
	"github.com/contextfreeinfo/sing/internal/logging"
)

func findScript() string {
	// Works from the repository root and from example/.
	if _, err := os.Stat("bounce.star"); err == nil {
		return "bounce.star"
	}
	return filepath.Join("example", "bounce.star")
}

func main() {
	if err := logging.SetupLogger("debug", logging.FormatText); err != nil {
		slog.Error("Logger setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	host, err := sing.New(findScript(),
		sing.WithContext(ctx),
		sing.WithMaxConsecutiveErrors(120),
	)
	if err != nil {
		slog.Error("Host setup failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = host.Close() }()

	if err := host.Load(); err != nil {
		slog.Error("Script load failed", "error", err)
		os.Exit(1)
	}

	err = sing.Run(ctx, host, sing.WindowOptions{
		Title:     "Sing",
		Width:     800,
		Height:    600,
		Resizable: true,
		QuitKey:   "Escape",
	})
	if err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}
