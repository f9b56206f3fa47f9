// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/contextfreeinfo/sing"
	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "sing",
		Version:   sing.Version,
		Usage:     "Run a Starlark script once per frame",
		ArgsUsage: "SCRIPT",
		Flags:     runFlags(),
		Action:    runAction,
		Commands: []*cli.Command{
			runCmd(),
			checkCmd(),
			versionCmd(),
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "sing version %s\n", cmd.Root().Version)
			return err
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
