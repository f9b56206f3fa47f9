// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/contextfreeinfo/sing"
	"github.com/contextfreeinfo/sing/internal/logging"
	"github.com/urfave/cli/v3"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	presentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	absentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Width(10)
)

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Load a script without opening a window and report its entry points",
		ArgsUsage: "SCRIPT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "Log level: trace, debug, info, warn or error",
			},
		},
		Action: checkAction,
	}
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return cli.Exit("exactly one script path is required", 1)
	}
	scriptPath := cmd.Args().First()
	out := cmd.Root().Writer

	handler, err := logging.SetupHandler(cmd.String("log-level"), logging.FormatText, cmd.Root().ErrWriter)
	if err != nil {
		return cli.Exit(err, 1)
	}

	host, err := sing.New(scriptPath, sing.WithContext(ctx), sing.WithLogger(slog.New(handler)))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = host.Close() }()

	if err := host.Load(); err != nil {
		writeFailure(out, host, err)
		return cli.Exit("check failed", 1)
	}
	return writeReport(out, host)
}

func writeReport(w io.Writer, host *sing.Host) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Script "+host.Path()) + "\n")
	b.WriteString(labelStyle.Render("jail") + host.Jail().Root() + "\n")
	for _, name := range []string{sing.EntryInit, sing.EntryUpdate, sing.EntryDraw} {
		mark := absentStyle.Render("absent")
		if host.HasEntry(name) {
			mark = presentStyle.Render("defined")
		}
		b.WriteString(labelStyle.Render(name) + mark + "\n")
	}

	names := make([]string, 0, len(host.Globals()))
	for name := range host.Globals() {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString(labelStyle.Render("globals") + strings.Join(names, ", ") + "\n")

	for _, line := range host.StartupOutput() {
		b.WriteString(labelStyle.Render("print") + line + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeFailure(w io.Writer, host *sing.Host, err error) {
	fmt.Fprintln(w, titleStyle.Render("Script "+host.Path()))
	fmt.Fprintln(w, errorStyle.Render("error")+" "+err.Error())
	for _, line := range host.StartupOutput() {
		fmt.Fprintln(w, labelStyle.Render("print")+line)
	}
}
