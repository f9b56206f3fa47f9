// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"log/slog"

	"github.com/robbyt/go-fsm"
)

// Host lifecycle states.
const (
	StatusUninitialized = "uninitialized"
	StatusLoaded        = "loaded"
	StatusInitialized   = "initialized"
	StatusRunning       = "running"
	StatusTerminated    = "terminated"
)

// lifecycleTransitions allows loaded -> initialized once; a failed or
// abandoned startup may go straight to terminated.
var lifecycleTransitions = map[string][]string{
	StatusUninitialized: {StatusLoaded, StatusTerminated},
	StatusLoaded:        {StatusInitialized, StatusTerminated},
	StatusInitialized:   {StatusRunning, StatusTerminated},
	StatusRunning:       {StatusTerminated},
	StatusTerminated:    {},
}

func newLifecycle(handler slog.Handler) (*fsm.Machine, error) {
	return fsm.New(handler, StatusUninitialized, lifecycleTransitions)
}
