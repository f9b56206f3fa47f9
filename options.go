// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"context"
	"log/slog"
)

// ErrorPolicy decides what a failing update or draw does to the run.
type ErrorPolicy string

const (
	// ErrorPolicyContinue logs the failure, skips the rest of the frame and keeps running.
	ErrorPolicyContinue ErrorPolicy = "continue"
	// ErrorPolicyFatal ends the run on the first failing frame.
	ErrorPolicyFatal ErrorPolicy = "fatal"
)

// Default host settings.
const (
	DefaultWarmupFrames = 2
	DefaultMaxSteps     = 10_000_000
)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger for the host and everything it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLogHandler sets a custom slog handler for the host.
func WithLogHandler(handler slog.Handler) Option {
	return func(h *Host) {
		if handler != nil {
			h.logger = slog.New(handler)
		}
	}
}

// WithContext bounds background font loads by ctx.
func WithContext(ctx context.Context) Option {
	return func(h *Host) {
		if ctx != nil {
			h.ctx = ctx
		}
	}
}

// WithWarmupFrames sets how many frames refresh the hub before init runs.
func WithWarmupFrames(n int) Option {
	return func(h *Host) {
		if n >= 0 {
			h.warmup = n
		}
	}
}

// WithErrorPolicy sets what happens when update or draw fails.
func WithErrorPolicy(policy ErrorPolicy) Option {
	return func(h *Host) {
		if policy != "" {
			h.policy = policy
		}
	}
}

// WithMaxConsecutiveErrors ends a continue-policy run after n failing frames in
// a row. Zero means never.
func WithMaxConsecutiveErrors(n int) Option {
	return func(h *Host) {
		if n >= 0 {
			h.maxConsecutive = n
		}
	}
}

// WithMaxSteps bounds the Starlark execution steps of each script call. Zero
// disables the bound.
func WithMaxSteps(n uint64) Option {
	return func(h *Host) {
		h.maxSteps = n
	}
}

// WithMaxConcurrentLoads bounds how many fonts decode at the same time.
func WithMaxConcurrentLoads(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxLoads = n
		}
	}
}
