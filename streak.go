// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"errors"
	"log/slog"

	"go.starlark.net/starlark"
)

// errorStreak collapses a run of failing frames so a script that fails every
// frame logs once per distinct message instead of once per frame.
type errorStreak struct {
	count   int
	message string
	repeats int
}

// failed records a failing frame and returns the length of the current streak.
func (s *errorStreak) failed(logger *slog.Logger, frame int, err error) int {
	msg := errorMessage(err)
	s.count++
	if msg == s.message {
		s.repeats++
		return s.count
	}

	s.flush(logger)
	s.message = msg
	attrs := []any{"frame", frame, "error", msg}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		attrs = append(attrs, "backtrace", evalErr.Backtrace())
	}
	logger.Error("Script frame failed", attrs...)
	return s.count
}

// recovered closes the streak after a frame that ran cleanly.
func (s *errorStreak) recovered(logger *slog.Logger) {
	if s.count == 0 {
		return
	}
	s.flush(logger)
	logger.Info("Script recovered", "failed_frames", s.count)
	*s = errorStreak{}
}

func (s *errorStreak) flush(logger *slog.Logger) {
	if s.repeats > 0 {
		logger.Warn("Script error repeated", "error", s.message, "repeats", s.repeats)
	}
	s.repeats = 0
}
