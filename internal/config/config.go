// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

// Package config loads the sing run configuration from TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrConfig is the base error for configuration problems.
	ErrConfig = errors.New("config")

	ErrInvalidWindowSize = fmt.Errorf("%w: window size must be positive", ErrConfig)
	ErrInvalidWarmup     = fmt.Errorf("%w: warmup must not be negative", ErrConfig)
	ErrInvalidOnError    = fmt.Errorf("%w: on_error must be continue or fatal", ErrConfig)
	ErrInvalidErrorLimit = fmt.Errorf("%w: max_consecutive_errors must not be negative", ErrConfig)
	ErrInvalidLoads      = fmt.Errorf("%w: max_concurrent_loads must be positive", ErrConfig)
	ErrInvalidLogLevel   = fmt.Errorf("%w: unknown log level", ErrConfig)
	ErrInvalidLogFormat  = fmt.Errorf("%w: unknown log format", ErrConfig)
)

// Config is the full run configuration.
type Config struct {
	Window Window `toml:"window"`
	Frames Frames `toml:"frames"`
	Fonts  Fonts  `toml:"fonts"`
	Log    Log    `toml:"log"`
}

// Window describes the Ebiten window.
type Window struct {
	Title      string `toml:"title"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	Fullscreen bool   `toml:"fullscreen"`
	Resizable  bool   `toml:"resizable"`
	QuitKey    string `toml:"quit_key"`
}

// Frames controls the frame driver.
type Frames struct {
	Warmup               int    `toml:"warmup"`
	OnError              string `toml:"on_error"`
	MaxConsecutiveErrors int    `toml:"max_consecutive_errors"`
	MaxSteps             uint64 `toml:"max_steps"`
}

// Fonts controls background font loading.
type Fonts struct {
	MaxConcurrentLoads int `toml:"max_concurrent_loads"`
}

// Log selects the log handler.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Window: Window{
			Title:      "Sing",
			Width:      1280,
			Height:     720,
			Fullscreen: true,
			Resizable:  true,
			QuitKey:    "Escape",
		},
		Frames: Frames{
			Warmup:   2,
			OnError:  "continue",
			MaxSteps: 10_000_000,
		},
		Fonts: Fonts{MaxConcurrentLoads: 4},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Keys the file leaves out keep their
// default; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfig, path, err)
	}
	return Parse(data)
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrConfig, strict.String())
		}
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if !c.Window.Fullscreen && (c.Window.Width <= 0 || c.Window.Height <= 0) {
		errs = append(errs, fmt.Errorf("%w: %dx%d", ErrInvalidWindowSize, c.Window.Width, c.Window.Height))
	}
	if c.Frames.Warmup < 0 {
		errs = append(errs, ErrInvalidWarmup)
	}
	switch c.Frames.OnError {
	case "continue", "fatal":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidOnError, c.Frames.OnError))
	}
	if c.Frames.MaxConsecutiveErrors < 0 {
		errs = append(errs, ErrInvalidErrorLimit)
	}
	if c.Fonts.MaxConcurrentLoads <= 0 {
		errs = append(errs, ErrInvalidLoads)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format))
	}
	return errors.Join(errs...)
}
