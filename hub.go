// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Environment is what the windowing backend reports once per frame.
type Environment interface {
	// FrameTime is the duration of the last frame in seconds.
	FrameTime() float64
	// ScreenSize is the drawable area in pixels.
	ScreenSize() (width, height float64)
	// FPS is the measured frame rate.
	FPS() float64
}

// Snapshot is the per-frame state visible to the script.
type Snapshot struct {
	// Frame counts refreshes, starting at 0. Warm-up frames are counted.
	Frame        int
	FrameTime    float64
	ScreenWidth  float64
	ScreenHeight float64
	FPS          float64
	// Elapsed is the sum of frame times up to and including this frame.
	Elapsed float64
}

// Hub is the script's read-only view of the frame plus its font factory. It
// owns the jail used for every path the script asks for.
type Hub struct {
	snapshot  Snapshot
	refreshed bool
	jail      *Jail
	loader    *FontLoader
}

var _ starlark.HasAttrs = (*Hub)(nil)

// NewHub creates a hub resolving font paths through jail and loading them with loader.
func NewHub(jail *Jail, loader *FontLoader) *Hub {
	return &Hub{jail: jail, loader: loader}
}

// Refresh overwrites the snapshot from env. The frame driver calls it once per
// frame, before any script callback.
func (h *Hub) Refresh(env Environment) {
	width, height := env.ScreenSize()
	frameTime := env.FrameTime()
	next := Snapshot{
		FrameTime:    frameTime,
		ScreenWidth:  width,
		ScreenHeight: height,
		FPS:          env.FPS(),
		Elapsed:      h.snapshot.Elapsed + frameTime,
	}
	if h.refreshed {
		next.Frame = h.snapshot.Frame + 1
	}
	h.snapshot = next
	h.refreshed = true
}

// Snapshot returns the current snapshot.
func (h *Hub) Snapshot() Snapshot {
	return h.snapshot
}

// FontFace resolves requested inside the jail and starts loading it. Path
// errors are returned here; load errors end up in the handle.
func (h *Hub) FontFace(requested string) (*FontHandle, error) {
	path, err := h.jail.Resolve(requested)
	if err != nil {
		return nil, err
	}
	return h.loader.Load(path, requested), nil
}

var hubCapability = newCapability(
	"hub",
	map[string]func(*Hub) starlark.Value{
		"frame_time":    func(h *Hub) starlark.Value { return starlark.Float(h.snapshot.FrameTime) },
		"screen_size_x": func(h *Hub) starlark.Value { return starlark.Float(h.snapshot.ScreenWidth) },
		"screen_size_y": func(h *Hub) starlark.Value { return starlark.Float(h.snapshot.ScreenHeight) },
		"fps":           func(h *Hub) starlark.Value { return starlark.Float(h.snapshot.FPS) },
		"time":          func(h *Hub) starlark.Value { return starlark.Float(h.snapshot.Elapsed) },
		"frame":         func(h *Hub) starlark.Value { return starlark.MakeInt(h.snapshot.Frame) },
	},
	map[string]methodFunc[*Hub]{
		"font_face": func(h *Hub, _ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var requested string
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &requested); err != nil {
				return nil, err
			}
			handle, err := h.FontFace(requested)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn.Name(), err)
			}
			return handle, nil
		},
	},
)

func (h *Hub) String() string {
	return fmt.Sprintf("<hub frame=%d>", h.snapshot.Frame)
}
func (h *Hub) Type() string          { return "hub" }
func (h *Hub) Freeze()               {}
func (h *Hub) Truth() starlark.Bool  { return starlark.True }
func (h *Hub) Hash() (uint32, error) { return unhashable(h) }
func (h *Hub) AttrNames() []string   { return hubCapability.attrNames() }
func (h *Hub) Attr(name string) (starlark.Value, error) {
	return hubCapability.attr(h, name)
}
