// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"go.starlark.net/starlark"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxConcurrentLoads bounds how many font files decode at once.
const DefaultMaxConcurrentLoads = 4

// FontLoader decodes font files in the background. Load never blocks; results
// reach the script only through the returned handle.
type FontLoader struct {
	jail   *Jail
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	slots  *semaphore.Weighted
	group  singleflight.Group
	wg     sync.WaitGroup
}

// NewFontLoader creates a loader reading through jail. ctx bounds the loader's
// lifetime in addition to Close.
func NewFontLoader(ctx context.Context, jail *Jail, logger *slog.Logger, maxConcurrent int) *FontLoader {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentLoads
	}
	ctx, cancel := context.WithCancel(ctx)
	return &FontLoader{
		jail:   jail,
		logger: logger.With("component", "font_loader"),
		ctx:    ctx,
		cancel: cancel,
		slots:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Load returns a pending handle for path and starts decoding it. After Close,
// the handle stays pending.
func (l *FontLoader) Load(path ResolvedPath, requested string) *FontHandle {
	h := &FontHandle{requested: requested, path: path}
	if l.ctx.Err() != nil {
		return h
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		source, err := l.decode(path)
		if l.ctx.Err() != nil {
			l.logger.Debug("Dropping font result after shutdown", "path", path.Rel())
			return
		}
		if err != nil {
			l.logger.Warn("Font load failed", "path", path.Rel(), "error", err)
			h.cell.Reject(err)
			return
		}
		l.logger.Debug("Font loaded", "path", path.Rel())
		h.cell.Resolve(source)
	}()
	return h
}

// Close stops accepting results and waits for running decodes to return.
func (l *FontLoader) Close() {
	l.cancel()
	l.wg.Wait()
}

// decode shares one decode among concurrent loads of the same file. Only the
// decoding call holds a slot; callers joining it wait without one.
func (l *FontLoader) decode(path ResolvedPath) (*text.GoTextFaceSource, error) {
	v, err, shared := l.group.Do(path.String(), func() (any, error) {
		if err := l.slots.Acquire(l.ctx, 1); err != nil {
			return nil, err
		}
		defer l.slots.Release(1)
		return l.decodeFile(path)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		l.logger.Debug("Font decode shared with a concurrent load", "path", path.Rel())
	}
	return v.(*text.GoTextFaceSource), nil
}

func (l *FontLoader) decodeFile(path ResolvedPath) (src *text.GoTextFaceSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("decoding %s: %v", path.Rel(), r)
		}
	}()

	data, err := l.jail.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src, err = text.NewGoTextFaceSource(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path.Rel(), err)
	}
	return src, nil
}

// FontHandle is the script's view of one font load.
type FontHandle struct {
	requested string
	path      ResolvedPath
	cell      Cell[*text.GoTextFaceSource]
}

var (
	_ starlark.HasAttrs = (*FontHandle)(nil)
	_ starlark.HasAttrs = (*SizedFont)(nil)
)

// State returns the current load state.
func (h *FontHandle) State() State {
	return h.cell.State()
}

// Source returns the decoded face source once the load is ready.
func (h *FontHandle) Source() (*text.GoTextFaceSource, bool) {
	src, state, _ := h.cell.Get()
	return src, state == StateReady
}

// Err returns the failure of a failed load, nil otherwise.
func (h *FontHandle) Err() error {
	_, _, err := h.cell.Get()
	return err
}

// Path returns the path as the script requested it.
func (h *FontHandle) Path() string {
	return h.requested
}

// Sized binds a pixel size to the handle.
func (h *FontHandle) Sized(size int) *SizedFont {
	return &SizedFont{handle: h, size: size}
}

var fontHandleCapability = newCapability(
	"font_face",
	map[string]func(*FontHandle) starlark.Value{
		"ready":  func(h *FontHandle) starlark.Value { return starlark.Bool(h.State() == StateReady) },
		"failed": func(h *FontHandle) starlark.Value { return starlark.Bool(h.State() == StateFailed) },
		"path":   func(h *FontHandle) starlark.Value { return starlark.String(h.requested) },
		"error": func(h *FontHandle) starlark.Value {
			if err := h.Err(); err != nil {
				return starlark.String(err.Error())
			}
			return starlark.None
		},
	},
	map[string]methodFunc[*FontHandle]{
		"font": func(h *FontHandle, _ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var size int
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "size", &size); err != nil {
				return nil, err
			}
			if size <= 0 {
				return nil, fmt.Errorf("%s: size must be positive, got %d", fn.Name(), size)
			}
			return h.Sized(size), nil
		},
	},
)

func (h *FontHandle) String() string {
	return fmt.Sprintf("<font_face %q %s>", h.requested, h.State())
}
func (h *FontHandle) Type() string          { return "font_face" }
func (h *FontHandle) Freeze()               {}
func (h *FontHandle) Truth() starlark.Bool  { return starlark.True }
func (h *FontHandle) Hash() (uint32, error) { return unhashable(h) }
func (h *FontHandle) AttrNames() []string   { return fontHandleCapability.attrNames() }
func (h *FontHandle) Attr(name string) (starlark.Value, error) {
	return fontHandleCapability.attr(h, name)
}

// SizedFont is a font handle with a fixed pixel size.
type SizedFont struct {
	handle *FontHandle
	size   int
}

// Face returns the sized face, or nil while the underlying load is not ready.
func (f *SizedFont) Face() text.Face {
	src, ok := f.handle.Source()
	if !ok {
		return nil
	}
	return &text.GoTextFace{Source: src, Size: float64(f.size)}
}

// Measure returns the width and height of s and the distance from the top of
// the first line to its baseline. It is all zeros until the face is ready.
func (f *SizedFont) Measure(s string) (width, height, baseline float64) {
	face := f.Face()
	if face == nil {
		return 0, 0, 0
	}
	width, height = text.Measure(s, face, lineSpacing(face))
	return width, height, face.Metrics().HAscent
}

var sizedFontCapability = newCapability(
	"font",
	map[string]func(*SizedFont) starlark.Value{
		"face": func(f *SizedFont) starlark.Value { return f.handle },
		"size": func(f *SizedFont) starlark.Value { return starlark.MakeInt(f.size) },
	},
	map[string]methodFunc[*SizedFont]{
		"measure": func(f *SizedFont, _ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "text", &s); err != nil {
				return nil, err
			}
			w, h, baseline := f.Measure(s)
			return starlark.Tuple{starlark.Float(w), starlark.Float(h), starlark.Float(baseline)}, nil
		},
	},
)

func (f *SizedFont) String() string {
	return fmt.Sprintf("<font %q size=%d>", f.handle.requested, f.size)
}
func (f *SizedFont) Type() string          { return "font" }
func (f *SizedFont) Freeze()               {}
func (f *SizedFont) Truth() starlark.Bool  { return starlark.True }
func (f *SizedFont) Hash() (uint32, error) { return unhashable(f) }
func (f *SizedFont) AttrNames() []string   { return sizedFontCapability.attrNames() }
func (f *SizedFont) Attr(name string) (starlark.Value, error) {
	return sizedFontCapability.attr(f, name)
}

func lineSpacing(face text.Face) float64 {
	m := face.Metrics()
	return m.HAscent + m.HDescent + m.HLineGap
}
