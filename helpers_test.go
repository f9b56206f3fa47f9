// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

// fakeEnv is a fixed Environment.
type fakeEnv struct {
	frameTime     float64
	width, height float64
	fps           float64
}

func (e fakeEnv) FrameTime() float64                  { return e.frameTime }
func (e fakeEnv) ScreenSize() (width, height float64) { return e.width, e.height }
func (e fakeEnv) FPS() float64                        { return e.fps }

var testEnv = fakeEnv{frameTime: 0.016, width: 800, height: 600, fps: 60}

type drawCall struct {
	op         string
	x, y, w, h float64
	text       string
	size       float64
	source     *text.GoTextFaceSource
	color      color.RGBA
}

// recordingCanvas remembers every call made on it.
type recordingCanvas struct {
	calls []drawCall
}

func (c *recordingCanvas) Clear(clr color.Color) {
	c.calls = append(c.calls, drawCall{op: "clear", color: toRGBA(clr)})
}

func (c *recordingCanvas) FillRect(x, y, w, h float64, clr color.Color) {
	c.calls = append(c.calls, drawCall{op: "rect", x: x, y: y, w: w, h: h, color: toRGBA(clr)})
}

func (c *recordingCanvas) DrawText(s string, x, y float64, face text.Face, clr color.Color) {
	call := drawCall{op: "text", x: x, y: y, text: s, color: toRGBA(clr)}
	if f, ok := face.(*text.GoTextFace); ok {
		call.size, call.source = f.Size, f.Source
	}
	c.calls = append(c.calls, call)
}

func toRGBA(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

// writeFile creates name under dir, making parent directories as needed.
func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeFont(t *testing.T, dir, name string) string {
	t.Helper()
	return writeFile(t, dir, name, goregular.TTF)
}

// canonicalTempDir returns a temp dir with symlinks resolved.
func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}
