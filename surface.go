// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"go.starlark.net/starlark"
	"golang.org/x/image/font/gofont/goregular"
)

// Defaults for arguments the script leaves out.
const (
	DefaultClearColor = 0x000000
	DefaultRectColor  = 0xFFFFFF
	DefaultTextColor  = 0xFFFFFF
	DefaultTextSize   = 20
)

// defaultFaceSource is the Go Regular face used whenever a script font is
// missing, pending or failed.
var defaultFaceSource = sync.OnceValue(func() *text.GoTextFaceSource {
	src, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		panic(fmt.Sprintf("sing: embedded default font: %v", err))
	}
	return src
})

// Surface is the drawing capability passed to draw. It holds no drawing state
// of its own; the driver points it at the current frame's canvas.
type Surface struct {
	canvas Canvas
}

var _ starlark.HasAttrs = (*Surface)(nil)

// NewSurface returns a surface drawing onto canvas.
func NewSurface(canvas Canvas) *Surface {
	return &Surface{canvas: canvas}
}

// Bind points the surface at the canvas of the current frame.
func (s *Surface) Bind(canvas Canvas) {
	s.canvas = canvas
}

// Clear fills the whole canvas.
func (s *Surface) Clear(c color.Color) {
	s.canvas.Clear(c)
}

// Rect fills the rectangle spanned by two opposite corners given in any order.
func (s *Surface) Rect(x0, y0, x1, y1 float64, c color.Color) {
	s.canvas.FillRect(math.Min(x0, x1), math.Min(y0, y1), math.Abs(x1-x0), math.Abs(y1-y0), c)
}

// Text draws str with its first baseline at (x, y).
func (s *Surface) Text(str string, x, y float64, face text.Face, c color.Color) {
	s.canvas.DrawText(str, x, y-face.Metrics().HAscent, face, c)
}

// textFace picks the face for a text call. font is None, a font handle or a
// sized font; size <= 0 means unspecified.
func textFace(font starlark.Value, size float64) (text.Face, error) {
	var handle *FontHandle
	fontSize := 0
	switch f := font.(type) {
	case nil, starlark.NoneType:
	case *FontHandle:
		handle = f
	case *SizedFont:
		handle, fontSize = f.handle, f.size
	default:
		return nil, fmt.Errorf("font: got %s, want font_face, font or None", font.Type())
	}

	if size <= 0 {
		size = DefaultTextSize
		if fontSize > 0 {
			size = float64(fontSize)
		}
	}

	src := defaultFaceSource()
	if handle != nil {
		if ready, ok := handle.Source(); ok {
			src = ready
		}
	}
	return &text.GoTextFace{Source: src, Size: size}, nil
}

// colorArg unpacks a packed 0xRRGGBB int. None leaves the default in place.
type colorArg struct {
	rgb int
}

func (a *colorArg) Unpack(v starlark.Value) error {
	if v == starlark.None {
		return nil
	}
	i, ok := v.(starlark.Int)
	if !ok {
		return fmt.Errorf("color: got %s, want int 0xRRGGBB", v.Type())
	}
	rgb, ok := i.Int64()
	if !ok || rgb < 0 || rgb > 0xFFFFFF {
		return fmt.Errorf("color %s outside 0x000000..0xFFFFFF", i)
	}
	a.rgb = int(rgb)
	return nil
}

func (a colorArg) color() color.RGBA {
	return unpackRGB(a.rgb)
}

func unpackRGB(rgb int) color.RGBA {
	return color.RGBA{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb), A: 0xFF}
}

// optionalSize unpacks None or a positive number.
type optionalSize float64

func (o *optionalSize) Unpack(v starlark.Value) error {
	if v == starlark.None {
		return nil
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return fmt.Errorf("size: got %s, want number or None", v.Type())
	}
	if f <= 0 {
		return fmt.Errorf("size must be positive, got %g", f)
	}
	*o = optionalSize(f)
	return nil
}

var surfaceCapability = newCapability(
	"surface",
	nil,
	map[string]methodFunc[*Surface]{
		"clear": func(s *Surface, _ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			c := colorArg{rgb: DefaultClearColor}
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "color?", &c); err != nil {
				return nil, err
			}
			s.Clear(c.color())
			return starlark.None, nil
		},
		"rect": func(s *Surface, _ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x0, y0, x1, y1 number
			c := colorArg{rgb: DefaultRectColor}
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
				"x0", &x0, "y0", &y0, "x1", &x1, "y1", &y1, "color?", &c); err != nil {
				return nil, err
			}
			s.Rect(float64(x0), float64(y0), float64(x1), float64(y1), c.color())
			return starlark.None, nil
		},
		"text": func(s *Surface, _ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var (
				str  string
				x, y number
				font starlark.Value = starlark.None
				size optionalSize
			)
			c := colorArg{rgb: DefaultTextColor}
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
				"text", &str, "x", &x, "y", &y, "font?", &font, "size?", &size, "color?", &c); err != nil {
				return nil, err
			}
			face, err := textFace(font, float64(size))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn.Name(), err)
			}
			s.Text(str, float64(x), float64(y), face, c.color())
			return starlark.None, nil
		},
	},
)

func (s *Surface) String() string        { return "<surface>" }
func (s *Surface) Type() string          { return "surface" }
func (s *Surface) Freeze()               {}
func (s *Surface) Truth() starlark.Bool  { return starlark.True }
func (s *Surface) Hash() (uint32, error) { return unhashable(s) }
func (s *Surface) AttrNames() []string   { return surfaceCapability.attrNames() }
func (s *Surface) Attr(name string) (starlark.Value, error) {
	return surfaceCapability.attr(s, name)
}
