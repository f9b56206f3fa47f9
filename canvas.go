// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// Canvas is the rasterizing backend a Surface draws through.
type Canvas interface {
	Clear(c color.Color)
	FillRect(x, y, width, height float64, c color.Color)
	// DrawText draws s with the top-left of its first line at (x, y).
	DrawText(s string, x, y float64, face text.Face, c color.Color)
}

// EbitenCanvas draws onto an Ebiten image, normally the screen passed to Draw.
type EbitenCanvas struct {
	dst *ebiten.Image
}

var _ Canvas = (*EbitenCanvas)(nil)

// NewEbitenCanvas wraps dst.
func NewEbitenCanvas(dst *ebiten.Image) *EbitenCanvas {
	return &EbitenCanvas{dst: dst}
}

func (c *EbitenCanvas) Clear(clr color.Color) {
	c.dst.Fill(clr)
}

func (c *EbitenCanvas) FillRect(x, y, width, height float64, clr color.Color) {
	if width <= 0 || height <= 0 {
		return
	}
	vector.DrawFilledRect(c.dst, float32(x), float32(y), float32(width), float32(height), clr, true)
}

func (c *EbitenCanvas) DrawText(s string, x, y float64, face text.Face, clr color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(clr)
	op.LineSpacing = lineSpacing(face)
	text.Draw(c.dst, s, face, op)
}
