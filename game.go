// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// WindowOptions configures the Ebiten window. All fields are optional.
type WindowOptions struct {
	Title      string // Window title. Defaults to "Sing".
	Width      int    // Windowed width in pixels. Ignored when fullscreen.
	Height     int    // Windowed height in pixels. Ignored when fullscreen.
	Fullscreen bool
	Resizable  bool
	// QuitKey ends the run when pressed. Ebiten key names, e.g. "Escape". Empty disables it.
	QuitKey string
}

// Game adapts a Host to ebiten.Game. Each rendered frame drives exactly one
// host frame from Draw; Update only watches for quit requests and carries
// errors raised during Draw back to Ebiten.
type Game struct {
	host    *Host
	ctx     context.Context
	quitKey ebiten.Key
	hasQuit bool

	lastFrame time.Time
	err       error
}

var _ ebiten.Game = (*Game)(nil)

// NewGame wraps host. The run stops when ctx is done, the quit key is pressed
// or the window is closed.
func NewGame(ctx context.Context, host *Host, quitKey string) (*Game, error) {
	g := &Game{host: host, ctx: ctx}
	if quitKey != "" {
		if err := g.quitKey.UnmarshalText([]byte(quitKey)); err != nil {
			return nil, fmt.Errorf("quit key %q: %w", quitKey, err)
		}
		g.hasQuit = true
	}
	return g, nil
}

// Update should be called every tick by Ebiten. It returns ebiten.Termination
// on a quit request and the host's error once a frame failed fatally.
func (g *Game) Update() error {
	if g.err != nil {
		return g.err
	}
	select {
	case <-g.ctx.Done():
		return ebiten.Termination
	default:
	}
	if g.hasQuit && inpututil.IsKeyJustPressed(g.quitKey) {
		return ebiten.Termination
	}
	return nil
}

// Draw runs one host frame against screen.
func (g *Game) Draw(screen *ebiten.Image) {
	if g.err != nil {
		return
	}
	now := time.Now()
	env := measureFrame(g.lastFrame, now, ebiten.TPS(), screen.Bounds(), ebiten.ActualFPS())
	g.lastFrame = now
	g.runFrame(env, NewEbitenCanvas(screen))
}

// runFrame drives the host once and keeps the first error for Update.
func (g *Game) runFrame(env Environment, canvas Canvas) {
	if g.err != nil {
		return
	}
	if err := g.host.Frame(env, canvas); err != nil {
		g.err = err
	}
}

// measureFrame builds the environment of a frame drawn at now. Without a
// previous frame the frame time is one tick.
func measureFrame(last, now time.Time, tps int, bounds image.Rectangle, fps float64) frameEnv {
	if tps <= 0 {
		tps = ebiten.DefaultTPS
	}
	frameTime := 1 / float64(tps)
	if !last.IsZero() {
		frameTime = now.Sub(last).Seconds()
	}
	return frameEnv{
		frameTime: frameTime,
		width:     float64(bounds.Dx()),
		height:    float64(bounds.Dy()),
		fps:       fps,
	}
}

// Layout keeps the logical screen equal to the window.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// Run opens the window and drives host until quit. The host is not closed.
func Run(ctx context.Context, host *Host, opts WindowOptions) error {
	game, err := NewGame(ctx, host, opts.QuitKey)
	if err != nil {
		return err
	}

	title := opts.Title
	if title == "" {
		title = "Sing"
	}
	ebiten.SetWindowTitle(title)
	if opts.Width > 0 && opts.Height > 0 {
		ebiten.SetWindowSize(opts.Width, opts.Height)
	}
	ebiten.SetFullscreen(opts.Fullscreen)
	if opts.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	} else {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	}

	return ebiten.RunGame(game)
}

// frameEnv is the Environment measured for one Ebiten frame.
type frameEnv struct {
	frameTime     float64
	width, height float64
	fps           float64
}

func (e frameEnv) FrameTime() float64                  { return e.frameTime }
func (e frameEnv) ScreenSize() (width, height float64) { return e.width, e.height }
func (e frameEnv) FPS() float64                        { return e.fps }
