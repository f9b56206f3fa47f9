// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

// Package sing runs a Starlark script once per frame inside an Ebitengine window.
//
// The script is an ordinary .star file whose top-level functions form its
// entry points. All three are optional:
//
//	def init(hub):
//	    return {"x": 0.0, "fps": 0.0, "font": hub.font_face("font.ttf")}
//
//	def update(hub, state):
//	    state["x"] += 100 * hub.frame_time
//	    state["fps"] = hub.fps
//
//	def draw(surface, state):
//	    surface.clear(sing.BLUE)
//	    surface.rect(state["x"], 40, state["x"] + 40, 80, sing.WHITE)
//	    surface.text("FPS: %d" % int(state["fps"]), 20, 40, font = state["font"].font(32))
//
// Basic usage:
//
//	host, err := sing.New("game/main.star")
//	if err != nil { ... }
//	defer host.Close()
//	if err := host.Load(); err != nil { ... }
//	err = sing.Run(ctx, host, sing.WindowOptions{Fullscreen: true, QuitKey: "Escape"})
//
// The script only sees capability values handed to it by the host:
//
//   - hub (init, update): frame_time, screen_size_x, screen_size_y, fps, time,
//     frame, and font_face(path).
//   - surface (draw): clear(color), rect(x0, y0, x1, y1, color) and
//     text(text, x, y, font, size, color). Colors are ints 0xRRGGBB.
//   - font handles returned by font_face: ready, failed, error, path and
//     font(size), which returns a sized font with measure(text).
//
// Every path the script names is resolved by a [Jail] rooted at the script's
// directory. Absolute paths and paths escaping the root, including through
// symlinks, are refused.
//
// Fonts load in the background. A handle starts pending and becomes ready or
// failed exactly once; drawing with a handle that is not ready uses the
// built-in Go Regular face instead.
//
// Besides the standard Starlark builtins, scripts get math, struct and the
// sing module: sing.rgb(r, g, b), sing.catch(fn, *args) for recovering from
// host errors, sing.version and a few named colors. load() reads other .star
// files from inside the jail.
//
// [Host.Frame] can be driven without Ebiten by any [Environment] and [Canvas]
// pair; [Game] and [Run] are the Ebiten bindings.
package sing
