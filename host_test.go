// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestHost writes files into a fresh directory and creates a host for
// main.star with no warm-up frames unless opts say otherwise.
func newTestHost(t *testing.T, files map[string]string, opts ...Option) *Host {
	t.Helper()
	dir := canonicalTempDir(t)
	for name, src := range files {
		writeFile(t, dir, name, []byte(src))
	}
	opts = append([]Option{WithLogger(discardLogger), WithWarmupFrames(0)}, opts...)
	host, err := New(filepath.Join(dir, "main.star"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })
	return host
}

func loadedHost(t *testing.T, src string, opts ...Option) *Host {
	t.Helper()
	host := newTestHost(t, map[string]string{"main.star": src}, opts...)
	require.NoError(t, host.Load())
	return host
}

func runFrames(t *testing.T, host *Host, canvas Canvas, n int) {
	t.Helper()
	for i := range n {
		require.NoError(t, host.Frame(testEnv, canvas), "frame %d", i)
	}
}

func stateInt(t *testing.T, host *Host, key string) int {
	t.Helper()
	dict, ok := host.ScriptState().(*starlark.Dict)
	require.True(t, ok, "state is %s", host.ScriptState().Type())
	v, found, err := dict.Get(starlark.String(key))
	require.NoError(t, err)
	require.True(t, found, "state has no %q", key)
	i, err := starlark.AsInt32(v)
	require.NoError(t, err)
	return i
}

// syncBuffer is a bytes.Buffer safe for the font loader's goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const counterScript = `
def init(hub):
    return {"score": 0, "draws": 0}

def update(hub, state):
    state["score"] += 1

def draw(surface, state):
    state["draws"] += 1
    surface.rect(0, 0, 40, 40, sing.WHITE)
`

func TestHostCountsFrames(t *testing.T) {
	t.Parallel()
	host := loadedHost(t, counterScript)
	canvas := &recordingCanvas{}

	runFrames(t, host, canvas, 10)

	assert.Equal(t, 10, stateInt(t, host, "score"))
	assert.Equal(t, 10, stateInt(t, host, "draws"))
	assert.Len(t, canvas.calls, 10)
	assert.Equal(t, StatusRunning, host.State())

	snap := host.Hub().Snapshot()
	assert.Equal(t, 9, snap.Frame)
	assert.InDelta(t, 10*testEnv.frameTime, snap.Elapsed, 1e-9)
}

func TestHostLifecycle(t *testing.T) {
	t.Parallel()
	host := newTestHost(t, map[string]string{"main.star": counterScript})
	assert.Equal(t, StatusUninitialized, host.State())
	assert.NotEmpty(t, host.RunID())
	assert.True(t, strings.HasSuffix(host.Path(), "main.star"))

	err := host.Frame(testEnv, &recordingCanvas{})
	require.ErrorIs(t, err, ErrFrame)

	require.NoError(t, host.Load())
	assert.Equal(t, StatusLoaded, host.State())
	assert.True(t, host.HasEntry(EntryInit))
	assert.True(t, host.HasEntry(EntryUpdate))
	assert.True(t, host.HasEntry(EntryDraw))
	assert.Contains(t, host.Globals(), "init")

	runFrames(t, host, &recordingCanvas{}, 1)
	assert.Equal(t, StatusRunning, host.State())

	require.NoError(t, host.Close())
	assert.Equal(t, StatusTerminated, host.State())
	require.NoError(t, host.Close())
	require.ErrorIs(t, host.Frame(testEnv, &recordingCanvas{}), ErrClosed)
	require.ErrorIs(t, host.Load(), ErrClosed)
}

func TestHostWarmup(t *testing.T) {
	t.Parallel()
	host := loadedHost(t, `
def init(hub):
    print("init at frame %d" % hub.frame)
    return {"init_frame": hub.frame, "updates": 0, "width": int(hub.screen_size_x)}

def update(hub, state):
    state["updates"] += 1
`, WithWarmupFrames(2))
	canvas := &recordingCanvas{}

	runFrames(t, host, canvas, 2)
	assert.Equal(t, starlark.None, host.ScriptState())
	assert.Equal(t, StatusLoaded, host.State())

	runFrames(t, host, canvas, 3)
	assert.Equal(t, 2, stateInt(t, host, "init_frame"))
	assert.Equal(t, 3, stateInt(t, host, "updates"))
	assert.Equal(t, 800, stateInt(t, host, "width"))
	assert.Equal(t, []string{"init at frame 2"}, host.StartupOutput())
}

func TestHostOptionalEntries(t *testing.T) {
	t.Parallel()

	t.Run("empty script", func(t *testing.T) {
		host := loadedHost(t, "x = 1\n")
		runFrames(t, host, &recordingCanvas{}, 3)
		assert.Equal(t, starlark.None, host.ScriptState())
	})

	t.Run("draw only gets None state", func(t *testing.T) {
		host := loadedHost(t, `
def draw(surface, state):
    if state != None:
        fail("unexpected state")
    surface.clear(sing.BLUE)
`, WithErrorPolicy(ErrorPolicyFatal))
		canvas := &recordingCanvas{}
		runFrames(t, host, canvas, 2)
		assert.Len(t, canvas.calls, 2)
	})

	t.Run("explicit None entry is absent", func(t *testing.T) {
		host := loadedHost(t, "update = None\n")
		assert.False(t, host.HasEntry(EntryUpdate))
	})
}

func TestHostLoadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		src     string
		wantErr error
		wantMsg string
	}{
		{name: "syntax error", src: "def init(:\n", wantErr: ErrScriptLoad},
		{name: "runtime error at top level", src: "x = 1 // 0\n", wantErr: ErrScriptLoad, wantMsg: "division by zero"},
		{name: "entry point is not callable", src: "update = 3\n", wantErr: ErrEntryPoint, wantMsg: "update is a int"},
		{name: "unknown global", src: "x = undefined_name\n", wantErr: ErrScriptLoad, wantMsg: "undefined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newTestHost(t, map[string]string{"main.star": tt.src})
			err := host.Load()
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrScript)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Equal(t, StatusTerminated, host.State())
		})
	}

	t.Run("missing script", func(t *testing.T) {
		host := newTestHost(t, map[string]string{"other.star": ""})
		require.ErrorIs(t, host.Load(), ErrScriptLoad)
	})

	t.Run("unknown error policy", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "main.star"), WithErrorPolicy("retry"))
		require.ErrorIs(t, err, ErrScript)
	})
}

func TestHostInitFailure(t *testing.T) {
	t.Parallel()
	host := loadedHost(t, `
def init(hub):
    fail("no assets")

def update(hub, state):
    pass
`)
	err := host.Frame(testEnv, &recordingCanvas{})
	require.ErrorIs(t, err, ErrInit)
	assert.Contains(t, err.Error(), "no assets")
	assert.Equal(t, StatusTerminated, host.State())

	require.ErrorIs(t, host.Frame(testEnv, &recordingCanvas{}), ErrFrame)
}

const flakyScript = `
def init(hub):
    return {"n": 0, "draws": 0}

def update(hub, state):
    state["n"] += 1
    if state["n"] == 2:
        fail("bad frame")

def draw(surface, state):
    state["draws"] += 1
`

func TestHostErrorPolicy(t *testing.T) {
	t.Parallel()

	t.Run("continue skips the rest of the failing frame", func(t *testing.T) {
		host := loadedHost(t, flakyScript)
		runFrames(t, host, &recordingCanvas{}, 4)
		assert.Equal(t, 4, stateInt(t, host, "n"))
		assert.Equal(t, 3, stateInt(t, host, "draws"))
		assert.Equal(t, StatusRunning, host.State())
	})

	t.Run("fatal ends on the first failure", func(t *testing.T) {
		host := loadedHost(t, flakyScript, WithErrorPolicy(ErrorPolicyFatal))
		require.NoError(t, host.Frame(testEnv, &recordingCanvas{}))
		err := host.Frame(testEnv, &recordingCanvas{})
		require.ErrorIs(t, err, ErrFrame)
		assert.Contains(t, err.Error(), "bad frame")
	})

	t.Run("consecutive error limit", func(t *testing.T) {
		host := loadedHost(t, `
def update(hub, state):
    fail("always")
`, WithMaxConsecutiveErrors(3))
		require.NoError(t, host.Frame(testEnv, &recordingCanvas{}))
		require.NoError(t, host.Frame(testEnv, &recordingCanvas{}))
		err := host.Frame(testEnv, &recordingCanvas{})
		require.ErrorIs(t, err, ErrFrame)
		assert.Contains(t, err.Error(), "3 consecutive")
	})

	t.Run("recovery resets the streak", func(t *testing.T) {
		host := loadedHost(t, `
def init(hub):
    return {"n": 0}

def update(hub, state):
    state["n"] += 1
    if state["n"] % 3 != 0:
        fail("two of three")
`, WithMaxConsecutiveErrors(3))
		runFrames(t, host, &recordingCanvas{}, 9)
	})
}

func TestHostErrorLogging(t *testing.T) {
	t.Parallel()
	var logs syncBuffer
	host := loadedHost(t, `
def init(hub):
    return {"n": 0}

def update(hub, state):
    state["n"] += 1
    if state["n"] <= 5:
        fail("same problem")
`, WithLogHandler(slog.NewTextHandler(&logs, nil)))

	runFrames(t, host, &recordingCanvas{}, 7)

	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, `msg="Script frame failed"`))
	assert.Contains(t, out, `msg="Script error repeated"`)
	assert.Contains(t, out, "repeats=4")
	assert.Contains(t, out, `msg="Script recovered"`)
	assert.Contains(t, out, "failed_frames=5")
	assert.Contains(t, out, "run_id="+host.RunID())
}

func TestHostStepBudget(t *testing.T) {
	t.Parallel()
	const spinner = `
def init(hub):
    return {"n": 0}

def update(hub, state):
    state["n"] += 1
    if state["n"] == 1:
        while True:
            pass
`

	t.Run("runaway call fails its frame only", func(t *testing.T) {
		host := loadedHost(t, spinner, WithMaxSteps(10_000))
		runFrames(t, host, &recordingCanvas{}, 3)
		assert.Equal(t, 3, stateInt(t, host, "n"))
	})

	t.Run("fatal policy reports the budget", func(t *testing.T) {
		host := loadedHost(t, spinner, WithMaxSteps(10_000), WithErrorPolicy(ErrorPolicyFatal))
		err := host.Frame(testEnv, &recordingCanvas{})
		require.ErrorIs(t, err, ErrFrame)
		assert.Contains(t, err.Error(), "too many steps")
	})

	t.Run("top level loop", func(t *testing.T) {
		host := newTestHost(t, map[string]string{"main.star": "while True:\n    pass\n"}, WithMaxSteps(1_000))
		err := host.Load()
		require.ErrorIs(t, err, ErrScriptLoad)
		assert.Contains(t, err.Error(), "too many steps")
	})
}

func TestHostLoadStatement(t *testing.T) {
	t.Parallel()

	t.Run("module inside the jail", func(t *testing.T) {
		host := newTestHost(t, map[string]string{
			"main.star": `
load("lib/util.star", "double", "SIDE")
load("lib/util.star", twice = "double")

def init(hub):
    return {"v": double(SIDE) + twice(1)}
`,
			"lib/util.star": `
SIDE = 20
print("util loaded")

def double(x):
    return x * 2
`,
		})
		require.NoError(t, host.Load())
		runFrames(t, host, &recordingCanvas{}, 1)
		assert.Equal(t, 42, stateInt(t, host, "v"))
		assert.Equal(t, []string{"util loaded"}, host.StartupOutput())
	})

	t.Run("module outside the jail", func(t *testing.T) {
		host := newTestHost(t, map[string]string{
			"main.star": `load("../evil.star", "x")` + "\n",
		})
		err := host.Load()
		require.ErrorIs(t, err, ErrScriptLoad)
		assert.Contains(t, err.Error(), "escapes")
	})

	t.Run("absolute module path", func(t *testing.T) {
		host := newTestHost(t, map[string]string{
			"main.star": `load("/etc/evil.star", "x")` + "\n",
		})
		err := host.Load()
		require.ErrorIs(t, err, ErrScriptLoad)
		assert.Contains(t, err.Error(), "absolute path forbidden")
	})

	t.Run("cycle", func(t *testing.T) {
		host := newTestHost(t, map[string]string{
			"main.star": `load("a.star", "a")` + "\n",
			"a.star":    `load("b.star", "b")` + "\na = 1\n",
			"b.star":    `load("a.star", "a")` + "\nb = 2\n",
		})
		err := host.Load()
		require.ErrorIs(t, err, ErrScriptLoad)
		assert.Contains(t, err.Error(), "cycle")
	})
}

func TestHostStartupOutput(t *testing.T) {
	t.Parallel()
	host := loadedHost(t, `
print("top level")

def init(hub):
    print("from init")
    return {}

def update(hub, state):
    print("from update")
`)
	runFrames(t, host, &recordingCanvas{}, 2)
	assert.Equal(t, []string{"top level", "from init"}, host.StartupOutput())

	var replay syncBuffer
	require.NoError(t, host.ReplayStartupOutput(slog.NewTextHandler(&replay, nil)))
	assert.Contains(t, replay.String(), `msg="top level"`)
	assert.Contains(t, replay.String(), `msg="from init"`)
	assert.NotContains(t, replay.String(), "from update")
}

func TestHostFonts(t *testing.T) {
	t.Parallel()
	dir := canonicalTempDir(t)
	writeFont(t, dir, "fonts/ui.ttf")
	writeFile(t, dir, "main.star", []byte(`
def init(hub):
    missing, err = sing.catch(hub.font_face, "fonts/missing.ttf")
    return {"font": hub.font_face("fonts/ui.ttf").font(32), "missing": missing, "err": err}

def draw(surface, state):
    surface.text("hello", 10, 50, font = state["font"])
`))
	host, err := New(filepath.Join(dir, "main.star"), WithLogger(discardLogger), WithWarmupFrames(0), WithErrorPolicy(ErrorPolicyFatal))
	require.NoError(t, err)
	defer func() { _ = host.Close() }()
	require.NoError(t, host.Load())

	canvas := &recordingCanvas{}
	runFrames(t, host, canvas, 1)
	require.Len(t, canvas.calls, 1)
	assert.InDelta(t, 32, canvas.calls[0].size, 1e-9)

	state := host.ScriptState().(*starlark.Dict)
	missing, _, _ := state.Get(starlark.String("missing"))
	assert.Equal(t, starlark.None, missing)
	msg, _, _ := state.Get(starlark.String("err"))
	assert.Contains(t, msg.String(), "resource not found")

	font, _, _ := state.Get(starlark.String("font"))
	sized := font.(*SizedFont)
	waitSettled(t, sized.handle)
	assert.Equal(t, StateReady, sized.handle.State())
}

func TestHostCloseAbandonsLoads(t *testing.T) {
	t.Parallel()
	dir := canonicalTempDir(t)
	writeFont(t, dir, "f.ttf")
	writeFile(t, dir, "main.star", []byte(`
def init(hub):
    return {"face": hub.font_face("f.ttf")}
`))
	host, err := New(filepath.Join(dir, "main.star"), WithLogger(discardLogger), WithWarmupFrames(0))
	require.NoError(t, err)
	require.NoError(t, host.Load())
	runFrames(t, host, &recordingCanvas{}, 1)
	require.NoError(t, host.Close())

	assert.Equal(t, starlark.None, host.ScriptState())
}
