// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	"github.com/robbyt/go-fsm"
	"github.com/robbyt/go-loglater"
	"github.com/robbyt/go-polyscript/platform/script/loader"
	"go.starlark.net/starlark"
)

// Entry points a script may define.
const (
	EntryInit   = "init"
	EntryUpdate = "update"
	EntryDraw   = "draw"
)

// Host runs one script: it loads the file, calls init once and then update
// and draw once per frame. All methods must be called from one goroutine.
type Host struct {
	path   string
	runID  string
	logger *slog.Logger
	ctx    context.Context

	warmup         int
	policy         ErrorPolicy
	maxConsecutive int
	maxSteps       uint64
	maxLoads       int

	lifecycle *fsm.Machine
	jail      *Jail
	loader    *FontLoader
	hub       *Hub
	surface   *Surface

	thread      *starlark.Thread
	predeclared starlark.StringDict
	globals     starlark.StringDict
	modules     map[string]*module
	entries     map[string]starlark.Callable
	state       starlark.Value

	// startup keeps what the script printed before its first frame.
	startup    *loglater.LogCollector
	startupLog *slog.Logger
	scriptLog  *slog.Logger
	streak     errorStreak
	closed     bool
}

type module struct {
	globals starlark.StringDict
	err     error
}

// New prepares a host for the script at scriptPath. The script's directory
// becomes the jail root; nothing is executed until Load.
func New(scriptPath string, opts ...Option) (*Host, error) {
	h := &Host{
		logger:   slog.Default(),
		ctx:      context.Background(),
		warmup:   DefaultWarmupFrames,
		policy:   ErrorPolicyContinue,
		maxSteps: DefaultMaxSteps,
		maxLoads: DefaultMaxConcurrentLoads,
		modules:  make(map[string]*module),
		entries:  make(map[string]starlark.Callable),
		state:    starlark.None,
	}
	for _, opt := range opts {
		opt(h)
	}
	switch h.policy {
	case ErrorPolicyContinue, ErrorPolicyFatal:
	default:
		return nil, fmt.Errorf("%w: unknown error policy %q", ErrScript, h.policy)
	}

	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptLoad, err)
	}
	h.path = abs
	h.runID = uuid.Must(uuid.NewV6()).String()
	h.logger = h.logger.With("run_id", h.runID)

	h.lifecycle, err = newLifecycle(h.logger.With("component", "lifecycle").Handler())
	if err != nil {
		return nil, fmt.Errorf("%w: lifecycle: %w", ErrScript, err)
	}

	h.jail, err = NewJail(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	h.loader = NewFontLoader(h.ctx, h.jail, h.logger, h.maxLoads)
	h.hub = NewHub(h.jail, h.loader)
	h.surface = NewSurface(nil)

	h.scriptLog = h.logger.With("component", "script")
	h.startup = loglater.NewLogCollector(h.scriptLog.Handler())
	h.startupLog = slog.New(h.startup)

	h.predeclared = predeclared()
	h.thread = h.newThread("main")

	h.logger.Debug("Host created", "script", abs, "jail", h.jail.Root())
	return h, nil
}

// Path returns the absolute script path.
func (h *Host) Path() string {
	return h.path
}

// RunID identifies this script instance in logs.
func (h *Host) RunID() string {
	return h.runID
}

// Jail returns the jail rooted at the script's directory.
func (h *Host) Jail() *Jail {
	return h.jail
}

// Hub returns the frame hub handed to init and update.
func (h *Host) Hub() *Hub {
	return h.hub
}

// State returns the lifecycle state.
func (h *Host) State() string {
	return h.lifecycle.GetState()
}

// ScriptState returns the value threaded between the script's callbacks.
func (h *Host) ScriptState() starlark.Value {
	return h.state
}

// HasEntry reports whether the script defines the named entry point.
func (h *Host) HasEntry(name string) bool {
	_, ok := h.entries[name]
	return ok
}

// Globals returns the loaded script's top-level names.
func (h *Host) Globals() starlark.StringDict {
	return h.globals
}

// Load reads and executes the script file. Its globals form the module
// table; init, update and draw are optional but must be callable if present.
func (h *Host) Load() error {
	if h.closed {
		return ErrClosed
	}
	if err := h.load(); err != nil {
		_ = h.lifecycle.Transition(StatusTerminated)
		return err
	}
	if err := h.lifecycle.Transition(StatusLoaded); err != nil {
		return fmt.Errorf("%w: %w", ErrScriptLoad, err)
	}
	h.logger.Info("Script loaded",
		"script", h.path,
		EntryInit, h.HasEntry(EntryInit),
		EntryUpdate, h.HasEntry(EntryUpdate),
		EntryDraw, h.HasEntry(EntryDraw),
	)
	return nil
}

func (h *Host) load() error {
	src, err := readScript(h.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrScriptLoad, err)
	}

	h.budget(h.thread)
	globals, err := starlark.ExecFileOptions(fileOptions, h.thread, filepath.Base(h.path), src, h.predeclared)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrScriptLoad, describe(err))
	}

	for _, name := range []string{EntryInit, EntryUpdate, EntryDraw} {
		v, ok := globals[name]
		if !ok || v == starlark.None {
			continue
		}
		fn, ok := v.(starlark.Callable)
		if !ok {
			return fmt.Errorf("%w: %s is a %s, want function", ErrEntryPoint, name, v.Type())
		}
		h.entries[name] = fn
	}
	h.globals = globals
	return nil
}

func readScript(path string) ([]byte, error) {
	ld, err := loader.NewFromDisk(path)
	if err != nil {
		return nil, err
	}
	rd, err := ld.GetReader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rd.Close() }()
	return io.ReadAll(rd)
}

// Frame drives one frame: the hub is refreshed, then init runs once (after the
// warm-up frames) and update and draw run against canvas. A non-nil error
// means the run must end.
func (h *Host) Frame(env Environment, canvas Canvas) error {
	if h.closed {
		return ErrClosed
	}

	switch h.lifecycle.GetState() {
	case StatusLoaded:
		h.hub.Refresh(env)
		if h.warmup > 0 {
			h.warmup--
			return nil
		}
		if err := h.initialize(); err != nil {
			return err
		}
		if err := h.lifecycle.Transition(StatusRunning); err != nil {
			return fmt.Errorf("%w: %w", ErrFrame, err)
		}
	case StatusRunning:
		h.hub.Refresh(env)
	default:
		return fmt.Errorf("%w: cannot run a frame while %s", ErrFrame, h.lifecycle.GetState())
	}

	h.surface.Bind(canvas)
	if err := h.step(); err != nil {
		return h.frameFailed(err)
	}
	h.streak.recovered(h.scriptLog)
	return nil
}

// initialize calls init(hub) exactly once.
func (h *Host) initialize() error {
	if err := h.lifecycle.Transition(StatusInitialized); err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	fn, ok := h.entries[EntryInit]
	if !ok {
		return nil
	}
	state, err := h.call(fn, h.hub)
	if err != nil {
		_ = h.lifecycle.Transition(StatusTerminated)
		return fmt.Errorf("%w: %s", ErrInit, describe(err))
	}
	h.state = state
	return nil
}

func (h *Host) step() error {
	if fn, ok := h.entries[EntryUpdate]; ok {
		if _, err := h.call(fn, h.hub, h.state); err != nil {
			return fmt.Errorf("%s: %w", EntryUpdate, err)
		}
	}
	if fn, ok := h.entries[EntryDraw]; ok {
		if _, err := h.call(fn, h.surface, h.state); err != nil {
			return fmt.Errorf("%s: %w", EntryDraw, err)
		}
	}
	return nil
}

func (h *Host) call(fn starlark.Callable, args ...starlark.Value) (starlark.Value, error) {
	h.budget(h.thread)
	return starlark.Call(h.thread, fn, args, nil)
}

// budget grants thread a fresh allowance of execution steps.
func (h *Host) budget(thread *starlark.Thread) {
	if h.maxSteps == 0 {
		return
	}
	thread.Uncancel()
	thread.SetMaxExecutionSteps(thread.ExecutionSteps() + h.maxSteps)
}

func (h *Host) frameFailed(err error) error {
	frame := h.hub.Snapshot().Frame
	if h.policy == ErrorPolicyFatal {
		h.scriptLog.Error("Script frame failed", "frame", frame, "error", describe(err))
		return fmt.Errorf("%w: frame %d: %s", ErrFrame, frame, describe(err))
	}

	count := h.streak.failed(h.scriptLog, frame, err)
	if h.maxConsecutive > 0 && count >= h.maxConsecutive {
		return fmt.Errorf("%w: %d consecutive failing frames, last: %s", ErrFrame, count, describe(err))
	}
	return nil
}

// Close ends the run. Pending font loads are abandoned and never commit.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.lifecycle.GetState() != StatusTerminated {
		if err := h.lifecycle.Transition(StatusTerminated); err != nil {
			h.logger.Warn("Lifecycle refused termination", "error", err)
		}
	}
	h.thread.Cancel("host closed")
	h.loader.Close()
	h.globals, h.entries, h.state, h.modules = nil, nil, starlark.None, nil
	h.logger.Debug("Host closed")
	return h.jail.Close()
}

// StartupOutput returns what the script printed before its first frame.
func (h *Host) StartupOutput() []string {
	records := h.startup.GetLogs()
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Message)
	}
	return out
}

// ReplayStartupOutput sends the script's startup prints to handler.
func (h *Host) ReplayStartupOutput(handler slog.Handler) error {
	return h.startup.PlayLogs(handler)
}

func (h *Host) newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: h.print,
		Load:  h.loadModule,
	}
}

func (h *Host) print(_ *starlark.Thread, msg string) {
	switch h.lifecycle.GetState() {
	case StatusUninitialized, StatusLoaded, StatusInitialized:
		h.startupLog.Info(msg)
	default:
		h.scriptLog.Info(msg)
	}
}

// loadModule serves load() statements from files inside the jail.
func (h *Host) loadModule(_ *starlark.Thread, name string) (starlark.StringDict, error) {
	path, err := h.jail.Resolve(name)
	if err != nil {
		return nil, err
	}
	key := path.String()
	if m, ok := h.modules[key]; ok {
		if m == nil {
			return nil, fmt.Errorf("cycle in load graph at %q", name)
		}
		return m.globals, m.err
	}

	h.modules[key] = nil
	src, err := h.jail.ReadFile(path)
	if err != nil {
		h.modules[key] = &module{err: err}
		return nil, err
	}
	thread := h.newThread("load " + path.Rel())
	h.budget(thread)
	globals, err := starlark.ExecFileOptions(fileOptions, thread, path.Rel(), src, h.predeclared)
	h.modules[key] = &module{globals: globals, err: err}
	return globals, err
}

// describe renders Starlark errors with their backtrace.
func describe(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}
