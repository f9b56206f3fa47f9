// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"errors"
	"fmt"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Version is reported to scripts as sing.version. Set with ldflags.
var Version = "dev"

// fileOptions are the dialect features enabled for scripts.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Packed colors exposed as sing.<NAME>.
var namedColors = map[string]int{
	"BLACK":  0x000000,
	"WHITE":  0xFFFFFF,
	"RED":    0xE62937,
	"GREEN":  0x00E430,
	"BLUE":   0x0079F1,
	"YELLOW": 0xFDF900,
}

// predeclared assembles the fixed set of names visible to every script and
// loaded module. The returned dict and everything in it is frozen.
func predeclared() starlark.StringDict {
	members := starlark.StringDict{
		"version": starlark.String(Version),
		"rgb":     starlark.NewBuiltin("sing.rgb", rgb),
		"catch":   starlark.NewBuiltin("sing.catch", catch),
	}
	for name, c := range namedColors {
		members[name] = starlark.MakeInt(c)
	}
	env := starlark.StringDict{
		"sing":   &starlarkstruct.Module{Name: "sing", Members: members},
		"math":   starlarkmath.Module,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	env.Freeze()
	return env
}

// rgb packs three 0..255 components into 0xRRGGBB, clamping out-of-range values.
func rgb(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var r, g, b int
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "r", &r, "g", &g, "b", &b); err != nil {
		return nil, err
	}
	return starlark.MakeInt(clampByte(r)<<16 | clampByte(g)<<8 | clampByte(b)), nil
}

func clampByte(v int) int {
	return max(0, min(255, v))
}

// catch calls fn(*args, **kwargs) and returns (result, None), or (None, message)
// when the call fails.
func catch(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing callable", fn.Name())
	}
	callee, ok := args[0].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want callable", fn.Name(), args[0].Type())
	}
	result, err := starlark.Call(thread, callee, args[1:], kwargs)
	if err != nil {
		return starlark.Tuple{starlark.None, starlark.String(errorMessage(err))}, nil
	}
	return starlark.Tuple{result, starlark.None}, nil
}

// errorMessage drops the Starlark backtrace from evaluation errors.
func errorMessage(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Msg
	}
	return err.Error()
}
