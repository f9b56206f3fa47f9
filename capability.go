// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// methodFunc is the Go side of a capability method bound to receiver T.
type methodFunc[T any] func(recv T, thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// capability is the fixed attribute table of one capability type. Every field
// and method a script can reach is registered here explicitly; nothing is
// discovered by reflection.
type capability[T any] struct {
	name    string
	fields  map[string]func(T) starlark.Value
	methods map[string]methodFunc[T]
	names   []string
}

func newCapability[T any](
	name string,
	fields map[string]func(T) starlark.Value,
	methods map[string]methodFunc[T],
) *capability[T] {
	names := make([]string, 0, len(fields)+len(methods))
	for n := range fields {
		names = append(names, n)
	}
	for n := range methods {
		if _, dup := fields[n]; dup {
			panic(fmt.Sprintf("sing: capability %s registers %q twice", name, n))
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return &capability[T]{name: name, fields: fields, methods: methods, names: names}
}

// attr implements starlark.HasAttrs.Attr for recv. Unknown names return
// (nil, nil) so Starlark reports a missing attribute.
func (c *capability[T]) attr(recv T, name string) (starlark.Value, error) {
	if f, ok := c.fields[name]; ok {
		return f(recv), nil
	}
	if m, ok := c.methods[name]; ok {
		return starlark.NewBuiltin(c.name+"."+name, func(
			thread *starlark.Thread,
			fn *starlark.Builtin,
			args starlark.Tuple,
			kwargs []starlark.Tuple,
		) (starlark.Value, error) {
			return m(recv, thread, fn, args, kwargs)
		}), nil
	}
	return nil, nil
}

func (c *capability[T]) attrNames() []string {
	return append([]string(nil), c.names...)
}

func unhashable(v starlark.Value) (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", v.Type())
}

// number unpacks any Starlark int or float as float64.
type number float64

func (n *number) Unpack(v starlark.Value) error {
	f, ok := starlark.AsFloat(v)
	if !ok {
		return fmt.Errorf("got %s, want number", v.Type())
	}
	*n = number(f)
	return nil
}
