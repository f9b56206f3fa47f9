// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"sync/atomic"
)

// State is the readiness of an asynchronously loaded resource.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// Cell is a set-once result slot. One writer commits either a value or an
// error; any number of readers observe Pending until then and the committed
// outcome forever after. Reads never block.
type Cell[T any] struct {
	result atomic.Pointer[outcome[T]]
}

// Resolve commits a ready value. It reports false if the cell was already set.
func (c *Cell[T]) Resolve(value T) bool {
	return c.result.CompareAndSwap(nil, &outcome[T]{value: value})
}

// Reject commits a failure. It reports false if the cell was already set.
func (c *Cell[T]) Reject(err error) bool {
	if err == nil {
		panic("sing: Cell.Reject with nil error")
	}
	return c.result.CompareAndSwap(nil, &outcome[T]{err: err})
}

// Get returns the current state with the value (Ready) or error (Failed).
func (c *Cell[T]) Get() (T, State, error) {
	r := c.result.Load()
	if r == nil {
		var zero T
		return zero, StatePending, nil
	}
	if r.err != nil {
		return r.value, StateFailed, r.err
	}
	return r.value, StateReady, nil
}

// State returns the current state only.
func (c *Cell[T]) State() State {
	_, s, _ := c.Get()
	return s
}
