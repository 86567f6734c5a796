// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"sync/atomic"
	"time"
)

// DefaultDebounce is the minimum spacing between two accepted edges on the
// same button.
const DefaultDebounce = 500 * time.Millisecond

// CharSource yields the pending command character without blocking.
type CharSource interface {
	Next() (byte, bool)
}

// Arbiter folds button edges and stream characters into at most one command
// per loop tick.
//
// Edge is called from edge-watcher goroutines and touches only atomics.
// Next is called from the main loop, which is the only reader-then-clearer
// of the pending flags.
type Arbiter struct {
	guard    *Guard
	debounce time.Duration

	pressed  [numButtons]atomic.Bool
	lastEdge [numButtons]atomic.Int64 // unix nanos of the last accepted edge, 0 = never

	drops atomic.Uint32
}

// NewArbiter returns an arbiter gated by g. A non-positive debounce selects
// DefaultDebounce.
func NewArbiter(g *Guard, debounce time.Duration) *Arbiter {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Arbiter{guard: g, debounce: debounce}
}

// Edge records a press of b observed at now. It reports whether the edge was
// accepted. Edges arriving while an operation is in progress, or within the
// debounce window of the previous accepted edge on b, are discarded.
func (a *Arbiter) Edge(b Button, now time.Time) bool {
	if b >= numButtons {
		return false
	}
	if a.guard.Busy() {
		a.drops.Add(1)
		return false
	}
	ts := now.UnixNano()
	if last := a.lastEdge[b].Load(); last != 0 && ts-last < int64(a.debounce) {
		a.drops.Add(1)
		return false
	}
	a.lastEdge[b].Store(ts)
	a.pressed[b].Store(true)
	return true
}

// Next returns the command to dispatch this tick. Button A is latched first,
// then button B, and a stream character, when present, overwrites whatever
// the buttons latched (including with None for unmapped characters).
func (a *Arbiter) Next(mounted bool, stream CharSource) Command {
	cmd := None

	if !a.guard.Busy() && a.pressed[ButtonA].Swap(false) {
		cmd = FromButton(ButtonA, mounted)
	}
	if !a.guard.Busy() && a.pressed[ButtonB].Swap(false) {
		cmd = FromButton(ButtonB, mounted)
	}

	if stream != nil {
		if ch, ok := stream.Next(); ok {
			cmd = FromChar(ch)
		}
	}
	return cmd
}

// Drops returns how many edges were discarded since start.
func (a *Arbiter) Drops() uint32 { return a.drops.Load() }
