package control

import "sync/atomic"

// Guard is the single-operation exclusivity flag. Edge watchers only read it;
// the dispatcher is its sole writer.
type Guard struct {
	busy atomic.Bool
}

// Acquire takes the guard. It returns false, changing nothing, if the guard
// is already held.
func (g *Guard) Acquire() bool { return g.busy.CompareAndSwap(false, true) }

// Release clears the guard. Safe to call when it was never acquired.
func (g *Guard) Release() { g.busy.Store(false) }

// Busy reports whether an operation is in progress.
func (g *Guard) Busy() bool { return g.busy.Load() }
