// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package appctx implements the "Application Context" strategy Design
// Notes §9 calls for in place of process-wide static mutable state: an
// immutable, atomically-swapped annotation-dataset handle, plus a
// monotonic "redraw tick" broadcast. Exactly one Context is constructed
// per process and passed explicitly to viewport.NewScheduler at
// construction; coverage.Engine does not take one (the scheduler calls
// Redraw from the engine's progress callback). Nothing here is a
// package-level global.
package appctx

import (
	"sync"
	"sync/atomic"

	"github.com/genomeview/aligncore/annotation"
)

// Annotations is the immutable snapshot of loaded annotation data a
// Context hands out. A nil *annotation.GeneCache/TranscriptCache/
// CosmicCache means that dataset has not been loaded yet.
type Annotations struct {
	Genes       *annotation.GeneCache
	Transcripts *annotation.TranscriptCache
	Cosmic      *annotation.CosmicCache
}

// Context is the shared handle constructed once per process and passed by
// pointer (it holds a mutex and must not be copied) to every component that
// needs the current annotation snapshot or the redraw broadcast.
type Context struct {
	annotations atomic.Pointer[Annotations]

	mu        sync.Mutex
	tick      uint64
	listeners []chan uint64
}

// New returns a Context with an empty annotation snapshot and tick 0.
func New() *Context {
	c := &Context{}
	c.annotations.Store(&Annotations{})
	return c
}

// Annotations returns the current annotation snapshot. The returned value
// is immutable; callers must not mutate its fields.
func (c *Context) Annotations() *Annotations {
	return c.annotations.Load()
}

// SetAnnotations atomically swaps in a new annotation snapshot, replacing
// the static-mutable-state pattern Design Notes §9 flags. It does not by
// itself trigger a redraw; callers that want one call Redraw explicitly.
func (c *Context) SetAnnotations(a *Annotations) {
	c.annotations.Store(a)
}

// Redraw increments the monotonic redraw tick and notifies every current
// subscriber (Subscribe) with the new tick value. Subscribers that are not
// ready to receive (a full channel) are skipped for this tick rather than
// blocking the caller.
func (c *Context) Redraw() uint64 {
	c.mu.Lock()
	c.tick++
	t := c.tick
	listeners := append([]chan uint64(nil), c.listeners...)
	c.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- t:
		default:
		}
	}
	return t
}

// Tick returns the current redraw tick without subscribing.
func (c *Context) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Subscribe registers a new redraw listener and returns a channel that
// receives each subsequent tick value, plus an unsubscribe function. The
// channel is buffered so a slow consumer never blocks Redraw; it may miss
// intermediate ticks under backpressure, which is safe because redraw
// notifications are idempotent (a consumer that wakes up re-reads the
// latest cache snapshot, it does not replay history).
func (c *Context) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l == ch {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
	return ch, unsubscribe
}
