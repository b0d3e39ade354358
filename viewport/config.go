// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package viewport

import (
	"log"
	"os"
	"sync/atomic"
	"time"
)

// Logger is the minimal seam the scheduler logs fetch errors through, up
// to MaxSuppressedErrors in a row (spec §7 "log only the first N"), matching the dependency
// injection style grailbio/bio's cmd/ tools use for *log.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Config holds the viewport scheduler's tunables, set via functional
// options (spec's Ambient Stack: the grailbio/bio/encoding/bamprovider
// options pattern).
type Config struct {
	// MaxBamViewLength is the largest view_length, in bp, for which the
	// per-read cache remains active; beyond it the cache is cleared and
	// callers fall back to sampled coverage (spec §4.7 cache policy 1).
	MaxBamViewLength int
	// PublishInterval is how often an in-flight fetch publishes a partial
	// snapshot (spec §4.7 fetch body step c, "every ≈100 ms").
	PublishInterval time.Duration
	// Smoothing enables the 3-pass moving average on sampled-coverage
	// profiles (spec §4.9 step 3).
	Smoothing bool
	// MaxSuppressedErrors bounds how many consecutive fetch errors are
	// logged before being suppressed (spec §7 "log only the first N ≈ 3").
	MaxSuppressedErrors int
	// Logger receives the fetch error reports that are not suppressed.
	Logger Logger
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxBamViewLength:    500000,
		PublishInterval:     100 * time.Millisecond,
		Smoothing:           true,
		MaxSuppressedErrors: 3,
		Logger:              log.New(os.Stderr, "viewport: ", log.LstdFlags),
	}
}

// Option configures a Config.
type Option func(*Config)

// WithMaxViewLength overrides MaxBamViewLength.
func WithMaxViewLength(bp int) Option {
	return func(c *Config) { c.MaxBamViewLength = bp }
}

// WithPublishInterval overrides PublishInterval.
func WithPublishInterval(d time.Duration) Option {
	return func(c *Config) { c.PublishInterval = d }
}

// WithSmoothing overrides Smoothing.
func WithSmoothing(enabled bool) Option {
	return func(c *Config) { c.Smoothing = enabled }
}

// WithLogger overrides Logger.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMaxSuppressedErrors overrides MaxSuppressedErrors.
func WithMaxSuppressedErrors(n int) Option {
	return func(c *Config) { c.MaxSuppressedErrors = n }
}

func buildConfig(opts []Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NavState is the shared, UI-wide navigation flags spec §4.7 scheduling
// consults: "while any of {navigating, cytoband-dragging, zoom-animating}
// is true AND block_during_navigation is true, do NOT submit [a fetch]".
// It is not part of get_reads' public signature; callers mutate it
// directly as the UI's interaction state changes.
type NavState struct {
	navigating       atomic.Bool
	cytobandDragging atomic.Bool
	zoomAnimating    atomic.Bool
}

// SetNavigating records whether the view is actively panning/jumping.
func (n *NavState) SetNavigating(v bool) { n.navigating.Store(v) }

// SetCytobandDragging records whether the cytoband ideogram is being
// dragged.
func (n *NavState) SetCytobandDragging(v bool) { n.cytobandDragging.Store(v) }

// SetZoomAnimating records whether a zoom transition animation is
// in-flight.
func (n *NavState) SetZoomAnimating(v bool) { n.zoomAnimating.Store(v) }

// Active reports whether any navigation-blocking condition currently
// holds.
func (n *NavState) Active() bool {
	return n.navigating.Load() || n.cytobandDragging.Load() || n.zoomAnimating.Load()
}
