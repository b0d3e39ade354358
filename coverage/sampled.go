// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coverage

import (
	"context"
	"sync/atomic"

	"github.com/genomeview/aligncore/align"
)

// SampledProfile is one computed or in-progress sampled-coverage result
// (spec §4.9).
type SampledProfile struct {
	Chrom      string
	Start, End int
	NumSamples int
	Stride     int
	Window     int
	Positions  []int
	Counts     []int

	Depths   []float64
	MaxDepth float64

	// Smoothed is the 3-pass moving-average smoothed profile, or nil if
	// smoothing is disabled.
	Smoothed []float64

	SamplesCompleted int
	Complete         bool
}

// EffectiveDepths returns the profile consumers should render: Smoothed if
// present, falling back to Depths, with spikes the smoothing pass
// flattened restored per spec §4.9's rendering note
// (max(smoothed[i], 0.1*depths[i])).
func (p *SampledProfile) EffectiveDepths() []float64 {
	if p.Smoothed == nil {
		return p.Depths
	}
	out := make([]float64, len(p.Smoothed))
	for i, s := range p.Smoothed {
		floor := 0.1 * p.Depths[i]
		if floor > s {
			s = floor
		}
		out[i] = s
	}
	return out
}

// Engine computes and caches a SampledProfile per viewport.
type Engine struct {
	smoothing bool
	current   atomic.Pointer[SampledProfile]
}

// NewEngine returns an Engine with the given smoothing-enabled default
// (spec §4.9 step 3: "if smoothing is enabled (configurable)").
func NewEngine(smoothingEnabled bool) *Engine {
	return &Engine{smoothing: smoothingEnabled}
}

// Current returns the most recently completed or in-progress profile, or
// nil if Compute has never been called.
func (e *Engine) Current() *SampledProfile { return e.current.Load() }

// Compute runs the Sampled-Coverage Engine algorithm of spec §4.9 over
// reader, for [start, end) on chrom with numSamples sampling points.
// onProgress, if non-nil, is called after each merged chunk with a
// snapshot of the in-progress profile; it must not block (it runs inline
// on the caller's worker, per spec §5).
func (e *Engine) Compute(ctx context.Context, reader align.Reader, chrom string, start, end, numSamples int, onProgress func(*SampledProfile)) (*SampledProfile, error) {
	if numSamples < 1 {
		numSamples = 1
	}
	stride := (end - start) / numSamples
	if stride < 1 {
		stride = 1
	}
	window := clampInt(100, stride/4, 1000)
	positions := make([]int, numSamples)
	for i := range positions {
		positions[i] = start + i*stride
	}

	// Step 1: validity check against the prior cached profile.
	if prev := e.current.Load(); prev != nil && prev.Chrom == chrom &&
		prev.Start <= start && prev.End >= end && stride >= prev.Stride/3 {
		return prev, nil
	}

	counts := make([]int, numSamples)
	profile := &SampledProfile{
		Chrom: chrom, Start: start, End: end,
		NumSamples: numSamples, Stride: stride, Window: window,
		Positions: positions, Counts: counts,
	}

	chunksSeen := 0
	recomputeDepths := func() {
		depths := make([]float64, numSamples)
		var maxDepth float64
		for i, c := range counts {
			d := float64(c) * 1000 / float64(window)
			depths[i] = d
			if d > maxDepth {
				maxDepth = d
			}
		}
		profile.Depths = depths
		profile.MaxDepth = maxDepth
	}

	// Step 2: submit a cancellable job; after each chunk, recompute and
	// report progress.
	err := reader.QuerySampledCounts(ctx, chrom, positions, window, counts, func() {
		chunksSeen++
		recomputeDepths()
		if profile.SamplesCompleted < numSamples-1 {
			profile.SamplesCompleted = clampInt(0, chunksSeen, numSamples-1)
		}
		if onProgress != nil {
			snapshot := *profile
			onProgress(&snapshot)
		}
	})
	if err != nil {
		return nil, err
	}

	// Step 3/4: finalize.
	recomputeDepths()
	profile.SamplesCompleted = numSamples
	profile.Complete = true

	if e.smoothing {
		radius := clampInt(1, numSamples/30, 6)
		smoothed := boxBlur3(profile.Depths, radius)
		profile.Smoothed = smoothed
		if m := maxOf(smoothed); m > profile.MaxDepth {
			profile.MaxDepth = m
		}
	}

	e.current.Store(profile)
	if onProgress != nil {
		onProgress(profile)
	}
	return profile, nil
}
