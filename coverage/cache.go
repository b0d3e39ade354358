// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coverage

import (
	"math"
	"sync/atomic"

	"github.com/biogo/store/interval"

	"github.com/genomeview/aligncore/align"
)

// Profile is a built Coverage Cache entry: per-bin coverage plus raw
// per-base mismatch stacks, over an inflated region (spec §4.10).
type Profile struct {
	Chrom        string
	Start, End   int // inflated region actually covered by this profile.
	BinSize      float64
	NumBins      int
	ReadsVersion uint64

	// RawCov is the unsmoothed per-bin read coverage.
	RawCov []float64
	// Smoothed is RawCov after the 3-pass box blur; used for the fill
	// rendering.
	Smoothed []float64
	// MmA/MmC/MmG/MmT are raw per-bin mismatch counts by read base, used
	// for allelic-fraction bars.
	MmA, MmC, MmG, MmT []float64

	ScaleMax float64
}

// CoverageCache holds the single most recently built Profile for a
// viewport, published via atomic pointer swap: mutated only by the owning
// worker, observed freely by readers (spec §5 "Shared-resource policy").
type CoverageCache struct {
	current atomic.Pointer[Profile]
}

// NewCoverageCache returns an empty CoverageCache.
func NewCoverageCache() *CoverageCache { return &CoverageCache{} }

// Get returns the current profile, or nil if Ensure has never built one.
func (c *CoverageCache) Get() *Profile { return c.current.Load() }

// Ensure returns a Profile covering [start, end) at canvasWidth
// resolution, rebuilding from reads only on a cache miss: binSize changed
// by more than 1%, readsVersion changed, or the requested region is not
// within the cached region (spec §4.10).
func (c *CoverageCache) Ensure(chrom string, start, end, canvasWidth int, readsVersion uint64, reads []*align.Record) *Profile {
	if canvasWidth < 1 {
		canvasWidth = 1
	}
	binSize := float64(end-start) / float64(canvasWidth)

	if cur := c.current.Load(); cur != nil {
		withinRegion := cur.Chrom == chrom && start >= cur.Start && end <= cur.End
		sameVersion := cur.ReadsVersion == readsVersion
		sizeDelta := math.Abs(cur.BinSize-binSize) / math.Max(cur.BinSize, 1e-9)
		if withinRegion && sameVersion && sizeDelta <= 0.01 {
			return cur
		}
	}

	p := build(chrom, start, end, binSize, readsVersion, reads)
	c.current.Store(p)
	return p
}

func build(chrom string, start, end int, binSize float64, readsVersion uint64, reads []*align.Record) *Profile {
	viewLength := end - start
	buffer := viewLength / 2
	inflatedStart := start - buffer
	if inflatedStart < 0 {
		inflatedStart = 0
	}
	inflatedEnd := end + buffer

	numBins := int(math.Ceil(float64(inflatedEnd-inflatedStart) / binSize))
	if numBins < 1 {
		numBins = 1
	}

	binCov := make([]float64, numBins)
	mmA := make([]float64, numBins)
	mmC := make([]float64, numBins)
	mmG := make([]float64, numBins)
	mmT := make([]float64, numBins)

	binOf := func(pos int) int {
		b := int(float64(pos-inflatedStart) / binSize)
		if b < 0 {
			b = 0
		}
		if b >= numBins {
			b = numBins - 1
		}
		return b
	}

	window := interval.IntRange{Start: inflatedStart, End: inflatedEnd}
	for _, rec := range reads {
		if !(interval.IntRange{Start: rec.Pos, End: rec.End}).Overlap(window) {
			continue
		}
		loBin, hiBin := binOf(rec.Pos), binOf(rec.End-1)
		for b := loBin; b <= hiBin; b++ {
			binCov[b]++
		}
		for _, m := range rec.Mismatches {
			if !window.Overlap(interval.IntRange{Start: m.Pos, End: m.Pos + 1}) {
				continue
			}
			b := binOf(m.Pos)
			switch m.Base {
			case 'A':
				mmA[b]++
			case 'C':
				mmC[b]++
			case 'G':
				mmG[b]++
			case 'T':
				mmT[b]++
			}
		}
	}

	radius := clampInt(1, numBins/80, 8)
	smoothed := boxBlur3(binCov, radius)
	scaleMax := math.Max(maxOf(binCov), maxOf(smoothed))

	return &Profile{
		Chrom: chrom, Start: inflatedStart, End: inflatedEnd,
		BinSize: binSize, NumBins: numBins, ReadsVersion: readsVersion,
		RawCov: binCov, Smoothed: smoothed,
		MmA: mmA, MmC: mmC, MmG: mmG, MmT: mmT,
		ScaleMax: scaleMax,
	}
}
