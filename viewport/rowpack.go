// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package viewport implements the per-SampleFile cache and async scheduler
// of spec §4.7: a single-threaded worker per opened alignment file, a
// Viewport-keyed StackCache, and the row-packing and sampled-coverage
// machinery that feed it.
package viewport

import (
	"math"
	"sort"

	"github.com/genomeview/aligncore/align"
)

// minPixelGap is the minimum on-screen gap, in pixels, enforced between
// two reads sharing a row (spec §4.8).
const minPixelGap = 3

// gapFor returns the minimum bp gap required between reads on the same
// row at the given bp-per-pixel scale.
func gapFor(scale float64) int {
	g := int(math.Ceil(minPixelGap * scale))
	if g < 1 {
		g = 1
	}
	return g
}

// rowPacker implements the greedy first-fit row-packing algorithm of spec
// §4.8: for each incoming record in ascending-pos order, assign it to the
// smallest row whose last end lies at least gap bp before the record's
// start, or open a new row.
type rowPacker struct {
	gap     int
	rowEnds []int
}

func newRowPacker(gap int) *rowPacker {
	return &rowPacker{gap: gap}
}

// assign stamps rec.Row and updates the packer's row state. Records must
// be fed in ascending rec.Pos order.
func (p *rowPacker) assign(rec *align.Record) {
	for r, end := range p.rowEnds {
		if rec.Pos >= end+p.gap {
			rec.Row = r
			p.rowEnds[r] = rec.End
			return
		}
	}
	rec.Row = len(p.rowEnds)
	p.rowEnds = append(p.rowEnds, rec.End)
}

// maxRow returns the highest row index in use, or -1 if no record has
// been assigned yet.
func (p *rowPacker) maxRow() int {
	return len(p.rowEnds) - 1
}

// packIncremental assigns rows to a run of records known to already be in
// ascending-pos order (the order records arrive within a single
// query_streaming chunk is not pos-ordered in general, per spec §4.6, so
// this is only valid for a pre-sorted run; repack below handles the
// general case).
func packIncremental(p *rowPacker, recs []*align.Record) {
	for _, r := range recs {
		p.assign(r)
	}
}

// repack re-runs row packing over the full cached read set at the given
// scale, sorting by pos first since the full set may have been assembled
// from virtual-offset-ordered chunks that are not globally pos-ordered
// (spec §4.8 "Repack re-runs this algorithm on the full cached set using
// the current scale").
func repack(reads []*align.Record, scale float64) int {
	sort.Slice(reads, func(i, j int) bool { return reads[i].Pos < reads[j].Pos })
	p := newRowPacker(gapFor(scale))
	packIncremental(p, reads)
	return p.maxRow()
}

// scaleChanged reports whether newScale differs from oldScale by more
// than a factor of 2 in either direction (spec §4.7 cache policy 4).
func scaleChanged(oldScale, newScale float64) bool {
	if oldScale <= 0 {
		return true
	}
	ratio := newScale / oldScale
	return ratio > 2 || ratio < 0.5
}
