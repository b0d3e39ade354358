// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coverage

import (
	"testing"

	"github.com/genomeview/aligncore/align"
)

func TestCoverageCacheBuildsAndCounts(t *testing.T) {
	reads := []*align.Record{
		{Pos: 1000, End: 1100, Mismatches: []align.Mismatch{{Pos: 1050, Base: 'A'}}},
		{Pos: 1050, End: 1150, Mismatches: []align.Mismatch{{Pos: 1060, Base: 'G'}}},
	}
	c := NewCoverageCache()
	p := c.Ensure("chr1", 1000, 2000, 100, 1, reads)
	if p.Chrom != "chr1" {
		t.Fatalf("got chrom %q", p.Chrom)
	}
	if p.NumBins < 1 {
		t.Fatalf("got NumBins %d", p.NumBins)
	}
	if maxOf(p.RawCov) == 0 {
		t.Fatal("expected nonzero coverage")
	}
	if maxOf(p.MmA) == 0 || maxOf(p.MmG) == 0 {
		t.Fatal("expected mismatch stacks populated")
	}
	if p.ScaleMax <= 0 {
		t.Fatalf("got ScaleMax %v, want > 0", p.ScaleMax)
	}
}

func TestCoverageCacheHitWithinRegion(t *testing.T) {
	reads := []*align.Record{{Pos: 1000, End: 1100}}
	c := NewCoverageCache()
	// First request inflates [1000,2000) by viewLength/2 on each side to a
	// cached [500,2500) region at binSize 10 (canvasWidth 100).
	first := c.Ensure("chr1", 1000, 2000, 100, 1, reads)
	// Second request asks for a sub-region that both lies within the
	// inflated cached region and preserves the same binSize (same
	// viewLength/canvasWidth ratio), so it is a hit.
	second := c.Ensure("chr1", 700, 1700, 100, 1, reads)
	if first != second {
		t.Fatal("expected a same-bin-size request within the cached region to reuse the cached profile")
	}
}

func TestCoverageCacheMissOnVersionChange(t *testing.T) {
	reads := []*align.Record{{Pos: 1000, End: 1100}}
	c := NewCoverageCache()
	first := c.Ensure("chr1", 1000, 2000, 100, 1, reads)
	second := c.Ensure("chr1", 1000, 2000, 100, 2, reads)
	if first == second {
		t.Fatal("expected a read-version change to force a rebuild")
	}
}

func TestCoverageCacheMissOnBinSizeChange(t *testing.T) {
	reads := []*align.Record{{Pos: 1000, End: 1100}}
	c := NewCoverageCache()
	first := c.Ensure("chr1", 1000, 2000, 100, 1, reads)
	second := c.Ensure("chr1", 1000, 2000, 500, 1, reads)
	if first == second {
		t.Fatal("expected a canvas-width (bin size) change beyond 1% to force a rebuild")
	}
}

func TestCoverageCacheMissOnRegionOutsideCached(t *testing.T) {
	reads := []*align.Record{{Pos: 1000, End: 1100}}
	c := NewCoverageCache()
	first := c.Ensure("chr1", 1000, 2000, 100, 1, reads)
	second := c.Ensure("chr1", 50000, 51000, 100, 1, reads)
	if first == second {
		t.Fatal("expected a disjoint region to force a rebuild")
	}
}
