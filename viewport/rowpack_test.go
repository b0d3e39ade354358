// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package viewport

import (
	"testing"

	"github.com/genomeview/aligncore/align"
)

// TestRowPackS4 reproduces the literal S4 scenario: scale=1bp/px,
// gap=3bp, reads (1,10), (20,30), (12,25), (14,18) in stream order.
func TestRowPackS4(t *testing.T) {
	recs := []*align.Record{
		{Pos: 1, End: 10},
		{Pos: 20, End: 30},
		{Pos: 12, End: 25},
		{Pos: 14, End: 18},
	}
	p := newRowPacker(gapFor(1))
	for _, r := range recs {
		p.assign(r)
	}
	want := []int{0, 0, 1, 2}
	for i, r := range recs {
		if r.Row != want[i] {
			t.Fatalf("record %d: got row %d, want %d", i, r.Row, want[i])
		}
	}
	if p.maxRow() != 2 {
		t.Fatalf("got maxRow %d, want 2", p.maxRow())
	}
}

// TestRowPackInvariant checks property 8: any two records sharing a row,
// in pos order, must be separated by at least gap bp.
func TestRowPackInvariant(t *testing.T) {
	recs := []*align.Record{
		{Pos: 5, End: 40}, {Pos: 8, End: 20}, {Pos: 15, End: 100},
		{Pos: 22, End: 30}, {Pos: 50, End: 60}, {Pos: 55, End: 58},
	}
	gap := gapFor(2.5)
	p := newRowPacker(gap)
	for _, r := range recs {
		p.assign(r)
	}
	byRow := make(map[int][]*align.Record)
	for _, r := range recs {
		byRow[r.Row] = append(byRow[r.Row], r)
	}
	for _, rowRecs := range byRow {
		for i := 1; i < len(rowRecs); i++ {
			prev, cur := rowRecs[i-1], rowRecs[i]
			if cur.Pos < prev.End+gap {
				t.Fatalf("row invariant violated: prev end %d, gap %d, cur pos %d", prev.End, gap, cur.Pos)
			}
		}
	}
}

func TestGapFor(t *testing.T) {
	if got := gapFor(1); got != 3 {
		t.Fatalf("got gap %d, want 3", got)
	}
	if got := gapFor(0); got != 1 {
		t.Fatalf("got gap %d, want 1 (floor)", got)
	}
}

func TestScaleChanged(t *testing.T) {
	cases := []struct {
		old, new float64
		want     bool
	}{
		{10, 10, false},
		{10, 15, false},
		{10, 21, true},
		{10, 4.9, true},
		{10, 5, false},
		{0, 10, true},
	}
	for _, c := range cases {
		if got := scaleChanged(c.old, c.new); got != c.want {
			t.Fatalf("scaleChanged(%v, %v) = %v, want %v", c.old, c.new, got, c.want)
		}
	}
}

func TestRepackSortsByPos(t *testing.T) {
	recs := []*align.Record{
		{Pos: 20, End: 30},
		{Pos: 1, End: 10},
	}
	maxRow := repack(recs, 1)
	if maxRow != 0 {
		t.Fatalf("got maxRow %d, want 0 (both fit row 0 once pos-sorted)", maxRow)
	}
}
