// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bai parses the BAM binning index (.bai) and resolves a genomic
// interval to a minimal, merged, sorted list of BGZF chunks (spec §4.2).
package bai

import (
	"encoding/binary"
	"errors"
	"io"
	"sort"

	"github.com/genomeview/aligncore/bgzf"
)

// ErrMagic is returned when a file does not begin with the BAI\1 magic.
var ErrMagic = errors.New("bai: invalid magic")

// linearWindow is the width in bp of one linear-index tile (spec §3).
const linearWindow = 16384

// Reference binning levels, per the SAM spec binning scheme and spec §4.2:
// shifts 26, 23, 20, 17, 14 and bin-number offsets 0, 1, 9, 73, 585, 4681.
const (
	level0Bin   = 0
	level1Bin   = 1
	level1Shift = 26
	level2Bin   = 9
	level2Shift = 23
	level3Bin   = 73
	level3Shift = 20
	level4Bin   = 585
	level4Shift = 17
	level5Bin   = 4681
	level5Shift = 14
)

// Reg2Bins computes the union of bin numbers over the SAM binning
// hierarchy's 6 levels that might contain a feature overlapping
// [beg, end) (spec §4.2 step 1, testable property 11). The result is a
// superset, never a subset, of the bins truly needed.
func Reg2Bins(beg, end int) []uint32 {
	end--
	bins := []uint32{level0Bin}
	for _, lvl := range []struct{ offset, shift uint32 }{
		{level1Bin, level1Shift},
		{level2Bin, level2Shift},
		{level3Bin, level3Shift},
		{level4Bin, level4Shift},
		{level5Bin, level5Shift},
	} {
		lo := lvl.offset + uint32(beg>>lvl.shift)
		hi := lvl.offset + uint32(end>>lvl.shift)
		for k := lo; k <= hi; k++ {
			bins = append(bins, k)
		}
	}
	return bins
}

type bin struct {
	binNum uint32
	chunks []bgzf.Chunk
}

type refEntry struct {
	bins   map[uint32][]bgzf.Chunk
	linear []bgzf.VirtualOffset
}

// Index is a parsed BAI index.
type Index struct {
	refs []refEntry
}

// NumRefs returns the number of references described by the index.
func (idx *Index) NumRefs() int { return len(idx.refs) }

var baiMagic = [4]byte{'B', 'A', 'I', 1}

// Read parses a BAI index from r (spec §6).
func Read(r io.Reader) (*Index, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != baiMagic {
		return nil, ErrMagic
	}

	nRef, err := readI32(r)
	if err != nil {
		return nil, err
	}

	idx := &Index{refs: make([]refEntry, nRef)}
	for i := 0; i < int(nRef); i++ {
		nBin, err := readI32(r)
		if err != nil {
			return nil, err
		}
		ref := refEntry{bins: make(map[uint32][]bgzf.Chunk, nBin)}
		for b := int32(0); b < nBin; b++ {
			binNum, err := readU32(r)
			if err != nil {
				return nil, err
			}
			nChunk, err := readI32(r)
			if err != nil {
				return nil, err
			}
			chunks := make([]bgzf.Chunk, nChunk)
			for c := int32(0); c < nChunk; c++ {
				start, err := readU64(r)
				if err != nil {
					return nil, err
				}
				end, err := readU64(r)
				if err != nil {
					return nil, err
				}
				chunks[c] = bgzf.Chunk{
					Start: bgzf.VirtualOffset(start),
					End:   bgzf.VirtualOffset(end),
				}
			}
			ref.bins[binNum] = chunks
		}
		nIntv, err := readI32(r)
		if err != nil {
			return nil, err
		}
		ref.linear = make([]bgzf.VirtualOffset, nIntv)
		for j := int32(0); j < nIntv; j++ {
			v, err := readU64(r)
			if err != nil {
				return nil, err
			}
			ref.linear[j] = bgzf.VirtualOffset(v)
		}
		idx.refs[i] = ref
	}
	return idx, nil
}

func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

type byStart []bgzf.Chunk

func (s byStart) Len() int           { return len(s) }
func (s byStart) Less(i, j int) bool { return s[i].Start < s[j].Start }
func (s byStart) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Chunks returns a minimal, merged, sorted list of chunks that may contain
// records overlapping the 0-based half-open interval [beg, end) on
// reference refID (spec §4.2). An out-of-range refID yields an empty,
// nil-error result.
func (idx *Index) Chunks(refID, beg, end int) ([]bgzf.Chunk, error) {
	if refID < 0 || refID >= len(idx.refs) {
		return nil, nil
	}
	ref := idx.refs[refID]

	var minOffset bgzf.VirtualOffset
	if len(ref.linear) > 0 {
		tile := beg / linearWindow
		if tile >= 0 && tile < len(ref.linear) {
			minOffset = ref.linear[tile]
		}
	}

	var chunks []bgzf.Chunk
	for _, b := range Reg2Bins(beg, end) {
		cs, ok := ref.bins[b]
		if !ok {
			continue
		}
		chunks = append(chunks, cs...)
	}

	// Drop chunks wholly before minOffset, clamp the rest (spec §4.2 steps
	// 3-4).
	filtered := chunks[:0]
	for _, c := range chunks {
		if c.End <= minOffset {
			continue
		}
		if c.Start < minOffset {
			c.Start = minOffset
		}
		filtered = append(filtered, c)
	}
	chunks = filtered

	sort.Sort(byStart(chunks))
	return merge(chunks), nil
}

// merge joins overlapping or adjacent chunks: whenever the next chunk
// starts at or before the current chunk's end, it is folded into the
// current chunk (spec §4.2 step 5).
func merge(chunks []bgzf.Chunk) []bgzf.Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	out := make([]bgzf.Chunk, 0, len(chunks))
	cur := chunks[0]
	for _, c := range chunks[1:] {
		if c.Start <= cur.End {
			if c.End > cur.End {
				cur.End = c.End
			}
			continue
		}
		out = append(out, cur)
		cur = c
	}
	out = append(out, cur)
	return out
}
