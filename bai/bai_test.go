// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bai

import (
	"bytes"
	"encoding/binary"
	"testing"

	"gopkg.in/check.v1"

	"github.com/genomeview/aligncore/bgzf"
)

func Test(t *testing.T) { check.TestingT(t) }

type S struct{}

var _ = check.Suite(&S{})

func (s *S) TestReg2Bins(c *check.C) {
	// S1: reg2bins(0, 16384) = {0, 1, 9, 73, 585, 4681}.
	got := Reg2Bins(0, 16384)
	want := map[uint32]bool{0: true, 1: true, 9: true, 73: true, 585: true, 4681: true}
	set := map[uint32]bool{}
	for _, b := range got {
		set[b] = true
	}
	c.Assert(set, check.DeepEquals, want)

	// reg2bins(0, 16385) includes 4681 and 4682.
	got2 := Reg2Bins(0, 16385)
	set2 := map[uint32]bool{}
	for _, b := range got2 {
		set2[b] = true
	}
	c.Assert(set2[4681], check.Equals, true)
	c.Assert(set2[4682], check.Equals, true)
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// buildBAI constructs a minimal single-reference BAI with one bin holding
// one chunk and no linear index entries.
func buildBAI(c *check.C, binNum uint32, start, end uint64) []byte {
	var buf bytes.Buffer
	buf.Write(baiMagic[:])
	putU32(&buf, 1) // n_ref
	putU32(&buf, 1) // n_bin
	putU32(&buf, binNum)
	putU32(&buf, 1) // n_chunk
	putU64(&buf, start)
	putU64(&buf, end)
	putU32(&buf, 0) // n_intv
	return buf.Bytes()
}

func (s *S) TestChunksMergeAndSort(c *check.C) {
	raw := buildBAI(c, 0, 0, uint64(bgzf.NewVirtualOffset(100, 0)))
	idx, err := Read(bytes.NewReader(raw))
	c.Assert(err, check.IsNil)
	c.Assert(idx.NumRefs(), check.Equals, 1)

	chunks, err := idx.Chunks(0, 0, 100)
	c.Assert(err, check.IsNil)
	c.Assert(len(chunks), check.Equals, 1)
	c.Assert(chunks[0].Start < chunks[0].End, check.Equals, true)
}

func (s *S) TestChunksOutOfRangeRef(c *check.C) {
	raw := buildBAI(c, 0, 0, uint64(bgzf.NewVirtualOffset(100, 0)))
	idx, err := Read(bytes.NewReader(raw))
	c.Assert(err, check.IsNil)
	chunks, err := idx.Chunks(5, 0, 100)
	c.Assert(err, check.IsNil)
	c.Assert(chunks, check.IsNil)
}

func (s *S) TestMergeOverlapping(c *check.C) {
	a := bgzf.Chunk{Start: bgzf.NewVirtualOffset(0, 0), End: bgzf.NewVirtualOffset(10, 0)}
	b := bgzf.Chunk{Start: bgzf.NewVirtualOffset(5, 0), End: bgzf.NewVirtualOffset(20, 0)}
	d := bgzf.Chunk{Start: bgzf.NewVirtualOffset(30, 0), End: bgzf.NewVirtualOffset(40, 0)}
	merged := merge([]bgzf.Chunk{a, b, d})
	c.Assert(len(merged), check.Equals, 2)
	c.Assert(merged[0].Start, check.Equals, bgzf.NewVirtualOffset(0, 0))
	c.Assert(merged[0].End, check.Equals, bgzf.NewVirtualOffset(20, 0))
}
