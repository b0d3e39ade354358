// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/genomeview/aligncore/align"
	"gopkg.in/check.v1"
)

func Test(t *testing.T) { check.TestingT(t) }

type S struct{}

var _ = check.Suite(&S{})

var eofBlock = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

func makeBlock(c *check.C, data []byte) []byte {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	c.Assert(err, check.IsNil)
	gz.Header.Extra = []byte{'B', 'C', 0x02, 0x00, 0x88, 0x88}
	_, err = gz.Write(data)
	c.Assert(err, check.IsNil)
	c.Assert(gz.Close(), check.IsNil)

	encoded := buf.Bytes()
	bsize := len(encoded) - 1
	idx := bytes.Index(encoded, []byte{'B', 'C', 0x02, 0x00})
	c.Assert(idx >= 0, check.Equals, true)
	encoded[idx+4] = byte(bsize)
	encoded[idx+5] = byte(bsize >> 8)
	return encoded
}

func encodeSeq(seq string) []byte {
	out := make([]byte, (len(seq)+1)/2)
	for i, b := range []byte(seq) {
		nib := byte(strings.IndexByte(seqAlphabet, b))
		if i%2 == 0 {
			out[i/2] |= nib << 4
		} else {
			out[i/2] |= nib
		}
	}
	return out
}

type recordSpec struct {
	refID    int32
	pos0     int32
	flag     uint16
	mapq     uint8
	cigar    align.Cigar
	name     string
	seq      string
	mdTag    string
}

func encodeRecord(rs recordSpec) []byte {
	var body bytes.Buffer
	le := binary.LittleEndian
	put32 := func(v int32) { var b [4]byte; le.PutUint32(b[:], uint32(v)); body.Write(b[:]) }
	putU32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); body.Write(b[:]) }

	nameBytes := append([]byte(rs.name), 0)
	put32(rs.refID)
	put32(rs.pos0)
	putU32(uint32(rs.mapq)<<8 | uint32(len(nameBytes)))
	putU32(uint32(rs.flag)<<16 | uint32(len(rs.cigar)))
	put32(int32(len(rs.seq)))
	put32(-1) // next_refID
	put32(-1) // next_pos
	put32(0)  // tlen
	body.Write(nameBytes)
	for _, op := range rs.cigar {
		putU32(uint32(op))
	}
	body.Write(encodeSeq(rs.seq))
	body.Write(make([]byte, len(rs.seq))) // qual, unused
	if rs.mdTag != "" {
		body.WriteString("MD")
		body.WriteByte('Z')
		body.WriteString(rs.mdTag)
		body.WriteByte(0)
	}

	var out bytes.Buffer
	put32full := func(v int32) {
		var b [4]byte
		le.PutUint32(b[:], uint32(v))
		out.Write(b[:])
	}
	put32full(int32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// buildBAMFile assembles a single-block BAM file (magic, SAM header, one
// reference, and the given records) and returns its bytes together with the
// uncompressed offset of the first record and the uncompressed length of the
// single data block's payload, so callers can build precise BAI chunk start
// and end offsets.
func buildBAMFile(c *check.C, refName string, refLen int32, records []recordSpec) ([]byte, int, int) {
	var payload bytes.Buffer
	payload.WriteString("BAM\x01")
	text := "@HD\tVN:1.6\n@RG\tID:rg1\tSM:sample-one\n"
	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], uint32(len(text)))
	payload.Write(b4[:])
	payload.WriteString(text)
	binary.LittleEndian.PutUint32(b4[:], 1)
	payload.Write(b4[:]) // n_ref
	nameBytes := append([]byte(refName), 0)
	binary.LittleEndian.PutUint32(b4[:], uint32(len(nameBytes)))
	payload.Write(b4[:])
	payload.Write(nameBytes)
	binary.LittleEndian.PutUint32(b4[:], uint32(refLen))
	payload.Write(b4[:])
	recStart := payload.Len()

	for _, rs := range records {
		payload.Write(encodeRecord(rs))
	}

	block := makeBlock(c, payload.Bytes())
	var file bytes.Buffer
	file.Write(block)
	file.Write(eofBlock)
	return file.Bytes(), recStart, payload.Len()
}

// buildBAI builds a minimal index placing every chunk under bin 0, which
// Reg2Bins always includes, so precise bin assignment is irrelevant for
// these tests. start is the virtual offset of the first record and end is
// the virtual offset immediately after the last record.
func buildBAI(c *check.C, start, end uint64) []byte {
	var buf bytes.Buffer
	buf.WriteString("BAI\x01")
	putI32 := func(v int32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	}
	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	putU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}

	putI32(1)     // n_ref
	putI32(1)     // n_bin
	putU32(0)     // bin number 0
	putI32(1)     // n_chunk
	putU64(start) // chunk start: vo of the first record, past the header
	putU64(end)   // chunk end: vo immediately past the last record
	putI32(0)     // n_intv
	return buf.Bytes()
}

func writeTempFile(c *check.C, dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	c.Assert(os.WriteFile(path, data, 0o644), check.IsNil)
	return path
}

func (s *S) TestQueryAndFiltering(c *check.C) {
	dir := c.MkDir()
	records := []recordSpec{
		{refID: 0, pos0: 99, flag: 0, mapq: 60, cigar: align.Cigar{align.NewCigarOp(align.CigarMatch, 5)}, name: "r1", seq: "ACGTA", mdTag: "2A2"},
		{refID: 0, pos0: 199, flag: uint16(align.Unmapped), mapq: 0, cigar: nil, name: "r2-unmapped", seq: "AC"},
		{refID: 0, pos0: 299, flag: 0, mapq: 40, cigar: align.Cigar{align.NewCigarOp(align.CigarMatch, 4)}, name: "r3", seq: "TTTT"},
	}
	bamBytes, recStart, payloadLen := buildBAMFile(c, "chr1", 1000000, records)
	bamPath := writeTempFile(c, dir, "test.bam", bamBytes)
	baiBytes := buildBAI(c, uint64(recStart), uint64(payloadLen))
	baiPath := writeTempFile(c, dir, "test.bam.bai", baiBytes)

	dec, err := Open(bamPath, baiPath)
	c.Assert(err, check.IsNil)
	defer dec.Close()

	c.Assert(dec.SampleName(), check.Equals, "sample-one")
	c.Assert(dec.RefNames(), check.DeepEquals, []string{"chr1"})
	c.Assert(dec.RefLengths(), check.DeepEquals, []int{1000000})

	got, err := dec.Query(context.Background(), "chr1", 1, 1000000)
	c.Assert(err, check.IsNil)
	// r2 is unmapped and must be filtered per spec §4.3.
	c.Assert(len(got), check.Equals, 2)
	c.Assert(got[0].ReadName, check.Equals, "r1")
	c.Assert(got[0].Pos, check.Equals, 100)
	c.Assert(got[0].Mismatches, check.DeepEquals, []align.Mismatch{{Pos: 102, Base: 'G'}})
	c.Assert(got[0].Seq, check.Equals, "") // cleared once MD resolved mismatches
	c.Assert(got[1].ReadName, check.Equals, "r3")

	// Chromosome aliasing: "1" should resolve to "chr1".
	aliased, err := dec.Query(context.Background(), "1", 1, 1000000)
	c.Assert(err, check.IsNil)
	c.Assert(len(aliased), check.Equals, 2)
}

func (s *S) TestQueryStreamingStop(c *check.C) {
	dir := c.MkDir()
	records := []recordSpec{
		{refID: 0, pos0: 9, flag: 0, mapq: 60, cigar: align.Cigar{align.NewCigarOp(align.CigarMatch, 2)}, name: "a", seq: "AC"},
		{refID: 0, pos0: 19, flag: 0, mapq: 60, cigar: align.Cigar{align.NewCigarOp(align.CigarMatch, 2)}, name: "b", seq: "GT"},
	}
	bamBytes, recStart, payloadLen := buildBAMFile(c, "chr1", 1000, records)
	bamPath := writeTempFile(c, dir, "stop.bam", bamBytes)
	baiBytes := buildBAI(c, uint64(recStart), uint64(payloadLen))
	baiPath := writeTempFile(c, dir, "stop.bam.bai", baiBytes)

	dec, err := Open(bamPath, baiPath)
	c.Assert(err, check.IsNil)
	defer dec.Close()

	var seen []string
	err = dec.QueryStreaming(context.Background(), "chr1", 1, 1000, func(rec *align.Record) align.Action {
		seen = append(seen, rec.ReadName)
		return align.Stop
	})
	c.Assert(err, check.IsNil)
	c.Assert(seen, check.DeepEquals, []string{"a"})
}

func (s *S) TestQuerySampledCounts(c *check.C) {
	dir := c.MkDir()
	records := []recordSpec{
		{refID: 0, pos0: 9, flag: 0, mapq: 60, cigar: align.Cigar{align.NewCigarOp(align.CigarMatch, 100)}, name: "wide", seq: strings.Repeat("A", 100)},
	}
	bamBytes, recStart, payloadLen := buildBAMFile(c, "chr1", 1000, records)
	bamPath := writeTempFile(c, dir, "cov.bam", bamBytes)
	baiBytes := buildBAI(c, uint64(recStart), uint64(payloadLen))
	baiPath := writeTempFile(c, dir, "cov.bam.bai", baiBytes)

	dec, err := Open(bamPath, baiPath)
	c.Assert(err, check.IsNil)
	defer dec.Close()

	positions := []int{1, 20, 200}
	counts := make([]int, len(positions))
	var chunks int
	err = dec.QuerySampledCounts(context.Background(), "chr1", positions, 10, counts, func() { chunks++ })
	c.Assert(err, check.IsNil)
	c.Assert(counts, check.DeepEquals, []int{1, 1, 0})
	c.Assert(chunks > 0, check.Equals, true)
}
