// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/genomeview/aligncore/align"
	"github.com/genomeview/aligncore/bgzf"
	"github.com/genomeview/aligncore/mismatch"
)

// ErrUnexpectedEOF is returned when a record is truncated.
var ErrUnexpectedEOF = bgzf.ErrUnexpectedEOF

// seqAlphabet is the 4-bit SEQ encoding alphabet (spec §4.3).
const seqAlphabet = "=ACMGRSVTWYHKDBN"

// auxTypeSize gives the fixed element size in bytes for scalar aux tag
// value types, per spec §4.3's per-type sizing table. Z, H and B are
// handled specially.
var auxTypeSize = map[byte]int{
	'A': 1, 'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4, 'f': 4,
	'd': 8,
}

// readRecord parses one BAM record from r, whose cursor must be positioned
// at the start of a record's block_size field. vo is the virtual offset the
// record started at.
func readRecord(r *bgzf.Reader, vo bgzf.VirtualOffset) (*align.Record, error) {
	blockSize, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	if blockSize < 32 {
		return nil, errors.New("bam: implausible record block_size")
	}
	body, err := r.ReadFully(int(blockSize))
	if err != nil {
		return nil, err
	}
	return parseRecordBody(body, vo)
}

func parseRecordBody(body []byte, vo bgzf.VirtualOffset) (*align.Record, error) {
	if len(body) < 32 {
		return nil, ErrUnexpectedEOF
	}
	le := binary.LittleEndian
	refID := int32(le.Uint32(body[0:4]))
	pos0 := int32(le.Uint32(body[4:8]))
	binMqNl := le.Uint32(body[8:12])
	lReadName := int(binMqNl & 0xff)
	mapQ := uint8((binMqNl >> 8) & 0xff)
	flagNc := le.Uint32(body[12:16])
	nCigarOp := int(flagNc & 0xffff)
	flag := align.Flags(flagNc >> 16)
	readLength := int32(le.Uint32(body[16:20]))
	off := 32 // skip next_refID, next_pos, tlen (already counted in the 32 header bytes: 4 fields * 4 = but we consumed 20; remaining 12 bytes of mate info at [20:32])

	if off+lReadName > len(body) {
		return nil, ErrUnexpectedEOF
	}
	nameBytes := body[off : off+lReadName]
	name := string(bytes.TrimRight(nameBytes, "\x00"))
	off += lReadName

	cigarBytes := nCigarOp * 4
	if off+cigarBytes > len(body) {
		return nil, ErrUnexpectedEOF
	}
	cigar := make(align.Cigar, nCigarOp)
	for i := 0; i < nCigarOp; i++ {
		cigar[i] = align.CigarOp(le.Uint32(body[off+i*4 : off+i*4+4]))
	}
	off += cigarBytes

	rec := &align.Record{
		RefID:      int(refID),
		Pos:        int(pos0) + 1,
		Flag:       flag,
		MapQ:       mapQ,
		ReadLength: int(readLength),
		Cigar:      cigar,
		ReadName:   name,
		Row:        -1,
	}
	rec.End = rec.Pos + cigar.ReferenceSpan()
	if rec.End < rec.Pos {
		rec.End = rec.Pos
	}
	rec.SetVirtualOffset(uint64(vo))

	seqBytes := (int(readLength) + 1) / 2
	if off+seqBytes > len(body) {
		return nil, ErrUnexpectedEOF
	}
	seq := decodeSeq(body[off:off+seqBytes], int(readLength))
	rec.Seq = seq
	off += seqBytes

	// QUAL: readLength bytes, skipped entirely (spec §4.3).
	off += int(readLength)
	if off > len(body) {
		return nil, ErrUnexpectedEOF
	}

	md, err := findMD(body[off:])
	if err != nil {
		return nil, err
	}
	if md != "" {
		rec.Mismatches, err = mismatch.FromMD(cigar, rec.Pos, rec.Seq, md)
		if err != nil {
			return nil, err
		}
		// MD already resolved mismatches eagerly; Seq is only needed for
		// late (reference-based) resolution, so it can be dropped.
		rec.Seq = ""
	}
	return rec, nil
}

func decodeSeq(b []byte, length int) string {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		byt := b[i/2]
		var nib byte
		if i%2 == 0 {
			nib = byt >> 4
		} else {
			nib = byt & 0xf
		}
		if int(nib) < len(seqAlphabet) {
			out[i] = seqAlphabet[nib]
		} else {
			out[i] = 'N'
		}
	}
	return string(out)
}

// findMD scans the auxiliary tag block for an MD:Z value, skipping all
// other tags using the per-type sizing table (spec §4.3).
func findMD(aux []byte) (string, error) {
	md := ""
	i := 0
	for i+3 <= len(aux) {
		tag := aux[i : i+2]
		typ := aux[i+2]
		i += 3
		switch typ {
		case 'Z', 'H':
			end := bytes.IndexByte(aux[i:], 0)
			if end < 0 {
				return "", ErrUnexpectedEOF
			}
			val := string(aux[i : i+end])
			if tag[0] == 'M' && tag[1] == 'D' {
				md = val
			}
			i += end + 1
		case 'B':
			if i+5 > len(aux) {
				return "", ErrUnexpectedEOF
			}
			elemType := aux[i]
			count := int(binary.LittleEndian.Uint32(aux[i+1 : i+5]))
			elemSize, ok := auxTypeSize[elemType]
			if !ok {
				return "", errors.New("bam: unknown B array element type")
			}
			i += 5 + count*elemSize
		default:
			size, ok := auxTypeSize[typ]
			if !ok {
				return "", errors.New("bam: unknown aux tag type")
			}
			i += size
		}
		if i > len(aux) {
			return "", ErrUnexpectedEOF
		}
	}
	return md, nil
}
