// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package align holds the normalized, format-agnostic alignment record
// produced by both the BAM and CRAM decoders, and the AlignmentReader
// capability they both implement.
package align

import "fmt"

// Flags represents a BAM/CRAM record's alignment FLAG field. Only the bits
// the decode and viewport layers inspect are named; unnamed bits are
// preserved verbatim in Record.Flag.
type Flags uint16

const (
	Paired        Flags = 0x1
	ProperPair    Flags = 0x2
	Unmapped      Flags = 0x4
	Reverse       Flags = 0x10
	Secondary     Flags = 0x100
	Duplicate     Flags = 0x400
	Supplementary Flags = 0x800
)

// Has reports whether all bits in mask are set in f.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Filtered reports whether a record carrying these flags is dropped at
// stream time per spec §4.3: unmapped, secondary and supplementary reads
// never reach a consumer.
func (f Flags) Filtered() bool {
	return f.Has(Unmapped) || f.Has(Secondary) || f.Has(Supplementary)
}

// CigarOpType is the type of a single CIGAR operation.
type CigarOpType byte

const (
	CigarMatch       CigarOpType = 0 // M
	CigarInsertion   CigarOpType = 1 // I
	CigarDeletion    CigarOpType = 2 // D
	CigarSkipped     CigarOpType = 3 // N
	CigarSoftClipped CigarOpType = 4 // S
	CigarHardClipped CigarOpType = 5 // H
	CigarPadded      CigarOpType = 6 // P
	CigarEqual       CigarOpType = 7 // =
	CigarMismatch    CigarOpType = 8 // X
)

var cigarOpNames = [...]byte{'M', 'I', 'D', 'N', 'S', 'H', 'P', '=', 'X'}

func (t CigarOpType) String() string {
	if int(t) >= len(cigarOpNames) {
		return "?"
	}
	return string(cigarOpNames[t])
}

// ConsumesReference reports whether an operation of this type advances the
// reference coordinate, per the {M,D,N,=,X} set used for reference-span
// computation (spec §3).
func (t CigarOpType) ConsumesReference() bool {
	switch t {
	case CigarMatch, CigarDeletion, CigarSkipped, CigarEqual, CigarMismatch:
		return true
	default:
		return false
	}
}

// ConsumesQuery reports whether an operation of this type advances the read
// coordinate.
func (t CigarOpType) ConsumesQuery() bool {
	switch t {
	case CigarMatch, CigarInsertion, CigarSoftClipped, CigarEqual, CigarMismatch:
		return true
	default:
		return false
	}
}

// CigarOp packs an operation length and type into the BAM wire encoding
// (op_len<<4 | op_code), per spec §3.
type CigarOp uint32

// NewCigarOp builds a CigarOp from a length and operation type.
func NewCigarOp(t CigarOpType, n int) CigarOp {
	return CigarOp(n)<<4 | CigarOp(t)
}

// Type returns the operation type.
func (c CigarOp) Type() CigarOpType { return CigarOpType(c & 0xf) }

// Len returns the operation length.
func (c CigarOp) Len() int { return int(c >> 4) }

func (c CigarOp) String() string { return fmt.Sprintf("%d%s", c.Len(), c.Type()) }

// Cigar is an ordered sequence of CIGAR operations.
type Cigar []CigarOp

// ReferenceSpan sums operation lengths over the reference-consuming set
// {M,D,N,=,X}, per spec §3.
func (c Cigar) ReferenceSpan() int {
	span := 0
	for _, op := range c {
		if op.Type().ConsumesReference() {
			span += op.Len()
		}
	}
	return span
}

// Mismatch is a single (genomic_pos, read_base) pair, 1-based genomic
// position.
type Mismatch struct {
	Pos  int
	Base byte
}

// Record is the normalized, format-neutral alignment record shared by the
// BAM and CRAM decoders (spec §3).
type Record struct {
	RefID      int
	Pos        int // 1-based leftmost mapped position.
	End        int // 1-based exclusive rightmost position: Pos + Cigar.ReferenceSpan().
	Flag       Flags
	MapQ       uint8
	ReadLength int
	Cigar      Cigar
	ReadName   string

	// Mismatches holds resolved (genomic_pos, read_base) pairs if computed
	// eagerly (MD tag present, or CRAM read features), ordered by
	// genomic_pos. Nil when resolution is deferred to Seq.
	Mismatches []Mismatch

	// Seq holds the upper-cased read sequence for late mismatch resolution
	// against a reference when no MD tag/feature data was available. Empty
	// once mismatches have been resolved and the caller has no further use
	// for the raw bases.
	Seq string

	// Row is the display row assigned by row packing; -1 until packed.
	Row int

	// voffset is the virtual offset of this record's start, used for
	// de-duplication and ordering guarantees (spec §4.6, §5). Not exported:
	// it is bookkeeping for the reader layer, not part of the normalized
	// data model.
	voffset uint64
}

// VirtualOffset returns the virtual offset this record was read from.
func (r *Record) VirtualOffset() uint64 { return r.voffset }

// SetVirtualOffset is used by decoders to stamp the record's source offset.
func (r *Record) SetVirtualOffset(vo uint64) { r.voffset = vo }

// Overlaps reports whether the record's [Pos, End) span overlaps [start, end).
func (r *Record) Overlaps(start, end int) bool {
	return r.Pos < end && r.End > start
}
