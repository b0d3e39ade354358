// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mismatch reconstructs per-base mismatches from a record's MD tag,
// its CIGAR walk against a reference, or CRAM read features (spec §4.5).
package mismatch

import (
	"strconv"

	"github.com/genomeview/aligncore/align"
)

// ReferenceSource supplies uppercase reference bases for a 1-based
// inclusive interval.
type ReferenceSource interface {
	Bases(chrom string, start1, end1 int) (string, error)
}

func isACGT(b byte) bool {
	switch b {
	case 'A', 'C', 'G', 'T':
		return true
	}
	return false
}

// alignmentMaps walks cigar starting at 0-based reference offset 0 and
// 0-based read offset 0, producing, for each aligned (M/=/X) base in
// order, its read offset and its reference offset from the alignment
// start. This is the array pair spec §4.5(i) calls alignToRead/alignToRef.
func alignmentMaps(cigar align.Cigar) (alignToRead, alignToRef []int) {
	readPos, refPos := 0, 0
	for _, op := range cigar {
		t := op.Type()
		n := op.Len()
		switch t {
		case align.CigarMatch, align.CigarEqual, align.CigarMismatch:
			for i := 0; i < n; i++ {
				alignToRead = append(alignToRead, readPos+i)
				alignToRef = append(alignToRef, refPos+i)
			}
			readPos += n
			refPos += n
		case align.CigarInsertion, align.CigarSoftClipped:
			readPos += n
		case align.CigarDeletion, align.CigarSkipped:
			refPos += n
		case align.CigarHardClipped, align.CigarPadded:
			// Consume neither.
		}
	}
	return alignToRead, alignToRef
}

// FromMD walks the CIGAR and MD tag to produce ordered mismatches, per
// spec §4.5(i). alignStart is the record's 1-based Pos.
func FromMD(cigar align.Cigar, alignStart int, seq, md string) ([]align.Mismatch, error) {
	alignToRead, alignToRef := alignmentMaps(cigar)

	var mismatches []align.Mismatch
	alignIdx := 0
	i := 0
	for i < len(md) {
		c := md[i]
		switch {
		case c >= '0' && c <= '9':
			j := i
			for j < len(md) && md[j] >= '0' && md[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(md[i:j])
			if err != nil {
				return nil, err
			}
			alignIdx += n
			i = j
		case c == '^':
			// Deletion: skip the deleted reference bases, which do not
			// advance alignIdx (they are not aligned read positions).
			i++
			for i < len(md) && isRefLetter(md[i]) {
				i++
			}
		default:
			if alignIdx < len(alignToRead) && alignToRead[alignIdx] < len(seq) {
				pos := alignStart + alignToRef[alignIdx]
				base := seq[alignToRead[alignIdx]]
				mismatches = append(mismatches, align.Mismatch{Pos: pos, Base: base})
			}
			alignIdx++
			i++
		}
	}
	return mismatches, nil
}

func isRefLetter(b byte) bool {
	switch b {
	case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
		return true
	}
	return false
}

// FromReference walks the CIGAR with dual (readPos, refPos) cursors and
// compares seq against ref (already sliced to the record's reference span,
// indexed from refStart), per spec §4.5(ii). A mismatch is emitted where
// the upper-cased read base differs from the reference base and neither is
// 'N'.
func FromReference(cigar align.Cigar, alignStart int, seq string, ref string, refStart int) []align.Mismatch {
	var mismatches []align.Mismatch
	readPos, refPos := 0, alignStart
	for _, op := range cigar {
		t := op.Type()
		n := op.Len()
		switch t {
		case align.CigarMatch, align.CigarEqual, align.CigarMismatch:
			for i := 0; i < n; i++ {
				ri := refPos + i - refStart
				qi := readPos + i
				if ri < 0 || ri >= len(ref) || qi >= len(seq) {
					continue
				}
				rb := ref[ri]
				qb := upper(seq[qi])
				if rb != qb && rb != 'N' && qb != 'N' {
					mismatches = append(mismatches, align.Mismatch{Pos: refPos + i, Base: qb})
				}
			}
			readPos += n
			refPos += n
		case align.CigarInsertion, align.CigarSoftClipped:
			readPos += n
		case align.CigarDeletion, align.CigarSkipped:
			refPos += n
		case align.CigarHardClipped, align.CigarPadded:
			// Consume neither.
		}
	}
	return mismatches
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// Resolve fills in rec.Mismatches from the reference when rec carries no
// precomputed mismatches but does carry Seq, via FromReference. It is a
// convenience wrapper for callers (the viewport scheduler, tests) that hold
// a ReferenceSource and a decoded Record.
func Resolve(rec *align.Record, chrom string, ref ReferenceSource) error {
	if rec.Mismatches != nil || rec.Seq == "" {
		return nil
	}
	bases, err := ref.Bases(chrom, rec.Pos, rec.End-1)
	if err != nil {
		return err
	}
	rec.Mismatches = FromReference(rec.Cigar, rec.Pos, rec.Seq, bases, rec.Pos)
	return nil
}
