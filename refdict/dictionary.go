// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refdict resolves chromosome names to reference IDs with the
// chr/non-chr aliasing policy shared by the BAM and CRAM decoders, and
// retrieves reference bases for mismatch resolution (spec §4.10, §4.12).
package refdict

import (
	"errors"
	"strings"
)

// ErrUnknownReference is returned when a chromosome name cannot be resolved
// against the dictionary after all alias tries (spec §7 UnknownReference).
var ErrUnknownReference = errors.New("refdict: unknown reference")

// Dictionary maps reference names to 0-based reference IDs, as read from a
// BAM/CRAM header's reference list.
type Dictionary struct {
	names   []string
	lengths []int
	byName  map[string]int
}

// New builds a Dictionary from the header-order reference names and
// lengths.
func New(names []string, lengths []int) *Dictionary {
	d := &Dictionary{
		names:   names,
		lengths: lengths,
		byName:  make(map[string]int, len(names)),
	}
	for i, n := range names {
		d.byName[n] = i
	}
	return d
}

// Names returns the reference names in header order.
func (d *Dictionary) Names() []string { return d.names }

// Lengths returns the reference lengths in header order.
func (d *Dictionary) Lengths() []int { return d.lengths }

// AliasID resolves chrom to a reference ID, trying in order: chrom itself,
// "chr"+chrom, and chrom with a leading "chr" stripped (spec §4.3
// "Chromosome aliasing"). Returns ErrUnknownReference if none match.
func (d *Dictionary) AliasID(chrom string) (int, error) {
	if id, ok := d.byName[chrom]; ok {
		return id, nil
	}
	if id, ok := d.byName["chr"+chrom]; ok {
		return id, nil
	}
	if strings.HasPrefix(chrom, "chr") {
		if id, ok := d.byName[chrom[3:]]; ok {
			return id, nil
		}
	}
	return 0, ErrUnknownReference
}

// Name returns the reference name for id, or "" if out of range.
func (d *Dictionary) Name(id int) string {
	if id < 0 || id >= len(d.names) {
		return ""
	}
	return d.names[id]
}
