// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crai parses the CRAM index (.crai): a gzip-wrapped TSV of
// container/slice offsets per reference interval (spec §4.4's CRAI Index
// companion).
package crai

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Entry is one CRAI line: a slice's reference span and its location within
// the CRAM file (spec §6 "seqId, alignmentStart, alignmentSpan,
// containerOffset, sliceOffset, sliceSize").
type Entry struct {
	RefID           int
	AlignmentStart  int // 1-based
	AlignmentSpan   int
	ContainerOffset int64
	SliceOffset     int64
	SliceSize       int64
}

// End returns the exclusive end of the entry's reference span.
func (e Entry) End() int { return e.AlignmentStart + e.AlignmentSpan }

// Index is a parsed CRAI index, grouped by reference ID for fast interval
// queries.
type Index struct {
	byRef map[int][]Entry
}

// Read parses a gzip-wrapped CRAI TSV stream.
func Read(r io.Reader) (*Index, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	idx := &Index{byRef: make(map[int][]Entry)}
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		idx.byRef[e.RefID] = append(idx.byRef[e.RefID], e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for ref, entries := range idx.byRef {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].AlignmentStart < entries[j].AlignmentStart
		})
		idx.byRef[ref] = entries
	}
	return idx, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 6 {
		return Entry{}, fmt.Errorf("crai: expected 6 fields, got %d", len(fields))
	}
	vals := make([]int64, 6)
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("crai: invalid field %q: %w", f, err)
		}
		vals[i] = v
	}
	return Entry{
		RefID:           int(vals[0]),
		AlignmentStart:  int(vals[1]),
		AlignmentSpan:   int(vals[2]),
		ContainerOffset: vals[3],
		SliceOffset:     vals[4],
		SliceSize:       vals[5],
	}, nil
}

// Slices returns, in AlignmentStart order, the entries for refID whose
// [AlignmentStart, End) span overlaps the 1-based half-open [start, end)
// interval. Entries stored under refID -1 (unmapped) or -2 (multi-reference)
// are subject to the same overlap test; MultiRefSlices returns the -2
// entries unfiltered.
func (idx *Index) Slices(refID, start, end int) []Entry {
	entries := idx.byRef[refID]
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.AlignmentStart < end && e.End() > start {
			out = append(out, e)
		}
	}
	return out
}

// MultiRefSlices returns the multi-reference slices (RefID == -2), which
// must always be scanned regardless of the query's target reference since
// they may contain records for any reference.
func (idx *Index) MultiRefSlices() []Entry {
	return idx.byRef[-2]
}
