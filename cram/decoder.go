// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cram decodes CRAM 3.0 files: containers, slices, and the block
// codec/compression machinery needed to materialize alignment records
// (spec §4.4).
package cram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/genomeview/aligncore/align"
	"github.com/genomeview/aligncore/crai"
	"github.com/genomeview/aligncore/mismatch"
	"github.com/genomeview/aligncore/refdict"
)

// errMismatchedCounts mirrors bam.Decoder's guard on QuerySampledCounts'
// pre-conditions.
var errMismatchedCounts = errors.New("cram: len(counts) != len(positions)")

// Decoder is a CRAM file opened for querying, implementing align.Reader.
type Decoder struct {
	path string
	f    *os.File
	idx  *crai.Index
	dict *refdict.Dictionary

	sampleName string
	ref        mismatch.ReferenceSource
}

// Open opens the CRAM file at path with its companion CRAI index. ref, if
// non-nil, supplies reference bases for resolving substitution features
// (spec §4.4 "Reference retrieval for substitution").
func Open(path, indexPath string, ref mismatch.ReferenceSource) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	idxFile, err := os.Open(indexPath)
	if err != nil {
		f.Close()
		return nil, err
	}
	idx, err := crai.Read(idxFile)
	idxFile.Close()
	if err != nil {
		f.Close()
		return nil, err
	}

	if _, err := readDefinition(f); err != nil {
		f.Close()
		return nil, err
	}
	c, err := readContainer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	hdrBlock, err := readBlock(c.body)
	if err != nil {
		f.Close()
		return nil, err
	}
	payload, err := hdrBlock.decompressed()
	if err != nil {
		f.Close()
		return nil, err
	}
	_, dict, sampleName, err := readFileHeaderBlock(payload)
	if err != nil {
		f.Close()
		return nil, err
	}
	if sampleName == "" {
		sampleName = strings.TrimSuffix(filepath.Base(path), ".cram")
	}

	return &Decoder{
		path:       path,
		f:          f,
		idx:        idx,
		dict:       dict,
		sampleName: sampleName,
		ref:        ref,
	}, nil
}

func (d *Decoder) SampleName() string  { return d.sampleName }
func (d *Decoder) RefNames() []string  { return d.dict.Names() }
func (d *Decoder) RefLengths() []int   { return d.dict.Lengths() }
func (d *Decoder) Path() string        { return d.path }
func (d *Decoder) Close() error        { return d.f.Close() }

// Query materializes every accepted record overlapping [start, end) on
// chrom.
func (d *Decoder) Query(ctx context.Context, chrom string, start, end int) ([]*align.Record, error) {
	var out []*align.Record
	err := d.QueryStreaming(ctx, chrom, start, end, func(rec *align.Record) align.Action {
		out = append(out, rec)
		return align.Continue
	})
	return out, err
}

// candidateSlices merges the reference-local and multi-reference CRAI
// entries for a query, sorted by container then slice offset, so they are
// visited in file order (spec §4.4 "merging CRAI entries").
func (d *Decoder) candidateSlices(refID, start, end int) []crai.Entry {
	entries := append(append([]crai.Entry{}, d.idx.Slices(refID, start, end)...), d.idx.MultiRefSlices()...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ContainerOffset != entries[j].ContainerOffset {
			return entries[i].ContainerOffset < entries[j].ContainerOffset
		}
		return entries[i].SliceOffset < entries[j].SliceOffset
	})
	return entries
}

// QueryStreaming calls consumer for each accepted record overlapping
// [start, end) on chrom, in slice order.
func (d *Decoder) QueryStreaming(ctx context.Context, chrom string, start, end int, consumer align.Consumer) error {
	refID, err := d.dict.AliasID(chrom)
	if err != nil {
		return err
	}

	for _, e := range d.candidateSlices(refID, start, end) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		recs, err := d.decodeSlice(e, chrom)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.RefID != refID {
				continue
			}
			if rec.Flag.Filtered() {
				continue
			}
			if rec.Pos >= end {
				continue
			}
			if rec.End <= start {
				continue
			}
			if consumer(rec) == align.Stop {
				return nil
			}
		}
	}
	return nil
}

// QuerySampledCounts counts reads overlapping each sampling window, merging
// candidate slices across all positions and notifying onChunkDone after
// each slice (spec §4.6 "CRAM implementation: similar, merging CRAI
// entries; notify after each container").
func (d *Decoder) QuerySampledCounts(ctx context.Context, chrom string, positions []int, window int, counts []int, onChunkDone align.ChunkDone) error {
	if len(counts) != len(positions) {
		return errMismatchedCounts
	}
	if len(positions) == 0 {
		return nil
	}
	refID, err := d.dict.AliasID(chrom)
	if err != nil {
		return err
	}

	lo, hi := positions[0], positions[0]+window
	for _, p := range positions[1:] {
		if p < lo {
			lo = p
		}
		if p+window > hi {
			hi = p + window
		}
	}

	seen := make(map[int64]bool)
	merged := d.candidateSlices(refID, lo, hi)
	for _, e := range merged {
		if seen[e.ContainerOffset<<32|e.SliceOffset] {
			continue
		}
		seen[e.ContainerOffset<<32|e.SliceOffset] = true

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		recs, err := d.decodeSlice(e, chrom)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.RefID != refID || rec.Flag.Filtered() {
				continue
			}
			addToWindows(positions, window, rec, counts)
		}
		if onChunkDone != nil {
			onChunkDone()
		}
	}
	return nil
}

// addToWindows mirrors bam.Decoder's binary-search window accumulation.
func addToWindows(positions []int, window int, rec *align.Record, counts []int) {
	i := sort.Search(len(positions), func(i int) bool { return positions[i]+window > rec.Pos })
	for ; i < len(positions) && positions[i] < rec.End; i++ {
		if rec.Overlaps(positions[i], positions[i]+window) {
			counts[i]++
		}
	}
}

// decodeSlice seeks to the container at e.ContainerOffset, reads its
// compression header, skips to e.SliceOffset within the body, and decodes
// every record in the slice.
func (d *Decoder) decodeSlice(e crai.Entry, chrom string) ([]*align.Record, error) {
	if _, err := d.f.Seek(e.ContainerOffset, io.SeekStart); err != nil {
		return nil, err
	}
	c, err := readContainer(d.f)
	if err != nil {
		return nil, err
	}
	chBlock, err := readBlock(c.body)
	if err != nil {
		return nil, err
	}
	chPayload, err := chBlock.decompressed()
	if err != nil {
		return nil, err
	}
	ch, err := readCompressionHeader(bytes.NewReader(chPayload))
	if err != nil {
		return nil, err
	}

	if e.SliceOffset > 0 {
		if _, err := io.CopyN(io.Discard, c.body, e.SliceOffset); err != nil {
			return nil, err
		}
	}
	sl, err := readSlice(c.body)
	if err != nil {
		return nil, err
	}

	dec, err := newRecordDecoder(ch)
	if err != nil {
		return nil, err
	}

	var prevAlignStart int32
	recs := make([]*align.Record, 0, sl.header.numRecords)
	for i := int32(0); i < sl.header.numRecords; i++ {
		rec, err := dec.decodeRecord(sl.streams, sl.header.refID, &prevAlignStart, d.ref, chrom)
		if err != nil {
			return recs, nil
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
