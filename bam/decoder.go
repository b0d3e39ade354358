// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"context"
	"errors"
	"os"

	"github.com/genomeview/aligncore/align"
	"github.com/genomeview/aligncore/bai"
	"github.com/genomeview/aligncore/bgzf"
	"github.com/genomeview/aligncore/refdict"
)

var errMismatchedCounts = errors.New("bam: len(counts) != len(positions)")

// Decoder implements align.Reader over a BAM file and its .bai index
// (spec §4.3, §4.6).
type Decoder struct {
	path string
	f    *os.File
	idx  *bai.Index
	hdr  *Header
	dict *refdict.Dictionary
}

// Open opens the BAM file at path together with its index at indexPath.
func Open(path, indexPath string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bgzf.NewReader(f)
	hdr, err := readHeader(r, path)
	if err != nil {
		f.Close()
		return nil, err
	}

	idxFile, err := os.Open(indexPath)
	if err != nil {
		f.Close()
		return nil, err
	}
	defer idxFile.Close()
	idx, err := bai.Read(idxFile)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Decoder{
		path: path,
		f:    f,
		idx:  idx,
		hdr:  hdr,
		dict: refdict.New(hdr.Names, hdr.Lengths),
	}, nil
}

// SampleName implements align.Reader.
func (d *Decoder) SampleName() string { return d.hdr.SampleName }

// RefNames implements align.Reader.
func (d *Decoder) RefNames() []string { return d.dict.Names() }

// RefLengths implements align.Reader.
func (d *Decoder) RefLengths() []int { return d.dict.Lengths() }

// Path implements align.Reader.
func (d *Decoder) Path() string { return d.path }

// Close implements align.Reader.
func (d *Decoder) Close() error { return d.f.Close() }

// Query implements align.Reader by materializing QueryStreaming's output.
func (d *Decoder) Query(ctx context.Context, chrom string, start, end int) ([]*align.Record, error) {
	var out []*align.Record
	err := d.QueryStreaming(ctx, chrom, start, end, func(rec *align.Record) align.Action {
		out = append(out, rec)
		return align.Continue
	})
	return out, err
}

// QueryStreaming implements align.Reader: it resolves chrom via the
// reference dictionary's aliasing policy, walks the BAI-merged chunks in
// virtual-offset order, and delivers records overlapping [start, end) that
// survive the Flags.Filtered() policy (spec §4.3, §4.6).
func (d *Decoder) QueryStreaming(ctx context.Context, chrom string, start, end int, consumer align.Consumer) error {
	refID, err := d.dict.AliasID(chrom)
	if err != nil {
		return err
	}
	// 1-based half-open genomic coordinates to 0-based half-open wire
	// coordinates.
	beg0, end0 := start-1, end-1

	chunks, err := d.idx.Chunks(refID, beg0, end0)
	if err != nil {
		return err
	}

	r := bgzf.NewReader(d.f)
	var seen uint64
	haveSeen := false
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Seek(chunk.Start); err != nil {
			return err
		}
		for r.VirtualOffsetNow() < chunk.End {
			if err := ctx.Err(); err != nil {
				return err
			}
			vo := r.VirtualOffsetNow()
			rec, err := readRecord(r, vo)
			if err != nil {
				return err
			}
			if haveSeen && uint64(vo) <= seen {
				continue // already delivered from an earlier, overlapping chunk
			}
			seen, haveSeen = uint64(vo), true

			if rec.RefID != refID {
				// Chunks are per-reference contiguous runs in coordinate-sorted
				// BAM; a refID change past our target means we have run off
				// the end of this reference's records.
				break
			}
			if rec.Pos >= end {
				break
			}
			if rec.End <= start {
				continue
			}
			if rec.Flag.Filtered() {
				continue
			}
			if consumer(rec) == align.Stop {
				return nil
			}
		}
	}
	return nil
}

// QuerySampledCounts implements align.Reader by streaming the region once
// and accumulating per-window overlap counts (spec §4.6, §4.9). onChunkDone
// fires after each BAI chunk finishes, giving the caller a natural unit of
// progressive publishing.
func (d *Decoder) QuerySampledCounts(ctx context.Context, chrom string, positions []int, window int, counts []int, onChunkDone align.ChunkDone) error {
	if len(positions) != len(counts) {
		return errMismatchedCounts
	}
	refID, err := d.dict.AliasID(chrom)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}
	start, end := positions[0], positions[len(positions)-1]+window

	chunks, err := d.idx.Chunks(refID, start-1, end-1)
	if err != nil {
		return err
	}

	r := bgzf.NewReader(d.f)
	var seen uint64
	haveSeen := false
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Seek(chunk.Start); err != nil {
			return err
		}
		for r.VirtualOffsetNow() < chunk.End {
			if err := ctx.Err(); err != nil {
				return err
			}
			vo := r.VirtualOffsetNow()
			rec, err := readRecord(r, vo)
			if err != nil {
				return err
			}
			if haveSeen && uint64(vo) <= seen {
				continue
			}
			seen, haveSeen = uint64(vo), true

			if rec.RefID != refID {
				break
			}
			if rec.Pos >= end {
				break
			}
			if !rec.Flag.Filtered() {
				addToWindows(positions, window, rec, counts)
			}
		}
		if onChunkDone != nil {
			onChunkDone()
		}
	}
	return nil
}

// addToWindows increments counts[i] for every sampled window that rec
// overlaps, by binary-searching the sorted positions slice down to the
// first window that could possibly overlap.
func addToWindows(positions []int, window int, rec *align.Record, counts []int) {
	lo, hi := 0, len(positions)
	for lo < hi {
		mid := (lo + hi) / 2
		if positions[mid]+window <= rec.Pos {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	for i := lo; i < len(positions) && positions[i] < rec.End; i++ {
		if rec.Overlaps(positions[i], positions[i]+window) {
			counts[i]++
		}
	}
}
