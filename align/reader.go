// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package align

import "context"

// Action is returned by a StreamConsumer to control query_streaming, per
// spec §4.6.
type Action int

const (
	// Continue requests the next record.
	Continue Action = iota
	// Stop terminates the stream immediately.
	Stop
)

// Consumer receives records in virtual-offset order during a streaming
// query. Implementations must not block: streaming consumers run inline on
// the owning file's worker (spec §5).
type Consumer func(rec *Record) Action

// ChunkDone is called after each unit of merged work (a BAI-merged BAM
// chunk, or a CRAM container) during a sampled-counts query, so callers can
// publish partial progress (spec §4.6, §4.9).
type ChunkDone func()

// Reader is the "Alignment Reader Trait" of spec §4.6/§4.7: the capability
// common to the BAM and CRAM decoders. Start/end are always half-open:
// 0-based on the wire but exposed here as 1-based half-open [start, end)
// genomic coordinates matching Record.Pos/Record.End, i.e. callers pass the
// same coordinate space the resulting Records report.
type Reader interface {
	// Query performs a full materialization of records overlapping
	// [start, end) on chrom.
	Query(ctx context.Context, chrom string, start, end int) ([]*Record, error)

	// QueryStreaming calls consumer for each accepted record in
	// non-decreasing virtual-offset order; returning Stop terminates early.
	QueryStreaming(ctx context.Context, chrom string, start, end int, consumer Consumer) error

	// QuerySampledCounts counts reads overlapping each
	// [positions[i], positions[i]+window) window, per spec §4.6. counts
	// must be pre-sized to len(positions) by the caller and is accumulated
	// into, not reset. onChunkDone, if non-nil, is called after each unit
	// of merged work completes.
	QuerySampledCounts(ctx context.Context, chrom string, positions []int, window int, counts []int, onChunkDone ChunkDone) error

	// SampleName returns the sample name resolved from the header (spec
	// §4.3: first @RG's SM:, else filename sans extension).
	SampleName() string

	// RefNames returns the reference dictionary's names in header order.
	RefNames() []string

	// RefLengths returns the reference dictionary's lengths in header order.
	RefLengths() []int

	// Path returns the source file path.
	Path() string

	// Close releases the underlying file handle and index.
	Close() error
}
