// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bgzf provides random access to BGZF (block gzip format) files,
// addressed by 64-bit virtual offsets, per the SAM specification's BGZF
// appendix (spec §4.1).
package bgzf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// MaxBlockSize is the maximum uncompressed size of a single BGZF block.
const MaxBlockSize = 65536

var (
	// ErrInvalidBlock is returned when a gzip member lacks the BGZF magic,
	// the FEXTRA flag, or the BC subfield, or when its declared size
	// disagrees with what was read.
	ErrInvalidBlock = errors.New("bgzf: invalid block")
	// ErrUnexpectedEOF is returned when the stream ends mid-block or
	// mid-read.
	ErrUnexpectedEOF = errors.New("bgzf: unexpected EOF")
	// ErrDecompression is returned when raw-deflate inflation of a block's
	// payload fails or produces a size different from ISIZE.
	ErrDecompression = errors.New("bgzf: decompression failure")
)

var bcSubfieldID = [2]byte{66, 67} // "BC"

// VirtualOffset is a 64-bit address into a BGZF stream: the upper 48 bits
// are the compressed offset of a block within the file, the lower 16 bits
// are the uncompressed byte offset within that block's payload (spec §3).
// Ordering by VirtualOffset matches the linear order of the underlying
// records.
type VirtualOffset uint64

// NewVirtualOffset packs a compressed block offset and an in-block
// uncompressed offset into a VirtualOffset.
func NewVirtualOffset(blockOffset int64, withinBlock uint16) VirtualOffset {
	return VirtualOffset(blockOffset<<16 | int64(withinBlock))
}

// BlockOffset returns the compressed offset of the containing block.
func (v VirtualOffset) BlockOffset() int64 { return int64(v >> 16) }

// WithinBlock returns the uncompressed offset within the containing block.
func (v VirtualOffset) WithinBlock() uint16 { return uint16(v) }

func (v VirtualOffset) String() string {
	return fmt.Sprintf("%d<<16|%d", v.BlockOffset(), v.WithinBlock())
}

// Chunk is a half-open interval of virtual offsets [Start, End) that may
// contain records for a query (spec §3).
type Chunk struct {
	Start, End VirtualOffset
}

// block holds one decompressed BGZF member.
type block struct {
	compressedOffset int64 // offset of this block's first byte in the file
	blockLen         int   // on-wire length of the whole gzip member (BSIZE+1)
	data             []byte
}

// Reader is a random-access BGZF reader addressed by virtual offsets
// (spec §4.1).
type Reader struct {
	ra io.ReaderAt

	cur    block
	pos    int // read cursor within cur.data
	loaded bool
}

// NewReader returns a Reader over ra. The reader is positioned before the
// first block; call Seek to establish a position.
func NewReader(ra io.ReaderAt) *Reader {
	return &Reader{ra: ra}
}

// Close releases resources held by the Reader. The underlying ReaderAt is
// not closed; callers that obtained it from an *os.File own its lifecycle.
func (r *Reader) Close() error {
	r.cur = block{}
	r.loaded = false
	return nil
}

// VirtualOffsetNow returns the current virtual offset, i.e.
// (currentBlockCompressedOffset << 16) | positionInBlock (spec §4.1).
func (r *Reader) VirtualOffsetNow() VirtualOffset {
	if !r.loaded {
		return 0
	}
	return NewVirtualOffset(r.cur.compressedOffset, uint16(r.pos))
}

// Seek loads the block whose compressed offset is vo.BlockOffset() (reusing
// the current block if it is already loaded) and positions the in-block
// cursor at vo.WithinBlock() (spec §4.1).
func (r *Reader) Seek(vo VirtualOffset) error {
	blockOff := vo.BlockOffset()
	if !r.loaded || r.cur.compressedOffset != blockOff {
		b, err := r.readBlockAt(blockOff)
		if err != nil {
			return err
		}
		r.cur = b
		r.loaded = true
	}
	within := int(vo.WithinBlock())
	if within > len(r.cur.data) {
		return ErrUnexpectedEOF
	}
	r.pos = within
	return nil
}

// readBlockAt decodes the single BGZF block beginning at file offset off.
func (r *Reader) readBlockAt(off int64) (block, error) {
	// A BGZF block's header is at most 18 bytes before XLEN, plus XLEN
	// bytes of extra field. Read a generous header window, then re-slice
	// once XLEN is known.
	const headerWindow = 18 + 256
	hdr := make([]byte, headerWindow)
	n, err := r.ra.ReadAt(hdr, off)
	if err != nil && err != io.EOF {
		return block{}, err
	}
	hdr = hdr[:n]
	if n < 12 {
		return block{}, ErrUnexpectedEOF
	}
	if hdr[0] != 31 || hdr[1] != 139 {
		return block{}, ErrInvalidBlock
	}
	flg := hdr[3]
	const fextra = 1 << 2
	if flg&fextra == 0 {
		return block{}, ErrInvalidBlock
	}
	xlen := int(binary.LittleEndian.Uint16(hdr[10:12]))
	if 12+xlen > len(hdr) {
		// Extra field bigger than our window: re-read with the right size.
		hdr = make([]byte, 12+xlen+8)
		n, err = r.ra.ReadAt(hdr, off)
		if err != nil && err != io.EOF {
			return block{}, err
		}
		hdr = hdr[:n]
		if 12+xlen > len(hdr) {
			return block{}, ErrUnexpectedEOF
		}
	}
	extra := hdr[12 : 12+xlen]
	bsize := -1
	for i := 0; i+4 <= len(extra); {
		si1, si2 := extra[i], extra[i+1]
		slen := int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if si1 == bcSubfieldID[0] && si2 == bcSubfieldID[1] && slen == 2 {
			if i+6 > len(extra) {
				return block{}, ErrInvalidBlock
			}
			bsize = int(binary.LittleEndian.Uint16(extra[i+4 : i+6]))
			break
		}
		i += 4 + slen
	}
	if bsize < 0 {
		return block{}, ErrInvalidBlock
	}
	blockLen := bsize + 1
	compSize := blockLen - 12 - xlen - 8
	if compSize < 0 {
		return block{}, ErrInvalidBlock
	}

	cdataOff := off + int64(12+xlen)
	cdata := make([]byte, compSize)
	if _, err := r.ra.ReadAt(cdata, cdataOff); err != nil {
		return block{}, ErrUnexpectedEOF
	}

	trailer := make([]byte, 8)
	if _, err := r.ra.ReadAt(trailer, cdataOff+int64(compSize)); err != nil {
		return block{}, ErrUnexpectedEOF
	}
	isize := binary.LittleEndian.Uint32(trailer[4:8])

	var data []byte
	if isize == 0 {
		// Empty (EOF marker) block.
		data = nil
	} else {
		fr := flate.NewReader(bytes.NewReader(cdata))
		defer fr.Close()
		buf := make([]byte, isize)
		if _, err := io.ReadFull(fr, buf); err != nil {
			return block{}, ErrDecompression
		}
		if n, _ := io.ReadFull(fr, make([]byte, 1)); n != 0 {
			return block{}, ErrDecompression // inflated past ISIZE
		}
		data = buf
	}

	return block{compressedOffset: off, blockLen: blockLen, data: data}, nil
}

// advance loads the block immediately following the current one.
func (r *Reader) advance() error {
	next := r.cur.compressedOffset + int64(r.cur.blockLen)
	b, err := r.readBlockAt(next)
	if err != nil {
		return err
	}
	r.cur = b
	r.pos = 0
	return nil
}

func (r *Reader) ensureLoaded() error {
	if r.loaded {
		return nil
	}
	return r.Seek(0)
}

// ReadFully reads exactly n bytes, advancing across block boundaries
// transparently, failing with ErrUnexpectedEOF if fewer than n bytes remain
// (spec §4.1).
func (r *Reader) ReadFully(n int) ([]byte, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		if r.pos >= len(r.cur.data) {
			if len(r.cur.data) == 0 && r.pos == 0 {
				return nil, ErrUnexpectedEOF // EOF marker block
			}
			if err := r.advance(); err != nil {
				return nil, err
			}
			continue
		}
		take := n - len(out)
		if avail := len(r.cur.data) - r.pos; avail < take {
			take = avail
		}
		out = append(out, r.cur.data[r.pos:r.pos+take]...)
		r.pos += take
	}
	return out, nil
}

// Skip discards n bytes, as ReadFully but without retaining them.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadFully(n)
	return err
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.ReadFully(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadFully(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadFully(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadI32 reads a little-endian int32.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadFully(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
