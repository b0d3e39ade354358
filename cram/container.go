// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/genomeview/aligncore/cram/itf8"
	"github.com/genomeview/aligncore/cram/ltf8"
	"github.com/genomeview/aligncore/cram/rans"
	"github.com/genomeview/aligncore/refdict"
	"github.com/genomeview/aligncore/sam"
)

var cramMagic = [4]byte{'C', 'R', 'A', 'M'}

// ErrMagic is returned when a stream does not begin with the CRAM magic.
var ErrMagic = errors.New("cram: invalid magic")

// ErrVersion is returned when a file's major version predates 3.
var ErrVersion = errors.New("cram: unsupported major version")

// definition is the 26-byte CRAM file definition (magic, version, file id).
type definition struct {
	version [2]byte
	id      [20]byte
}

func readDefinition(r io.Reader) (*definition, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != cramMagic {
		return nil, ErrMagic
	}
	var d definition
	if _, err := io.ReadFull(r, d.version[:]); err != nil {
		return nil, err
	}
	if d.version[0] < 3 {
		return nil, ErrVersion
	}
	if _, err := io.ReadFull(r, d.id[:]); err != nil {
		return nil, err
	}
	return &d, nil
}

// container is a CRAM container: a header plus a byte-limited body holding
// its blocks (spec §4.4 "SAM header container").
type container struct {
	refID    int32
	start    int32
	span     int32
	nRec     int32
	recCount int64
	bases    int64
	nBlocks  int32
	landmark []int32

	body io.Reader
}

func readContainer(r io.Reader) (*container, error) {
	crc := crc32.NewIEEE()
	tee := io.TeeReader(r, crc)

	var lenBuf [4]byte
	if _, err := io.ReadFull(tee, lenBuf[:]); err != nil {
		return nil, err
	}
	blockLen := int32(binary.LittleEndian.Uint32(lenBuf[:]))

	c := &container{}
	var err error
	if c.refID, err = itf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if c.start, err = itf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if c.span, err = itf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if c.nRec, err = itf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if c.recCount, err = ltf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if c.bases, err = ltf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if c.nBlocks, err = itf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if c.landmark, err = itf8.ReadSlice(tee); err != nil {
		return nil, err
	}
	sum := crc.Sum32()

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(crcBuf[:]) != sum {
		return nil, errors.New("cram: container header crc32 mismatch")
	}

	c.body = &io.LimitedReader{R: r, N: int64(blockLen)}
	return c, nil
}

// Block compression methods (spec §4.4 "Block compression methods").
const (
	methodRaw = iota
	methodGzip
	methodBzip2
	methodLZMA
	methodRANS
)

// Block content types.
const (
	blockFileHeader = iota
	blockCompressionHeader
	blockSliceHeader
	_ // reserved
	blockExternal
	blockCore
)

// block is a single CRAM block: a compression method, a content type, a
// content id, and its (possibly compressed) payload (spec §4.4 "Block
// header").
type block struct {
	method    byte
	typ       byte
	contentID int32
	data      []byte
	rawSize   int32
}

func readBlock(r io.Reader) (*block, error) {
	crc := crc32.NewIEEE()
	tee := io.TeeReader(r, crc)

	var hdr [2]byte
	if _, err := io.ReadFull(tee, hdr[:]); err != nil {
		return nil, err
	}
	b := &block{method: hdr[0], typ: hdr[1]}

	var err error
	if b.contentID, err = itf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	compSize, err := itf8.ReadFrom(tee)
	if err != nil {
		return nil, err
	}
	if b.rawSize, err = itf8.ReadFrom(tee); err != nil {
		return nil, err
	}
	if b.method == methodRaw && compSize != b.rawSize {
		return nil, fmt.Errorf("cram: compressed (%d) != raw (%d) size for raw method", compSize, b.rawSize)
	}

	b.data = make([]byte, compSize)
	if _, err := io.ReadFull(tee, b.data); err != nil {
		return nil, err
	}
	sum := crc.Sum32()

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(crcBuf[:]) != sum {
		return nil, errors.New("cram: block crc32 mismatch")
	}
	return b, nil
}

// decompressed returns the block's payload after reversing its compression
// method (spec §4.4 "Block compression methods").
func (b *block) decompressed() ([]byte, error) {
	switch b.method {
	case methodRaw:
		return b.data, nil
	case methodGzip:
		gz, err := gzip.NewReader(bytes.NewReader(b.data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(gz)
	case methodBzip2:
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(b.data)))
	case methodLZMA:
		lz, err := lzma.NewReader(bytes.NewReader(b.data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(lz)
	case methodRANS:
		return rans.Decode(b.data)
	default:
		return nil, fmt.Errorf("cram: unknown block method %d", b.method)
	}
}

// sampleTag is the SAM read group line's SM field.
var sampleTag = sam.NewTag("SM")

// readFileHeaderBlock parses the FILE_HEADER block's payload: a 4-byte
// little-endian SAM header text length followed by the text itself (spec
// §4.4 "SAM header container"; CRAM's container carries SAM text rather
// than BAM's binary reference list, so the dictionary is built from the
// text header's @SQ lines through the SAM header object model, the same
// one bam.Header's sampleNameFromHeader uses for @RG's SM:).
func readFileHeaderBlock(payload []byte) (text string, dict *refdict.Dictionary, sampleName string, err error) {
	if len(payload) < 4 {
		return "", nil, "", errors.New("cram: short file header block")
	}
	n := binary.LittleEndian.Uint32(payload[:4])
	if uint32(len(payload)) < 4+n {
		return "", nil, "", errors.New("cram: truncated SAM header text")
	}
	text = string(payload[4 : 4+n])

	sh, serr := sam.NewHeader([]byte(text), nil)
	if serr != nil {
		return "", nil, "", fmt.Errorf("cram: parsing SAM header text: %w", serr)
	}

	refs := sh.Refs()
	names := make([]string, len(refs))
	lengths := make([]int, len(refs))
	for i, r := range refs {
		names[i] = r.Name()
		lengths[i] = r.Len()
	}
	dict = refdict.New(names, lengths)

	if rgs := sh.RGs(); len(rgs) > 0 {
		sampleName = rgs[0].Get(sampleTag)
	}
	return text, dict, sampleName, nil
}
