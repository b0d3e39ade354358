// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"errors"
	"io"

	"github.com/genomeview/aligncore/cram/itf8"
)

// Codec IDs, per spec §3 "CRAM Encoding Descriptor".
const (
	codecNull          = 0
	codecExternal      = 1
	codecHuffman       = 3
	codecByteArrayLen  = 4
	codecByteArrayStop = 5
	codecBeta          = 6
	codecSubexp        = 7
	codecGolombRice    = 8
	codecGamma         = 9
)

// streams bundles the bit-packed CORE block and the byte-aligned EXTERNAL
// blocks a slice's codecs read from (spec §4.4 "Build per-series decoders
// over the CORE bit-stream and external byte-streams").
type streams struct {
	core     *bitReader
	external map[int32]*bytes.Reader
}

func (s *streams) externalStream(id int32) (*bytes.Reader, error) {
	r, ok := s.external[id]
	if !ok {
		return nil, errors.New("cram: unknown external block id")
	}
	return r, nil
}

// intCodec decodes a single integer-valued symbol.
type intCodec interface {
	decodeInt(s *streams) (int64, error)
}

// byteCodec decodes a variable-length byte sequence.
type byteCodec interface {
	decodeBytes(s *streams) ([]byte, error)
}

// encodingDescriptor is a parsed (codec_id, params) pair, read as
// (itf8 codec_id, itf8 paramsLen, params[paramsLen]) per the CRAM wire
// format.
type encodingDescriptor struct {
	id     int32
	params []byte
}

func readEncodingDescriptor(r io.Reader) (encodingDescriptor, error) {
	id, err := itf8.ReadFrom(r)
	if err != nil {
		return encodingDescriptor{}, err
	}
	n, err := itf8.ReadFrom(r)
	if err != nil {
		return encodingDescriptor{}, err
	}
	params := make([]byte, n)
	if _, err := io.ReadFull(r, params); err != nil {
		return encodingDescriptor{}, err
	}
	return encodingDescriptor{id: id, params: params}, nil
}

// --- NULL ---

type nullCodec struct{}

func (nullCodec) decodeInt(*streams) (int64, error)    { return 0, nil }
func (nullCodec) decodeBytes(*streams) ([]byte, error) { return nil, nil }

// --- EXTERNAL ---

type externalCodec struct {
	blockID int32
}

func parseExternalCodec(params []byte) (*externalCodec, error) {
	id, _, ok := itf8.Decode(params)
	if !ok {
		return nil, errors.New("cram: bad EXTERNAL params")
	}
	return &externalCodec{blockID: id}, nil
}

func (c *externalCodec) decodeInt(s *streams) (int64, error) {
	r, err := s.externalStream(c.blockID)
	if err != nil {
		return 0, err
	}
	v, err := itf8.ReadFrom(r)
	return int64(v), err
}

func (c *externalCodec) decodeBytes(s *streams) ([]byte, error) {
	r, err := s.externalStream(c.blockID)
	if err != nil {
		return nil, err
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return []byte{b}, nil
}

// decodeByteRun reads n raw bytes from the codec's external block, used by
// BYTE_ARRAY_LEN's value sub-codec when it is an EXTERNAL codec.
func (c *externalCodec) decodeByteRun(s *streams, n int) ([]byte, error) {
	r, err := s.externalStream(c.blockID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- HUFFMAN ---

type huffmanCode struct {
	symbol  int32
	length  int
	code    uint32
}

type huffmanCodec struct {
	codes  []huffmanCode
	single bool
}

func parseHuffmanCodec(params []byte) (*huffmanCodec, error) {
	r := bytes.NewReader(params)
	numSym, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	symbols := make([]int32, numSym)
	for i := range symbols {
		symbols[i], err = itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
	}
	numLen, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	lens := make([]int, numLen)
	for i := range lens {
		l, err := itf8.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		lens[i] = int(l)
	}
	if len(symbols) != len(lens) || len(symbols) == 0 {
		if len(symbols) == 1 {
			return &huffmanCodec{codes: []huffmanCode{{symbol: symbols[0]}}, single: true}, nil
		}
		return nil, errors.New("cram: mismatched HUFFMAN symbol/length counts")
	}
	if len(symbols) == 1 {
		return &huffmanCodec{codes: []huffmanCode{{symbol: symbols[0]}}, single: true}, nil
	}
	codes := buildCanonicalHuffman(symbols, lens)
	return &huffmanCodec{codes: codes}, nil
}

// buildCanonicalHuffman builds canonical Huffman codes per spec §4.4:
// stable sort (symbol, bit-length) pairs by length then symbol value; the
// first gets code 0; each subsequent code =
// (prev_code+1) << (cur_len - prev_len).
func buildCanonicalHuffman(symbols []int32, lens []int) []huffmanCode {
	codes := make([]huffmanCode, len(symbols))
	for i := range symbols {
		codes[i] = huffmanCode{symbol: symbols[i], length: lens[i]}
	}
	sortHuffmanCodes(codes)

	var code uint32
	for i := range codes {
		if i > 0 {
			code = (code + 1) << uint(codes[i].length-codes[i-1].length)
		}
		codes[i].code = code
	}
	return codes
}

func sortHuffmanCodes(codes []huffmanCode) {
	// Stable insertion sort by (length, symbol): small N in practice (one
	// entry per distinct symbol value, <= 256), so an O(n^2) stable sort
	// keeps this dependency-free and simple.
	for i := 1; i < len(codes); i++ {
		j := i
		for j > 0 && less(codes[j], codes[j-1]) {
			codes[j], codes[j-1] = codes[j-1], codes[j]
			j--
		}
	}
}

func less(a, b huffmanCode) bool {
	if a.length != b.length {
		return a.length < b.length
	}
	return a.symbol < b.symbol
}

func (c *huffmanCodec) decode(cr *bitReader) (int32, error) {
	if c.single {
		return c.codes[0].symbol, nil
	}
	var code uint32
	for length := 1; length <= 32; length++ {
		bit, err := cr.readBit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | uint32(bit)
		for _, hc := range c.codes {
			if hc.length == length && hc.code == code {
				return hc.symbol, nil
			}
		}
	}
	return 0, errors.New("cram: no matching HUFFMAN code")
}

func (c *huffmanCodec) decodeInt(s *streams) (int64, error) {
	v, err := c.decode(s.core)
	return int64(v), err
}

func (c *huffmanCodec) decodeBytes(s *streams) ([]byte, error) {
	v, err := c.decode(s.core)
	if err != nil {
		return nil, err
	}
	return []byte{byte(v)}, nil
}

// --- BETA ---

type betaCodec struct {
	offset  int32
	numBits int
}

func parseBetaCodec(params []byte) (*betaCodec, error) {
	r := bytes.NewReader(params)
	off, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	n, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	return &betaCodec{offset: off, numBits: int(n)}, nil
}

func (c *betaCodec) decodeInt(s *streams) (int64, error) {
	v, err := s.core.readBits(c.numBits)
	if err != nil {
		return 0, err
	}
	return int64(v) - int64(c.offset), nil
}

// --- SUBEXP ---

type subexpCodec struct {
	offset int32
	k      int
}

func parseSubexpCodec(params []byte) (*subexpCodec, error) {
	r := bytes.NewReader(params)
	off, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	k, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	return &subexpCodec{offset: off, k: int(k)}, nil
}

func (c *subexpCodec) decodeInt(s *streams) (int64, error) {
	n, err := s.core.readUnaryOnes()
	if err != nil {
		return 0, err
	}
	var v uint32
	if n == 0 {
		v, err = s.core.readBits(c.k)
		if err != nil {
			return 0, err
		}
	} else {
		bits := n + c.k - 1
		rest, err := s.core.readBits(bits)
		if err != nil {
			return 0, err
		}
		v = (1 << uint(bits)) + rest
	}
	return int64(v) - int64(c.offset), nil
}

// --- GOLOMB_RICE ---

type golombRiceCodec struct {
	offset int32
	log2m  int
}

func parseGolombRiceCodec(params []byte) (*golombRiceCodec, error) {
	r := bytes.NewReader(params)
	off, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	log2m, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	return &golombRiceCodec{offset: off, log2m: int(log2m)}, nil
}

func (c *golombRiceCodec) decodeInt(s *streams) (int64, error) {
	q, err := s.core.readUnaryOnes()
	if err != nil {
		return 0, err
	}
	r, err := s.core.readBits(c.log2m)
	if err != nil {
		return 0, err
	}
	v := uint32(q)<<uint(c.log2m) | r
	return int64(v) - int64(c.offset), nil
}

// --- GAMMA ---

type gammaCodec struct {
	offset int32
}

func parseGammaCodec(params []byte) (*gammaCodec, error) {
	off, err := itf8.ReadFrom(bytes.NewReader(params))
	if err != nil {
		return nil, err
	}
	return &gammaCodec{offset: off}, nil
}

func (c *gammaCodec) decodeInt(s *streams) (int64, error) {
	n, err := s.core.readUnaryZeros()
	if err != nil {
		return 0, err
	}
	var rest uint32
	if n > 0 {
		rest, err = s.core.readBits(n)
		if err != nil {
			return 0, err
		}
	}
	v := (uint32(1) << uint(n)) + rest - 1
	return int64(v) - int64(c.offset), nil
}

// --- BYTE_ARRAY_LEN ---

type byteArrayLenCodec struct {
	lenCodec intCodec
	valCodec intCodec
}

func parseByteArrayLenCodec(params []byte) (*byteArrayLenCodec, error) {
	r := bytes.NewReader(params)
	lenDesc, err := readEncodingDescriptor(r)
	if err != nil {
		return nil, err
	}
	valDesc, err := readEncodingDescriptor(r)
	if err != nil {
		return nil, err
	}
	lenCodec, err := newIntCodec(lenDesc)
	if err != nil {
		return nil, err
	}
	valCodec, err := newIntCodec(valDesc)
	if err != nil {
		return nil, err
	}
	return &byteArrayLenCodec{lenCodec: lenCodec, valCodec: valCodec}, nil
}

// byteRunDecoder is implemented by intCodecs that can read a contiguous run
// of raw bytes directly off their block, rather than one ITF8-encoded
// integer per element; EXTERNAL is the common case BYTE_ARRAY_LEN's value
// sub-codec takes.
type byteRunDecoder interface {
	decodeByteRun(s *streams, n int) ([]byte, error)
}

func (c *byteArrayLenCodec) decodeBytes(s *streams) ([]byte, error) {
	n, err := c.lenCodec.decodeInt(s)
	if err != nil {
		return nil, err
	}
	if br, ok := c.valCodec.(byteRunDecoder); ok {
		return br.decodeByteRun(s, int(n))
	}
	out := make([]byte, n)
	for i := range out {
		v, err := c.valCodec.decodeInt(s)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// --- BYTE_ARRAY_STOP ---

type byteArrayStopCodec struct {
	stop    byte
	blockID int32
}

func parseByteArrayStopCodec(params []byte) (*byteArrayStopCodec, error) {
	if len(params) < 1 {
		return nil, errors.New("cram: short BYTE_ARRAY_STOP params")
	}
	stop := params[0]
	id, _, ok := itf8.Decode(params[1:])
	if !ok {
		return nil, errors.New("cram: bad BYTE_ARRAY_STOP params")
	}
	return &byteArrayStopCodec{stop: stop, blockID: id}, nil
}

func (c *byteArrayStopCodec) decodeBytes(s *streams) ([]byte, error) {
	r, err := s.externalStream(c.blockID)
	if err != nil {
		return nil, err
	}
	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return out, nil // underrun: return what we have (spec §4.4 recovery rule)
		}
		if b == c.stop {
			return out, nil
		}
		out = append(out, b)
	}
}

// newIntCodec constructs the intCodec for a data series described by desc.
func newIntCodec(desc encodingDescriptor) (intCodec, error) {
	switch desc.id {
	case codecNull:
		return nullCodec{}, nil
	case codecExternal:
		return parseExternalCodec(desc.params)
	case codecHuffman:
		return parseHuffmanCodec(desc.params)
	case codecBeta:
		return parseBetaCodec(desc.params)
	case codecSubexp:
		return parseSubexpCodec(desc.params)
	case codecGolombRice:
		return parseGolombRiceCodec(desc.params)
	case codecGamma:
		return parseGammaCodec(desc.params)
	default:
		return nil, errors.New("cram: unsupported int codec")
	}
}

// newByteCodec constructs the byteCodec for a byte-array data series
// described by desc.
func newByteCodec(desc encodingDescriptor) (byteCodec, error) {
	switch desc.id {
	case codecNull:
		return nullCodec{}, nil
	case codecExternal:
		return parseExternalCodec(desc.params)
	case codecHuffman:
		return parseHuffmanCodec(desc.params)
	case codecByteArrayLen:
		return parseByteArrayLenCodec(desc.params)
	case codecByteArrayStop:
		return parseByteArrayStopCodec(desc.params)
	default:
		return nil, errors.New("cram: unsupported byte-array codec")
	}
}
