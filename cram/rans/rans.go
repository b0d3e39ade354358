// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rans implements the CRAM rANS-4x8 block decompressor (spec §4.4
// "rANS 4x8 decompression"): four interleaved range-ANS states over a
// normalized 4096-symbol frequency table, order-0 or order-1.
package rans

import (
	"encoding/binary"
	"errors"
)

// totalFreq is the normalization target every frequency table sums to.
const totalFreq = 1 << 12

// ErrShortBlock is returned when data is shorter than the 9-byte
// order/compSize/uncompSize prefix. Truncated frequency tables or state
// words make Decode return a nil slice with a nil error instead.
var ErrShortBlock = errors.New("rans: truncated block header")

// Decode decompresses a CRAM rANS-4x8 block. data begins with the prefix
// described by spec §4.4: order(u8), compSize(u32LE), uncompSize(u32LE),
// followed by the frequency table(s) and the four interleaved state words.
// If the input underruns mid-decode, Decode stops emitting and returns what
// has been produced so far along with a nil error, matching the spec's
// "stop emitting and return what has been produced" recovery rule.
func Decode(data []byte) ([]byte, error) {
	if len(data) < 9 {
		return nil, ErrShortBlock
	}
	order := data[0]
	// compSize is the compressed payload length as stored by the encoder;
	// it is informational here since we decode until uncompSize bytes are
	// produced or the input underruns.
	_ = binary.LittleEndian.Uint32(data[1:5])
	uncompSize := binary.LittleEndian.Uint32(data[5:9])
	body := data[9:]

	switch order {
	case 0:
		return decodeOrder0(body, int(uncompSize))
	case 1:
		return decodeOrder1(body, int(uncompSize))
	default:
		return nil, errors.New("rans: unsupported order")
	}
}

// freqTable is a normalized, cumulative-frequency symbol table: cum[s] is
// the cumulative frequency below symbol s, freq[s] its frequency, and
// lookup maps a cumulative-frequency slot in [0, totalFreq) back to its
// owning symbol (spec §4.4: "build cumulative-frequency table and a
// 4096-entry symbol-lookup").
type freqTable struct {
	freq   [256]uint16
	cum    [256]uint16
	lookup [totalFreq]byte
}

func buildTable(freq [256]uint16) *freqTable {
	t := &freqTable{freq: freq}
	var acc uint16
	for s := 0; s < 256; s++ {
		t.cum[s] = acc
		acc += freq[s]
		for i := t.cum[s]; i < acc; i++ {
			t.lookup[i] = byte(s)
		}
	}
	return t
}

// cursor is a forward byte cursor over a compressed rANS payload.
type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) readByte() (byte, bool) {
	if c.pos >= len(c.b) {
		return 0, false
	}
	v := c.b[c.pos]
	c.pos++
	return v, true
}

// readFreqTable parses the 256-entry frequency table per spec §4.4: pairs
// of (symbol, frequency) with a run-length extension for consecutive
// symbols sharing a frequency, and a trailing zero symbol byte terminating
// the table once at least one entry has been read.
func readFreqTable(c *cursor) ([256]uint16, bool) {
	var freq [256]uint16
	first := true
	for {
		sym, ok := c.readByte()
		if !ok {
			return freq, false
		}
		if !first && sym == 0 {
			break
		}
		first = false

		f, ok := c.readByte()
		if !ok {
			return freq, false
		}
		var fval uint16
		if f&0x80 != 0 {
			lo, ok := c.readByte()
			if !ok {
				return freq, false
			}
			fval = uint16(f&0x7f)<<8 | uint16(lo)
		} else {
			fval = uint16(f)
		}
		freq[sym] = fval

		rle, ok := c.readByte()
		if !ok {
			return freq, false
		}
		s := int(sym)
		for i := 0; i < int(rle) && s < 255; i++ {
			s++
			freq[s] = fval
		}
		if s >= 255 {
			break
		}
	}
	return freq, true
}

// state is one of the four interleaved rANS decoder states.
type state struct {
	x uint32
}

const ransByteL = 1 << 23 // renormalization threshold, spec §4.4

func (s *state) renorm(c *cursor) {
	for s.x < ransByteL {
		b, ok := c.readByte()
		if !ok {
			return
		}
		s.x = s.x<<8 | uint32(b)
	}
}

// decodeSym advances state s by one symbol using table t, returning the
// decoded symbol, or false if the input ran out during renormalization.
func decodeSym(s *state, t *freqTable, c *cursor) (byte, bool) {
	slot := s.x & (totalFreq - 1)
	sym := t.lookup[slot]
	freq := uint32(t.freq[sym])
	cum := uint32(t.cum[sym])
	s.x = freq*(s.x>>12) + slot - cum
	s.renorm(c)
	// renorm only leaves the state below ransByteL when c is exhausted.
	return sym, s.x >= ransByteL
}

func readStates(c *cursor) ([4]*state, bool) {
	var states [4]*state
	for i := range states {
		var buf [4]byte
		for j := range buf {
			b, ok := c.readByte()
			if !ok {
				return states, false
			}
			buf[j] = b
		}
		states[i] = &state{x: binary.LittleEndian.Uint32(buf[:])}
	}
	return states, true
}

// decodeOrder0 decodes a single-context rANS stream, the 4 interleaved
// states each emitting every 4th output byte in round-robin order.
func decodeOrder0(body []byte, uncompSize int) ([]byte, error) {
	c := &cursor{b: body}
	freq, ok := readFreqTable(c)
	if !ok {
		return nil, nil
	}
	table := buildTable(freq)

	states, ok := readStates(c)
	if !ok {
		return nil, nil
	}

	out := make([]byte, 0, uncompSize)
	for len(out) < uncompSize {
		s := states[len(out)%4]
		sym, ok := decodeSym(s, table, c)
		if !ok {
			break
		}
		out = append(out, sym)
	}
	return out, nil
}

// decodeOrder1 decodes a context-adaptive rANS stream: one order-0
// subtable per preceding-symbol context, read up front as 256 consecutive
// frequency tables (spec §4.4 "one order-0 subtable per preceding-symbol
// context"). Unlike order-0's round-robin interleave, each of the 4
// states owns a contiguous output quarter (out[i + lane*(uncompSize/4)],
// the last quarter absorbing any remainder): a state's context for its
// next symbol is the symbol it last emitted into its own quarter, not the
// byte 4 positions back in the merged output.
func decodeOrder1(body []byte, uncompSize int) ([]byte, error) {
	c := &cursor{b: body}
	var tables [256]*freqTable
	for ctx := 0; ctx < 256; ctx++ {
		freq, ok := readFreqTable(c)
		if !ok {
			return nil, nil
		}
		tables[ctx] = buildTable(freq)
	}

	states, ok := readStates(c)
	if !ok {
		return nil, nil
	}
	var lastSym [4]byte

	quarter := uncompSize / 4
	lens := [4]int{quarter, quarter, quarter, uncompSize - 3*quarter}
	quarters := [4][]byte{
		make([]byte, 0, lens[0]),
		make([]byte, 0, lens[1]),
		make([]byte, 0, lens[2]),
		make([]byte, 0, lens[3]),
	}

decode:
	for i := 0; i < lens[3]; i++ {
		for lane := 0; lane < 4; lane++ {
			if len(quarters[lane]) >= lens[lane] {
				continue
			}
			table := tables[lastSym[lane]]
			sym, ok := decodeSym(states[lane], table, c)
			if !ok {
				break decode
			}
			lastSym[lane] = sym
			quarters[lane] = append(quarters[lane], sym)
		}
	}

	out := make([]byte, 0, uncompSize)
	for _, q := range quarters {
		out = append(out, q...)
	}
	return out, nil
}
