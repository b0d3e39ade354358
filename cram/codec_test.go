// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"testing"
)

func newStreams(core []byte, ext map[int32][]byte) *streams {
	m := make(map[int32]*bytes.Reader, len(ext))
	for id, b := range ext {
		m[id] = bytes.NewReader(b)
	}
	return &streams{core: newBitReader(core), external: m}
}

func TestBetaCodec(t *testing.T) {
	c := &betaCodec{offset: 5, numBits: 4}
	s := newStreams([]byte{0b10110000}, nil)
	v, err := c.decodeInt(s)
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(0b1011)-5 {
		t.Fatalf("got %d", v)
	}
}

func TestGolombRiceCodec(t *testing.T) {
	// q=2 (11 0), r=3 bits = 101 -> value = 2<<3 | 5 = 21, minus offset 1 = 20
	c := &golombRiceCodec{offset: 1, log2m: 3}
	s := newStreams([]byte{0b11010100}, nil)
	v, err := c.decodeInt(s)
	if err != nil {
		t.Fatal(err)
	}
	if v != 20 {
		t.Fatalf("got %d", v)
	}
}

func TestGammaCodec(t *testing.T) {
	// n=3 leading zeros (000), terminator 1, then 3 bits of remainder: 101
	// v = (1<<3) + 5 - 1 = 12, minus offset 0
	c := &gammaCodec{offset: 0}
	s := newStreams([]byte{0b00011010}, nil)
	v, err := c.decodeInt(s)
	if err != nil {
		t.Fatal(err)
	}
	if v != 12 {
		t.Fatalf("got %d", v)
	}
}

func TestSubexpCodec(t *testing.T) {
	// k=2, n=0 (single terminator bit 0) -> read k=2 bits directly: 11 -> 3
	c := &subexpCodec{offset: 0, k: 2}
	s := newStreams([]byte{0b01100000}, nil)
	v, err := c.decodeInt(s)
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Fatalf("got %d", v)
	}
}

func TestHuffmanSingleSymbol(t *testing.T) {
	c := &huffmanCodec{codes: []huffmanCode{{symbol: 42}}, single: true}
	s := newStreams(nil, nil)
	v, err := c.decodeInt(s)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("got %d", v)
	}
}

func TestHuffmanCanonicalCodes(t *testing.T) {
	// symbols 'A','B','C' with lengths 1,2,2 -> canonical codes:
	// A: 0 (len1); B: 10 (len2); C: 11 (len2)
	codes := buildCanonicalHuffman([]int32{'A', 'B', 'C'}, []int{1, 2, 2})
	want := map[int32]struct {
		length int
		code   uint32
	}{
		'A': {1, 0b0},
		'B': {2, 0b10},
		'C': {2, 0b11},
	}
	for _, c := range codes {
		w, ok := want[c.symbol]
		if !ok {
			t.Fatalf("unexpected symbol %v", c.symbol)
		}
		if c.length != w.length || c.code != w.code {
			t.Fatalf("symbol %v: got {%d,%b}, want {%d,%b}", c.symbol, c.length, c.code, w.length, w.code)
		}
	}

	hc := &huffmanCodec{codes: codes}
	s := newStreams([]byte{0b10000000}, nil) // "10" (B) then "0" (A)
	v, err := hc.decode(s.core)
	if err != nil || v != 'B' {
		t.Fatalf("got %v, %v, want 'B'", v, err)
	}
	v, err = hc.decode(s.core)
	if err != nil || v != 'A' {
		t.Fatalf("got %v, %v, want 'A'", v, err)
	}
}

func TestExternalCodec(t *testing.T) {
	c := &externalCodec{blockID: 7}
	s := newStreams(nil, map[int32][]byte{7: {0x05}})
	v, err := c.decodeInt(s)
	if err != nil {
		t.Fatal(err)
	}
	if v != 5 {
		t.Fatalf("got %d", v)
	}
}

func TestByteArrayStopCodec(t *testing.T) {
	c := &byteArrayStopCodec{stop: 0, blockID: 1}
	s := newStreams(nil, map[int32][]byte{1: {'h', 'i', 0, 'x'}})
	b, err := c.decodeBytes(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hi" {
		t.Fatalf("got %q", b)
	}
}

func TestByteArrayLenCodec(t *testing.T) {
	c := &byteArrayLenCodec{
		lenCodec: &externalCodec{blockID: 0},
		valCodec: &externalCodec{blockID: 1},
	}
	s := newStreams(nil, map[int32][]byte{
		0: {3},
		1: {'a', 'b', 'c'},
	})
	b, err := c.decodeBytes(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "abc" {
		t.Fatalf("got %q", b)
	}
}
