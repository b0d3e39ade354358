// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package itf8 implements ITF-8 variable-length integer encoding, CRAM
// specification section 2.3: 1 to 5 bytes, signaled by the leading bits of
// the first byte (spec §4.4 "Integer encodings").
package itf8

import (
	"io"
	"math/bits"
)

// Len returns the number of bytes required to encode v.
func Len(v int32) int {
	u := uint32(v)
	switch {
	case u < 0x80:
		return 1
	case u < 0x4000:
		return 2
	case u < 0x200000:
		return 3
	case u < 0x10000000:
		return 4
	default:
		return 5
	}
}

// Decode decodes the ITF-8 value at the start of b, returning the value,
// the number of bytes consumed and whether decoding succeeded. A short
// buffer reports the expected length and false.
func Decode(b []byte) (v int32, n int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	n = bits.LeadingZeros8(^(b[0] & 0xf0)) + 1
	if len(b) < n {
		return 0, n, false
	}
	switch n {
	case 1:
		v = int32(b[0])
	case 2:
		v = int32(b[1]) | int32(b[0]&0x3f)<<8
	case 3:
		v = int32(b[2]) | int32(b[1])<<8 | int32(b[0]&0x1f)<<16
	case 4:
		v = int32(b[3]) | int32(b[2])<<8 | int32(b[1])<<16 | int32(b[0]&0x0f)<<24
	case 5:
		v = int32(b[4]&0x0f) | int32(b[3])<<4 | int32(b[2])<<12 | int32(b[1])<<20 | int32(b[0]&0x0f)<<28
	}
	return v, n, true
}

// Encode encodes v into b, which must have length >= Len(v), and returns
// the number of bytes written.
func Encode(b []byte, v int32) int {
	u := uint32(v)
	switch {
	case u < 0x80:
		b[0] = byte(u)
		return 1
	case u < 0x4000:
		_ = b[1]
		b[0] = byte(u>>8)&0x3f | 0x80
		b[1] = byte(u)
		return 2
	case u < 0x200000:
		_ = b[2]
		b[0] = byte(u>>16)&0x1f | 0xc0
		b[1] = byte(u >> 8)
		b[2] = byte(u)
		return 3
	case u < 0x10000000:
		_ = b[3]
		b[0] = byte(u>>24)&0x0f | 0xe0
		b[1] = byte(u >> 16)
		b[2] = byte(u >> 8)
		b[3] = byte(u)
		return 4
	default:
		_ = b[4]
		b[0] = byte(u>>28) | 0xf0
		b[1] = byte(u >> 20)
		b[2] = byte(u >> 12)
		b[3] = byte(u >> 4)
		b[4] = byte(u)
		return 5
	}
}

// ReadFrom reads one ITF-8 value from r, a single byte at a time (the width
// is only known after the first byte), and returns its decoded value.
func ReadFrom(r io.Reader) (int32, error) {
	var buf [5]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, err
	}
	if v, _, ok := Decode(buf[:1]); ok {
		return v, nil
	}
	_, n, _ := Decode(buf[:1])
	if _, err := io.ReadFull(r, buf[1:n]); err != nil {
		return 0, err
	}
	v, _, ok := Decode(buf[:n])
	if !ok {
		return 0, io.ErrUnexpectedEOF
	}
	return v, nil
}

// ReadSlice reads an ITF-8-prefixed array of ITF-8 values: a count followed
// by that many values, the CRAM "itf8[]" encoding used for container
// landmarks and slice block-ID lists.
func ReadSlice(r io.Reader) ([]int32, error) {
	n, err := ReadFrom(r)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i], err = ReadFrom(r)
		if err != nil {
			return out[:i], err
		}
	}
	return out, nil
}
