// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"errors"
	"io"

	"github.com/genomeview/aligncore/cram/itf8"
	"github.com/genomeview/aligncore/mismatch"
)

// seriesKey is the two-character identifier of a CRAM data series, e.g.
// "BF" or "RL" (spec §4.4 "Data-series encoding map").
type seriesKey [2]byte

// tagKey is the three-byte identifier of an auxiliary tag encoding, e.g.
// "MDZ".
type tagKey [3]byte

// preservationMap holds the compression header's preservation map entries
// (spec §4.4 "Preservation map entries").
type preservationMap struct {
	readNamesPreserved bool // RN
	apDeltaEncoded     bool // AP
	refRequired        bool // RR
	subLookup          mismatch.SubstitutionLookup
	hasSubLookup       bool
	tagDictionary      [][]tagKey // indexed by TL code
}

// compressionHeader is the fully parsed CRAM compression header block: the
// preservation map, the data-series encoding map, and the tag encoding map
// (spec §4.4).
type compressionHeader struct {
	preservation preservationMap
	dataSeries   map[seriesKey]encodingDescriptor
	tagEncodings map[tagKey]encodingDescriptor
}

func readCompressionHeader(r io.Reader) (*compressionHeader, error) {
	h := &compressionHeader{
		dataSeries:   make(map[seriesKey]encodingDescriptor),
		tagEncodings: make(map[tagKey]encodingDescriptor),
	}
	if err := h.readPreservationMap(r); err != nil {
		return nil, err
	}
	if err := h.readDataSeriesMap(r); err != nil {
		return nil, err
	}
	if err := h.readTagEncodingMap(r); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *compressionHeader) readPreservationMap(r io.Reader) error {
	mapSize, err := itf8.ReadFrom(r)
	if err != nil {
		return err
	}
	buf := make([]byte, mapSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	br := bytes.NewReader(buf)

	n, err := itf8.ReadFrom(br)
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		var key [2]byte
		if _, err := io.ReadFull(br, key[:]); err != nil {
			return err
		}
		switch key {
		case [2]byte{'R', 'N'}:
			v, err := readBoolByte(br)
			if err != nil {
				return err
			}
			h.preservation.readNamesPreserved = v
		case [2]byte{'A', 'P'}:
			v, err := readBoolByte(br)
			if err != nil {
				return err
			}
			h.preservation.apDeltaEncoded = v
		case [2]byte{'R', 'R'}:
			v, err := readBoolByte(br)
			if err != nil {
				return err
			}
			h.preservation.refRequired = v
		case [2]byte{'S', 'M'}:
			var sm [5]byte
			if _, err := io.ReadFull(br, sm[:]); err != nil {
				return err
			}
			h.preservation.subLookup = mismatch.BuildSubstitutionLookup(sm)
			h.preservation.hasSubLookup = true
		case [2]byte{'T', 'D'}:
			dict, err := readTagDictionary(br)
			if err != nil {
				return err
			}
			h.preservation.tagDictionary = dict
		default:
			return errors.New("cram: unknown preservation map key " + string(key[:]))
		}
	}
	return nil
}

func readBoolByte(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// readTagDictionary parses TD: an ITF8 byte-string length followed by a
// NUL-separated list of entries, each entry a run of concatenated 3-byte
// tag triples.
func readTagDictionary(r io.Reader) ([][]tagKey, error) {
	size, err := itf8.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	var dict [][]tagKey
	for _, entry := range bytes.Split(raw, []byte{0}) {
		if len(entry)%3 != 0 {
			continue
		}
		var keys []tagKey
		for i := 0; i < len(entry); i += 3 {
			var k tagKey
			copy(k[:], entry[i:i+3])
			keys = append(keys, k)
		}
		dict = append(dict, keys)
	}
	return dict, nil
}

func (h *compressionHeader) readDataSeriesMap(r io.Reader) error {
	mapSize, err := itf8.ReadFrom(r)
	if err != nil {
		return err
	}
	buf := make([]byte, mapSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	br := bytes.NewReader(buf)

	n, err := itf8.ReadFrom(br)
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		var key [2]byte
		if _, err := io.ReadFull(br, key[:]); err != nil {
			return err
		}
		desc, err := readEncodingDescriptor(br)
		if err != nil {
			return err
		}
		h.dataSeries[seriesKey(key)] = desc
	}
	return nil
}

func (h *compressionHeader) readTagEncodingMap(r io.Reader) error {
	mapSize, err := itf8.ReadFrom(r)
	if err != nil {
		return err
	}
	buf := make([]byte, mapSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	br := bytes.NewReader(buf)

	n, err := itf8.ReadFrom(br)
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		id, err := itf8.ReadFrom(br)
		if err != nil {
			return err
		}
		var k tagKey
		k[0] = byte(id >> 16)
		k[1] = byte(id >> 8)
		k[2] = byte(id)
		desc, err := readEncodingDescriptor(br)
		if err != nil {
			return err
		}
		h.tagEncodings[k] = desc
	}
	return nil
}

// intDecoder looks up and constructs the int codec for series key, or a
// nullCodec (decoding to constant zero) if the series is absent, per the
// "missing series decode to zero/empty" rule.
func (h *compressionHeader) intDecoder(key seriesKey) (intCodec, error) {
	desc, ok := h.dataSeries[key]
	if !ok {
		return nullCodec{}, nil
	}
	return newIntCodec(desc)
}

func (h *compressionHeader) byteDecoder(key seriesKey) (byteCodec, error) {
	desc, ok := h.dataSeries[key]
	if !ok {
		return nullCodec{}, nil
	}
	return newByteCodec(desc)
}
