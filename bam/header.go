// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bam decodes BAM files: the fixed + variable header, and records
// walked through BAI chunks (spec §4.3).
package bam

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/genomeview/aligncore/bgzf"
	"github.com/genomeview/aligncore/sam"
)

// sampleTag is the SAM read group line's SM field (spec §4.3: "first @RG's
// SM:").
var sampleTag = sam.NewTag("SM")

// ErrMagic is returned when a stream does not begin with the BAM\1 magic.
var ErrMagic = errors.New("bam: invalid magic")

var bamMagic = [4]byte{'B', 'A', 'M', 1}

// Header holds the parsed BAM header: the raw SAM header text, the
// reference dictionary in header order, and the resolved sample name.
type Header struct {
	Text       string
	Names      []string
	Lengths    []int
	SampleName string
}

func readHeader(r *bgzf.Reader, path string) (*Header, error) {
	magic, err := r.ReadFully(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, bamMagic[:]) {
		return nil, ErrMagic
	}
	textLen, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	textBytes, err := r.ReadFully(int(textLen))
	if err != nil {
		return nil, err
	}
	text := string(textBytes)

	nRef, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	h := &Header{
		Text:    text,
		Names:   make([]string, nRef),
		Lengths: make([]int, nRef),
	}
	for i := 0; i < int(nRef); i++ {
		nameLen, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		nameBytes, err := r.ReadFully(int(nameLen))
		if err != nil {
			return nil, err
		}
		h.Names[i] = string(bytes.TrimRight(nameBytes, "\x00"))
		length, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		h.Lengths[i] = int(length)
	}
	h.SampleName = sampleNameFromHeader(text, path)
	return h, nil
}

// sampleNameFromHeader returns the first @RG's SM: value, parsed through
// the SAM text header object model, or the file name with the .bam suffix
// stripped if no @RG line carries one (spec §4.3).
func sampleNameFromHeader(text, path string) string {
	if sh, err := sam.NewHeader([]byte(text), nil); err == nil {
		if rgs := sh.RGs(); len(rgs) > 0 {
			if sm := rgs[0].Get(sampleTag); sm != "" {
				return sm
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".bam")
}
