// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"errors"
	"io"

	"github.com/genomeview/aligncore/align"
	"github.com/genomeview/aligncore/cram/itf8"
	"github.com/genomeview/aligncore/cram/ltf8"
	"github.com/genomeview/aligncore/mismatch"
)

const multiRef = -2

// sliceHeader is a CRAM slice-header block (spec §4.4 "Slice decoding").
type sliceHeader struct {
	refID      int32
	start      int32
	span       int32
	numRecords int32
	recCounter int64
	numBlocks  int32
	contentIDs []int32
	embeddedRef int32
	md5        [16]byte
}

func readSliceHeader(payload []byte) (*sliceHeader, error) {
	r := bytes.NewReader(payload)
	h := &sliceHeader{}
	var err error
	if h.refID, err = itf8.ReadFrom(r); err != nil {
		return nil, err
	}
	if h.start, err = itf8.ReadFrom(r); err != nil {
		return nil, err
	}
	if h.span, err = itf8.ReadFrom(r); err != nil {
		return nil, err
	}
	if h.numRecords, err = itf8.ReadFrom(r); err != nil {
		return nil, err
	}
	if h.recCounter, err = ltf8.ReadFrom(r); err != nil {
		return nil, err
	}
	if h.numBlocks, err = itf8.ReadFrom(r); err != nil {
		return nil, err
	}
	if h.contentIDs, err = itf8.ReadSlice(r); err != nil {
		return nil, err
	}
	if h.embeddedRef, err = itf8.ReadFrom(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, h.md5[:]); err != nil {
		return nil, err
	}
	return h, nil
}

// slice is a decoded slice's header plus its CORE and EXTERNAL block
// streams, ready for per-record decoding.
type slice struct {
	header  *sliceHeader
	streams *streams
}

// readSlice reads a slice-header block followed by its CORE and EXTERNAL
// blocks, as laid out consecutively in the container body (spec §4.4
// "exactly one CORE... and zero-or-more EXTERNAL").
func readSlice(r io.Reader) (*slice, error) {
	hdrBlock, err := readBlock(r)
	if err != nil {
		return nil, err
	}
	if hdrBlock.typ != blockSliceHeader {
		return nil, errors.New("cram: expected slice header block")
	}
	hdrPayload, err := hdrBlock.decompressed()
	if err != nil {
		return nil, err
	}
	hdr, err := readSliceHeader(hdrPayload)
	if err != nil {
		return nil, err
	}

	s := &slice{header: hdr, streams: &streams{external: make(map[int32]*bytes.Reader)}}
	for i := int32(0); i < hdr.numBlocks; i++ {
		b, err := readBlock(r)
		if err != nil {
			return nil, err
		}
		data, err := b.decompressed()
		if err != nil {
			return nil, err
		}
		switch b.typ {
		case blockCore:
			s.streams.core = newBitReader(data)
		case blockExternal:
			s.streams.external[b.contentID] = bytes.NewReader(data)
		}
	}
	if s.streams.core == nil {
		s.streams.core = newBitReader(nil)
	}
	return s, nil
}

// recordDecoder holds the per-series codecs built from a compressionHeader,
// reused across every record in a slice.
type recordDecoder struct {
	hdr *compressionHeader

	bf, cf, ri, rl, ap, rg, mq intCodec
	fn, fp, fc                 intCodec
	fl, dl, rs, hc, pd         intCodec
	tl, nf, ns, np, ts         intCodec
	ba, bs, qs, mf             intCodec
	in, sc, bb, qq             byteCodec
	rn                         byteCodec
}

func newRecordDecoder(hdr *compressionHeader) (*recordDecoder, error) {
	d := &recordDecoder{hdr: hdr}
	var err error
	for _, pair := range []struct {
		key seriesKey
		dst *intCodec
	}{
		{seriesKey{'B', 'F'}, &d.bf},
		{seriesKey{'C', 'F'}, &d.cf},
		{seriesKey{'R', 'I'}, &d.ri},
		{seriesKey{'R', 'L'}, &d.rl},
		{seriesKey{'A', 'P'}, &d.ap},
		{seriesKey{'R', 'G'}, &d.rg},
		{seriesKey{'M', 'Q'}, &d.mq},
		{seriesKey{'F', 'N'}, &d.fn},
		{seriesKey{'F', 'P'}, &d.fp},
		{seriesKey{'F', 'C'}, &d.fc},
		{seriesKey{'F', 'L'}, &d.fl},
		{seriesKey{'D', 'L'}, &d.dl},
		{seriesKey{'R', 'S'}, &d.rs},
		{seriesKey{'H', 'C'}, &d.hc},
		{seriesKey{'P', 'D'}, &d.pd},
		{seriesKey{'T', 'L'}, &d.tl},
		{seriesKey{'N', 'F'}, &d.nf},
		{seriesKey{'N', 'S'}, &d.ns},
		{seriesKey{'N', 'P'}, &d.np},
		{seriesKey{'T', 'S'}, &d.ts},
		{seriesKey{'B', 'A'}, &d.ba},
		{seriesKey{'B', 'S'}, &d.bs},
		{seriesKey{'Q', 'S'}, &d.qs},
		{seriesKey{'M', 'F'}, &d.mf},
	} {
		*pair.dst, err = hdr.intDecoder(pair.key)
		if err != nil {
			return nil, err
		}
	}
	for _, pair := range []struct {
		key seriesKey
		dst *byteCodec
	}{
		{seriesKey{'I', 'N'}, &d.in},
		{seriesKey{'S', 'C'}, &d.sc},
		{seriesKey{'B', 'B'}, &d.bb},
		{seriesKey{'Q', 'Q'}, &d.qq},
		{seriesKey{'R', 'N'}, &d.rn},
	} {
		*pair.dst, err = hdr.byteDecoder(pair.key)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// cramFlags bits, spec §4.4 step 7 and step 11.
const (
	cfQualArray      = 1 << 0
	cfDetached       = 1 << 1
	cfMateDownstream = 1 << 2
	cfUnmappedSeq    = 1 << 3
)

// readFeature codes, spec §4.4 step 9.
const (
	featBase          = 'B'
	featSubstitution  = 'X'
	featInsertion     = 'I'
	featInsertionBase = 'i'
	featDeletion      = 'D'
	featRefSkip       = 'N'
	featSoftClip      = 'S'
	featHardClip      = 'H'
	featPadding       = 'P'
	featQuality       = 'Q'
	featQualityRun    = 'q'
	featBasesQuals    = 'b'
)

// decodeRecord decodes one record from s using d, following the twelve-step
// sequence of spec §4.4 "Record decoding sequence". prevAlignStart is the
// running AP-delta accumulator and is updated in place.
func (d *recordDecoder) decodeRecord(s *streams, sliceRefID int32, prevAlignStart *int32, ref mismatch.ReferenceSource, chrom string) (*align.Record, error) {
	bf, err := d.bf.decodeInt(s)
	if err != nil {
		return nil, err
	}
	cf, err := d.cf.decodeInt(s)
	if err != nil {
		return nil, err
	}

	refID := int64(sliceRefID)
	if sliceRefID == multiRef {
		refID, err = d.ri.decodeInt(s)
		if err != nil {
			return nil, err
		}
	}

	readLen, err := d.rl.decodeInt(s)
	if err != nil {
		return nil, err
	}

	apDelta, err := d.ap.decodeInt(s)
	if err != nil {
		return nil, err
	}
	var alignStart int32
	if d.hdr.preservation.apDeltaEncoded {
		alignStart = *prevAlignStart + int32(apDelta)
	} else {
		alignStart = int32(apDelta)
	}
	*prevAlignStart = alignStart

	if _, err := d.rg.decodeInt(s); err != nil {
		return nil, err
	}

	var readName []byte
	if d.hdr.preservation.readNamesPreserved {
		readName, err = d.rn.decodeBytes(s)
		if err != nil {
			return nil, err
		}
	}

	detached := cf&cfDetached != 0
	downstream := cf&cfMateDownstream != 0
	if detached {
		if _, err := d.mf.decodeInt(s); err != nil {
			return nil, err
		}
		if readName == nil {
			readName, err = d.rn.decodeBytes(s)
			if err != nil {
				return nil, err
			}
		}
		if _, err := d.ns.decodeInt(s); err != nil {
			return nil, err
		}
		if _, err := d.np.decodeInt(s); err != nil {
			return nil, err
		}
		if _, err := d.ts.decodeInt(s); err != nil {
			return nil, err
		}
	} else if downstream {
		if _, err := d.nf.decodeInt(s); err != nil {
			return nil, err
		}
	}

	tlIdx, err := d.tl.decodeInt(s)
	if err != nil {
		return nil, err
	}
	if err := d.skipTags(s, int(tlIdx)); err != nil {
		return nil, err
	}

	var mismatches []align.Mismatch
	refSpan := int(readLen)
	if cf&cfUnmappedSeq == 0 {
		numFeatures, err := d.fn.decodeInt(s)
		if err != nil {
			return nil, err
		}
		mismatches, refSpan, err = d.readFeatures(s, int(numFeatures), int(readLen), int(alignStart), chrom, ref)
		if err != nil {
			return nil, err
		}
	}

	mq, err := d.mq.decodeInt(s)
	if err != nil {
		return nil, err
	}

	if cf&cfQualArray != 0 {
		for i := int32(0); i < readLen; i++ {
			if _, err := d.qs.decodeInt(s); err != nil {
				return nil, err
			}
		}
	}

	if refSpan < 1 {
		refSpan = 1
	}
	rec := &align.Record{
		RefID:      int(refID),
		Pos:        int(alignStart),
		End:        int(alignStart) + refSpan,
		Flag:       align.Flags(bf),
		MapQ:       uint8(mq),
		ReadLength: int(readLen),
		ReadName:   string(readName),
		Mismatches: mismatches,
	}
	return rec, nil
}

// skipTags reads and discards tlIdx's tag-triple values using their
// tag-specific decoders, per spec §4.4 step 8.
func (d *recordDecoder) skipTags(s *streams, tlIdx int) error {
	if tlIdx < 0 || tlIdx >= len(d.hdr.preservation.tagDictionary) {
		return nil
	}
	for _, tag := range d.hdr.preservation.tagDictionary[tlIdx] {
		desc, ok := d.hdr.tagEncodings[tag]
		if !ok {
			continue
		}
		switch tag[2] {
		case 'Z', 'H', 'B':
			c, err := newByteCodec(desc)
			if err != nil {
				return err
			}
			if _, err := c.decodeBytes(s); err != nil {
				return err
			}
		default:
			c, err := newIntCodec(desc)
			if err != nil {
				return err
			}
			if _, err := c.decodeInt(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// readFeatures walks numFeatures read features per spec §4.4 step 9,
// returning resolved mismatches and the accumulated reference span.
func (d *recordDecoder) readFeatures(s *streams, numFeatures, readLen, alignStart int, chrom string, ref mismatch.ReferenceSource) ([]align.Mismatch, int, error) {
	var mismatches []align.Mismatch
	prevFeaturePos := 0
	refSpan := readLen
	refOffset := 0

	for i := 0; i < numFeatures; i++ {
		fc, err := d.fc.decodeInt(s)
		if err != nil {
			return nil, 0, err
		}
		fp, err := d.fp.decodeInt(s)
		if err != nil {
			return nil, 0, err
		}
		featurePos := prevFeaturePos + int(fp)
		prevFeaturePos = featurePos

		genomicPos := alignStart + featurePos - 1 + refOffset

		switch byte(fc) {
		case featBase:
			base, err := d.ba.decodeInt(s)
			if err != nil {
				return nil, 0, err
			}
			if _, err := d.qs.decodeInt(s); err != nil {
				return nil, 0, err
			}
			mismatches = append(mismatches, align.Mismatch{Pos: genomicPos, Base: byte(base)})
		case featSubstitution:
			code, err := d.bs.decodeInt(s)
			if err != nil {
				return nil, 0, err
			}
			base, err := d.substitutionBase(genomicPos, chrom, ref, int(code))
			if err != nil {
				return nil, 0, err
			}
			mismatches = append(mismatches, align.Mismatch{Pos: genomicPos, Base: base})
		case featInsertion:
			in, err := d.in.decodeBytes(s)
			if err != nil {
				return nil, 0, err
			}
			refSpan -= len(in)
			refOffset -= len(in)
		case featInsertionBase:
			if _, err := d.ba.decodeInt(s); err != nil {
				return nil, 0, err
			}
			refSpan--
			refOffset--
		case featDeletion:
			dl, err := d.dl.decodeInt(s)
			if err != nil {
				return nil, 0, err
			}
			refSpan += int(dl)
			refOffset += int(dl)
		case featRefSkip:
			rs, err := d.rs.decodeInt(s)
			if err != nil {
				return nil, 0, err
			}
			refSpan += int(rs)
			refOffset += int(rs)
		case featSoftClip:
			sc, err := d.sc.decodeBytes(s)
			if err != nil {
				return nil, 0, err
			}
			refSpan -= len(sc)
			refOffset -= len(sc)
		case featHardClip:
			if _, err := d.hc.decodeInt(s); err != nil {
				return nil, 0, err
			}
		case featPadding:
			if _, err := d.pd.decodeInt(s); err != nil {
				return nil, 0, err
			}
		case featQuality:
			if _, err := d.qs.decodeInt(s); err != nil {
				return nil, 0, err
			}
		case featQualityRun:
			if _, err := d.qq.decodeBytes(s); err != nil {
				return nil, 0, err
			}
		case featBasesQuals:
			if _, err := d.bb.decodeBytes(s); err != nil {
				return nil, 0, err
			}
			if _, err := d.qq.decodeBytes(s); err != nil {
				return nil, 0, err
			}
		default:
			// Unknown feature code: nothing further to read; skip.
		}
	}
	return mismatches, refSpan, nil
}

// substitutionBase resolves a substitution feature's read base via the
// preservation map's substitution lookup against the reference base at
// genomicPos (spec §4.4 step 9 "X substitution").
func (d *recordDecoder) substitutionBase(genomicPos int, chrom string, ref mismatch.ReferenceSource, code int) (byte, error) {
	if !d.hdr.preservation.hasSubLookup || ref == nil {
		return 'N', nil
	}
	bases, err := ref.Bases(chrom, genomicPos, genomicPos)
	if err != nil || len(bases) == 0 {
		return 'N', nil
	}
	row := mismatch.RefBaseRow(bases[0])
	if code < 0 || code > 3 {
		return 'N', nil
	}
	return d.hdr.preservation.subLookup[row][code], nil
}
