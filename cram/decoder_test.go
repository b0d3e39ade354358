// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"strconv"
	"testing"

	"github.com/kortschak/utter"

	"github.com/genomeview/aligncore/cram/itf8"
	"github.com/genomeview/aligncore/cram/ltf8"
)

func itfE(v int32) []byte {
	var buf [5]byte
	n := itf8.Encode(buf[:], v)
	return buf[:n]
}

func ltfE(v int64) []byte {
	var buf [9]byte
	n := ltf8.Encode(buf[:], v)
	return buf[:n]
}

func withCRC(b []byte) []byte {
	sum := crc32.ChecksumIEEE(b)
	var c [4]byte
	binary.LittleEndian.PutUint32(c[:], sum)
	return append(append([]byte{}, b...), c[:]...)
}

func buildBlock(method, typ byte, contentID int32, data []byte) []byte {
	var hdr bytes.Buffer
	hdr.WriteByte(method)
	hdr.WriteByte(typ)
	hdr.Write(itfE(contentID))
	hdr.Write(itfE(int32(len(data))))
	hdr.Write(itfE(int32(len(data))))
	hdr.Write(data)
	return withCRC(hdr.Bytes())
}

func buildContainer(refID, start, span, nRec int32, recCount, bases int64, body []byte) []byte {
	var h bytes.Buffer
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(body)))
	h.Write(lb[:])
	h.Write(itfE(refID))
	h.Write(itfE(start))
	h.Write(itfE(span))
	h.Write(itfE(nRec))
	h.Write(ltfE(recCount))
	h.Write(ltfE(bases))
	h.Write(itfE(0))
	h.Write(itfE(0))
	return append(withCRC(h.Bytes()), body...)
}

func externalDescriptor(blockID int32) []byte {
	params := itfE(blockID)
	var b bytes.Buffer
	b.Write(itfE(codecExternal))
	b.Write(itfE(int32(len(params))))
	b.Write(params)
	return b.Bytes()
}

func buildPreservationMap() []byte {
	var inner bytes.Buffer
	inner.Write(itfE(4))
	inner.WriteString("RN")
	inner.WriteByte(0)
	inner.WriteString("AP")
	inner.WriteByte(0)
	inner.WriteString("RR")
	inner.WriteByte(0)
	inner.WriteString("TD")
	inner.Write(itfE(0))

	var outer bytes.Buffer
	outer.Write(itfE(int32(inner.Len())))
	outer.Write(inner.Bytes())
	return outer.Bytes()
}

func buildDataSeriesMap(entries map[seriesKey]int32) []byte {
	var inner bytes.Buffer
	inner.Write(itfE(int32(len(entries))))
	for key, blockID := range entries {
		inner.Write(key[:])
		inner.Write(externalDescriptor(blockID))
	}
	var outer bytes.Buffer
	outer.Write(itfE(int32(inner.Len())))
	outer.Write(inner.Bytes())
	return outer.Bytes()
}

func buildEmptyTagEncodingMap() []byte {
	inner := itfE(0)
	var outer bytes.Buffer
	outer.Write(itfE(int32(len(inner))))
	outer.Write(inner)
	return outer.Bytes()
}

func buildSliceHeaderPayload(refID, start, span, numRecords int32, numBlocks int32, contentIDs []int32) []byte {
	var b bytes.Buffer
	b.Write(itfE(refID))
	b.Write(itfE(start))
	b.Write(itfE(span))
	b.Write(itfE(numRecords))
	b.Write(ltfE(0))
	b.Write(itfE(numBlocks))
	b.Write(itfE(int32(len(contentIDs))))
	for _, id := range contentIDs {
		b.Write(itfE(id))
	}
	b.Write(itfE(-1))
	b.Write(make([]byte, 16))
	return b.Bytes()
}

// buildCRAMFile constructs a minimal single-record CRAM file exercising the
// EXTERNAL codec path end to end, and returns the full file bytes plus the
// byte offset of the second (data) container.
func buildCRAMFile(t *testing.T) ([]byte, int64) {
	t.Helper()

	var file bytes.Buffer
	file.WriteString("CRAM")
	file.Write([]byte{3, 0})
	file.Write(make([]byte, 20))

	samText := "@SQ\tSN:chr1\tLN:1000\n@RG\tID:1\tSM:testsample\n"
	var hdrPayload bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(samText)))
	hdrPayload.Write(lenBuf[:])
	hdrPayload.WriteString(samText)
	hdrBlock := buildBlock(methodRaw, blockFileHeader, 0, hdrPayload.Bytes())
	container1 := buildContainer(-1, 0, 0, 0, 0, 0, hdrBlock)
	file.Write(container1)

	offsetContainer2 := int64(file.Len())

	seriesIDs := map[seriesKey]int32{
		{'B', 'F'}: 1,
		{'C', 'F'}: 2,
		{'R', 'L'}: 3,
		{'A', 'P'}: 4,
		{'R', 'G'}: 5,
		{'T', 'L'}: 6,
		{'F', 'N'}: 7,
		{'F', 'C'}: 8,
		{'F', 'P'}: 9,
		{'B', 'A'}: 10,
		{'Q', 'S'}: 11,
		{'M', 'Q'}: 12,
	}
	values := map[int32]int32{
		1: 0,   // BF
		2: 0,   // CF
		3: 5,   // RL
		4: 100, // AP
		5: 0,   // RG
		6: 0,   // TL
		7: 1,   // FN
		8: 'B', // FC
		9: 1,   // FP
		10: 'G', // BA
		11: 30,  // QS
		12: 40,  // MQ
	}

	chPayload := append(append(buildPreservationMap(), buildDataSeriesMap(seriesIDs)...), buildEmptyTagEncodingMap()...)
	chBlock := buildBlock(methodRaw, blockCompressionHeader, 0, chPayload)

	var contentIDs []int32
	for id := int32(1); id <= 12; id++ {
		contentIDs = append(contentIDs, id)
	}
	sliceHdrPayload := buildSliceHeaderPayload(0, 100, 10, 1, 13, contentIDs)
	sliceHdrBlock := buildBlock(methodRaw, blockSliceHeader, 0, sliceHdrPayload)
	coreBlock := buildBlock(methodRaw, blockCore, 0, nil)

	var externalBlocks bytes.Buffer
	for id := int32(1); id <= 12; id++ {
		externalBlocks.Write(buildBlock(methodRaw, blockExternal, id, itfE(values[id])))
	}

	var body2 bytes.Buffer
	body2.Write(chBlock)
	body2.Write(sliceHdrBlock)
	body2.Write(coreBlock)
	body2.Write(externalBlocks.Bytes())

	container2 := buildContainer(0, 100, 10, 1, 0, 0, body2.Bytes())
	file.Write(container2)

	return file.Bytes(), offsetContainer2
}

func buildCRAI(t *testing.T, containerOffset int64) string {
	t.Helper()
	line := "0\t100\t10\t" + strconv.FormatInt(containerOffset, 10) + "\t0\t0\n"
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(line)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp(t.TempDir(), "*.crai")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

func TestDecoderQuery(t *testing.T) {
	data, offset := buildCRAMFile(t)
	cramPath := writeTempCRAM(t, data)
	craiPath := buildCRAI(t, offset)

	dec, err := Open(cramPath, craiPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if dec.SampleName() != "testsample" {
		t.Fatalf("got sample %q", dec.SampleName())
	}

	recs, err := dec.Query(context.Background(), "chr1", 90, 110)
	if err != nil {
		t.Fatal(err)
	}
	utter.Config.BytesWidth = 8
	t.Log(utter.Sdump(recs))
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.Pos != 100 || r.End != 105 || r.MapQ != 40 || r.ReadLength != 5 {
		t.Fatalf("got %+v", r)
	}
	if len(r.Mismatches) != 1 || r.Mismatches[0].Pos != 100 || r.Mismatches[0].Base != 'G' {
		t.Fatalf("got mismatches %+v", r.Mismatches)
	}
}

func writeTempCRAM(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.cram")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}
