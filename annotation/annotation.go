// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package annotation encodes and decodes the three companion-cache binary
// formats named by spec §6: the gene/transcript cache (magic GENE), the
// non-MANE transcript cache (magic TXNM), and the COSMIC cache (magic
// COSM). Gene/cytoband/COSMIC lookup logic (nearest-gene, symbol search,
// transcript selection) is out of scope; this package is glue data only.
package annotation

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// ErrCacheCorrupt is returned when a cache's magic or version does not
// match, per spec §7 CacheCorrupt. Callers should treat this as
// non-fatal and regenerate the cache from source.
var ErrCacheCorrupt = errors.New("annotation: cache corrupt (magic/version mismatch)")

const (
	magicGene = 0x47454E45 // "GENE"
	magicTxnm = 0x54584E4D // "TXNM"
	magicCosm = 0x434F534D // "COSM"

	// version is shared across the three formats; a mismatch on read is
	// treated identically to a magic mismatch.
	version = 1
)

// Exon is a half-open-by-convention (but stored as spec-literal, inclusive
// per the source schema) reference interval.
type Exon struct {
	Start, End int64
}

// Transcript is one gene's transcript entry in the GENE cache.
type Transcript struct {
	ID, Name     string
	Start, End   int64
	Biotype      string
	ManeSelect   bool
	ManeClinical bool
	CDSStart     int64
	CDSEnd       int64
	Exons        []Exon
}

// Gene is one entry in the GENE cache.
type Gene struct {
	Chrom       string
	Start, End  int64
	Name        string
	ID          string
	Strand      string
	Biotype     string // "" means none.
	Description string // "" means none.
	Transcripts []Transcript
	// Exons is the gene's merged exon list (union of all transcript
	// exons), stored separately per the wire format.
	Exons []Exon
}

// GeneCache is the decoded form of a GENE-magic cache file.
type GeneCache struct {
	Genes []Gene
}

// NonManeTranscript is one transcript entry in the TXNM cache. All
// transcripts in this cache are non-MANE by construction, so no MANE flags
// are carried.
type NonManeTranscript struct {
	ID, Name   string
	Start, End int64
	Biotype    string
	CDSStart   int64
	CDSEnd     int64
	Exons      []Exon
}

// TranscriptGene groups a gene id with its non-MANE transcripts in the
// TXNM cache.
type TranscriptGene struct {
	ID          string
	Transcripts []NonManeTranscript
}

// TranscriptCache is the decoded form of a TXNM-magic cache file.
type TranscriptCache struct {
	Genes []TranscriptGene
}

// CosmicEntry is one record of the COSM cache: 15 string fields and 3
// booleans. The CSV schema spec §6 references by name is not reproduced
// here; this field set is the schema this package commits to (see
// DESIGN.md).
type CosmicEntry struct {
	GeneName            string
	MutationID          string
	MutationCDS         string
	MutationAA          string
	MutationDescription string
	MutationZygosity    string
	Chrom               string
	GenomeStart         string
	GenomeStop          string
	Strand              string
	FathmmPrediction    string
	FathmmScore         string
	SomaticStatus       string
	PubmedID            string
	SampleName          string

	Verified   bool
	Somatic    bool
	Pathogenic bool
}

// CosmicCache is the decoded form of a COSM-magic cache file.
type CosmicCache struct {
	Entries []CosmicEntry
}

func writeUTF(w *bufio.Writer, s string) error {
	if len(s) > 0xFFFF {
		return errors.New("annotation: string exceeds 16-bit length prefix")
	}
	var lb [2]byte
	binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
	if _, err := w.Write(lb[:]); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readUTF(r io.Reader) (string, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(lb[:])
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeI64(w *bufio.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readI64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func writeU32(w *bufio.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeBool(w *bufio.Writer, v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func writeExons(w *bufio.Writer, exons []Exon) error {
	if err := writeU32(w, uint32(len(exons))); err != nil {
		return err
	}
	for _, e := range exons {
		if err := writeI64(w, e.Start); err != nil {
			return err
		}
		if err := writeI64(w, e.End); err != nil {
			return err
		}
	}
	return nil
}

func readExons(r io.Reader) ([]Exon, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	exons := make([]Exon, n)
	for i := range exons {
		if exons[i].Start, err = readI64(r); err != nil {
			return nil, err
		}
		if exons[i].End, err = readI64(r); err != nil {
			return nil, err
		}
	}
	return exons, nil
}

// Encode writes the GENE-magic binary form of c.
func (c *GeneCache) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeU32(bw, magicGene); err != nil {
		return err
	}
	if err := writeU32(bw, version); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(c.Genes))); err != nil {
		return err
	}
	for _, g := range c.Genes {
		if err := writeUTF(bw, g.Chrom); err != nil {
			return err
		}
		if err := writeI64(bw, g.Start); err != nil {
			return err
		}
		if err := writeI64(bw, g.End); err != nil {
			return err
		}
		if err := writeUTF(bw, g.Name); err != nil {
			return err
		}
		if err := writeUTF(bw, g.ID); err != nil {
			return err
		}
		if err := writeUTF(bw, g.Strand); err != nil {
			return err
		}
		if err := writeUTF(bw, g.Biotype); err != nil {
			return err
		}
		if err := writeUTF(bw, g.Description); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(g.Transcripts))); err != nil {
			return err
		}
		for _, t := range g.Transcripts {
			if err := writeUTF(bw, t.ID); err != nil {
				return err
			}
			if err := writeUTF(bw, t.Name); err != nil {
				return err
			}
			if err := writeI64(bw, t.Start); err != nil {
				return err
			}
			if err := writeI64(bw, t.End); err != nil {
				return err
			}
			if err := writeUTF(bw, t.Biotype); err != nil {
				return err
			}
			if err := writeBool(bw, t.ManeSelect); err != nil {
				return err
			}
			if err := writeBool(bw, t.ManeClinical); err != nil {
				return err
			}
			if err := writeI64(bw, t.CDSStart); err != nil {
				return err
			}
			if err := writeI64(bw, t.CDSEnd); err != nil {
				return err
			}
			if err := writeExons(bw, t.Exons); err != nil {
				return err
			}
		}
		if err := writeExons(bw, g.Exons); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeGeneCache reads a GENE-magic cache, returning ErrCacheCorrupt if
// the magic or version does not match.
func DecodeGeneCache(r io.Reader) (*GeneCache, error) {
	br := bufio.NewReader(r)
	magic, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if magic != magicGene {
		return nil, ErrCacheCorrupt
	}
	v, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if v != version {
		return nil, ErrCacheCorrupt
	}
	geneCount, err := readU32(br)
	if err != nil {
		return nil, err
	}
	c := &GeneCache{Genes: make([]Gene, geneCount)}
	for i := range c.Genes {
		g := &c.Genes[i]
		if g.Chrom, err = readUTF(br); err != nil {
			return nil, err
		}
		if g.Start, err = readI64(br); err != nil {
			return nil, err
		}
		if g.End, err = readI64(br); err != nil {
			return nil, err
		}
		if g.Name, err = readUTF(br); err != nil {
			return nil, err
		}
		if g.ID, err = readUTF(br); err != nil {
			return nil, err
		}
		if g.Strand, err = readUTF(br); err != nil {
			return nil, err
		}
		if g.Biotype, err = readUTF(br); err != nil {
			return nil, err
		}
		if g.Description, err = readUTF(br); err != nil {
			return nil, err
		}
		txCount, err := readU32(br)
		if err != nil {
			return nil, err
		}
		g.Transcripts = make([]Transcript, txCount)
		for j := range g.Transcripts {
			t := &g.Transcripts[j]
			if t.ID, err = readUTF(br); err != nil {
				return nil, err
			}
			if t.Name, err = readUTF(br); err != nil {
				return nil, err
			}
			if t.Start, err = readI64(br); err != nil {
				return nil, err
			}
			if t.End, err = readI64(br); err != nil {
				return nil, err
			}
			if t.Biotype, err = readUTF(br); err != nil {
				return nil, err
			}
			if t.ManeSelect, err = readBool(br); err != nil {
				return nil, err
			}
			if t.ManeClinical, err = readBool(br); err != nil {
				return nil, err
			}
			if t.CDSStart, err = readI64(br); err != nil {
				return nil, err
			}
			if t.CDSEnd, err = readI64(br); err != nil {
				return nil, err
			}
			if t.Exons, err = readExons(br); err != nil {
				return nil, err
			}
		}
		if g.Exons, err = readExons(br); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Encode writes the TXNM-magic binary form of c.
func (c *TranscriptCache) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeU32(bw, magicTxnm); err != nil {
		return err
	}
	if err := writeU32(bw, version); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(c.Genes))); err != nil {
		return err
	}
	for _, g := range c.Genes {
		if err := writeUTF(bw, g.ID); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(g.Transcripts))); err != nil {
			return err
		}
		for _, t := range g.Transcripts {
			if err := writeUTF(bw, t.ID); err != nil {
				return err
			}
			if err := writeUTF(bw, t.Name); err != nil {
				return err
			}
			if err := writeI64(bw, t.Start); err != nil {
				return err
			}
			if err := writeI64(bw, t.End); err != nil {
				return err
			}
			if err := writeUTF(bw, t.Biotype); err != nil {
				return err
			}
			if err := writeI64(bw, t.CDSStart); err != nil {
				return err
			}
			if err := writeI64(bw, t.CDSEnd); err != nil {
				return err
			}
			if err := writeExons(bw, t.Exons); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// DecodeTranscriptCache reads a TXNM-magic cache, returning ErrCacheCorrupt
// if the magic or version does not match.
func DecodeTranscriptCache(r io.Reader) (*TranscriptCache, error) {
	br := bufio.NewReader(r)
	magic, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if magic != magicTxnm {
		return nil, ErrCacheCorrupt
	}
	v, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if v != version {
		return nil, ErrCacheCorrupt
	}
	geneCount, err := readU32(br)
	if err != nil {
		return nil, err
	}
	c := &TranscriptCache{Genes: make([]TranscriptGene, geneCount)}
	for i := range c.Genes {
		g := &c.Genes[i]
		if g.ID, err = readUTF(br); err != nil {
			return nil, err
		}
		txCount, err := readU32(br)
		if err != nil {
			return nil, err
		}
		g.Transcripts = make([]NonManeTranscript, txCount)
		for j := range g.Transcripts {
			t := &g.Transcripts[j]
			if t.ID, err = readUTF(br); err != nil {
				return nil, err
			}
			if t.Name, err = readUTF(br); err != nil {
				return nil, err
			}
			if t.Start, err = readI64(br); err != nil {
				return nil, err
			}
			if t.End, err = readI64(br); err != nil {
				return nil, err
			}
			if t.Biotype, err = readUTF(br); err != nil {
				return nil, err
			}
			if t.CDSStart, err = readI64(br); err != nil {
				return nil, err
			}
			if t.CDSEnd, err = readI64(br); err != nil {
				return nil, err
			}
			if t.Exons, err = readExons(br); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

var cosmicStringFields = func(e *CosmicEntry) []*string {
	return []*string{
		&e.GeneName, &e.MutationID, &e.MutationCDS, &e.MutationAA,
		&e.MutationDescription, &e.MutationZygosity, &e.Chrom,
		&e.GenomeStart, &e.GenomeStop, &e.Strand, &e.FathmmPrediction,
		&e.FathmmScore, &e.SomaticStatus, &e.PubmedID, &e.SampleName,
	}
}

// Encode writes the COSM-magic binary form of c.
func (c *CosmicCache) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeU32(bw, magicCosm); err != nil {
		return err
	}
	if err := writeU32(bw, version); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(c.Entries))); err != nil {
		return err
	}
	for i := range c.Entries {
		e := &c.Entries[i]
		for _, f := range cosmicStringFields(e) {
			if err := writeUTF(bw, *f); err != nil {
				return err
			}
		}
		if err := writeBool(bw, e.Verified); err != nil {
			return err
		}
		if err := writeBool(bw, e.Somatic); err != nil {
			return err
		}
		if err := writeBool(bw, e.Pathogenic); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeCosmicCache reads a COSM-magic cache, returning ErrCacheCorrupt if
// the magic or version does not match.
func DecodeCosmicCache(r io.Reader) (*CosmicCache, error) {
	br := bufio.NewReader(r)
	magic, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if magic != magicCosm {
		return nil, ErrCacheCorrupt
	}
	v, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if v != version {
		return nil, ErrCacheCorrupt
	}
	count, err := readU32(br)
	if err != nil {
		return nil, err
	}
	c := &CosmicCache{Entries: make([]CosmicEntry, count)}
	for i := range c.Entries {
		e := &c.Entries[i]
		for _, f := range cosmicStringFields(e) {
			if *f, err = readUTF(br); err != nil {
				return nil, err
			}
		}
		if e.Verified, err = readBool(br); err != nil {
			return nil, err
		}
		if e.Somatic, err = readBool(br); err != nil {
			return nil, err
		}
		if e.Pathogenic, err = readBool(br); err != nil {
			return nil, err
		}
	}
	return c, nil
}
