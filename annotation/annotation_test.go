// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package annotation

import (
	"bytes"
	"testing"
)

func sampleGeneCache() *GeneCache {
	return &GeneCache{
		Genes: []Gene{
			{
				Chrom: "chr1", Start: 1000, End: 5000,
				Name: "FOO", ID: "ENSG000001", Strand: "+",
				Biotype: "protein_coding", Description: "",
				Transcripts: []Transcript{
					{
						ID: "ENST000001", Name: "FOO-201",
						Start: 1000, End: 5000, Biotype: "protein_coding",
						ManeSelect: true, ManeClinical: false,
						CDSStart: 1100, CDSEnd: 4900,
						Exons: []Exon{{1000, 1200}, {3000, 5000}},
					},
				},
				Exons: []Exon{{1000, 1200}, {3000, 5000}},
			},
		},
	}
}

func TestGeneCacheRoundTrip(t *testing.T) {
	want := sampleGeneCache()
	var buf bytes.Buffer
	if err := want.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeGeneCache(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Genes) != 1 {
		t.Fatalf("got %d genes, want 1", len(got.Genes))
	}
	g := got.Genes[0]
	if g.Chrom != "chr1" || g.Start != 1000 || g.End != 5000 || g.Name != "FOO" {
		t.Fatalf("got %+v", g)
	}
	if g.Description != "" {
		t.Fatalf("got description %q, want empty", g.Description)
	}
	if len(g.Transcripts) != 1 || !g.Transcripts[0].ManeSelect {
		t.Fatalf("got transcripts %+v", g.Transcripts)
	}
	if len(g.Exons) != 2 || g.Exons[1].End != 5000 {
		t.Fatalf("got exons %+v", g.Exons)
	}
}

func TestGeneCacheRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	if _, err := DecodeGeneCache(&buf); err != ErrCacheCorrupt {
		t.Fatalf("got %v, want ErrCacheCorrupt", err)
	}
}

func TestGeneCacheRejectsBadVersion(t *testing.T) {
	want := sampleGeneCache()
	var buf bytes.Buffer
	if err := want.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	// Version is the second little-endian uint32, right after the magic.
	raw[4] = 0xFF
	if _, err := DecodeGeneCache(bytes.NewReader(raw)); err != ErrCacheCorrupt {
		t.Fatalf("got %v, want ErrCacheCorrupt", err)
	}
}

func TestTranscriptCacheRoundTrip(t *testing.T) {
	want := &TranscriptCache{
		Genes: []TranscriptGene{
			{
				ID: "ENSG000002",
				Transcripts: []NonManeTranscript{
					{
						ID: "ENST000009", Name: "BAR-205",
						Start: 200, End: 800, Biotype: "retained_intron",
						CDSStart: 0, CDSEnd: 0,
						Exons: []Exon{{200, 400}, {600, 800}},
					},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := want.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTranscriptCache(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Genes) != 1 || got.Genes[0].ID != "ENSG000002" {
		t.Fatalf("got %+v", got.Genes)
	}
	tx := got.Genes[0].Transcripts
	if len(tx) != 1 || tx[0].Name != "BAR-205" || len(tx[0].Exons) != 2 {
		t.Fatalf("got transcripts %+v", tx)
	}
}

func TestTranscriptCacheRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 2, 3, 4})
	if _, err := DecodeTranscriptCache(&buf); err != ErrCacheCorrupt {
		t.Fatalf("got %v, want ErrCacheCorrupt", err)
	}
}

func TestCosmicCacheRoundTrip(t *testing.T) {
	want := &CosmicCache{
		Entries: []CosmicEntry{
			{
				GeneName: "TP53", MutationID: "COSM10662",
				MutationCDS: "c.818G>A", MutationAA: "p.R273H",
				MutationDescription: "Substitution - Missense",
				MutationZygosity:    "het",
				Chrom:               "17", GenomeStart: "7577120", GenomeStop: "7577120",
				Strand: "-", FathmmPrediction: "PATHOGENIC", FathmmScore: "0.99",
				SomaticStatus: "Confirmed somatic variant", PubmedID: "1234567",
				SampleName: "sample-1",
				Verified:   true, Somatic: true, Pathogenic: true,
			},
			{}, // zero-value entry exercises empty-string round trip.
		},
	}
	var buf bytes.Buffer
	if err := want.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCosmicCache(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(got.Entries))
	}
	e := got.Entries[0]
	if e.GeneName != "TP53" || e.MutationAA != "p.R273H" || !e.Pathogenic {
		t.Fatalf("got %+v", e)
	}
	if got.Entries[1].GeneName != "" || got.Entries[1].Verified {
		t.Fatalf("got %+v, want zero value", got.Entries[1])
	}
}

func TestCosmicCacheRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{9, 9, 9, 9})
	if _, err := DecodeCosmicCache(&buf); err != ErrCacheCorrupt {
		t.Fatalf("got %v, want ErrCacheCorrupt", err)
	}
}
