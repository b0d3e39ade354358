// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refdict

import (
	"strings"

	"github.com/genomeview/aligncore/fai"
	"golang.org/x/exp/mmap"
)

// FastaSource implements mismatch.ReferenceSource, backed by a
// memory-mapped FASTA file and its .fai index, grounded on fai.File's use
// of golang.org/x/exp/mmap.
type FastaSource struct {
	file *fai.File
}

// OpenFastaSource opens the FASTA at fastaPath with its companion .fai
// index. The mapping is read-only and safe for concurrent Bases calls.
func OpenFastaSource(fastaPath, faiPath string) (*FastaSource, error) {
	idxFile, err := mmapOpenIndex(faiPath)
	if err != nil {
		return nil, err
	}
	defer idxFile.Close()
	idx, err := fai.ReadFrom(idxFile)
	if err != nil {
		return nil, err
	}
	f, err := fai.OpenFile(fastaPath, idx)
	if err != nil {
		return nil, err
	}
	return &FastaSource{file: f}, nil
}

func mmapOpenIndex(path string) (*mmap.ReaderAt, error) {
	return mmap.Open(path)
}

// Bases returns the uppercase reference bases for chrom over the 1-based
// inclusive interval [start1, end1].
func (f *FastaSource) Bases(chrom string, start1, end1 int) (string, error) {
	seq, err := f.file.SeqRange(chrom, start1-1, end1)
	if err != nil {
		return "", err
	}
	buf := make([]byte, end1-start1+1)
	if _, err := seq.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(string(buf)), nil
}

// Close releases the mapped FASTA file.
func (f *FastaSource) Close() error { return f.file.Close() }

// PrefetchAsync kicks off an asynchronous warm-up read of [start1, end1] on
// chrom, returning a channel that receives the result once ready. This is
// the async half of the Design Notes §9 "reference-base acquisition is
// today synchronous" redesign: callers that cannot wait use Bases directly
// and degrade to "no mismatch detail" on error. No package in this module
// calls PrefetchAsync; the viewport scheduler does not use it.
func (f *FastaSource) PrefetchAsync(chrom string, start1, end1 int) <-chan error {
	ch := make(chan error, 1)
	go func() {
		_, err := f.Bases(chrom, start1, end1)
		ch <- err
	}()
	return ch
}
