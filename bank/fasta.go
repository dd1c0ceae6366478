// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bank

import (
	"io"

	"github.com/grailbio/dsk/encoding/fasta"
)

// FASTASource adapts an already-parsed fasta.Fasta (the teacher's eager,
// in-memory FASTA reader) to Source, walking its sequences in file
// order.
type FASTASource struct {
	f    fasta.Fasta
	seqs []string
	i    int
}

// NewFASTASource parses r as a FASTA file and returns a Source over its
// sequences. Cleaning (stripping runs of non-ACGT) is left to the
// caller's kmer.Iterator, which already skips invalid bases, so New is
// called without fasta.OptClean.
func NewFASTASource(r io.Reader) (*FASTASource, error) {
	f, err := fasta.New(r)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &FASTASource{f: f, seqs: f.SeqNames()}, nil
}

func (s *FASTASource) Scan(rec *Record) bool {
	if s.i >= len(s.seqs) {
		return false
	}
	name := s.seqs[s.i]
	s.i++
	length, err := s.f.Len(name)
	if err != nil {
		return false
	}
	seq, err := s.f.Get(name, 0, length)
	if err != nil {
		return false
	}
	rec.Name = name
	rec.Seq = seq
	return true
}

func (s *FASTASource) Err() error { return nil }

func (s *FASTASource) Estimate() (numSeqs, totalBases, maxLen int64) {
	numSeqs = int64(len(s.seqs))
	for _, name := range s.seqs {
		length, err := s.f.Len(name)
		if err != nil {
			continue
		}
		totalBases += int64(length)
		if int64(length) > maxLen {
			maxLen = int64(length)
		}
	}
	return
}
