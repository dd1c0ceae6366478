// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bank adapts the teacher's FASTA and FASTQ readers
// (github.com/grailbio/dsk/encoding/fasta, .../encoding/fastq) to the
// Source contract C1 needs: a sequence stream that can additionally be
// asked, up front, for a cheap estimate of its own size so the
// Configuration Planner can size partitions and Bloom filters before
// doing a full pass over the data.
package bank

import (
	"github.com/grailbio/dsk/dskerr"
)

// Record is one sequence read from a Source: its raw nucleotide string,
// ready to be handed to kmer.Iterator.
type Record struct {
	Name string
	Seq  string
}

// Source is a stream of sequences drawn from one or more input files
// (a "bank" in spec terminology). Scan/Err follow the teacher's
// fastq.Scanner convention: call Scan repeatedly until it returns
// false, then check Err to distinguish clean EOF from failure.
type Source interface {
	// Scan advances to the next record, reporting whether one was found.
	Scan(r *Record) bool

	// Err returns the first error encountered, or nil if Scan returned
	// false because the source was exhausted cleanly.
	Err() error

	// Estimate returns a cheap, possibly approximate, upper bound on the
	// number of sequences, total bases, and the longest single sequence
	// in the source. Implementations that can't estimate without a full
	// scan (e.g. a single eagerly-parsed FASTA file) may compute it once
	// at construction time and cache it.
	Estimate() (numSeqs, totalBases, maxLen int64)
}

// MultiSource concatenates several Sources into one, in order, the way
// dbgh5 treats a list of -in files as one logical bank.
type MultiSource struct {
	sources []Source
	i       int
	err     error
}

// NewMultiSource returns a Source that scans each of sources in turn.
func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) Scan(r *Record) bool {
	for m.i < len(m.sources) {
		if m.sources[m.i].Scan(r) {
			return true
		}
		if err := m.sources[m.i].Err(); err != nil {
			m.err = err
			return false
		}
		m.i++
	}
	return false
}

func (m *MultiSource) Err() error { return m.err }

func (m *MultiSource) Estimate() (numSeqs, totalBases, maxLen int64) {
	for _, s := range m.sources {
		n, b, l := s.Estimate()
		numSeqs += n
		totalBases += b
		if l > maxLen {
			maxLen = l
		}
	}
	return
}

// wrapErr tags a lower-level parse error as dskerr.Input, the kind the
// Configuration Planner and CLI use to report malformed input banks
// distinctly from resource or I/O failures.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return dskerr.E(dskerr.Input, err)
}
