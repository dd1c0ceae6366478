// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bank

import (
	"io"

	"github.com/grailbio/dsk/encoding/fastq"
)

// FASTQSource adapts the teacher's fastq.Scanner to Source. Since
// Scanner is a forward-only stream, Estimate is computed from a
// caller-supplied size hint (typically the input file's byte length)
// rather than a true sequence count: C1's Configuration Planner only
// needs an order-of-magnitude bound to size partitions, not an exact
// count.
type FASTQSource struct {
	scanner   *fastq.Scanner
	sizeBytes int64
	read      fastq.Read
	maxLen    int64
}

// NewFASTQSource wraps r, a FASTQ stream whose uncompressed size is
// approximately sizeBytes (0 if unknown).
func NewFASTQSource(r io.Reader, sizeBytes int64) *FASTQSource {
	return &FASTQSource{
		scanner:   fastq.NewScanner(r, fastq.ID|fastq.Seq),
		sizeBytes: sizeBytes,
	}
}

func (s *FASTQSource) Scan(rec *Record) bool {
	if !s.scanner.Scan(&s.read) {
		return false
	}
	rec.Name = s.read.ID
	rec.Seq = s.read.Seq
	if int64(len(rec.Seq)) > s.maxLen {
		s.maxLen = int64(len(rec.Seq))
	}
	return true
}

func (s *FASTQSource) Err() error { return wrapErr(s.scanner.Err()) }

// Estimate reports a rough read count derived from sizeBytes assuming
// a typical ~150bp read takes 2 bytes per base (sequence plus quality)
// plus ~40 bytes of ID/plus lines and newlines, and the longest
// sequence seen so far (0 before the first Scan).
func (s *FASTQSource) Estimate() (numSeqs, totalBases, maxLen int64) {
	const assumedReadLen = 150
	const bytesPerRead = assumedReadLen*2 + 40 // seq+qual plus ~4 header/plus lines
	if s.sizeBytes > 0 {
		numSeqs = s.sizeBytes / bytesPerRead
		totalBases = numSeqs * assumedReadLen
	}
	if s.maxLen > maxLen {
		maxLen = s.maxLen
	}
	return
}
