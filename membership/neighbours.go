// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package membership

import "github.com/grailbio/dsk/kmer"

// Neighbours returns the up to 8 De Bruijn neighbours of k (4
// successors formed by appending a base on the right, 4 predecessors
// formed by prepending one on the left), each canonicalised, as spec'd
// for C8/C9. k must already be in canonical form; kmerLen is its
// length.
func Neighbours(k kmer.Kmer, kmerLen int) [8]kmer.Kmer {
	var out [8]kmer.Kmer
	for b := uint8(0); b < 4; b++ {
		out[b] = kmer.ShiftIn(k, b, kmerLen).Canonical(kmerLen)
		out[4+b] = kmer.ShiftInLeft(k, b, kmerLen).Canonical(kmerLen)
	}
	return out
}
