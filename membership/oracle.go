// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package membership

import "github.com/grailbio/dsk/kmer"

// Oracle implements C9: the read-only, thread-safe De Bruijn graph
// membership query built from a Bloom filter and a cFP set. Per Design
// Note 1, both the sorted-set and cascading-Bloom cFP strategies
// satisfy the same single-method CFP interface, so Oracle needs no
// knowledge of which one it was built with.
type Oracle struct {
	KmerLen int
	bloom   *BloomFilter
	cfp     CFP
}

// NewOracle wires a Bloom filter and a cFP set into a query interface.
// All state is immutable after construction, making Oracle safe for
// concurrent use by many goroutines without further synchronization
// (spec §4.9).
func NewOracle(kmerLen int, bloom *BloomFilter, cfp CFP) *Oracle {
	return &Oracle{KmerLen: kmerLen, bloom: bloom, cfp: cfp}
}

// Contains reports whether kmer (any orientation) is a vertex of the
// graph: Bloom.Contains(canonical) && !cFP.Contains(canonical).
func (o *Oracle) Contains(k kmer.Kmer) bool {
	c := k.Canonical(o.KmerLen)
	return o.bloom.Contains(c) && !o.cfp.Contains(c)
}

// Direction selects successors (Forward, appending a base on the 3'
// end) or predecessors (Backward, prepending on the 5' end) in
// Neighbours/IsBranching.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Neighbours returns the up to 4 accepted neighbours of k in the given
// direction: for each of the 4 possible appended/prepended bases, form
// the shifted k-mer, canonicalise it, and keep it iff Contains accepts
// it (spec §4.9).
func (o *Oracle) Neighbours(k kmer.Kmer, dir Direction) []kmer.Kmer {
	c := k.Canonical(o.KmerLen)
	var out []kmer.Kmer
	for b := uint8(0); b < 4; b++ {
		var y kmer.Kmer
		if dir == Forward {
			y = kmer.ShiftIn(c, b, o.KmerLen)
		} else {
			y = kmer.ShiftInLeft(c, b, o.KmerLen)
		}
		y = y.Canonical(o.KmerLen)
		if o.Contains(y) {
			out = append(out, y)
		}
	}
	return out
}

// IsBranching reports whether k has anything other than exactly one
// successor and exactly one predecessor (spec §4.9).
func (o *Oracle) IsBranching(k kmer.Kmer) bool {
	succ := o.Neighbours(k, Forward)
	if len(succ) != 1 {
		return true
	}
	pred := o.Neighbours(k, Backward)
	return len(pred) != 1
}
