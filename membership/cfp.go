// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package membership

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/grailbio/dsk/kmer"
)

var errMalformedKmerList = errors.New("membership: malformed kmer list: length not a multiple of 16")

// SolidLookup reports whether a canonical k-mer is a member of the
// solid set built by C6, the one piece of state C8's candidate
// generation needs beyond the Bloom filter itself.
type SolidLookup interface {
	Contains(k kmer.Kmer) bool
}

// CFP is the critical-false-positive membership test: a k-mer not in
// the solid set that the Bloom filter nonetheless reports as present,
// and that is reachable as a neighbour of a true solid k-mer (spec
// §4.8's "distinctness" guarantee only has to hold for such q).
type CFP interface {
	Contains(k kmer.Kmer) bool
}

// BuildCandidates enumerates, for every solid k-mer in solid, its 8
// De Bruijn neighbours, and returns the canonical forms that are not
// themselves solid but that bloom reports as present -- the raw cFP
// candidate multiset C8 hands to either storage strategy.
func BuildCandidates(solidIter func(yield func(kmer.Kmer) bool), kmerLen int, bloom *BloomFilter, solid SolidLookup) []kmer.Kmer {
	var candidates []kmer.Kmer
	solidIter(func(x kmer.Kmer) bool {
		for _, y := range Neighbours(x, kmerLen) {
			if solid.Contains(y) {
				continue
			}
			if bloom.Contains(y) {
				candidates = append(candidates, y)
			}
		}
		return true
	})
	return candidates
}

// SortedCFP is the "sorted set" storage strategy (spec §4.8): collect
// candidates, sort, deduplicate, and answer Contains by binary search.
// This is the simpler of the two strategies and the one
// -debloom=original asks for.
type SortedCFP struct {
	sorted []kmer.Kmer
}

// NewSortedCFP builds a SortedCFP from a candidate multiset, sorting
// and deduplicating it in place.
func NewSortedCFP(candidates []kmer.Kmer) *SortedCFP {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Less(candidates[j]) })
	deduped := candidates[:0]
	for i, c := range candidates {
		if i == 0 || !c.Equal(candidates[i-1]) {
			deduped = append(deduped, c)
		}
	}
	return &SortedCFP{sorted: deduped}
}

// Contains implements CFP.
func (s *SortedCFP) Contains(k kmer.Kmer) bool {
	i := sort.Search(len(s.sorted), func(i int) bool { return !s.sorted[i].Less(k) })
	return i < len(s.sorted) && s.sorted[i].Equal(k)
}

// Len returns the number of distinct cFP k-mers.
func (s *SortedCFP) Len() int { return len(s.sorted) }

// Marshal serializes the sorted cFP set as consecutive 16-byte (Hi,Lo)
// records, for writing to /debloom/cfp.
func (s *SortedCFP) Marshal() []byte { return marshalKmers(s.sorted) }

// LoadSortedCFP reconstructs a SortedCFP from bytes written by Marshal.
func LoadSortedCFP(data []byte) (*SortedCFP, error) {
	ks, err := unmarshalKmers(data)
	if err != nil {
		return nil, err
	}
	return &SortedCFP{sorted: ks}, nil
}

func marshalKmers(ks []kmer.Kmer) []byte {
	buf := make([]byte, 16*len(ks))
	for i, k := range ks {
		binary.LittleEndian.PutUint64(buf[16*i:], k.Hi)
		binary.LittleEndian.PutUint64(buf[16*i+8:], k.Lo)
	}
	return buf
}

func unmarshalKmers(data []byte) ([]kmer.Kmer, error) {
	if len(data)%16 != 0 {
		return nil, errMalformedKmerList
	}
	ks := make([]kmer.Kmer, len(data)/16)
	for i := range ks {
		ks[i] = kmer.Kmer{
			Hi: binary.LittleEndian.Uint64(data[16*i:]),
			Lo: binary.LittleEndian.Uint64(data[16*i+8:]),
		}
	}
	return ks, nil
}
