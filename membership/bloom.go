// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package membership implements C7 (the cache-coherent Bloom filter
// builder), C8 (the cFP/cascading-Bloom critical-false-positive
// construction) and C9 (the graph membership oracle). The Bloom layer
// is built on github.com/greatroar/blobloom, a blocked/cache-coherent
// Bloom filter whose design (one cache-line block selected by the
// first hash, the remaining k-1 hashes probed only within that block)
// matches the cache-coherent variant spec'd for C7, rather than
// hand-rolling one.
package membership

import (
	"bytes"
	"encoding/gob"

	"github.com/greatroar/blobloom"
	"github.com/grailbio/dsk/kmer"
)

// BloomFilter wraps a blobloom.Filter sized for a known number of
// solid k-mers and a target false-positive rate, and exposes the
// k-mer-typed Add/AddAtomic/Contains operations the rest of the
// pipeline needs.
type BloomFilter struct {
	f      *blobloom.Filter
	kmerLen int
}

// NewBloomFilter sizes a filter for nElements items at the given false
// positive rate, matching dbgh5's -bloom-false-positive-rate flag.
func NewBloomFilter(kmerLen int, nElements uint64, fpRate float64) *BloomFilter {
	f := blobloom.NewOptimized(blobloom.Config{
		Capacity: nElements,
		FPRate:   fpRate,
	})
	return &BloomFilter{f: f, kmerLen: kmerLen}
}

// Add inserts k (already canonicalized). Not safe for concurrent use;
// see AddAtomic for parallel construction.
func (b *BloomFilter) Add(k kmer.Kmer) {
	b.f.Add(k.Hash(bloomSeed))
}

// AddAtomic inserts k using lock-free atomic updates, so that several
// goroutines can build into the same filter concurrently. Build fills
// its filter sequentially with Add.
func (b *BloomFilter) AddAtomic(k kmer.Kmer) {
	b.f.AddAtomic(k.Hash(bloomSeed))
}

// Contains reports whether k may be in the set (false positives
// possible, false negatives never).
func (b *BloomFilter) Contains(k kmer.Kmer) bool {
	return b.f.Has(k.Hash(bloomSeed))
}

// bloomSeed is an arbitrary fixed seed distinguishing the primary
// Bloom filter's hash family from the cFP cascade's (see cascade.go),
// so that a false positive in one layer isn't correlated with the
// other.
const bloomSeed = 0x5a1d5eed

// NumBits returns the size of the underlying bit array, the
// "size_bits" property the graph artifact records alongside
// /debloom/bloom (spec §6).
func (b *BloomFilter) NumBits() uint64 { return b.f.NumBits() }

// MarshalBinary serializes the filter's bit array and parameters using
// blobloom.Filter's gob support, for writing to /debloom/bloom.
func (b *BloomFilter) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b.f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadBloomFilter reconstructs a BloomFilter from bytes written by
// MarshalBinary.
func LoadBloomFilter(kmerLen int, data []byte) (*BloomFilter, error) {
	f := new(blobloom.Filter)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(f); err != nil {
		return nil, err
	}
	return &BloomFilter{f: f, kmerLen: kmerLen}, nil
}
