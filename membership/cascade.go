// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package membership

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/greatroar/blobloom"
	"github.com/grailbio/dsk/kmer"
)

// cascadeBloom is a small Bloom filter used only inside the cascading
// cFP chain. It hashes with xxhash rather than the farm-hash family
// BloomFilter (the main graph Bloom) uses, so a false positive at one
// cascade level is never correlated with a false positive at the main
// Bloom filter or at another level -- each level gets its own seed on
// top of the independent hash family.
type cascadeBloom struct {
	f    *blobloom.Filter
	seed uint64
}

func newCascadeBloom(nElements uint64, fpRate float64, seed uint64) *cascadeBloom {
	if nElements == 0 {
		nElements = 1
	}
	f := blobloom.NewOptimized(blobloom.Config{Capacity: nElements, FPRate: fpRate})
	return &cascadeBloom{f: f, seed: seed}
}

func (b *cascadeBloom) hash(k kmer.Kmer) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], k.Hi)
	binary.LittleEndian.PutUint64(buf[8:16], k.Lo)
	binary.LittleEndian.PutUint64(buf[16:24], b.seed)
	return xxhash.Sum64(buf[:])
}

func (b *cascadeBloom) Add(k kmer.Kmer)           { b.f.Add(b.hash(k)) }
func (b *cascadeBloom) Contains(k kmer.Kmer) bool { return b.f.Has(b.hash(k)) }

func (b *cascadeBloom) marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b.f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func loadCascadeBloom(data []byte, seed uint64) (*cascadeBloom, error) {
	f := new(blobloom.Filter)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(f); err != nil {
		return nil, err
	}
	return &cascadeBloom{f: f, seed: seed}, nil
}

// cascade level seeds, arbitrary but distinct and fixed so that a graph
// artifact rebuilt from the same solid set is byte-for-byte reproducible
// (Testable Property 7).
const (
	seedLevel2 = 0x1eaf2
	seedLevel3 = 0x1eaf3
	seedLevel4 = 0x1eaf4
)

// CascadingCFP is the "cascading Bloom" cFP storage strategy (spec
// §4.8): instead of storing the critical-false-positive set exactly, it
// approximates membership with a chain of geometrically shrinking Bloom
// filters, each correcting the false positives of the one before, plus
// an exact tail for the final residual. A query traverses the chain:
//
//	present in Bloom2 AND (absent in Bloom3 OR (present in Bloom4 AND absent in tail))
//
// which is algebraically the -debloom=cascading half of the oracle's
// combined "present in Bloom1 AND (absent in Bloom2 OR (present in
// Bloom3 AND (absent in Bloom4 OR present in tail)))" (spec's Bloom1
// there is the main graph Bloom filter built by C7, already checked by
// Oracle.Contains before Oracle ever calls CFP.Contains).
type CascadingCFP struct {
	bloom2, bloom3, bloom4 *cascadeBloom
	tail                   []kmer.Kmer
}

// BuildCascadingCFP constructs the cascade from the solid k-mer set and
// the already-built main Bloom filter, per spec §4.8:
//
//  1. S = the true cFP set (BuildCandidates' output: non-solid
//     neighbours of solid k-mers that the main Bloom filter reports
//     present). U = the larger candidate universe (non-solid neighbours,
//     without the Bloom test).
//  2. Bloom2 is built from S.
//  3. Bloom3 is built from Bloom2's false positives against U\S (the
//     elements Bloom2 wrongly claims are in S).
//  4. Bloom4 is built from Bloom3's false positives against S (the
//     elements Bloom3 wrongly flags as suspect, needing recovery).
//  5. tail is the exact set of Bloom4's remaining false positives
//     against U\S, closing the loop exactly rather than recursing
//     forever.
//
// fpRate is the target false-positive rate (spec's epsilon); each
// successive level is sized at approximately fpRate times its
// predecessor's element count, shrinking geometrically as the spec
// requires.
func BuildCascadingCFP(solidIter func(yield func(kmer.Kmer) bool), kmerLen int, bloom *BloomFilter, solid SolidLookup, fpRate float64) *CascadingCFP {
	var universe, trueCFP []kmer.Kmer
	solidIter(func(x kmer.Kmer) bool {
		for _, y := range Neighbours(x, kmerLen) {
			if solid.Contains(y) {
				continue
			}
			universe = append(universe, y)
			if bloom.Contains(y) {
				trueCFP = append(trueCFP, y)
			}
		}
		return true
	})
	s := dedupeKmers(trueCFP)
	u := dedupeKmers(universe)
	notS := setMinus(u, s)

	bloom2 := newCascadeBloom(uint64(len(s)), fpRate, seedLevel2)
	for _, q := range s {
		bloom2.Add(q)
	}

	fp2 := filterKmers(notS, bloom2.Contains)
	bloom3 := newCascadeBloom(uint64(len(fp2)), fpRate, seedLevel3)
	for _, q := range fp2 {
		bloom3.Add(q)
	}

	fp3 := filterKmers(s, bloom3.Contains)
	bloom4 := newCascadeBloom(uint64(len(fp3)), fpRate, seedLevel4)
	for _, q := range fp3 {
		bloom4.Add(q)
	}

	tail := filterKmers(notS, func(q kmer.Kmer) bool {
		return bloom2.Contains(q) && bloom3.Contains(q) && bloom4.Contains(q)
	})

	return &CascadingCFP{bloom2: bloom2, bloom3: bloom3, bloom4: bloom4, tail: tail}
}

// Contains implements CFP by traversing the cascade (see type doc).
func (c *CascadingCFP) Contains(k kmer.Kmer) bool {
	if !c.bloom2.Contains(k) {
		return false
	}
	if !c.bloom3.Contains(k) {
		return true
	}
	if !c.bloom4.Contains(k) {
		return false
	}
	return !containsSortedKmer(c.tail, k)
}

func dedupeKmers(ks []kmer.Kmer) []kmer.Kmer {
	sort.Slice(ks, func(i, j int) bool { return ks[i].Less(ks[j]) })
	out := ks[:0]
	for i, k := range ks {
		if i == 0 || !k.Equal(ks[i-1]) {
			out = append(out, k)
		}
	}
	return out
}

// setMinus returns the elements of a (sorted, deduped) not present in b
// (sorted, deduped).
func setMinus(a, b []kmer.Kmer) []kmer.Kmer {
	var out []kmer.Kmer
	for _, k := range a {
		if !containsSortedKmer(b, k) {
			out = append(out, k)
		}
	}
	return out
}

func filterKmers(ks []kmer.Kmer, pred func(kmer.Kmer) bool) []kmer.Kmer {
	var out []kmer.Kmer
	for _, k := range ks {
		if pred(k) {
			out = append(out, k)
		}
	}
	return out
}

func containsSortedKmer(sorted []kmer.Kmer, k kmer.Kmer) bool {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Less(k) })
	return i < len(sorted) && sorted[i].Equal(k)
}

// CascadeArtifact is the marshaled form of a CascadingCFP, one blob per
// /debloom/cfp_cascade/{1,2,3,tail} collection (spec §6).
type CascadeArtifact struct {
	Bloom2, Bloom3, Bloom4 []byte
	Tail                   []byte
}

// Marshal serializes c for persistence.
func (c *CascadingCFP) Marshal() (CascadeArtifact, error) {
	b2, err := c.bloom2.marshal()
	if err != nil {
		return CascadeArtifact{}, err
	}
	b3, err := c.bloom3.marshal()
	if err != nil {
		return CascadeArtifact{}, err
	}
	b4, err := c.bloom4.marshal()
	if err != nil {
		return CascadeArtifact{}, err
	}
	return CascadeArtifact{Bloom2: b2, Bloom3: b3, Bloom4: b4, Tail: marshalKmers(c.tail)}, nil
}

// LoadCascadingCFP reconstructs a CascadingCFP from a CascadeArtifact.
func LoadCascadingCFP(a CascadeArtifact) (*CascadingCFP, error) {
	b2, err := loadCascadeBloom(a.Bloom2, seedLevel2)
	if err != nil {
		return nil, err
	}
	b3, err := loadCascadeBloom(a.Bloom3, seedLevel3)
	if err != nil {
		return nil, err
	}
	b4, err := loadCascadeBloom(a.Bloom4, seedLevel4)
	if err != nil {
		return nil, err
	}
	tail, err := unmarshalKmers(a.Tail)
	if err != nil {
		return nil, err
	}
	return &CascadingCFP{bloom2: b2, bloom3: b3, bloom4: b4, tail: tail}, nil
}
