// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package mphf defines the interface the optional minimal-perfect-hash
// abundance map must satisfy to sit on top of the solid k-mer set (spec
// §1: "the minimal-perfect-hash abundance map (an optional acceleration
// layer consuming the solid set)" is explicitly an out-of-scope external
// collaborator). Building an actual MPHF (e.g. BooPHF, as
// original_source/gatb-core/tools/collections/impl/BooPHF.hpp does) is
// out of scope; this package only fixes the consumption-side contract
// and provides one reference implementation (a sorted binary-search
// table, not a true MPHF) so callers that don't have a real MPHF
// library wired can still exercise the interface end to end.
package mphf

import (
	"sort"

	"github.com/grailbio/dsk/kmer"
)

// AbundanceMap maps a canonical k-mer present in the solid set to its
// aggregate abundance, the operation traversal algorithms (unitig
// assembly, branching analysis) need beyond plain membership.
type AbundanceMap interface {
	// Get returns the abundance recorded for k and ok=true if k is in
	// the map, or ok=false otherwise.
	Get(k kmer.Kmer) (abundance uint64, ok bool)
	// Len returns the number of entries in the map.
	Len() int
}

// entry is one (kmer, abundance) pair in SortedTableMap's backing slice.
type entry struct {
	kmer      kmer.Kmer
	abundance uint64
}

// SortedTableMap is a reference AbundanceMap: a sorted slice of (kmer,
// abundance) pairs queried by binary search. It has O(log n) lookup and
// 24 bytes/entry resident, versus a true MPHF's O(1) lookup and ~2-4
// bits/entry; it exists purely to give callers of the AbundanceMap
// interface something concrete to link against until a real MPHF
// library is wired in.
type SortedTableMap struct {
	entries []entry
}

// BuildSortedTableMap constructs a SortedTableMap from an iterator over
// the solid set (e.g. the one dsk.SolidSetWriter's backing collection
// replays), sorting once at construction time.
func BuildSortedTableMap(solidIter func(yield func(k kmer.Kmer, abundance uint64) bool)) *SortedTableMap {
	var entries []entry
	solidIter(func(k kmer.Kmer, abundance uint64) bool {
		entries = append(entries, entry{kmer: k, abundance: abundance})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].kmer.Less(entries[j].kmer) })
	return &SortedTableMap{entries: entries}
}

// Get implements AbundanceMap.
func (m *SortedTableMap) Get(k kmer.Kmer) (uint64, bool) {
	i := sort.Search(len(m.entries), func(i int) bool { return !m.entries[i].kmer.Less(k) })
	if i < len(m.entries) && m.entries[i].kmer.Equal(k) {
		return m.entries[i].abundance, true
	}
	return 0, false
}

// Len implements AbundanceMap.
func (m *SortedTableMap) Len() int { return len(m.entries) }
