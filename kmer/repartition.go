// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmer

// Repartitioner implements C2, the minimizer repartitioner: a pure function
// part(kmer) = repart(minimizer(kmer)) mapping each canonical k-mer to a
// partition id in [0,N). It is deterministic and, for the frequency
// scheme, persisted in the graph artifact (spec §4.2, §6) so that
// reopening a graph reproduces the same partitioning.
type Repartitioner struct {
	KmerLen int
	M       int
	N       int
	Scheme  OrderScheme

	// rank is non-nil only for the Frequency scheme; see BuildFrequencyRank.
	rank []uint32
	// repart[m-mer] -> partition id, length 4^M.
	repart []uint32
}

// NewLexicographicRepartitioner builds a Repartitioner using scheme (i):
// repart is simply minimizer mod N.
func NewLexicographicRepartitioner(kmerLen, m, n int) *Repartitioner {
	return &Repartitioner{KmerLen: kmerLen, M: m, N: n, Scheme: Lexicographic}
}

// NewFrequencyRepartitioner builds a Repartitioner using scheme (ii): a
// repart table computed once from sampledMmers (packed m-mer values taken
// from ~1e6 sampled k-mers of the input), assigning partition ids
// round-robin over the frequency-sorted m-mers so that common m-mers are
// spread evenly across partitions.
func NewFrequencyRepartitioner(kmerLen, m, n int, sampledMmers []uint64) *Repartitioner {
	rank := BuildFrequencyRank(sampledMmers, m)
	nMmers := len(rank)
	// rank[v] is the position of m-mer v in ascending-frequency order;
	// invert it to get the m-mers in that order, then deal them
	// round-robin across the N partitions.
	byRank := make([]uint32, nMmers)
	for mmer, r := range rank {
		byRank[r] = uint32(mmer)
	}
	repart := make([]uint32, nMmers)
	for r, mmer := range byRank {
		repart[mmer] = uint32(r % n)
	}
	return &Repartitioner{KmerLen: kmerLen, M: m, N: n, Scheme: Frequency, rank: rank, repart: repart}
}

// LoadRepartitioner reconstructs a frequency-scheme Repartitioner from a
// persisted repart table (the graph artifact's /minimizers/repart
// collection), without needing the original sample.
func LoadRepartitioner(kmerLen, m, n int, repart []uint32) *Repartitioner {
	return &Repartitioner{KmerLen: kmerLen, M: m, N: n, Scheme: Frequency, repart: repart}
}

// Part returns part(k) = repart(minimizer(k)), the partition id in [0,N)
// for canonical k-mer k.
//
// Invariant (spec Testable Property 2): because Minimizer operates on the
// canonical form, Part(canonical(x)) == Part(canonical(revcomp(x))) for
// every k-mer x, since canonical(x) == canonical(revcomp(x)).
func (r *Repartitioner) Part(k Kmer) int {
	mmer := Minimizer(k, r.KmerLen, r.M, r.Scheme, r.rank)
	if r.Scheme == Lexicographic {
		return int(mmer % uint64(r.N))
	}
	return int(r.repart[mmer])
}

// RepartTable returns the persisted repart lookup table (4^M entries),
// nil for the lexicographic scheme (which needs no table: repart is
// identity-mod-N).
func (r *Repartitioner) RepartTable() []uint32 { return r.repart }
