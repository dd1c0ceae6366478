// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmer

import (
	"sort"

	farm "github.com/dgryski/go-farm"
)

// OrderScheme selects how m-mers are ordered when choosing a k-mer's
// minimizer (spec §3).
type OrderScheme int

const (
	// Lexicographic orders m-mers by their 2-bit packing, with any m-mer
	// containing the pattern AA ranked last (biasing minimizers away from
	// repetitive motifs).
	Lexicographic OrderScheme = iota
	// Frequency orders m-mers by ascending sampled frequency, computed
	// once per run from the input (see BuildFrequencyRank).
	Frequency
)

// hasAA reports whether the low 4 bits of a packed 2-base window
// (m>=2) encode "AA" (i.e. both 2-bit codes are 0b00) anywhere in the
// m-mer's packed value. Since base A packs to 0, an m-mer contains AA iff
// some pair of adjacent 2-bit groups are both zero.
func hasAA(mmer uint64, m int) bool {
	for i := 0; i+1 < m; i++ {
		shift := uint(2 * i)
		if (mmer>>shift)&0xf == 0 {
			return true
		}
	}
	return false
}

// rankLexicographic returns the total order rank of an m-mer under scheme
// (i): its packed value, except m-mers containing AA sort last.
func rankLexicographic(mmer uint64, m int) uint64 {
	if hasAA(mmer, m) {
		return ^uint64(0)
	}
	return mmer
}

// Minimizer computes the minimizer of the canonical k-mer k (of length
// kmerLen), given a minimizer length m < kmerLen and an ordering scheme.
// rank, when scheme==Frequency, maps a packed m-mer value to its
// precomputed frequency rank (lower rank = more preferred minimizer,
// matching the spec's "assigned in round-robin order over frequency-sorted
// m-mers").
func Minimizer(k Kmer, kmerLen, m int, scheme OrderScheme, rank []uint32) uint64 {
	best := ^uint64(0)
	bestRank := ^uint64(0)
	nPos := kmerLen - m + 1
	for pos := 0; pos < nPos; pos++ {
		mmer := extractMmer(k, kmerLen, pos, m)
		var r uint64
		switch scheme {
		case Frequency:
			r = uint64(rank[mmer])
		default:
			r = rankLexicographic(mmer, m)
		}
		if pos == 0 || r < bestRank {
			bestRank = r
			best = mmer
		}
	}
	return best
}

// extractMmer returns the packed value of the length-m substring of k (a
// kmerLen-base k-mer) starting at position pos (0 = leftmost/5').
func extractMmer(k Kmer, kmerLen, pos, m int) uint64 {
	// The m-mer occupies base positions [pos, pos+m), i.e. bit offsets
	// [2*(kmerLen-pos-m), 2*(kmerLen-pos)) from the LSB of {Hi,Lo}.
	lowShift := 2 * (kmerLen - pos - m)
	mask := uint64(1)<<(2*uint(m)) - 1
	if m == 32 {
		mask = ^uint64(0)
	}
	if lowShift >= 64 {
		return (k.Hi >> uint(lowShift-64)) & mask
	}
	if lowShift+2*m <= 64 {
		return (k.Lo >> uint(lowShift)) & mask
	}
	// Straddles the Hi/Lo boundary.
	loBits := 64 - lowShift
	lo := k.Lo >> uint(lowShift)
	hi := k.Hi << uint(loBits)
	return (lo | hi) & mask
}

// BuildFrequencyRank takes sampledMmers (already-extracted m-mer values,
// one per sampled k-mer) and assigns a frequency rank to each of the 4^m
// possible m-mers: lower sampled frequency gets a lower (more preferred)
// rank, with ties broken by m-mer value. NewFrequencyRepartitioner then
// assigns partitions round-robin over this order. BuildFrequencyRank is
// deterministic given the same multiset of sampled m-mer values.
func BuildFrequencyRank(sampledMmers []uint64, m int) []uint32 {
	n := uint64(1) << uint(2*m)
	counts := make([]uint32, n)
	for _, v := range sampledMmers {
		counts[v]++
	}
	order := make([]uint32, n)
	for i := range order {
		order[i] = uint32(i)
	}
	sort.Slice(order, func(i, j int) bool {
		ci, cj := counts[order[i]], counts[order[j]]
		if ci != cj {
			return ci < cj
		}
		return order[i] < order[j]
	})
	rank := make([]uint32, n)
	for r, mmer := range order {
		rank[mmer] = uint32(r)
	}
	return rank
}

// HashPartition returns a 64-bit hash of a partition id, used by the
// super-k-mer partitioner to decide "hash(current_part) mod P == p" (spec
// §4.3) without biasing which partitions land in which pass.
func HashPartition(part int) uint64 {
	return farm.Hash64WithSeed([]byte{byte(part), byte(part >> 8), byte(part >> 16), byte(part >> 24)}, 0)
}
