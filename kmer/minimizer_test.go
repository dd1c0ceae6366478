// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmer

import (
	"testing"

	"github.com/grailbio/testutil/assert"
)

// Testable Property 2: part(x) == part(revcomp(x)) for every k-mer x,
// because both Minimizer and Part operate on the canonical form.
func TestPartInvariantUnderRevComp(t *testing.T) {
	repart := NewLexicographicRepartitioner(8, 4, 16)
	seqs := []string{"ACGTACGTAC", "GATTACAGATTACA", "TTTTGGGGCCCCAAAA"}
	for _, s := range seqs {
		it := NewIterator(8)
		it.Reset(s)
		for it.Scan() {
			fwd := it.Forward()
			rc := it.ReverseComplement()
			p1 := repart.Part(fwd.Canonical(8))
			p2 := repart.Part(rc.Canonical(8))
			assert.EQ(t, p1, p2)
		}
	}
}

func TestMinimizerExcludesAA(t *testing.T) {
	// An m-mer containing AA should never be chosen as the minimizer
	// when a non-AA alternative exists within the same k-mer.
	k, ok := FromASCII("CGTAAGCT", 8) // m=3 windows include "AAG" variants? check positions
	assert.True(t, ok)
	m := Minimizer(k, 8, 3, Lexicographic, nil)
	assert.False(t, hasAA(m, 3), "minimizer should avoid AA-containing m-mers when possible")
}

func TestLexicographicRepartDeterministic(t *testing.T) {
	r1 := NewLexicographicRepartitioner(31, 8, 64)
	r2 := NewLexicographicRepartitioner(31, 8, 64)
	k, _ := FromASCII("ACGTACGTACGTACGTACGTACGTACGTACG", 31)
	assert.EQ(t, r1.Part(k), r2.Part(k))
}

func TestFrequencyRepartRoundRobin(t *testing.T) {
	m := 2
	n := 3
	// Every possible 2-mer sampled exactly once: round robin should
	// assign them evenly, each partition getting 16/3 (rounded) entries,
	// and critically the table must be deterministic given the sample.
	var sample []uint64
	for v := uint64(0); v < 16; v++ {
		sample = append(sample, v)
	}
	r1 := NewFrequencyRepartitioner(31, m, n, sample)
	r2 := NewFrequencyRepartitioner(31, m, n, sample)
	assert.EQ(t, r1.RepartTable(), r2.RepartTable())

	counts := make([]int, n)
	for _, p := range r1.RepartTable() {
		counts[p]++
	}
	for _, c := range counts {
		assert.True(t, c >= 5 && c <= 6, "round-robin partition counts should be near-even, got %v", counts)
	}
}

func TestLoadRepartitionerMatchesBuilt(t *testing.T) {
	var sample []uint64
	for v := uint64(0); v < 256; v++ {
		sample = append(sample, v%16)
	}
	built := NewFrequencyRepartitioner(8, 2, 4, sample)
	loaded := LoadRepartitioner(8, 2, 4, built.RepartTable())

	k, _ := FromASCII("ACGTACGT", 8)
	assert.EQ(t, built.Part(k.Canonical(8)), loaded.Part(k.Canonical(8)))
}

func TestHashPartitionDeterministic(t *testing.T) {
	assert.EQ(t, HashPartition(5), HashPartition(5))
	assert.True(t, HashPartition(5) != HashPartition(6))
}
