// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/dsk/bank"
	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/dsk/store"
	"github.com/grailbio/testutil/assert"
)

// fastaBankOpener returns a BankOpener that reopens a fresh
// bank.FASTASource over the given per-bank FASTA text every time it is
// called, the way dbgh5's openBanks reopens files for each pass (spec
// §4.3: "for pass p... stream reads", bank.Source being forward-only).
func fastaBankOpener(fastas ...string) BankOpener {
	return func() ([]bank.Source, error) {
		srcs := make([]bank.Source, len(fastas))
		for i, fa := range fastas {
			src, err := bank.NewFASTASource(strings.NewReader(fa))
			if err != nil {
				return nil, err
			}
			srcs[i] = src
		}
		return srcs, nil
	}
}

func newTestStores(t *testing.T) (artifact, tmp store.Group) {
	t.Helper()
	ctx := context.Background()
	artifact, err := store.OpenFileGroup(ctx, t.TempDir())
	assert.NoError(t, err)
	tmp, err = store.OpenFileGroup(ctx, t.TempDir())
	assert.NoError(t, err)
	return artifact, tmp
}

func ampleOpts(kmerLen int) Opts {
	o := DefaultOpts
	o.KmerLen = kmerLen
	o.MinimizerLen = kmerLen - 2 // < kmerLen-1, satisfying Validate's boundary rule
	if o.MinimizerLen > 2 {
		o.MinimizerLen = 2
	}
	if o.MinimizerLen < 1 {
		o.MinimizerLen = 1
	}
	o.MaxMemoryBytes = 256 << 20
	o.MaxDiskBytes = 256 << 20
	o.MaxOpenFiles = 64
	o.NumThreads = 2
	o.FPRate = 0.01
	return o
}

// S1: one read "ACGTACGTAC", k=3, abund_min=1, sum kind. Canonical
// folding merges CGT into ACG and TAC into GTA, so the solid set holds
// two records, each with abundance 4; the oracle accepts all four
// k-mers (via their canonical forms) but rejects AAA.
func TestScenarioS1(t *testing.T) {
	opts := ampleOpts(3)
	opts.Solidity = SolidityFilter{Kind: SolidityKindSum, AbundMin: 1, AbundMax: 1<<32 - 1}

	artifact, tmp := newTestStores(t)
	graph, err := Build(context.Background(), fastaBankOpener(">r\nACGTACGTAC\n"), opts, artifact, tmp)
	assert.NoError(t, err)

	want := []string{"ACG", "CGT", "GTA", "TAC"}
	for _, w := range want {
		k, ok := kmer.FromASCII(w, 3)
		assert.True(t, ok)
		c := k.Canonical(3)
		assert.True(t, graph.Oracle.Contains(c), "expected %s (canonical) to be in the graph", w)
	}
	aaa, _ := kmer.FromASCII("AAA", 3)
	assert.False(t, graph.Oracle.Contains(aaa.Canonical(3)), "AAA should not be in the graph")

	assert.EQ(t, graph.NumSolid, int64(2))
}

// S3: two banks, bank A "AAAACCCCGGGG", bank B "CCCCGGGGTTTT", k=4,
// kind=min, abund_min=1. Only k-mers appearing in both banks pass:
// CCCG, CCGG, CGGG.
func TestScenarioS3(t *testing.T) {
	opts := ampleOpts(4)
	opts.Solidity = SolidityFilter{Kind: SolidityKindMin, AbundMin: 1, AbundMax: 1<<32 - 1}

	artifact, tmp := newTestStores(t)
	graph, err := Build(context.Background(), fastaBankOpener(">a\nAAAACCCCGGGG\n", ">b\nCCCCGGGGTTTT\n"), opts, artifact, tmp)
	assert.NoError(t, err)

	want := []string{"CCCG", "CCGG", "CGGG"}
	var gotCanon []kmer.Kmer
	for _, w := range want {
		k, ok := kmer.FromASCII(w, 4)
		assert.True(t, ok)
		c := k.Canonical(4)
		gotCanon = append(gotCanon, c)
		assert.True(t, graph.Oracle.Contains(c), "expected %s to be solid", w)
	}

	// Exactly these three canonical k-mers should be solid; NumSolid
	// must match (min-kind rejects every k-mer appearing in only one
	// bank).
	assert.EQ(t, graph.NumSolid, int64(len(want)))

	notShared, _ := kmer.FromASCII("AAAA", 4)
	assert.False(t, graph.Oracle.Contains(notShared.Canonical(4)), "AAAA only appears in bank A, must be rejected under min-kind")
}

// Testable Property 3: every solid k-mer is accepted by the oracle.
func TestOracleAcceptsAllSolidKmers(t *testing.T) {
	opts := ampleOpts(5)
	opts.Solidity = SolidityFilter{Kind: SolidityKindSum, AbundMin: 1, AbundMax: 1<<32 - 1}
	opts.DebloomKind = DebloomCascading

	artifact, tmp := newTestStores(t)
	seq := randomDNA(2000, 1)
	graph, err := Build(context.Background(), fastaBankOpener(">r\n"+seq+"\n"), opts, artifact, tmp)
	assert.NoError(t, err)

	it := kmer.NewIterator(5)
	it.Reset(seq)
	for it.Scan() {
		c := it.Canonical()
		assert.True(t, graph.Oracle.Contains(c), "solid kmer rejected by oracle")
	}
}

// Testable Property 6: round-trip through Build -> Load answers
// identically on every k-mer of a test suite.
func TestBuildLoadRoundTrip(t *testing.T) {
	opts := ampleOpts(5)
	opts.Solidity = SolidityFilter{Kind: SolidityKindSum, AbundMin: 1, AbundMax: 1<<32 - 1}

	artifact, tmp := newTestStores(t)
	seq := randomDNA(1000, 2)
	graph, err := Build(context.Background(), fastaBankOpener(">r\n"+seq+"\n"), opts, artifact, tmp)
	assert.NoError(t, err)

	reloaded, err := Load(context.Background(), artifact)
	assert.NoError(t, err)

	it := kmer.NewIterator(5)
	it.Reset(seq)
	for it.Scan() {
		c := it.Canonical()
		assert.EQ(t, graph.Oracle.Contains(c), reloaded.Oracle.Contains(c))
	}
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		q := randomKmer(rnd, 5)
		assert.EQ(t, graph.Oracle.Contains(q), reloaded.Oracle.Contains(q))
	}
}

// Testable Property 5: measured false-positive rate of the oracle,
// evaluated on random k-mers absent from the solid set, stays within
// 1.5x the configured target plus an absolute allowance of 0.01.
func TestOracleFalsePositiveRateBounded(t *testing.T) {
	opts := ampleOpts(12)
	opts.FPRate = 0.02
	opts.Solidity = SolidityFilter{Kind: SolidityKindSum, AbundMin: 1, AbundMax: 1<<32 - 1}
	opts.DebloomKind = DebloomCascading

	artifact, tmp := newTestStores(t)
	seq := randomDNA(4000, 3)
	graph, err := Build(context.Background(), fastaBankOpener(">r\n"+seq+"\n"), opts, artifact, tmp)
	assert.NoError(t, err)

	solid := make(map[kmer.Kmer]bool)
	it := kmer.NewIterator(12)
	it.Reset(seq)
	for it.Scan() {
		solid[it.Canonical()] = true
	}

	rnd := rand.New(rand.NewSource(7))
	const trials = 20000
	var falsePos int
	var tested int
	for tested < trials {
		q := randomKmer(rnd, 12)
		if solid[q] {
			continue
		}
		tested++
		if graph.Oracle.Contains(q) {
			falsePos++
		}
	}
	rate := float64(falsePos) / float64(tested)
	assert.True(t, rate <= 1.5*opts.FPRate+0.01, "measured FP rate %.4f exceeds 1.5x target %.4f", rate, opts.FPRate)
}

// Testable Property 8 (partial): m=k-1 is rejected as a ConfigurationError.
func TestConfigRejectsMinimizerOneLessThanKmer(t *testing.T) {
	opts := ampleOpts(10)
	opts.MinimizerLen = 9 // m = k-1
	err := opts.Validate()
	assert.True(t, err != nil)
}

func randomDNA(n int, seed int64) string {
	rnd := rand.New(rand.NewSource(seed))
	const bases = "ACGT"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = bases[rnd.Intn(4)]
	}
	return string(buf)
}

func randomKmer(rnd *rand.Rand, kmerLen int) kmer.Kmer {
	const bases = "ACGT"
	buf := make([]byte, kmerLen)
	for i := range buf {
		buf[i] = bases[rnd.Intn(4)]
	}
	k, _ := kmer.FromASCII(string(buf), kmerLen)
	return k.Canonical(kmerLen)
}
