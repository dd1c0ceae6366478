// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import (
	"context"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/grailbio/dsk/bank"
	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/dsk/store"
	"github.com/grailbio/testutil/assert"
)

func TestPartitionerSinglePassCapturesAllKmers(t *testing.T) {
	const kmerLen = 4
	repart := kmer.NewLexicographicRepartitioner(kmerLen, 2, 4)
	p := NewPartitioner(kmerLen, repart)

	ctx := context.Background()
	tmp, err := store.OpenFileGroup(ctx, t.TempDir())
	assert.NoError(t, err)
	dests := make([]store.Collection, 4)
	for i := range dests {
		col, err := tmp.Collection(ctx, string(rune('a'+i)))
		assert.NoError(t, err)
		dests[i] = col
	}

	src, err := bank.NewFASTASource(strings.NewReader(">r1\nACGTACGTAC\n"))
	assert.NoError(t, err)

	stats, err := p.RunPass(0, 1, 1, 0, src, dests)
	assert.NoError(t, err)
	for _, d := range dests {
		assert.NoError(t, d.Flush())
	}

	var totalKmers, totalSuperkmers int64
	for _, s := range stats {
		totalKmers += s.NumKmers
		totalSuperkmers += s.NumSuperkmers
	}
	// "ACGTACGTAC" (10 bases) has 10-4+1 = 7 canonical 4-mers.
	assert.EQ(t, totalKmers, int64(7))
	assert.True(t, totalSuperkmers >= 1)

	// Re-expand every emitted super-k-mer and confirm the total k-mer
	// count recovered from the partition files matches.
	var recovered int64
	for _, d := range dests {
		it, err := d.Iterate()
		assert.NoError(t, err)
		for it.Scan() {
			rec := it.Bytes()
			assert.True(t, len(rec) >= 1)
			body := rec[1:]
			decoded, err := snappy.Decode(nil, body)
			assert.NoError(t, err)
			assert.NoError(t, decodeSuperkmers(decoded, kmerLen, func(sk Superkmer) {
				recovered += int64(sk.Length)
			}))
		}
		it.Close() // nolint: errcheck
	}
	assert.EQ(t, recovered, totalKmers)
}

func TestPartitionerDiscardsOtherPasses(t *testing.T) {
	const kmerLen = 4
	repart := kmer.NewLexicographicRepartitioner(kmerLen, 2, 4)
	p := NewPartitioner(kmerLen, repart)

	ctx := context.Background()
	tmp, err := store.OpenFileGroup(ctx, t.TempDir())
	assert.NoError(t, err)
	dests := make([]store.Collection, 4)
	for i := range dests {
		col, err := tmp.Collection(ctx, string(rune('x'+i)))
		assert.NoError(t, err)
		dests[i] = col
	}
	src, err := bank.NewFASTASource(strings.NewReader(">r1\nACGTACGTACGTACGT\n"))
	assert.NoError(t, err)

	// With passes=2, only half of the partitions' super-k-mers (by
	// hash(part) mod 2) should survive into this pass's stats.
	statsAll0, err := p.RunPass(0, 2, 1, 0, src, dests)
	assert.NoError(t, err)
	var total0 int64
	for _, s := range statsAll0 {
		total0 += s.NumKmers
	}
	src2, err := bank.NewFASTASource(strings.NewReader(">r1\nACGTACGTACGTACGT\n"))
	assert.NoError(t, err)
	dests2 := make([]store.Collection, 4)
	for i := range dests2 {
		col, err := tmp.Collection(ctx, string(rune('y'+i)))
		assert.NoError(t, err)
		dests2[i] = col
	}
	statsAll1, err := p.RunPass(1, 2, 1, 0, src2, dests2)
	assert.NoError(t, err)
	var total1 int64
	for _, s := range statsAll1 {
		total1 += s.NumKmers
	}
	// Every k-mer should be assigned to exactly one of the two passes.
	// "ACGTACGTACGTACGT" (16 bases) has 16-4+1 = 13 4-mers.
	assert.EQ(t, total0+total1, int64(13))
}
