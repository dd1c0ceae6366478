// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package membership

import (
	"testing"

	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/testutil/assert"
)

type fixedCFP struct{ members map[kmer.Kmer]bool }

func (f fixedCFP) Contains(k kmer.Kmer) bool { return f.members[k] }

func TestOracleContainsCombinesBloomAndCFP(t *testing.T) {
	const kmerLen = 6
	solid := kmerOf(t, "ACGTAC", kmerLen)
	cfpMember := kmerOf(t, "TTTTTT", kmerLen)

	bloom := NewBloomFilter(kmerLen, 2, 0.01)
	bloom.Add(solid)
	bloom.Add(cfpMember)

	oracle := NewOracle(kmerLen, bloom, fixedCFP{members: map[kmer.Kmer]bool{cfpMember: true}})

	assert.True(t, oracle.Contains(solid), "solid kmer present in Bloom and absent from cFP must be accepted")
	assert.False(t, oracle.Contains(cfpMember), "kmer present in both Bloom and cFP must be rejected")

	notInBloom := kmerOf(t, "GGGGGG", kmerLen)
	assert.False(t, oracle.Contains(notInBloom))
}

func TestOracleContainsCanonicalizesQuery(t *testing.T) {
	const kmerLen = 4
	fwd, ok := kmer.FromASCII("AAAA", kmerLen)
	assert.True(t, ok)
	canon := fwd.Canonical(kmerLen)

	bloom := NewBloomFilter(kmerLen, 1, 0.01)
	bloom.Add(canon)
	oracle := NewOracle(kmerLen, bloom, fixedCFP{})

	// Querying the reverse complement should answer the same as
	// querying the forward form, since Contains canonicalizes first.
	rc := fwd.RevComp(kmerLen)
	assert.EQ(t, oracle.Contains(fwd), oracle.Contains(rc))
	assert.True(t, oracle.Contains(fwd))
}

func TestOracleIsBranchingRequiresExactlyOneEachWay(t *testing.T) {
	const kmerLen = 4
	center := kmerOf(t, "AAAC", kmerLen)
	ns := Neighbours(center, kmerLen)

	bloom := NewBloomFilter(kmerLen, 10, 0.01)
	bloom.Add(center)
	// Insert exactly one successor and one predecessor.
	bloom.Add(ns[0])
	bloom.Add(ns[4])
	oracle := NewOracle(kmerLen, bloom, fixedCFP{})

	assert.False(t, oracle.IsBranching(center), "exactly one successor and one predecessor should not be branching")

	bloom.Add(ns[1]) // second successor
	assert.True(t, oracle.IsBranching(center), "two successors should be branching")
}
