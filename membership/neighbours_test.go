// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package membership

import (
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestNeighboursReturnsEightCanonicalForms(t *testing.T) {
	const kmerLen = 6
	k := kmerOf(t, "ACGTAC", kmerLen)
	ns := Neighbours(k, kmerLen)
	assert.EQ(t, len(ns), 8)
	for _, n := range ns {
		assert.True(t, n.Equal(n.Canonical(kmerLen)), "every neighbour must already be canonical")
	}
}

func TestNeighboursSuccessorsDifferFromPredecessors(t *testing.T) {
	const kmerLen = 4
	k := kmerOf(t, "ACGT", kmerLen)
	ns := Neighbours(k, kmerLen)
	succ := ns[0:4]
	pred := ns[4:8]
	// Successors and predecessors are independently derived; at least
	// one pairing should differ for a non-palindromic k-mer family.
	var allEqual = true
	for i := range succ {
		if !succ[i].Equal(pred[i]) {
			allEqual = false
		}
	}
	assert.False(t, allEqual)
}
