// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package mphf

import (
	"testing"

	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/testutil/assert"
)

func iterOf(pairs map[kmer.Kmer]uint64) func(func(kmer.Kmer, uint64) bool) {
	return func(yield func(kmer.Kmer, uint64) bool) {
		for k, a := range pairs {
			if !yield(k, a) {
				return
			}
		}
	}
}

func TestSortedTableMapGetMatchesInput(t *testing.T) {
	k1, _ := kmer.FromASCII("ACGTAC", 6)
	k2, _ := kmer.FromASCII("TTTTTT", 6)
	k3, _ := kmer.FromASCII("GGGGGG", 6)
	pairs := map[kmer.Kmer]uint64{k1: 5, k2: 12, k3: 1}

	m := BuildSortedTableMap(iterOf(pairs))
	assert.EQ(t, m.Len(), 3)
	for k, want := range pairs {
		got, ok := m.Get(k)
		assert.True(t, ok)
		assert.EQ(t, got, want)
	}
}

func TestSortedTableMapGetMissingReturnsFalse(t *testing.T) {
	k1, _ := kmer.FromASCII("ACGTAC", 6)
	notPresent, _ := kmer.FromASCII("AAAAAA", 6)
	m := BuildSortedTableMap(iterOf(map[kmer.Kmer]uint64{k1: 1}))

	_, ok := m.Get(notPresent)
	assert.False(t, ok)
}

func TestSortedTableMapEmpty(t *testing.T) {
	m := BuildSortedTableMap(iterOf(nil))
	assert.EQ(t, m.Len(), 0)
	k, _ := kmer.FromASCII("ACGTAC", 6)
	_, ok := m.Get(k)
	assert.False(t, ok)
}
