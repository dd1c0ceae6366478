// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package membership

import (
	"testing"

	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/testutil/assert"
)

func kmerOf(t *testing.T, s string, kmerLen int) kmer.Kmer {
	t.Helper()
	k, ok := kmer.FromASCII(s, kmerLen)
	assert.True(t, ok)
	return k.Canonical(kmerLen)
}

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	const kmerLen = 8
	inserted := []string{"ACGTACGT", "TTTTAAAA", "GCGCGCGC", "ATATATAT"}
	f := NewBloomFilter(kmerLen, uint64(len(inserted)), 0.01)
	for _, s := range inserted {
		f.Add(kmerOf(t, s, kmerLen))
	}
	for _, s := range inserted {
		assert.True(t, f.Contains(kmerOf(t, s, kmerLen)), "Bloom filter must never produce a false negative")
	}
}

func TestBloomFilterAddAtomicMatchesAdd(t *testing.T) {
	const kmerLen = 8
	k := kmerOf(t, "ACGTACGT", kmerLen)
	f := NewBloomFilter(kmerLen, 10, 0.01)
	f.AddAtomic(k)
	assert.True(t, f.Contains(k))
}

func TestBloomFilterMarshalRoundTrip(t *testing.T) {
	const kmerLen = 8
	f := NewBloomFilter(kmerLen, 100, 0.01)
	ks := []kmer.Kmer{kmerOf(t, "ACGTACGT", kmerLen), kmerOf(t, "TTTTAAAA", kmerLen)}
	for _, k := range ks {
		f.Add(k)
	}
	data, err := f.MarshalBinary()
	assert.NoError(t, err)

	loaded, err := LoadBloomFilter(kmerLen, data)
	assert.NoError(t, err)
	for _, k := range ks {
		assert.True(t, loaded.Contains(k))
	}
	assert.EQ(t, loaded.NumBits(), f.NumBits())
}

func TestBloomFilterConcurrentAddAtomic(t *testing.T) {
	const kmerLen = 16
	const n = 2000
	ks := make([]kmer.Kmer, n)
	for i := range ks {
		// Distinct synthetic k-mers via the Lo word.
		ks[i] = kmer.Kmer{Lo: uint64(i) << 4}
	}
	f := NewBloomFilter(kmerLen, uint64(n), 0.01)
	done := make(chan struct{})
	const workers = 8
	for w := 0; w < workers; w++ {
		go func(w int) {
			for i := w; i < n; i += workers {
				f.AddAtomic(ks[i])
			}
			done <- struct{}{}
		}(w)
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	for _, k := range ks {
		assert.True(t, f.Contains(k), "concurrently inserted kmer missing from Bloom filter")
	}
}
