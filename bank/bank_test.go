// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bank

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestFASTASource(t *testing.T) {
	const fa = ">seq1\nACGTACGT\n>seq2\nTTTT\n"
	src, err := NewFASTASource(strings.NewReader(fa))
	assert.NoError(t, err)

	numSeqs, totalBases, maxLen := src.Estimate()
	assert.EQ(t, numSeqs, int64(2))
	assert.EQ(t, totalBases, int64(12))
	assert.EQ(t, maxLen, int64(8))

	var got []Record
	var r Record
	for src.Scan(&r) {
		got = append(got, r)
	}
	assert.NoError(t, src.Err())
	assert.EQ(t, len(got), 2)
	assert.EQ(t, got[0].Name, "seq1")
	assert.EQ(t, got[0].Seq, "ACGTACGT")
	assert.EQ(t, got[1].Name, "seq2")
	assert.EQ(t, got[1].Seq, "TTTT")
}

func TestFASTQSource(t *testing.T) {
	const fq = "@r1\nACGT\n+\nIIII\n@r2\nTTTT\n+\nIIII\n"
	src := NewFASTQSource(strings.NewReader(fq), 0)

	var got []Record
	var r Record
	for src.Scan(&r) {
		got = append(got, r)
	}
	assert.NoError(t, src.Err())
	assert.EQ(t, len(got), 2)
	assert.EQ(t, got[0].Name, "@r1")
	assert.EQ(t, got[0].Seq, "ACGT")

	_, _, maxLen := src.Estimate()
	assert.EQ(t, maxLen, int64(4))
}

func TestMultiSource(t *testing.T) {
	a, err := NewFASTASource(strings.NewReader(">a\nACGT\n"))
	assert.NoError(t, err)
	b, err := NewFASTASource(strings.NewReader(">b\nTTTT\n"))
	assert.NoError(t, err)
	m := NewMultiSource(a, b)

	var names []string
	var r Record
	for m.Scan(&r) {
		names = append(names, r.Name)
	}
	assert.NoError(t, m.Err())
	assert.EQ(t, names, []string{"a", "b"})
}
