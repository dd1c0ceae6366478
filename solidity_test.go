// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import (
	"testing"

	"github.com/grailbio/dsk/dskerr"
	"github.com/grailbio/testutil/assert"
)

func TestParseSolidityKind(t *testing.T) {
	cases := map[string]SolidityKind{
		"sum": SolidityKindSum,
		"min": SolidityKindMin,
		"max": SolidityKindMax,
		"one": SolidityKindOne,
		"all": SolidityKindAll,
	}
	for s, want := range cases {
		got, err := ParseSolidityKind(s)
		assert.NoError(t, err)
		assert.EQ(t, got, want)
	}
	_, err := ParseSolidityKind("bogus")
	assert.True(t, err != nil)
	assert.EQ(t, dskerr.KindOf(err), dskerr.Configuration)
}

func TestNewSolidityFilterRejectsInvertedRange(t *testing.T) {
	_, err := NewSolidityFilter(SolidityKindSum, 5, 2)
	assert.True(t, err != nil)
}

// Table from spec §4.5: each kind's accept predicate over a count vector.
func TestSolidityFilterAccept(t *testing.T) {
	cases := []struct {
		kind   SolidityKind
		min    uint64
		max    uint64
		counts []uint32
		want   bool
	}{
		{SolidityKindSum, 3, 10, []uint32{1, 2}, true}, // sum=3, boundary: accept
		{SolidityKindSum, 4, 10, []uint32{1, 2}, false},
		{SolidityKindMin, 1, 10, []uint32{1, 5}, true},
		{SolidityKindMin, 2, 10, []uint32{1, 5}, false},
		{SolidityKindMax, 1, 4, []uint32{1, 5}, false},
		{SolidityKindMax, 1, 5, []uint32{1, 5}, true},
		{SolidityKindOne, 5, 5, []uint32{1, 5}, true},
		{SolidityKindOne, 6, 10, []uint32{1, 5}, false},
		{SolidityKindAll, 1, 5, []uint32{1, 5}, true},
		{SolidityKindAll, 2, 5, []uint32{1, 5}, false},
	}
	for _, c := range cases {
		f := SolidityFilter{Kind: c.kind, AbundMin: c.min, AbundMax: c.max}
		assert.EQ(t, f.Accept(c.counts), c.want)
	}
}

func TestSolidityFilterSumBoundaryAccepts(t *testing.T) {
	f := SolidityFilter{Kind: SolidityKindSum, AbundMin: 3, AbundMax: 3}
	assert.True(t, f.Accept([]uint32{1, 2}))
	assert.False(t, f.Accept([]uint32{1, 1}))
}

// When B=1 every kind coincides (spec §4.5).
func TestSolidityFilterKindsCoincideAtOneBank(t *testing.T) {
	counts := []uint32{7}
	for _, kind := range []SolidityKind{SolidityKindSum, SolidityKindMin, SolidityKindMax, SolidityKindOne, SolidityKindAll} {
		f := SolidityFilter{Kind: kind, AbundMin: 5, AbundMax: 10}
		assert.True(t, f.Accept(counts), "kind %v should accept single-bank count within range", kind)
	}
}

func TestAbundanceIsSum(t *testing.T) {
	assert.EQ(t, Abundance([]uint32{1, 2, 3}), uint64(6))
}
