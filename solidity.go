// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import "github.com/grailbio/dsk/dskerr"

// SolidityKind selects the predicate C5 applies to a k-mer's per-bank
// count vector (spec §4.5).
type SolidityKind int

const (
	// SolidityKindSum accepts iff abund_min <= sum(c) <= abund_max.
	SolidityKindSum SolidityKind = iota
	// SolidityKindMin accepts iff abund_min <= min(c) <= abund_max.
	SolidityKindMin
	// SolidityKindMax accepts iff abund_min <= max(c) <= abund_max.
	SolidityKindMax
	// SolidityKindOne accepts iff some bank's count is within range.
	SolidityKindOne
	// SolidityKindAll accepts iff every bank's count is within range.
	SolidityKindAll
)

// ParseSolidityKind maps the dbgh5 -solidity-kind flag values to a
// SolidityKind.
func ParseSolidityKind(s string) (SolidityKind, error) {
	switch s {
	case "sum":
		return SolidityKindSum, nil
	case "min":
		return SolidityKindMin, nil
	case "max":
		return SolidityKindMax, nil
	case "one":
		return SolidityKindOne, nil
	case "all":
		return SolidityKindAll, nil
	default:
		return 0, dskerr.Errorf(dskerr.Configuration, "unknown solidity-kind %q (want sum|min|max|one|all)", s)
	}
}

// SolidityFilter implements C5: a configured (kind, [min,max]) predicate
// over a per-bank count vector, plus the aggregate-abundance rule C6
// forwards into the solid set (always sum(c), saturated).
type SolidityFilter struct {
	Kind              SolidityKind
	AbundMin, AbundMax uint64
}

// NewSolidityFilter validates and returns a SolidityFilter.
func NewSolidityFilter(kind SolidityKind, abundMin, abundMax uint64) (SolidityFilter, error) {
	if abundMin > abundMax {
		return SolidityFilter{}, dskerr.Errorf(dskerr.Configuration, "abundance-min %d > abundance-max %d", abundMin, abundMax)
	}
	return SolidityFilter{Kind: kind, AbundMin: abundMin, AbundMax: abundMax}, nil
}

// Accept reports whether the count vector c (one entry per bank, B>=1)
// passes this filter's predicate.
func (f SolidityFilter) Accept(c []uint32) bool {
	switch f.Kind {
	case SolidityKindSum:
		return f.inRange(sumOf(c))
	case SolidityKindMin:
		return f.inRange(uint64(minOf(c)))
	case SolidityKindMax:
		return f.inRange(uint64(maxOf(c)))
	case SolidityKindOne:
		for _, v := range c {
			if f.inRange(uint64(v)) {
				return true
			}
		}
		return false
	case SolidityKindAll:
		for _, v := range c {
			if !f.inRange(uint64(v)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (f SolidityFilter) inRange(v uint64) bool {
	return v >= f.AbundMin && v <= f.AbundMax
}

// Abundance returns the aggregate abundance C6 stores alongside an
// accepted k-mer: sum(c), saturated at math.MaxUint64 (spec §4.5: "When
// B=1 all kinds coincide. Aggregate abundance forwarded to C6 is sum
// c_i (saturated)").
func Abundance(c []uint32) uint64 { return sumOf(c) }

func sumOf(c []uint32) uint64 {
	var s uint64
	for _, v := range c {
		s += uint64(v)
	}
	return s
}

func minOf(c []uint32) uint32 {
	m := c[0]
	for _, v := range c[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(c []uint32) uint32 {
	m := c[0]
	for _, v := range c[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
