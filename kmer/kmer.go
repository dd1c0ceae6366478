// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package kmer implements the packed 2-bit k-mer encoding, canonicalization,
// minimizer computation and partition assignment that the rest of the DSK
// pipeline builds on.
//
// The encoding follows the same incremental-update technique as
// GRAIL's fusion.Kmer (a shift-and-mask update per base), generalized from a
// single 64-bit word (k<=32) to two words (k<=64) so that the default k=31
// and the common k=63 both fit without heap allocation.
package kmer

import (
	farm "github.com/dgryski/go-farm"
)

// MaxK is the largest k-mer length this package can represent.
const MaxK = 64

const invalidBase = uint8(255)

var (
	asciiToBase     [256]uint8
	asciiToRCBase   [256]uint8
	baseToASCII     = [4]byte{'A', 'C', 'G', 'T'}
)

func init() {
	for i := range asciiToBase {
		asciiToBase[i] = invalidBase
		asciiToRCBase[i] = invalidBase
	}
	set := func(ch byte, fwd, rc uint8) {
		asciiToBase[ch] = fwd
		asciiToRCBase[ch] = rc
	}
	set('A', 0, 3)
	set('a', 0, 3)
	set('C', 1, 2)
	set('c', 1, 2)
	set('G', 2, 1)
	set('g', 2, 1)
	set('T', 3, 0)
	set('t', 3, 0)
}

// Kmer is a packed 2-bits-per-base encoding of a DNA string of length up to
// MaxK, stored across two machine words. Bases are packed MSB-first within
// the logical 2k-bit value spanning {Hi,Lo}: Lo holds the low-order (most
// recently appended) 32 bases, Hi holds any bases beyond that.
type Kmer struct {
	Hi, Lo uint64
}

// Less reports whether k orders before o under the lexicographic order on
// the packed representation (equivalently, on the 2-bit codes read 5'->3').
func (k Kmer) Less(o Kmer) bool {
	if k.Hi != o.Hi {
		return k.Hi < o.Hi
	}
	return k.Lo < o.Lo
}

// Equal reports whether k and o are the same packed value.
func (k Kmer) Equal(o Kmer) bool { return k.Hi == o.Hi && k.Lo == o.Lo }

// Hash returns a 64-bit hash of the k-mer, used throughout the pipeline
// (hash-mode counting, Bloom insertion) via
// github.com/dgryski/go-farm, exactly as fusion.hashKmer does for its
// single-word Kmer.
func (k Kmer) Hash(seed uint64) uint64 {
	var buf [16]byte
	putUint64(buf[0:8], k.Hi)
	putUint64(buf[8:16], k.Lo)
	return farm.Hash64WithSeed(buf[:], seed)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// mask2 returns the two-word bitmask covering the low 2*k bits of a
// {Hi,Lo} pair, k in [1,MaxK].
func mask2(k int) (hiMask, loMask uint64) {
	bits := 2 * k
	if bits >= 64 {
		loMask = ^uint64(0)
		hiBits := bits - 64
		if hiBits == 0 {
			hiMask = 0
		} else {
			hiMask = ^uint64(0) >> (64 - uint(hiBits))
		}
		return
	}
	return 0, ^uint64(0) >> (64 - uint(bits))
}

// shiftInBase appends base (2-bit code) to the low end of k, shifting
// existing content left by one base (2 bits) and masking to the k-mer width.
func shiftInBase(k Kmer, base uint8, kmerLen int) Kmer {
	newHi := (k.Hi << 2) | (k.Lo >> 62)
	newLo := (k.Lo << 2) | uint64(base)
	hiMask, loMask := mask2(kmerLen)
	return Kmer{Hi: newHi & hiMask, Lo: newLo & loMask}
}

// ShiftIn appends base (2-bit code) to the 3' (low) end of k, dropping
// its leftmost base, the operation C8/C9's neighbour enumeration uses
// to form a k-mer's 4 successors.
func ShiftIn(k Kmer, base uint8, kmerLen int) Kmer { return shiftInBase(k, base, kmerLen) }

// ShiftInLeft prepends base (2-bit code) to the 5' (high) end of k,
// dropping its rightmost base, forming one of a k-mer's 4
// predecessors.
func ShiftInLeft(k Kmer, base uint8, kmerLen int) Kmer {
	hiMask, loMask := mask2(kmerLen)
	shift := 2 * (kmerLen - 1)
	newLo := (k.Lo >> 2) | (k.Hi << 62)
	newHi := k.Hi >> 2
	if shift < 64 {
		newLo |= uint64(base) << uint(shift)
	} else {
		newHi |= uint64(base) << uint(shift-64)
	}
	return Kmer{Hi: newHi & hiMask, Lo: newLo & loMask}
}

// FromASCII packs the first kmerLen bytes of seq into a Kmer. It returns
// ok=false if seq is shorter than kmerLen or contains a base outside
// {A,C,G,T,a,c,g,t}.
func FromASCII(seq string, kmerLen int) (k Kmer, ok bool) {
	if len(seq) < kmerLen || kmerLen < 1 || kmerLen > MaxK {
		return Kmer{}, false
	}
	for i := 0; i < kmerLen; i++ {
		b := asciiToBase[seq[i]]
		if b == invalidBase {
			return Kmer{}, false
		}
		k = shiftInBase(k, b, kmerLen)
	}
	return k, true
}

// RevComp returns the reverse complement of k, a kmerLen-base k-mer.
//
// Unlike fusion.kmerizer's incremental revcomp update (cheap for a
// single-word k-mer, awkward to generalize across a word boundary), this
// recomputes the reverse complement from scratch: decode each base, emit
// its complement in reverse order. This is O(kmerLen) instead of O(1) per
// position, which is an acceptable trade for a reference, multi-word-safe
// implementation; see DESIGN.md.
func (k Kmer) RevComp(kmerLen int) Kmer {
	var out Kmer
	for i := 0; i < kmerLen; i++ {
		base := k.baseAt(i, kmerLen)
		out = shiftInBase(out, 3-base, kmerLen)
	}
	return out
}

// baseAt returns the 2-bit code of the base at position i (0 = leftmost,
// 5' end) of a kmerLen-base k-mer.
func (k Kmer) baseAt(i, kmerLen int) uint8 {
	// The base at position i is at bit offset 2*(kmerLen-1-i) from the LSB
	// of the combined {Hi,Lo} value.
	shift := 2 * (kmerLen - 1 - i)
	if shift < 64 {
		return uint8((k.Lo >> uint(shift)) & 3)
	}
	return uint8((k.Hi >> uint(shift-64)) & 3)
}

// Canonical returns min(k, revcomp(k)) under Less, the canonical form every
// k-mer stored by this pipeline must use.
func (k Kmer) Canonical(kmerLen int) Kmer {
	rc := k.RevComp(kmerLen)
	if rc.Less(k) {
		return rc
	}
	return k
}

// String decodes k back to an uppercase ACGT string of length kmerLen.
func (k Kmer) String(kmerLen int) string {
	buf := make([]byte, kmerLen)
	for i := 0; i < kmerLen; i++ {
		buf[i] = baseToASCII[k.baseAt(i, kmerLen)]
	}
	return string(buf)
}

// SaturatingAddU32 adds delta to *v, clamping at math.MaxUint32. Both the
// hash-mode and vector+radix-mode counters in package dsk use this single
// helper, resolving the inconsistent saturation policy flagged in spec §9.
func SaturatingAddU32(v *uint32, delta uint32) {
	const max = ^uint32(0)
	if max-*v < delta {
		*v = max
		return
	}
	*v += delta
}
