// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmer

// Iterator produces the canonical k-mers of a DNA sequence in order,
// restarting cleanly at every run of valid bases (a base outside ACGTacgt,
// almost always 'N', breaks a run). It mirrors the structure of
// fusion.kmerizer -- Reset/Scan/Get with an incrementally maintained
// forward and reverse-complement encoding updated by one shift-and-mask per
// base -- generalized from fusion's single 64-bit word to the two-word
// Kmer needed for k up to MaxK.
type Iterator struct {
	kmerLen int

	seq string
	si  int // index of the next byte to consume

	haveCur bool
	pos     int
	fwd, rc Kmer
}

// NewIterator returns an Iterator for k-mers of length kmerLen.
func NewIterator(kmerLen int) *Iterator {
	return &Iterator{kmerLen: kmerLen}
}

// Reset prepares the iterator to scan seq from the beginning.
func (it *Iterator) Reset(seq string) {
	it.seq = seq
	it.si = 0
	it.haveCur = false
}

// nextInvalid returns the index of the next byte in seq (starting at from)
// that is not a valid base, or len(seq) if none remains.
func nextInvalid(seq string, from int) int {
	for i := from; i < len(seq); i++ {
		if asciiToBase[seq[i]] == invalidBase {
			return i
		}
	}
	return len(seq)
}

// Scan advances to the next k-mer and reports whether one was found. Once
// Scan returns false, the iterator is exhausted.
func (it *Iterator) Scan() bool {
	if it.haveCur && it.si+it.kmerLen <= len(it.seq) {
		ch := it.seq[it.si+it.kmerLen-1]
		if b := asciiToBase[ch]; b != invalidBase {
			it.pos = it.si
			it.fwd = shiftInBase(it.fwd, b, it.kmerLen)
			it.rc = shiftInRCBase(it.rc, asciiToRCBase[ch], it.kmerLen)
			it.si++
			return true
		}
		// Fall through to the slow path: ch is invalid, so the window must
		// be rebuilt past it.
	}
	for it.si+it.kmerLen <= len(it.seq) {
		window := it.seq[it.si : it.si+it.kmerLen]
		fwd, ok := FromASCII(window, it.kmerLen)
		if !ok {
			it.si = nextInvalid(it.seq, it.si) + 1
			continue
		}
		it.fwd = fwd
		it.rc = fwd.RevComp(it.kmerLen)
		it.pos = it.si
		it.haveCur = true
		it.si++
		return true
	}
	it.haveCur = false
	return false
}

// Pos returns the 0-based start offset of the current k-mer within the
// sequence passed to Reset.
func (it *Iterator) Pos() int { return it.pos }

// Canonical returns the canonical form of the current k-mer.
func (it *Iterator) Canonical() Kmer {
	if it.rc.Less(it.fwd) {
		return it.rc
	}
	return it.fwd
}

// Forward and ReverseComplement expose the two raw encodings of the
// current k-mer, e.g. for callers that need to know which strand matched.
func (it *Iterator) Forward() Kmer           { return it.fwd }
func (it *Iterator) ReverseComplement() Kmer { return it.rc }

// shiftInRCBase prepends the complement of a newly observed 3' base to the
// reverse-complement encoding held in rc, across the two-word boundary.
func shiftInRCBase(rc Kmer, rcBase uint8, kmerLen int) Kmer {
	newLo := (rc.Lo >> 2) | (rc.Hi << 62)
	newHi := rc.Hi >> 2
	shift := 2 * (kmerLen - 1)
	if shift < 64 {
		newLo |= uint64(rcBase) << uint(shift)
	} else {
		newHi |= uint64(rcBase) << uint(shift-64)
	}
	hiMask, loMask := mask2(kmerLen)
	return Kmer{Hi: newHi & hiMask, Lo: newLo & loMask}
}
