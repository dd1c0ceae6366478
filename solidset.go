// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import (
	"encoding/binary"
	"sort"

	"github.com/grailbio/dsk/dskerr"
	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/dsk/store"
)

// SolidRecord is a (canonical k-mer, aggregate abundance) pair, the
// durable output of the counting phase (spec §3, §4.6).
type SolidRecord struct {
	Kmer      kmer.Kmer
	Abundance uint64
}

const solidRecordSize = 16 + 8

// EncodeSolidRecord serializes r as 24 bytes: Hi, Lo, Abundance, all
// little-endian.
func EncodeSolidRecord(r SolidRecord) []byte {
	buf := make([]byte, solidRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.Kmer.Hi)
	binary.LittleEndian.PutUint64(buf[8:16], r.Kmer.Lo)
	binary.LittleEndian.PutUint64(buf[16:24], r.Abundance)
	return buf
}

// DecodeSolidRecord parses a 24-byte record written by EncodeSolidRecord.
func DecodeSolidRecord(buf []byte) (SolidRecord, error) {
	if len(buf) != solidRecordSize {
		return SolidRecord{}, dskerr.Errorf(dskerr.Io, "malformed solid record: %d bytes", len(buf))
	}
	return SolidRecord{
		Kmer:      kmer.Kmer{Hi: binary.LittleEndian.Uint64(buf[0:8]), Lo: binary.LittleEndian.Uint64(buf[8:16])},
		Abundance: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// SolidSetWriter implements C6: a sink for (kmer, abundance) pairs
// backed by one store.Collection per (pass, partition). Each C4 worker
// owns exactly one SolidSetWriter (its partition's sub-collection) at a
// time, so Append needs no cross-worker synchronization (spec §4.6, §5).
type SolidSetWriter struct {
	dest  store.Collection
	nSold int64
}

// NewSolidSetWriter wraps dest, the sub-collection for one (pass,
// partition).
func NewSolidSetWriter(dest store.Collection) *SolidSetWriter {
	return &SolidSetWriter{dest: dest}
}

// Append writes one solid k-mer record.
func (w *SolidSetWriter) Append(r SolidRecord) error {
	w.nSold++
	return dskerr.Wrap(dskerr.Io, w.dest.Append(EncodeSolidRecord(r)))
}

// Flush finalizes the underlying collection.
func (w *SolidSetWriter) Flush() error { return dskerr.Wrap(dskerr.Io, w.dest.Flush()) }

// Count returns the number of records appended so far.
func (w *SolidSetWriter) Count() int64 { return w.nSold }

// Histogram tallies, for each distinct abundance value, how many solid
// k-mers were recorded with that abundance (spec §4.6). It is built
// after the barrier that waits for all C4 workers to finish (spec §5).
type Histogram map[uint64]uint64

// NewHistogram returns an empty Histogram.
func NewHistogram() Histogram { return make(Histogram) }

// Add tallies one solid k-mer's abundance.
func (h Histogram) Add(abundance uint64) { h[abundance]++ }

// Merge folds other into h.
func (h Histogram) Merge(other Histogram) {
	for k, v := range other {
		h[k] += v
	}
}

// sortedKeys returns the histogram's abundance values in ascending order.
func (h Histogram) sortedKeys() []uint64 {
	keys := make([]uint64, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// RecommendedCutoff implements the histogram-derived abundance cutoff
// (spec §4.6): the first local minimum following the first local
// maximum, with smoothing width 3. minAutoThreshold (default 3, spec
// §9/SPEC_FULL §8) is the smallest abundance value considered as a
// candidate cutoff, filtering out the usual abundance=1 noise spike.
// When no such minimum is found at or above minAutoThreshold, it falls
// back to minAutoThreshold itself. Returns ok=false only for an empty
// histogram.
func (h Histogram) RecommendedCutoff(minAutoThreshold uint64) (cutoff uint64, ok bool) {
	keys := h.sortedKeys()
	if len(keys) == 0 {
		return 0, false
	}
	maxAbund := keys[len(keys)-1]
	smooth := func(a uint64) float64 {
		const width = 3
		var sum float64
		var n int
		for d := -width; d <= width; d++ {
			v := int64(a) + int64(d)
			if v < 0 || uint64(v) > maxAbund {
				continue
			}
			sum += float64(h[uint64(v)])
			n++
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}

	var sawMax bool
	var prevSmoothed float64
	for i, a := range keys {
		if a < minAutoThreshold {
			continue
		}
		s := smooth(a)
		if i == 0 || a == minAutoThreshold {
			prevSmoothed = s
			continue
		}
		if !sawMax {
			if s < prevSmoothed {
				sawMax = true
				prevSmoothed = s
				continue
			}
			prevSmoothed = s
			continue
		}
		// Past the first local maximum: look for the first point where
		// the smoothed count starts rising again.
		if s > prevSmoothed {
			return a - 1, true
		}
		prevSmoothed = s
	}
	return minAutoThreshold, true
}
