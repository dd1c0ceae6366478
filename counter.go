// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import (
	"encoding/binary"
	"sort"
	"unsafe"

	"github.com/golang/snappy"
	"github.com/grailbio/base/log"
	"github.com/grailbio/dsk/dskerr"
	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/dsk/store"
	"golang.org/x/sys/unix"
)

// CountRecord is a (kmer, count vector) pair produced by expanding a
// partition's super-k-mer stream, before the solidity filter runs.
type CountRecord struct {
	Kmer   kmer.Kmer
	Counts []uint32 // one slot per bank
}

// CounterOpts parameterises C4.
type CounterOpts struct {
	KmerLen  int
	NumBanks int
	// MemThreadBytes is M_thread, the per-worker memory budget from
	// Plan.MemPerThread; hash mode is used only while the estimated
	// resident size of the partition's distinct k-mers fits under it
	// (spec §4.4).
	MemThreadBytes int64
}

// emptyHi, emptyLo mark an unoccupied hash-table slot. A canonical k-mer
// can never equal {^0,^0}: its reverse complement would be the
// all-zero k-mer, which sorts smaller, so {^0,^0} can never be the min
// of the pair (spec §3's canonical-form definition).
const emptyHi, emptyLo = ^uint64(0), ^uint64(0)

// CountPartition implements C4 for one partition: it decodes every
// super-k-mer in src, expands each back into its canonical k-mers,
// accumulates a per-bank count vector for each distinct k-mer, and
// calls emit once for every (kmer, counts) pair. Records from all banks
// share one partition collection; each record's bank index comes from
// the 1-byte prefix RunPass writes ahead of it.
func CountPartition(opts CounterOpts, src store.Collection, estimatedDistinct int64, emit func(CountRecord) error) error {
	useHash := estimatedDistinct*kmerEntrySize(opts.NumBanks) <= opts.MemThreadBytes
	if useHash {
		return countHashMode(opts, src, estimatedDistinct, emit)
	}
	return countVectorRadixMode(opts, src, emit)
}

func kmerEntrySize(numBanks int) int64 { return 16 + 4*int64(numBanks) }

// --- Hash mode -------------------------------------------------------

// hashTable is an open-addressing (kmer -> count vector) map backed by
// an anonymous mmap'd region with MADV_HUGEPAGE advice, the same
// technique fusion/kmer_index.go.initShard uses for its kmer->genelist
// shard, generalized here to a uniform per-entry layout (16-byte kmer
// key immediately followed by NumBanks little-endian uint32 counts)
// since every entry in one partition's table is the same size.
type hashTable struct {
	numBanks  int
	entrySize uintptr
	size      int // power of two
	mem       []byte
	len       int
}

func newHashTable(capacity, numBanks int) (*hashTable, error) {
	const loadFactorInv = 1.43 // load factor 0.7
	minSize := int(float64(capacity+1) * loadFactorInv)
	size := 1
	for size < minSize {
		size *= 2
	}
	entrySize := uintptr(16 + 4*numBanks)
	total := int(entrySize) * size
	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, dskerr.E(dskerr.Resource, err)
	}
	_ = unix.Madvise(mem, unix.MADV_HUGEPAGE) // best-effort; failure is not fatal
	t := &hashTable{numBanks: numBanks, entrySize: entrySize, size: size, mem: mem}
	for i := 0; i < size; i++ {
		t.setKey(i, emptyHi, emptyLo)
	}
	return t, nil
}

func (t *hashTable) close() error { return unix.Munmap(t.mem) }

func (t *hashTable) off(slot int) int { return slot * int(t.entrySize) }

func (t *hashTable) keyAt(slot int) (hi, lo uint64) {
	p := (*[2]uint64)(unsafe.Pointer(&t.mem[t.off(slot)]))
	return p[0], p[1]
}

func (t *hashTable) setKey(slot int, hi, lo uint64) {
	p := (*[2]uint64)(unsafe.Pointer(&t.mem[t.off(slot)]))
	p[0], p[1] = hi, lo
}

func (t *hashTable) countsAt(slot int) []byte {
	start := t.off(slot) + 16
	return t.mem[start : start+4*t.numBanks]
}

// add increments bank's count for k (inserting a fresh zeroed entry if
// k is not yet present), using linear probing and saturating adds.
func (t *hashTable) add(k kmer.Kmer, bank int, delta uint32) {
	h := k.Hash(0)
	mask := uint64(t.size - 1)
	slot := int(h & mask)
	for {
		hi, lo := t.keyAt(slot)
		if hi == emptyHi && lo == emptyLo {
			t.setKey(slot, k.Hi, k.Lo)
			t.len++
			counts := t.countsAt(slot)
			binary.LittleEndian.PutUint32(counts[4*bank:], delta)
			return
		}
		if hi == k.Hi && lo == k.Lo {
			counts := t.countsAt(slot)
			v := binary.LittleEndian.Uint32(counts[4*bank:])
			kmer.SaturatingAddU32(&v, delta)
			binary.LittleEndian.PutUint32(counts[4*bank:], v)
			return
		}
		slot = (slot + 1) & int(mask)
	}
}

// each visits every occupied slot.
func (t *hashTable) each(numBanks int, fn func(k kmer.Kmer, counts []uint32)) {
	buf := make([]uint32, numBanks)
	for slot := 0; slot < t.size; slot++ {
		hi, lo := t.keyAt(slot)
		if hi == emptyHi && lo == emptyLo {
			continue
		}
		raw := t.countsAt(slot)
		for b := 0; b < numBanks; b++ {
			buf[b] = binary.LittleEndian.Uint32(raw[4*b:])
		}
		fn(kmer.Kmer{Hi: hi, Lo: lo}, buf)
	}
}

func countHashMode(opts CounterOpts, src store.Collection, estimatedDistinct int64, emit func(CountRecord) error) error {
	table, err := newHashTable(int(estimatedDistinct), opts.NumBanks)
	if err != nil {
		return err
	}
	defer table.close() // nolint: errcheck

	if err := scanPartition(src, opts.KmerLen, func(k kmer.Kmer, bankIdx int) {
		table.add(k, bankIdx, 1)
	}); err != nil {
		return err
	}

	var emitErr error
	table.each(opts.NumBanks, func(k kmer.Kmer, counts []uint32) {
		if emitErr != nil {
			return
		}
		emitErr = emit(CountRecord{Kmer: k, Counts: append([]uint32(nil), counts...)})
	})
	return emitErr
}

// --- Vector+radix mode -------------------------------------------------

// countVectorRadixMode implements the spec's fallback for partitions
// whose distinct-kmer estimate would blow the per-thread memory budget
// in hash mode: bucket by the top 8 bits of the kmer (256 buckets),
// sort each bucket lexicographically, and run-length compress adjacent
// equal k-mers into a single (kmer, counts) record. Buckets are
// processed and concatenated in ascending order, so the overall output
// is already lexicographically sorted with no extra merge step.
func countVectorRadixMode(opts CounterOpts, src store.Collection, emit func(CountRecord) error) error {
	type entry struct {
		k       kmer.Kmer
		bankIdx int
	}
	const numBuckets = 256
	buckets := make([][]entry, numBuckets)

	if err := scanPartition(src, opts.KmerLen, func(k kmer.Kmer, bankIdx int) {
		b := bucketOf(k, opts.KmerLen)
		buckets[b] = append(buckets[b], entry{k: k, bankIdx: bankIdx})
	}); err != nil {
		return err
	}

	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].k.Less(bucket[j].k) })
		i := 0
		for i < len(bucket) {
			j := i
			counts := make([]uint32, opts.NumBanks)
			for j < len(bucket) && bucket[j].k.Equal(bucket[i].k) {
				kmer.SaturatingAddU32(&counts[bucket[j].bankIdx], 1)
				j++
			}
			if err := emit(CountRecord{Kmer: bucket[i].k, Counts: counts}); err != nil {
				return err
			}
			i = j
		}
	}
	return nil
}

func bucketOf(k kmer.Kmer, kmerLen int) int {
	shift := 2*kmerLen - 8
	switch {
	case shift <= 0:
		return int(k.Lo & 0xff)
	case shift >= 64:
		return int(k.Hi>>uint(shift-64)) & 0xff
	case shift > 56:
		return int(k.Lo>>uint(shift)|k.Hi<<uint(64-shift)) & 0xff
	default:
		return int(k.Lo>>uint(shift)) & 0xff
	}
}

// scanPartition decodes every super-k-mer in src (spec §4.4 step 1),
// re-expanding each into its canonical k-mers via kmer.Iterator, and
// calls visit once per (k-mer, originating bank) pair. The bank index
// is recovered from the 1-byte prefix RunPass writes ahead of every
// record.
func scanPartition(src store.Collection, kmerLen int, visit func(k kmer.Kmer, bankIdx int)) error {
	it, err := src.Iterate()
	if err != nil {
		return err
	}
	defer it.Close() // nolint: errcheck

	kit := kmer.NewIterator(kmerLen)
	for it.Scan() {
		rec := it.Bytes()
		if len(rec) == 0 {
			continue
		}
		bankIdx := int(rec[0])
		body, err := snappy.Decode(nil, rec[1:])
		if err != nil {
			return dskerr.E(dskerr.Io, err)
		}
		if err := decodeSuperkmers(body, kmerLen, func(sk Superkmer) {
			seq := unpackBases(sk.Bases, sk.NumBases(kmerLen))
			kit.Reset(seq)
			for kit.Scan() {
				visit(kit.Canonical(), bankIdx)
			}
		}); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return dskerr.E(dskerr.Io, err)
	}
	return nil
}

func logCounterMode(part int, hash bool, distinct int64) {
	mode := "vector+radix"
	if hash {
		mode = "hash"
	}
	log.Printf("partition %d: %s mode, ~%d distinct kmers estimated", part, mode, distinct)
}
