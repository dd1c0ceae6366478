// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/dsk/bank"
	"github.com/grailbio/dsk/dskerr"
	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/dsk/store"
)

// Superkmer is a maximal run of consecutive k-mers inside a read sharing
// a partition id (spec §3): Length is the number of k-mers in the run
// (ell), and Bases is the 2-bits-per-base packed forward-strand sequence
// of length KmerLen+Length-1 the run was read from. C4 re-derives the
// Length canonical k-mers (and their partition id) by re-running
// kmer.Iterator over the unpacked bases.
type Superkmer struct {
	Length int
	Bases  []byte // packed, ceil(numBases/4) bytes
}

// NumBases returns the length, in bases, of the window this super-k-mer
// was extracted from.
func (s Superkmer) NumBases(kmerLen int) int { return kmerLen + s.Length - 1 }

// packBases packs the ASCII window seq[start:start+n] (over {A,C,G,T},
// already validated) 2 bits per base, MSB-first within each byte.
func packBases(seq string, start, n int) []byte {
	out := make([]byte, (n+3)/4)
	for i := 0; i < n; i++ {
		code := asciiCode(seq[start+i])
		out[i/4] |= code << uint(6-2*(i%4))
	}
	return out
}

// unpackBases decodes n packed bases back to an uppercase ACGT string.
func unpackBases(packed []byte, n int) string {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		code := (packed[i/4] >> uint(6-2*(i%4))) & 3
		out[i] = "ACGT"[code]
	}
	return string(out)
}

var baseCode [256]byte

func init() {
	baseCode['A'], baseCode['a'] = 0, 0
	baseCode['C'], baseCode['c'] = 1, 1
	baseCode['G'], baseCode['g'] = 2, 2
	baseCode['T'], baseCode['t'] = 3, 3
}

func asciiCode(ch byte) byte { return baseCode[ch] }

// encodeSuperkmer serializes sk as [uvarint length][packed bases...] and
// appends it to buf.
func encodeSuperkmer(buf *bytes.Buffer, sk Superkmer) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(sk.Length))
	buf.Write(lenBuf[:n])
	buf.Write(sk.Bases)
}

// decodeSuperkmers parses every super-k-mer packed into rec (one flushed
// worker-cache record may hold many) and calls yield for each.
func decodeSuperkmers(rec []byte, kmerLen int, yield func(Superkmer)) error {
	r := bytes.NewReader(rec)
	for r.Len() > 0 {
		length, err := binary.ReadUvarint(r)
		if err != nil {
			return dskerr.E(dskerr.Io, err)
		}
		numBases := kmerLen + int(length) - 1
		packedLen := (numBases + 3) / 4
		packed := make([]byte, packedLen)
		if _, err := io.ReadFull(r, packed); err != nil {
			return dskerr.E(dskerr.Io, err)
		}
		yield(Superkmer{Length: int(length), Bases: packed})
	}
	return nil
}

// PartitionStats accumulates the per-partition k-mer and super-k-mer
// counts spec §4.3 asks C3 to track, across every sequence batch any
// worker processed for this pass.
type PartitionStats struct {
	NumKmers     int64
	NumSuperkmers int64
}

// Partitioner implements C3: it streams a bank.Source, splits every
// sequence into super-k-mers, and appends each super-k-mer belonging to
// the current pass to its partition's store.Collection.
type Partitioner struct {
	KmerLen    int
	Repart     *kmer.Repartitioner
	CacheBytes int // per-worker, per-partition write-back threshold (C)
}

// NewPartitioner returns a Partitioner with the spec's default 8 KiB
// per-partition worker cache.
func NewPartitioner(kmerLen int, repart *kmer.Repartitioner) *Partitioner {
	return &Partitioner{KmerLen: kmerLen, Repart: repart, CacheBytes: 8 << 10}
}

// partitionMutexes serializes Append calls to each partition's
// Collection; Collection.Append is documented as not safe for
// concurrent use, so every partition needs its own lock (spec §5:
// "hot path is lock-free because each worker batches... and takes the
// lock only on flush").
type partitionMutexes []sync.Mutex

// RunPass streams every record of src once, emits super-k-mers destined
// for this pass (hash(part) mod passes == pass) into dests[part], and
// returns per-partition stats. Every flushed record is tagged with
// bankIdx (the index of src among the run's banks) so C4 can recover
// per-bank count vectors from a partition file fed by multiple banks.
// numWorkers sequences are consumed concurrently: the bank.Source itself
// is not safe for concurrent Scan, so workers share it under a single
// mutex and batch ~1000 records per acquisition (spec §4.3's "sequences
// are consumed in batches by W worker threads"), then partition and
// pack those records independently.
func (p *Partitioner) RunPass(pass, passes, numWorkers, bankIdx int, src bank.Source, dests []store.Collection) ([]PartitionStats, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	const batchSize = 1000

	stats := make([]PartitionStats, len(dests))
	var statsMu sync.Mutex
	mus := make(partitionMutexes, len(dests))

	var srcMu sync.Mutex
	srcErr := func() error { return nil }
	nextBatch := func() ([]bank.Record, bool) {
		srcMu.Lock()
		defer srcMu.Unlock()
		batch := make([]bank.Record, 0, batchSize)
		for len(batch) < batchSize {
			var rec bank.Record
			if !src.Scan(&rec) {
				srcErr = src.Err
				break
			}
			batch = append(batch, rec)
		}
		return batch, len(batch) > 0
	}

	bankPrefix := byte(bankIdx)
	err := traverse.Each(numWorkers, func(worker int) error {
		caches := make([]bytes.Buffer, len(dests))
		local := make([]PartitionStats, len(dests))
		flush := func(part int) error {
			if caches[part].Len() == 0 {
				return nil
			}
			compressed := snappy.Encode(nil, caches[part].Bytes())
			rec := make([]byte, 1, len(compressed)+1)
			rec[0] = bankPrefix
			rec = append(rec, compressed...)
			mus[part].Lock()
			err := dests[part].Append(rec)
			mus[part].Unlock()
			caches[part].Reset()
			return dskerr.Wrap(dskerr.Io, err)
		}
		for {
			batch, ok := nextBatch()
			if !ok {
				break
			}
			for _, rec := range batch {
				if err := p.partitionSequence(rec.Seq, pass, passes, caches, local, flush); err != nil {
					return err
				}
			}
		}
		for part := range caches {
			if err := flush(part); err != nil {
				return err
			}
		}
		statsMu.Lock()
		for i := range stats {
			stats[i].NumKmers += local[i].NumKmers
			stats[i].NumSuperkmers += local[i].NumSuperkmers
		}
		statsMu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e := srcErr(); e != nil {
		return nil, dskerr.E(dskerr.Input, e)
	}
	return stats, nil
}

// partitionSequence splits one sequence into runs of same-partition
// k-mers and emits (or discards) each run per spec §4.3's steps 1-2.
func (p *Partitioner) partitionSequence(seq string, pass, passes int, caches []bytes.Buffer, local []PartitionStats, flush func(int) error) error {
	it := kmer.NewIterator(p.KmerLen)
	it.Reset(seq)

	runStart := -1
	runLen := 0
	runPart := -1
	prevPos := -1

	emit := func() error {
		if runLen == 0 {
			return nil
		}
		defer func() { runLen = 0 }()
		if kmer.HashPartition(runPart)%uint64(passes) != uint64(pass) {
			return nil
		}
		numBases := p.KmerLen + runLen - 1
		sk := Superkmer{Length: runLen, Bases: packBases(seq, runStart, numBases)}
		encodeSuperkmer(&caches[runPart], sk)
		local[runPart].NumKmers += int64(runLen)
		local[runPart].NumSuperkmers++
		if caches[runPart].Len() >= p.CacheBytes {
			return flush(runPart)
		}
		return nil
	}

	for it.Scan() {
		pos := it.Pos()
		part := p.Repart.Part(it.Canonical())
		contiguous := pos == prevPos+1
		if runLen > 0 && (part != runPart || !contiguous) {
			if err := emit(); err != nil {
				return err
			}
		}
		if runLen == 0 {
			runStart = pos
			runPart = part
		}
		runLen++
		prevPos = pos
	}
	return emit()
}

// logPartitionStats is a thin convenience used by Build to report per-
// pass totals, matching cmd/bio-fusion's end-of-phase log line style.
func logPartitionStats(pass int, stats []PartitionStats) {
	var totalK, totalS int64
	for _, s := range stats {
		totalK += s.NumKmers
		totalS += s.NumSuperkmers
	}
	log.Printf("pass %d: %d kmers, %d superkmers across %d partitions", pass, totalK, totalS, len(stats))
}
