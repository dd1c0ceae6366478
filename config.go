// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dsk implements the k-mer counting and solid-set construction
// pipeline (C1, C3-C6) historically known as DSK, and ties it together
// with the membership oracle (dsk/membership) into a runnable graph
// builder (Build, in graph.go).
package dsk

import (
	"math"

	"github.com/grailbio/dsk/dskerr"
)

// kmerRecordSize is the per-partition resident size PlanConfig assumes
// for one (kmer, count) entry: a kmer.Kmer (16 bytes) plus a single
// uint32 count. It does not scale with the bank count and adds no
// allowance for hash-table overhead.
const kmerRecordSize = 16 + 4

// superkmerOverheadFactor approximates the expansion from raw bases to
// on-disk super-k-mer records: each super-k-mer carries a length prefix
// and k-1 extra bases of packed overlap, so the partitioned volume is
// somewhat larger than T*sizeof(packed kmer) alone (spec §4.1).
const superkmerOverheadFactor = 1.2

// Plan is the output of PlanConfig (C1): the pass count P and partition
// count N that keep per-pass disk volume under the disk cap and
// per-partition memory under the per-thread memory budget, while
// respecting the open-file-descriptor cap.
type Plan struct {
	Passes     int
	Partitions int

	// MemPerThread is the memory budget (bytes) PlanConfig assumed was
	// available to a single C4 worker, derived from M and NumThreads;
	// exposed so the counter can make the same hash-vs-vector decision
	// PlanConfig's planning pass assumed.
	MemPerThread int64
}

// PlanOpts collects the inputs to PlanConfig (spec §4.1).
type PlanOpts struct {
	// TotalBases is the estimated total base count across all banks
	// (bank.Source.Estimate's totalBases, summed).
	TotalBases int64
	// KmerLen is the chosen k.
	KmerLen int
	// MemoryCapBytes is M, the overall memory budget.
	MemoryCapBytes int64
	// DiskCapBytes is D, the bounded temporary disk budget.
	DiskCapBytes int64
	// MaxOpenFiles is F, the open-file-descriptor cap.
	MaxOpenFiles int
	// NumThreads is the number of C3/C4 worker threads that will run
	// concurrently, used to derive the per-thread memory budget
	// M_eff = MemoryCapBytes / NumThreads.
	NumThreads int
}

// PlanConfig implements C1: choose a pass count P and partition count N
// satisfying
//
//	V/P <= D                                  (disk volume per pass)
//	V/(P*N) * kmerRecordSize <= M_eff          (memory per partition)
//	N < F/2                                    (reserve half the FDs)
//
// where V = TotalBases * sizeof(packed kmer), by the algorithm of spec
// §4.1: start at P = ceil(V/D) (at least 1), compute the smallest N
// satisfying the memory bound, and if that N would violate the FD cap,
// increase P (which divides V further, shrinking the required N) and
// recompute. Ties prefer the smallest P, since each additional pass
// re-reads the entire input.
func PlanConfig(o PlanOpts) (Plan, error) {
	if o.KmerLen < 1 || o.KmerLen > 64 {
		return Plan{}, dskerr.Errorf(dskerr.Configuration, "kmer-size %d out of range [1,64]", o.KmerLen)
	}
	if o.NumThreads < 1 {
		o.NumThreads = 1
	}
	if o.MemoryCapBytes <= 0 || o.DiskCapBytes <= 0 || o.MaxOpenFiles < 2 {
		return Plan{}, dskerr.Errorf(dskerr.Resource, "invalid resource caps: mem=%d disk=%d fds=%d",
			o.MemoryCapBytes, o.DiskCapBytes, o.MaxOpenFiles)
	}

	bytesPerBase := float64(o.KmerLen) / 4.0 // 2 bits/base
	v := float64(o.TotalBases) * bytesPerBase * superkmerOverheadFactor
	if v <= 0 {
		v = bytesPerBase // degenerate/empty input: still plan for 1 partition
	}

	memEff := o.MemoryCapBytes / int64(o.NumThreads)
	if memEff <= 0 {
		return Plan{}, dskerr.Errorf(dskerr.Resource, "memory cap %d too small for %d threads", o.MemoryCapBytes, o.NumThreads)
	}

	passes := int(math.Ceil(v / float64(o.DiskCapBytes)))
	maxPartitions := o.MaxOpenFiles/2 - 1
	if maxPartitions < 1 {
		return Plan{}, dskerr.Errorf(dskerr.Resource, "open-file cap %d leaves no room for partitions", o.MaxOpenFiles)
	}

	for {
		volumePerPass := v / float64(passes)
		n := int(math.Ceil(volumePerPass / (float64(memEff) / kmerRecordSize)))
		if n < 1 {
			n = 1
		}
		if n <= maxPartitions {
			return Plan{Passes: passes, Partitions: n, MemPerThread: memEff}, nil
		}
		passes++
		if passes > 1<<20 {
			return Plan{}, dskerr.Errorf(dskerr.Resource, "cannot satisfy resource caps: mem=%d disk=%d fds=%d for %d estimated bases",
				o.MemoryCapBytes, o.DiskCapBytes, o.MaxOpenFiles, o.TotalBases)
		}
	}
}
