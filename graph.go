// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dsk

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/dsk/bank"
	"github.com/grailbio/dsk/dispatch"
	"github.com/grailbio/dsk/dskerr"
	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/dsk/membership"
	"github.com/grailbio/dsk/mphf"
	"github.com/grailbio/dsk/store"
	"github.com/grailbio/dsk/storepb"
)

// BloomKind selects the Bloom filter variant requested via dbgh5's
// -bloom flag. All three are built on the same cache-coherent
// (blocked) blobloom.Filter (spec §4.7's cache-coherent variant is the
// only one this implementation constructs); "basic" and "neighbor" are
// accepted for CLI compatibility but do not change the underlying
// structure. The requested kind is not written to the artifact; the
// /debloom group's "type" property is always "cache-coherent".
type BloomKind int

const (
	BloomBasic BloomKind = iota
	BloomCache
	BloomNeighbor
)

// DebloomKind selects the cFP storage strategy (spec §4.8).
type DebloomKind int

const (
	DebloomNone DebloomKind = iota
	DebloomOriginal
	DebloomCascading
)

// DebloomImpl records the -debloom-impl choice ("basic" or
// "minimizer"). Build does not read it: cFP candidate generation always
// walks the whole solid set sequentially, whichever value is set.
type DebloomImpl int

const (
	DebloomImplBasic DebloomImpl = iota
	DebloomImplMinimizer
)

// Opts collects every dbgh5 configuration knob (spec §6) needed to
// build a graph.
type Opts struct {
	KmerLen          int
	MinimizerLen     int
	MinimizerType    kmer.OrderScheme
	Solidity         SolidityFilter
	BloomKind        BloomKind
	DebloomKind      DebloomKind
	DebloomImpl      DebloomImpl
	FPRate           float64
	MaxDiskBytes     int64
	MaxMemoryBytes   int64
	MaxOpenFiles     int
	NumThreads       int
	MinAutoThreshold uint64

	// BankURI records the -in argument verbatim for the /info
	// bank_uri property (spec §6). Build does not parse or open
	// paths from it; callers populate it for provenance only.
	BankURI string
}

// DefaultOpts mirrors dbgh5's documented flag defaults (spec §6).
var DefaultOpts = Opts{
	KmerLen:          31,
	MinimizerLen:     8,
	MinimizerType:    kmer.Lexicographic,
	Solidity:         SolidityFilter{Kind: SolidityKindSum, AbundMin: 3, AbundMax: 1<<32 - 1},
	BloomKind:        BloomNeighbor,
	DebloomKind:      DebloomCascading,
	DebloomImpl:      DebloomImplMinimizer,
	FPRate:           0.01,
	MaxMemoryBytes:   2000 << 20,
	MaxOpenFiles:     256,
	NumThreads:       4,
	MinAutoThreshold: 3,
}

// Validate checks Opts for the ConfigurationError conditions spec §7
// names: invalid k, m>=k, abund_min>abund_max. It additionally rejects
// m==k-1 (spec §8's boundary property): at that width a k-mer has only
// k-m+1==2 candidate minimizer positions, too few for the minimizer to
// meaningfully spread k-mers across partitions, so dbgh5 treats it the
// same as m>=k rather than silently building a degenerately-partitioned
// graph.
func (o Opts) Validate() error {
	if o.KmerLen < 1 || o.KmerLen > kmer.MaxK {
		return dskerr.Errorf(dskerr.Configuration, "kmer-size %d out of range [1,%d]", o.KmerLen, kmer.MaxK)
	}
	if o.MinimizerLen < 1 || o.MinimizerLen >= o.KmerLen {
		return dskerr.Errorf(dskerr.Configuration, "minimizer-size %d must be < kmer-size %d", o.MinimizerLen, o.KmerLen)
	}
	if o.MinimizerLen == o.KmerLen-1 {
		return dskerr.Errorf(dskerr.Configuration, "minimizer-size %d must be < kmer-size-1 %d", o.MinimizerLen, o.KmerLen-1)
	}
	if o.Solidity.AbundMin > o.Solidity.AbundMax {
		return dskerr.Errorf(dskerr.Configuration, "abundance-min %d > abundance-max %d", o.Solidity.AbundMin, o.Solidity.AbundMax)
	}
	return nil
}

// BankOpener returns a fresh set of restarted bank.Source instances,
// one per input bank, called once per C3 pass since a bank.Source is a
// forward-only stream (spec §4.3: "for pass p... stream reads").
type BankOpener func() ([]bank.Source, error)

// Graph is the in-memory handle to a built (or reloaded) De Bruijn
// graph: the membership oracle (C9) plus the parameters needed to
// recompute partition ids and minimizers for further queries.
type Graph struct {
	Opts      Opts
	Repart    *kmer.Repartitioner
	Oracle    *membership.Oracle
	NumSolid  int64
	Histogram Histogram
	Cutoff    uint64
	HasCutoff bool

	// Abundances is the in-memory abundance lookup built alongside the
	// oracle (spec §1's optional MPHF acceleration layer, here a
	// reference mphf.SortedTableMap rather than a true MPHF). It is not
	// persisted; Load leaves it nil, since reconstructing it would mean
	// re-materializing the whole solid set, which the artifact alone
	// does not retain after Build finishes.
	Abundances mphf.AbundanceMap
}

// Build runs the full pipeline (C1-C9) over the banks openBanks
// produces, writing durable artifacts into artifact and scratch
// super-k-mer partition files into tmp, and returns the resulting
// Graph. Build does not remove tmp's contents: the partition
// collections it wrote stay in tmp after Build returns.
func Build(ctx context.Context, openBanks BankOpener, opts Opts, artifact, tmp store.Group) (*Graph, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	banks, err := openBanks()
	if err != nil {
		return nil, dskerr.Wrap(dskerr.Input, err)
	}
	var totalBases int64
	var numBanks = len(banks)
	for _, b := range banks {
		_, bases, _ := b.Estimate()
		totalBases += bases
	}

	plan, err := PlanConfig(PlanOpts{
		TotalBases:     totalBases,
		KmerLen:        opts.KmerLen,
		MemoryCapBytes: opts.MaxMemoryBytes,
		DiskCapBytes:   opts.MaxDiskBytes,
		MaxOpenFiles:   opts.MaxOpenFiles,
		NumThreads:     opts.NumThreads,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("dsk: plan: %d passes x %d partitions", plan.Passes, plan.Partitions)

	repart, err := buildRepartitioner(opts, plan, openBanks)
	if err != nil {
		return nil, err
	}
	if err := persistRepart(ctx, artifact, repart); err != nil {
		return nil, err
	}

	partitioner := NewPartitioner(opts.KmerLen, repart)
	solidGroup, err := artifact.Group(ctx, "dsk")
	if err != nil {
		return nil, err
	}
	solidGroup, err = solidGroup.Group(ctx, "solid")
	if err != nil {
		return nil, err
	}

	histogram := NewHistogram()
	var totalSolid int64
	var histMu sync.Mutex

	for pass := 0; pass < plan.Passes; pass++ {
		banks, err := openBanks()
		if err != nil {
			return nil, dskerr.Wrap(dskerr.Input, err)
		}
		active, dests, err := openPassPartitions(ctx, tmp, pass, plan)
		if err != nil {
			return nil, err
		}

		stats := make([]PartitionStats, plan.Partitions)
		for bankIdx, src := range banks {
			bankStats, err := partitioner.RunPass(pass, plan.Passes, opts.NumThreads, bankIdx, src, dests)
			if err != nil {
				return nil, err
			}
			for i, s := range bankStats {
				stats[i].NumKmers += s.NumKmers
				stats[i].NumSuperkmers += s.NumSuperkmers
			}
		}
		logPartitionStats(pass, stats)
		for _, part := range active {
			if err := dests[part].Flush(); err != nil {
				return nil, dskerr.Wrap(dskerr.Io, err)
			}
		}

		d := dispatch.New(len(active), nil)
		err = d.Run(func(i int) error {
			part := active[i]
			solidCol, err := solidGroup.Collection(ctx, partCollectionName(pass, part))
			if err != nil {
				return err
			}
			writer := NewSolidSetWriter(solidCol)
			localHist := NewHistogram()
			counterOpts := CounterOpts{KmerLen: opts.KmerLen, NumBanks: numBanks, MemThreadBytes: plan.MemPerThread}
			logCounterMode(part, stats[part].NumKmers*kmerEntrySize(numBanks) <= plan.MemPerThread, stats[part].NumKmers)
			err = CountPartition(counterOpts, dests[part], stats[part].NumKmers, func(rec CountRecord) error {
				if !opts.Solidity.Accept(rec.Counts) {
					return nil
				}
				abundance := Abundance(rec.Counts)
				localHist.Add(abundance)
				return writer.Append(SolidRecord{Kmer: rec.Kmer, Abundance: abundance})
			})
			if err != nil {
				return err
			}
			if err := writer.Flush(); err != nil {
				return err
			}
			histMu.Lock()
			histogram.Merge(localHist)
			totalSolid += writer.Count()
			histMu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	cutoff, hasCutoff := histogram.RecommendedCutoff(opts.MinAutoThreshold)
	if err := persistHistogram(ctx, artifact, histogram); err != nil {
		return nil, err
	}

	solidCols, err := listSolidCollections(ctx, solidGroup, plan)
	if err != nil {
		return nil, err
	}
	solidIterKA := func(yield func(k kmer.Kmer, abundance uint64) bool) {
		iterateSolid(solidCols, yield)
	}
	solidLookup := buildSolidLookup(solidIterKA)
	solidIterK := func(yield func(kmer.Kmer) bool) {
		solidIterKA(func(k kmer.Kmer, _ uint64) bool { return yield(k) })
	}
	abundances := mphf.BuildSortedTableMap(solidIterKA)

	bloom := membership.NewBloomFilter(opts.KmerLen, uint64(totalSolid), opts.FPRate)
	buildBloom(bloom, solidIterK)

	var cfp membership.CFP
	switch opts.DebloomKind {
	case DebloomNone:
		cfp = noneCFP{}
	case DebloomOriginal:
		candidates := membership.BuildCandidates(solidIterK, opts.KmerLen, bloom, solidLookup)
		cfp = membership.NewSortedCFP(candidates)
	default:
		cfp = membership.BuildCascadingCFP(solidIterK, opts.KmerLen, bloom, solidLookup, opts.FPRate)
	}

	oracle := membership.NewOracle(opts.KmerLen, bloom, cfp)

	if err := persistBloom(ctx, artifact, bloom); err != nil {
		return nil, err
	}
	if err := persistCFP(ctx, artifact, opts.DebloomKind, cfp); err != nil {
		return nil, err
	}

	var nbBranching int64
	solidIterK(func(k kmer.Kmer) bool {
		if oracle.IsBranching(k) {
			nbBranching++
		}
		return true
	})

	if err := persistInfo(ctx, artifact, opts, plan, totalSolid, nbBranching); err != nil {
		return nil, err
	}
	info, err := artifact.Group(ctx, "info")
	if err != nil {
		return nil, err
	}
	info.SetProperty("complete", "true")
	if err := info.Close(ctx); err != nil {
		return nil, dskerr.Wrap(dskerr.Io, err)
	}

	return &Graph{
		Opts:       opts,
		Repart:     repart,
		Oracle:     oracle,
		NumSolid:   totalSolid,
		Histogram:  histogram,
		Cutoff:     cutoff,
		HasCutoff:  hasCutoff,
		Abundances: abundances,
	}, nil
}

// noneCFP implements membership.CFP for -debloom=none: no cFP
// correction at all (accepts the main Bloom filter's raw false-positive
// rate as the oracle's effective rate).
type noneCFP struct{}

func (noneCFP) Contains(kmer.Kmer) bool { return false }

func buildRepartitioner(opts Opts, plan Plan, openBanks BankOpener) (*kmer.Repartitioner, error) {
	if opts.MinimizerType == kmer.Lexicographic {
		return kmer.NewLexicographicRepartitioner(opts.KmerLen, opts.MinimizerLen, plan.Partitions), nil
	}
	const sampleTarget = 1_000_000
	banks, err := openBanks()
	if err != nil {
		return nil, dskerr.Wrap(dskerr.Input, err)
	}
	var sample []uint64
	it := kmer.NewIterator(opts.KmerLen)
outer:
	for _, b := range banks {
		var rec bank.Record
		for b.Scan(&rec) {
			it.Reset(rec.Seq)
			for it.Scan() {
				sample = append(sample, kmer.Minimizer(it.Canonical(), opts.KmerLen, opts.MinimizerLen, kmer.Lexicographic, nil))
				if len(sample) >= sampleTarget {
					break outer
				}
			}
		}
	}
	return kmer.NewFrequencyRepartitioner(opts.KmerLen, opts.MinimizerLen, plan.Partitions, sample), nil
}

func openPassPartitions(ctx context.Context, tmp store.Group, pass int, plan Plan) (active []int, dests []store.Collection, err error) {
	dests = make([]store.Collection, plan.Partitions)
	for part := 0; part < plan.Partitions; part++ {
		if int(kmer.HashPartition(part)%uint64(plan.Passes)) != pass {
			continue
		}
		col, err := tmp.Collection(ctx, partCollectionName(pass, part))
		if err != nil {
			return nil, nil, err
		}
		dests[part] = col
		active = append(active, part)
	}
	return active, dests, nil
}

func partCollectionName(pass, part int) string {
	return "p" + strconv.Itoa(pass) + "_n" + strconv.Itoa(part)
}

func listSolidCollections(ctx context.Context, solidGroup store.Group, plan Plan) ([]store.Collection, error) {
	cols := make([]store.Collection, 0, plan.Partitions)
	for part := 0; part < plan.Partitions; part++ {
		pass := int(kmer.HashPartition(part) % uint64(plan.Passes))
		col, err := solidGroup.Collection(ctx, partCollectionName(pass, part))
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func iterateSolid(cols []store.Collection, yield func(k kmer.Kmer, abundance uint64) bool) {
	for _, col := range cols {
		it, err := col.Iterate()
		if err != nil {
			continue
		}
		for it.Scan() {
			rec, err := DecodeSolidRecord(it.Bytes())
			if err != nil {
				continue
			}
			if !yield(rec.Kmer, rec.Abundance) {
				it.Close() // nolint: errcheck
				return
			}
		}
		it.Close() // nolint: errcheck
	}
}

// sortedSolidLookup is the reference, in-memory SolidLookup used during
// the oracle-construction phase (C8): the full solid set is loaded once
// (an O(nk) transient structure, not the graph's durable
// representation, which remains Bloom+cFP) and queried by binary
// search. Production-scale builds that cannot afford this should
// instead route C8's solidity check through repart-partitioned batches,
// one partition resident at a time.
type sortedSolidLookup struct {
	sorted []kmer.Kmer
}

func buildSolidLookup(solidIter func(yield func(k kmer.Kmer, abundance uint64) bool)) *sortedSolidLookup {
	var all []kmer.Kmer
	solidIter(func(k kmer.Kmer, _ uint64) bool {
		all = append(all, k)
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].Less(all[j]) })
	return &sortedSolidLookup{sorted: all}
}

func (s *sortedSolidLookup) Contains(k kmer.Kmer) bool {
	i := sort.Search(len(s.sorted), func(i int) bool { return !s.sorted[i].Less(k) })
	return i < len(s.sorted) && s.sorted[i].Equal(k)
}

func buildBloom(bloom *membership.BloomFilter, solidIterK func(yield func(kmer.Kmer) bool)) {
	solidIterK(func(k kmer.Kmer) bool {
		bloom.Add(k)
		return true
	})
}

func persistRepart(ctx context.Context, artifact store.Group, repart *kmer.Repartitioner) error {
	table := repart.RepartTable()
	if table == nil {
		return nil // lexicographic scheme: no table to persist
	}
	grp, err := artifact.Group(ctx, "minimizers")
	if err != nil {
		return err
	}
	col, err := grp.Collection(ctx, "repart")
	if err != nil {
		return err
	}
	buf, err := storepb.Marshal(&storepb.RepartTable{Entries: table})
	if err != nil {
		return dskerr.E(dskerr.Io, err)
	}
	if err := col.Append(buf); err != nil {
		return dskerr.Wrap(dskerr.Io, err)
	}
	return dskerr.Wrap(dskerr.Io, col.Flush())
}

func persistHistogram(ctx context.Context, artifact store.Group, h Histogram) error {
	dskGroup, err := artifact.Group(ctx, "dsk")
	if err != nil {
		return err
	}
	grp, err := dskGroup.Group(ctx, "histogram")
	if err != nil {
		return err
	}
	col, err := grp.Collection(ctx, "histogram")
	if err != nil {
		return err
	}
	for _, a := range h.sortedKeys() {
		var buf [16]byte
		putUint64le(buf[0:8], a)
		putUint64le(buf[8:16], h[a])
		if err := col.Append(buf[:]); err != nil {
			return dskerr.Wrap(dskerr.Io, err)
		}
	}
	return dskerr.Wrap(dskerr.Io, col.Flush())
}

func putUint64le(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func persistInfo(ctx context.Context, artifact store.Group, opts Opts, plan Plan, nbSolid, nbBranching int64) error {
	info, err := artifact.Group(ctx, "info")
	if err != nil {
		return err
	}
	info.SetProperty("kmer_size", strconv.Itoa(opts.KmerLen))
	info.SetProperty("minimizer_size", strconv.Itoa(opts.MinimizerLen))
	info.SetProperty("minimizer_type", strconv.Itoa(int(opts.MinimizerType)))
	info.SetProperty("abundance_min", strconv.FormatUint(opts.Solidity.AbundMin, 10))
	info.SetProperty("abundance_max", strconv.FormatUint(opts.Solidity.AbundMax, 10))
	info.SetProperty("solidity_kind", strconv.Itoa(int(opts.Solidity.Kind)))
	info.SetProperty("nb_solid", strconv.FormatInt(nbSolid, 10))
	info.SetProperty("nb_branching", strconv.FormatInt(nbBranching, 10))
	info.SetProperty("bits_per_kmer", fmt.Sprintf("%.2f", estimateBitsPerKmer(opts.FPRate)))
	info.SetProperty("passes", strconv.Itoa(plan.Passes))
	info.SetProperty("partitions", strconv.Itoa(plan.Partitions))
	info.SetProperty("debloom_kind", strconv.Itoa(int(opts.DebloomKind)))
	info.SetProperty("bank_uri", opts.BankURI)
	return dskerr.Wrap(dskerr.Io, info.Close(ctx))
}

func persistBloom(ctx context.Context, artifact store.Group, bloom *membership.BloomFilter) error {
	grp, err := artifact.Group(ctx, "debloom")
	if err != nil {
		return err
	}
	col, err := grp.Collection(ctx, "bloom")
	if err != nil {
		return err
	}
	data, err := bloom.MarshalBinary()
	if err != nil {
		return dskerr.E(dskerr.Io, err)
	}
	if err := col.Append(data); err != nil {
		return dskerr.Wrap(dskerr.Io, err)
	}
	if err := col.Flush(); err != nil {
		return dskerr.Wrap(dskerr.Io, err)
	}
	grp.SetProperty("size_bits", strconv.FormatUint(bloom.NumBits(), 10))
	grp.SetProperty("type", "cache-coherent")
	return dskerr.Wrap(dskerr.Io, grp.Close(ctx))
}

func persistCFP(ctx context.Context, artifact store.Group, kind DebloomKind, cfp membership.CFP) error {
	debloom, err := artifact.Group(ctx, "debloom")
	if err != nil {
		return err
	}
	defer debloom.Close(ctx) // nolint: errcheck

	switch t := cfp.(type) {
	case *membership.SortedCFP:
		col, err := debloom.Collection(ctx, "cfp")
		if err != nil {
			return err
		}
		if err := col.Append(t.Marshal()); err != nil {
			return dskerr.Wrap(dskerr.Io, err)
		}
		return dskerr.Wrap(dskerr.Io, col.Flush())
	case *membership.CascadingCFP:
		art, err := t.Marshal()
		if err != nil {
			return dskerr.E(dskerr.Io, err)
		}
		cascade, err := debloom.Group(ctx, "cfp_cascade")
		if err != nil {
			return err
		}
		defer cascade.Close(ctx) // nolint: errcheck
		for name, blob := range map[string][]byte{"1": art.Bloom2, "2": art.Bloom3, "3": art.Bloom4, "tail": art.Tail} {
			col, err := cascade.Collection(ctx, name)
			if err != nil {
				return err
			}
			if err := col.Append(blob); err != nil {
				return dskerr.Wrap(dskerr.Io, err)
			}
			if err := col.Flush(); err != nil {
				return dskerr.Wrap(dskerr.Io, err)
			}
		}
		return nil
	default:
		// noneCFP: nothing to persist.
		return nil
	}
}

// estimateBitsPerKmer mirrors C7's sizing formula, L/nk ~=
// log2(e)*log2(1/eps) (spec §3), for the informational "bits_per_kmer"
// property.
func estimateBitsPerKmer(fpRate float64) float64 {
	const log2e = 1.4426950408889634
	return log2e * -math.Log2(fpRate)
}

// Load reconstructs a Graph from a previously Build-written artifact
// (spec Testable Property 6: reload must answer identically to the
// original build on every k-mer). It does not need tmp: everything it
// reads is in the artifact.
func Load(ctx context.Context, artifact store.Group) (*Graph, error) {
	info, err := artifact.Group(ctx, "info")
	if err != nil {
		return nil, err
	}
	complete, _ := info.Property("complete")
	if complete != "true" {
		return nil, dskerr.Errorf(dskerr.Io, "graph artifact is not complete (build may have failed or been interrupted)")
	}

	kmerLen, err := propInt(info, "kmer_size")
	if err != nil {
		return nil, err
	}
	minimizerLen, err := propInt(info, "minimizer_size")
	if err != nil {
		return nil, err
	}
	minimizerType, err := propInt(info, "minimizer_type")
	if err != nil {
		return nil, err
	}
	abundMin, err := propUint(info, "abundance_min")
	if err != nil {
		return nil, err
	}
	abundMax, err := propUint(info, "abundance_max")
	if err != nil {
		return nil, err
	}
	solidityKind, err := propInt(info, "solidity_kind")
	if err != nil {
		return nil, err
	}
	nbSolid, err := propInt(info, "nb_solid")
	if err != nil {
		return nil, err
	}
	debloomKind, err := propInt(info, "debloom_kind")
	if err != nil {
		return nil, err
	}
	partitions, err := propInt(info, "partitions")
	if err != nil {
		return nil, err
	}

	opts := Opts{
		KmerLen:       kmerLen,
		MinimizerLen:  minimizerLen,
		MinimizerType: kmer.OrderScheme(minimizerType),
		Solidity:      SolidityFilter{Kind: SolidityKind(solidityKind), AbundMin: abundMin, AbundMax: abundMax},
		DebloomKind:   DebloomKind(debloomKind),
	}

	var repart *kmer.Repartitioner
	if opts.MinimizerType == kmer.Frequency {
		grp, err := artifact.Group(ctx, "minimizers")
		if err != nil {
			return nil, err
		}
		col, err := grp.Collection(ctx, "repart")
		if err != nil {
			return nil, err
		}
		buf, err := readSoleRecord(col)
		if err != nil {
			return nil, err
		}
		table, err := storepb.Unmarshal(buf)
		if err != nil {
			return nil, dskerr.E(dskerr.Io, err)
		}
		repart = kmer.LoadRepartitioner(kmerLen, minimizerLen, partitions, table.Entries)
	} else {
		repart = kmer.NewLexicographicRepartitioner(kmerLen, minimizerLen, partitions)
	}

	debloomGroup, err := artifact.Group(ctx, "debloom")
	if err != nil {
		return nil, err
	}
	bloomCol, err := debloomGroup.Collection(ctx, "bloom")
	if err != nil {
		return nil, err
	}
	bloomBytes, err := readSoleRecord(bloomCol)
	if err != nil {
		return nil, err
	}
	bloom, err := membership.LoadBloomFilter(kmerLen, bloomBytes)
	if err != nil {
		return nil, dskerr.E(dskerr.Io, err)
	}

	var cfp membership.CFP
	switch opts.DebloomKind {
	case DebloomNone:
		cfp = noneCFP{}
	case DebloomOriginal:
		col, err := debloomGroup.Collection(ctx, "cfp")
		if err != nil {
			return nil, err
		}
		buf, err := readSoleRecord(col)
		if err != nil {
			return nil, err
		}
		cfp, err = membership.LoadSortedCFP(buf)
		if err != nil {
			return nil, dskerr.E(dskerr.Io, err)
		}
	default:
		cascade, err := debloomGroup.Group(ctx, "cfp_cascade")
		if err != nil {
			return nil, err
		}
		art := membership.CascadeArtifact{}
		if art.Bloom2, err = readSoleRecordNamed(ctx, cascade, "1"); err != nil {
			return nil, err
		}
		if art.Bloom3, err = readSoleRecordNamed(ctx, cascade, "2"); err != nil {
			return nil, err
		}
		if art.Bloom4, err = readSoleRecordNamed(ctx, cascade, "3"); err != nil {
			return nil, err
		}
		if art.Tail, err = readSoleRecordNamed(ctx, cascade, "tail"); err != nil {
			return nil, err
		}
		cfp, err = membership.LoadCascadingCFP(art)
		if err != nil {
			return nil, dskerr.E(dskerr.Io, err)
		}
	}

	oracle := membership.NewOracle(kmerLen, bloom, cfp)

	histogram := NewHistogram()
	histGroup, err := artifact.Group(ctx, "dsk")
	if err == nil {
		if hg, err := histGroup.Group(ctx, "histogram"); err == nil {
			if col, err := hg.Collection(ctx, "histogram"); err == nil {
				if it, err := col.Iterate(); err == nil {
					for it.Scan() {
						b := it.Bytes()
						if len(b) != 16 {
							continue
						}
						a := binary.LittleEndian.Uint64(b[0:8])
						c := binary.LittleEndian.Uint64(b[8:16])
						histogram[a] = c
					}
					it.Close() // nolint: errcheck
				}
			}
		}
	}
	cutoff, hasCutoff := histogram.RecommendedCutoff(DefaultOpts.MinAutoThreshold)

	return &Graph{
		Opts:      opts,
		Repart:    repart,
		Oracle:    oracle,
		NumSolid:  int64(nbSolid),
		Histogram: histogram,
		Cutoff:    cutoff,
		HasCutoff: hasCutoff,
	}, nil
}

func propInt(g store.Group, key string) (int, error) {
	v, ok := g.Property(key)
	if !ok {
		return 0, dskerr.Errorf(dskerr.Io, "missing artifact property %q", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, dskerr.E(dskerr.Io, err)
	}
	return n, nil
}

func propUint(g store.Group, key string) (uint64, error) {
	v, ok := g.Property(key)
	if !ok {
		return 0, dskerr.Errorf(dskerr.Io, "missing artifact property %q", key)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, dskerr.E(dskerr.Io, err)
	}
	return n, nil
}

// readSoleRecord returns the single record artifacts persist one
// collection per blob (bloom, cfp, repart table).
func readSoleRecord(col store.Collection) ([]byte, error) {
	it, err := col.Iterate()
	if err != nil {
		return nil, err
	}
	defer it.Close() // nolint: errcheck
	if !it.Scan() {
		if err := it.Err(); err != nil {
			return nil, dskerr.E(dskerr.Io, err)
		}
		return nil, dskerr.Errorf(dskerr.Io, "expected artifact collection to contain one record, found none")
	}
	return append([]byte(nil), it.Bytes()...), nil
}

func readSoleRecordNamed(ctx context.Context, grp store.Group, name string) ([]byte, error) {
	col, err := grp.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return readSoleRecord(col)
}
