// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// dbgh5 builds a De Bruijn graph membership oracle (a Bloom filter plus
// a critical-false-positive correction) from one or more banks of
// sequence reads, the way the teacher's bio-fusion builds a candidate
// list from FASTQ pairs: flags select resource caps and algorithm
// variants, grail.Init/vcontext.Background bracket the run, and
// dskerr.Kind maps onto the documented exit codes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/dsk"
	"github.com/grailbio/dsk/bank"
	"github.com/grailbio/dsk/dskerr"
	"github.com/grailbio/dsk/kmer"
	"github.com/grailbio/dsk/store"
)

func usage() {
	fmt.Fprintln(os.Stderr, `
dbgh5 builds a De Bruijn graph membership oracle from one or more banks
of FASTA/FASTQ reads.

Usage:
  dbgh5 -in READS [options]

-in accepts one bank per ';'-separated group, each bank a ','-separated
list of file paths (compressed inputs are detected by extension, e.g.
.gz, .zst). Multiple banks only matter when -solidity-kind is
min/max/one/all, which compare per-bank counts; sum (the default)
treats every bank identically.

Example, two banks for a min-solidity comparison:
  dbgh5 -in bankA_r1.fq,bankA_r2.fq;bankB.fa -solidity-kind min -abundance-min 2
`)
}

func main() {
	flag.Usage = usage

	in := flag.String("in", "", "bank input files, ';'-separated banks of ','-separated paths")
	kmerSize := flag.Int("kmer-size", dsk.DefaultOpts.KmerLen, "k-mer length")
	abundMin := flag.Uint64("abundance-min", dsk.DefaultOpts.Solidity.AbundMin, "minimum abundance for a k-mer to be solid")
	abundMax := flag.Uint64("abundance-max", dsk.DefaultOpts.Solidity.AbundMax, "maximum abundance for a k-mer to be solid")
	solidityKind := flag.String("solidity-kind", "sum", "sum|min|max|one|all")
	minimizerSize := flag.Int("minimizer-size", dsk.DefaultOpts.MinimizerLen, "minimizer length")
	minimizerType := flag.Int("minimizer-type", 0, "0=lexicographic, 1=frequency")
	bloomKind := flag.String("bloom", "neighbor", "basic|cache|neighbor")
	debloomKind := flag.String("debloom", "cascading", "none|original|cascading")
	debloomImpl := flag.String("debloom-impl", "minimizer", "basic|minimizer")
	out := flag.String("out", "", "output graph artifact path (default auto)")
	outDir := flag.String("out-dir", ".", "output directory")
	maxDiskMB := flag.Int64("max-disk", 0, "MB, default = half of free disk")
	maxMemoryMB := flag.Int64("max-memory", 2000, "MB")
	nbCores := flag.Int("nb-cores", runtime.NumCPU(), "number of worker threads")
	fpRate := flag.Float64("bloom-false-positive-rate", dsk.DefaultOpts.FPRate, "target Bloom filter false-positive rate")
	minAutoThreshold := flag.Uint64("min-auto-threshold", dsk.DefaultOpts.MinAutoThreshold, "smallest abundance value considered by the histogram cutoff heuristic")
	flag.Parse()

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	opts, err := parseOpts(*kmerSize, *abundMin, *abundMax, *solidityKind, *minimizerSize, *minimizerType,
		*bloomKind, *debloomKind, *debloomImpl, *maxDiskMB, *maxMemoryMB, *nbCores, *fpRate, *minAutoThreshold, *in)
	if err != nil {
		log.Error.Printf("%s", err)
		os.Exit(dskerr.ExitCode(err))
	}

	if *in == "" {
		log.Error.Printf("%s", dskerr.Errorf(dskerr.Configuration, "-in is required"))
		os.Exit(2)
	}
	bankPaths, err := parseBankSpec(*in)
	if err != nil {
		log.Error.Printf("%s", err)
		os.Exit(dskerr.ExitCode(err))
	}

	outPath := *out
	if outPath == "" {
		outPath = filepath.Join(*outDir, "dbgh5.out")
	}
	artifact, err := store.OpenFileGroup(ctx, outPath)
	if err != nil {
		log.Error.Printf("%s", err)
		os.Exit(dskerr.ExitCode(err))
	}
	tmpDir, err := os.MkdirTemp(*outDir, "dbgh5-tmp-")
	if err != nil {
		log.Error.Printf("%s", dskerr.E(dskerr.Io, err))
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir) // nolint: errcheck
	tmp, err := store.OpenFileGroup(ctx, tmpDir)
	if err != nil {
		log.Error.Printf("%s", err)
		os.Exit(dskerr.ExitCode(err))
	}

	opener := func() ([]bank.Source, error) { return openBanks(ctx, bankPaths) }

	start := time.Now()
	graph, err := dsk.Build(ctx, opener, opts, artifact, tmp)
	if err != nil {
		log.Error.Printf("%s", err)
		os.Exit(dskerr.ExitCode(err))
	}
	log.Printf("dbgh5: built graph with %d solid k-mers in %s", graph.NumSolid, time.Since(start))
	if graph.HasCutoff {
		log.Printf("dbgh5: recommended abundance cutoff: %d", graph.Cutoff)
	}
}

func parseOpts(kmerSize int, abundMin, abundMax uint64, solidityKind string, minimizerSize, minimizerType int,
	bloomKind, debloomKind, debloomImpl string, maxDiskMB, maxMemoryMB int64, nbCores int, fpRate float64, minAutoThreshold uint64, bankURI string) (dsk.Opts, error) {
	sk, err := dsk.ParseSolidityKind(solidityKind)
	if err != nil {
		return dsk.Opts{}, err
	}
	if minimizerType != 0 && minimizerType != 1 {
		return dsk.Opts{}, dskerr.Errorf(dskerr.Configuration, "minimizer-type must be 0 or 1, got %d", minimizerType)
	}
	bk, err := parseBloomKind(bloomKind)
	if err != nil {
		return dsk.Opts{}, err
	}
	dk, err := parseDebloomKind(debloomKind)
	if err != nil {
		return dsk.Opts{}, err
	}
	di, err := parseDebloomImpl(debloomImpl)
	if err != nil {
		return dsk.Opts{}, err
	}
	diskCap := maxDiskMB << 20
	if diskCap <= 0 {
		diskCap = freeDiskEstimate() / 2
	}
	opts := dsk.Opts{
		KmerLen:          kmerSize,
		MinimizerLen:     minimizerSize,
		MinimizerType:    kmer.OrderScheme(minimizerType),
		Solidity:         dsk.SolidityFilter{Kind: sk, AbundMin: abundMin, AbundMax: abundMax},
		BloomKind:        bk,
		DebloomKind:      dk,
		DebloomImpl:      di,
		FPRate:           fpRate,
		MaxDiskBytes:     diskCap,
		MaxMemoryBytes:   maxMemoryMB << 20,
		MaxOpenFiles:     256,
		NumThreads:       nbCores,
		MinAutoThreshold: minAutoThreshold,
		BankURI:          bankURI,
	}
	return opts, opts.Validate()
}

func parseBloomKind(s string) (dsk.BloomKind, error) {
	switch s {
	case "basic":
		return dsk.BloomBasic, nil
	case "cache":
		return dsk.BloomCache, nil
	case "neighbor":
		return dsk.BloomNeighbor, nil
	default:
		return 0, dskerr.Errorf(dskerr.Configuration, "unknown -bloom %q (want basic|cache|neighbor)", s)
	}
}

func parseDebloomKind(s string) (dsk.DebloomKind, error) {
	switch s {
	case "none":
		return dsk.DebloomNone, nil
	case "original":
		return dsk.DebloomOriginal, nil
	case "cascading":
		return dsk.DebloomCascading, nil
	default:
		return 0, dskerr.Errorf(dskerr.Configuration, "unknown -debloom %q (want none|original|cascading)", s)
	}
}

func parseDebloomImpl(s string) (dsk.DebloomImpl, error) {
	switch s {
	case "basic":
		return dsk.DebloomImplBasic, nil
	case "minimizer":
		return dsk.DebloomImplMinimizer, nil
	default:
		return 0, dskerr.Errorf(dskerr.Configuration, "unknown -debloom-impl %q (want basic|minimizer)", s)
	}
}

// freeDiskEstimate is a conservative fallback when -max-disk is not
// given: dbgh5 has no portable syscall-free way to query free disk
// space without cgo, so it assumes a modest 8 GB unless told
// otherwise.
func freeDiskEstimate() int64 { return 8 << 30 }

// parseBankSpec parses the -in flag's ';'-separated banks of
// ','-separated file paths.
func parseBankSpec(in string) ([][]string, error) {
	var banks [][]string
	for _, bankSpec := range strings.Split(in, ";") {
		paths := strings.Split(bankSpec, ",")
		if len(paths) == 0 || paths[0] == "" {
			return nil, dskerr.Errorf(dskerr.Configuration, "empty bank in -in %q", in)
		}
		banks = append(banks, paths)
	}
	return banks, nil
}

// openBanks opens a fresh bank.Source for every (bank, path), the way
// BankOpener is documented to be callable once per C3 pass.
func openBanks(ctx context.Context, bankPaths [][]string) ([]bank.Source, error) {
	sources := make([]bank.Source, len(bankPaths))
	for i, paths := range bankPaths {
		var perFile []bank.Source
		for _, p := range paths {
			src, err := openOneSource(ctx, p)
			if err != nil {
				return nil, err
			}
			perFile = append(perFile, src)
		}
		sources[i] = bank.NewMultiSource(perFile...)
	}
	return sources, nil
}

func openOneSource(ctx context.Context, path string) (bank.Source, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, dskerr.E(dskerr.Input, err)
	}
	var reader io.Reader = f.Reader(ctx)
	if u := compress.NewReaderPath(reader, f.Name()); u != nil {
		reader = u
	}
	info, statErr := os.Stat(path)
	var sizeBytes int64
	if statErr == nil {
		sizeBytes = info.Size()
	}
	switch ext := strings.ToLower(filepath.Ext(stripCompressExt(path))); ext {
	case ".fa", ".fasta", ".fna":
		src, err := bank.NewFASTASource(reader)
		if err != nil {
			return nil, err
		}
		return src, nil
	case ".fq", ".fastq":
		return bank.NewFASTQSource(reader, sizeBytes), nil
	default:
		return nil, dskerr.Errorf(dskerr.Configuration, "cannot infer format of %q (want .fa/.fasta/.fq/.fastq, optionally .gz/.zst)", path)
	}
}

func stripCompressExt(path string) string {
	for _, ext := range []string{".gz", ".zst", ".bz2"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}
