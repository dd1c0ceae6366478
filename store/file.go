// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/dsk/dskerr"
)

func init() {
	recordiozstd.Init()
}

const propertiesFile = "_properties.gob"

// FileGroup is the plain-file Group backend: a directory tree where
// each Group is a directory, each Collection is a zstd-compressed
// recordio file, and properties are gob-encoded next to them. It
// satisfies the "plain-file backend... permitted for testing" clause
// of the graph artifact layout (spec §6); production deployments that
// want HDF5 semantics must bring their own binding.
type FileGroup struct {
	dir string

	mu    sync.Mutex
	props map[string]string
}

// OpenFileGroup opens (creating if necessary) a FileGroup rooted at
// dir.
func OpenFileGroup(ctx context.Context, dir string) (*FileGroup, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, dskerr.E(dskerr.Io, err)
	}
	g := &FileGroup{dir: dir, props: make(map[string]string)}
	if err := g.loadProperties(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *FileGroup) propPath() string { return filepath.Join(g.dir, propertiesFile) }

func (g *FileGroup) loadProperties(ctx context.Context) error {
	in, err := file.Open(ctx, g.propPath())
	if err != nil {
		// No properties file yet; that's fine for a freshly created group.
		return nil
	}
	defer in.Close(ctx) // nolint: errcheck
	dec := gob.NewDecoder(in.Reader(ctx))
	if err := dec.Decode(&g.props); err != nil {
		return dskerr.E(dskerr.Io, err)
	}
	return nil
}

// Collection implements Group.
func (g *FileGroup) Collection(ctx context.Context, name string) (Collection, error) {
	return newFileCollection(ctx, filepath.Join(g.dir, name+".rio"))
}

// Group implements Group.
func (g *FileGroup) Group(ctx context.Context, name string) (Group, error) {
	return OpenFileGroup(ctx, filepath.Join(g.dir, name))
}

// SetProperty implements Group.
func (g *FileGroup) SetProperty(key, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.props[key] = value
}

// Property implements Group.
func (g *FileGroup) Property(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.props[key]
	return v, ok
}

// Close persists this group's properties. It does not touch child
// groups or collections, which the caller must close separately.
func (g *FileGroup) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	out, err := file.Create(ctx, g.propPath())
	if err != nil {
		return dskerr.E(dskerr.Io, err)
	}
	enc := gob.NewEncoder(out.Writer(ctx))
	if err := enc.Encode(g.props); err != nil {
		out.Close(ctx) // nolint: errcheck
		return dskerr.E(dskerr.Io, err)
	}
	return dskerr.Wrap(dskerr.Io, out.Close(ctx))
}

// fileCollection implements Collection as a single zstd-compressed
// recordio file, written once (Append*, then Flush) and reopened for
// read by Iterate, mirroring cmd/bio-fusion's fusionWriter/fusionReader
// pattern.
type fileCollection struct {
	path string
	out  file.File
	w    recordio.Writer
}

func newFileCollection(ctx context.Context, path string) (*fileCollection, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, dskerr.E(dskerr.Io, err)
	}
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(recordio.KeyTrailer, true)
	return &fileCollection{path: path, out: out, w: w}, nil
}

func (c *fileCollection) Append(rec []byte) error {
	return dskerr.Wrap(dskerr.Io, c.w.Append(rec))
}

func (c *fileCollection) Flush() error {
	if err := c.w.Finish(); err != nil {
		return dskerr.E(dskerr.Io, err)
	}
	return dskerr.Wrap(dskerr.Io, c.out.Close(context.Background()))
}

func (c *fileCollection) Iterate() (Iterator, error) {
	in, err := file.Open(context.Background(), c.path)
	if err != nil {
		return nil, dskerr.E(dskerr.Io, err)
	}
	r := recordio.NewScanner(in.Reader(context.Background()), recordio.ScannerOpts{})
	return &fileIterator{in: in, r: r}, nil
}

type fileIterator struct {
	in  file.File
	r   recordio.Scanner
	cur []byte
}

func (it *fileIterator) Scan() bool {
	if !it.r.Scan() {
		return false
	}
	it.cur = it.r.Get().([]byte)
	return true
}

func (it *fileIterator) Bytes() []byte { return it.cur }
func (it *fileIterator) Err() error    { return dskerr.Wrap(dskerr.Io, it.r.Err()) }
func (it *fileIterator) Close() error  { return dskerr.Wrap(dskerr.Io, it.in.Close(context.Background())) }
