// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package store defines the Group/Collection graph-artifact storage
// contract (spec §6's "HDF5-like hierarchical container") and a
// plain-file backend built on github.com/grailbio/base/file and
// github.com/grailbio/base/recordio, the way the teacher's fusion
// writer/reader (cmd/bio-fusion/io.go) persists its own candidate
// records. An HDF5 binding is out of scope: it would need cgo, which
// nothing else in this module uses.
package store

import (
	"context"
)

// Iterator walks the records of a Collection in append order.
type Iterator interface {
	// Scan advances to the next record, reporting whether one was found.
	Scan() bool
	// Bytes returns the current record. Valid only after Scan returns true.
	Bytes() []byte
	// Err returns the first error encountered, or nil on clean EOF.
	Err() error
	// Close releases resources held by the iterator.
	Close() error
}

// Collection is an append-only sequence of opaque byte records, e.g.
// one partition's super-k-mer stream (C3) or a graph's solid k-mer set
// (C6).
type Collection interface {
	// Append adds rec to the collection. Not safe for concurrent use.
	Append(rec []byte) error
	// Flush durably persists all records appended so far.
	Flush() error
	// Iterate returns a fresh Iterator over the collection's records.
	// The Collection must have been Flushed (or fully written and
	// closed) before Iterate is called.
	Iterate() (Iterator, error)
}

// Group is a named node in the hierarchical graph artifact (spec §6):
// it holds child Collections, child Groups, and string properties
// (e.g. "kmer_size", "minimizer_type").
type Group interface {
	// Collection returns the named child collection, creating it if it
	// doesn't already exist.
	Collection(ctx context.Context, name string) (Collection, error)
	// Group returns the named child group, creating it if it doesn't
	// already exist.
	Group(ctx context.Context, name string) (Group, error)
	// SetProperty attaches a string property to this group.
	SetProperty(key, value string)
	// Property returns a previously set property.
	Property(key string) (string, bool)
	// Close persists this group's properties. It does not flush or close
	// the group's collections or child groups, which must be flushed and
	// closed independently.
	Close(ctx context.Context) error
}
