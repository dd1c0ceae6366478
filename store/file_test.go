// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func TestFileGroupCollection(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "dsk-store")
	defer cleanup()

	g, err := OpenFileGroup(ctx, dir)
	assert.NoError(t, err)
	g.SetProperty("kmer_size", "31")

	coll, err := g.Collection(ctx, "solid_kmers")
	assert.NoError(t, err)
	assert.NoError(t, coll.Append([]byte("record0")))
	assert.NoError(t, coll.Append([]byte("record1")))
	assert.NoError(t, coll.Flush())
	assert.NoError(t, g.Close(ctx))

	g2, err := OpenFileGroup(ctx, dir)
	assert.NoError(t, err)
	v, ok := g2.Property("kmer_size")
	assert.True(t, ok)
	assert.EQ(t, v, "31")

	coll2, err := g2.Collection(ctx, "solid_kmers")
	assert.NoError(t, err)
	it, err := coll2.Iterate()
	assert.NoError(t, err)
	var got []string
	for it.Scan() {
		got = append(got, string(it.Bytes()))
	}
	assert.NoError(t, it.Err())
	assert.NoError(t, it.Close())
	assert.EQ(t, got, []string{"record0", "record1"})
}

func TestFileGroupNesting(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "dsk-store-nest")
	defer cleanup()

	root, err := OpenFileGroup(ctx, dir)
	assert.NoError(t, err)
	child, err := root.Group(ctx, "minimizers")
	assert.NoError(t, err)
	child.SetProperty("scheme", "frequency")
	assert.NoError(t, child.(*FileGroup).Close(ctx))

	reopened, err := root.Group(ctx, "minimizers")
	assert.NoError(t, err)
	v, ok := reopened.Property("scheme")
	assert.True(t, ok)
	assert.EQ(t, v, "frequency")
}
