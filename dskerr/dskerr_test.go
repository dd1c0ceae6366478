// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dskerr

import (
	"errors"
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestErrorfCarriesKind(t *testing.T) {
	err := Errorf(Configuration, "kmer-size %d out of range", 99)
	assert.EQ(t, KindOf(err), Configuration)
	assert.EQ(t, ExitCode(err), 2)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.True(t, Wrap(Io, nil) == nil)
}

func TestWrapNonNilPreservesKind(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Resource, cause)
	assert.EQ(t, KindOf(err), Resource)
	assert.EQ(t, ExitCode(err), 1)
}

func TestKindOfUnrelatedErrorIsOther(t *testing.T) {
	assert.EQ(t, KindOf(errors.New("plain")), Other)
	assert.EQ(t, ExitCode(errors.New("plain")), 1)
}

func TestExitCodeNilIsZero(t *testing.T) {
	assert.EQ(t, ExitCode(nil), 0)
}

func TestECarriesKindAndMessage(t *testing.T) {
	cause := errors.New("boom")
	err := E(Invariant, cause, "count mismatch")
	assert.EQ(t, KindOf(err), Invariant)
	assert.True(t, err.Error() != "")
}
