// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dskerr defines the error taxonomy shared by every stage of the
// k-mer counting and membership-oracle pipeline, and maps it to the
// dbgh5 CLI's exit codes.
package dskerr

import (
	stderrors "errors"
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind classifies a pipeline failure. Every error surfaced out of this
// module should carry one of these kinds so callers (in particular, the
// dbgh5 CLI) can decide the right exit code without string-matching.
type Kind int

const (
	// Other is the zero value; it should not normally be constructed.
	Other Kind = iota
	// Configuration indicates invalid user-supplied parameters: k, m>=k,
	// abund_min>abund_max, an unwritable storage path, etc. Always fatal.
	Configuration
	// Input indicates an unreadable or malformed sequence source. N-only
	// reads are not Input errors; they simply yield zero k-mers.
	Input
	// Resource indicates planning could not satisfy the memory/disk/FD
	// caps given the estimated input volume.
	Resource
	// Io indicates a read/write/open failure on a partition file or a
	// storage artifact.
	Io
	// Invariant indicates an internal consistency check failed (e.g. a
	// count mismatch in the partition counter). Always a bug.
	Invariant
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration error"
	case Input:
		return "input error"
	case Resource:
		return "resource error"
	case Io:
		return "I/O error"
	case Invariant:
		return "invariant violation"
	default:
		return "error"
	}
}

// E constructs an error of the given kind, wrapping cause and annotating it
// with the given context values, in the style of github.com/grailbio/base/errors.E.
func E(kind Kind, cause error, args ...interface{}) error {
	all := make([]interface{}, 0, len(args)+2)
	all = append(all, kind.String()+":")
	all = append(all, args...)
	if cause != nil {
		all = append(all, cause)
	}
	return &kindError{kind: kind, err: errors.E(all...)}
}

// Wrap returns nil if cause is nil, and E(kind, cause) otherwise. Use this,
// rather than E directly, at call sites that pass through an arbitrary
// lower-level error that may or may not be non-nil.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return E(kind, cause)
}

// Errorf is like E but formats a message instead of wrapping a cause.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: errors.E(fmt.Sprintf(kind.String()+": "+format, args...))}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }
func (e *kindError) Cause() error  { return e.err }

// KindOf extracts the Kind of err, returning Other if err was not produced
// by E/Errorf.
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	return Other
}

// ExitCode maps err to the dbgh5 exit codes documented in the CLI
// reference: 0 success, 1 I/O or resource failure, 2 configuration error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if KindOf(err) == Configuration {
		return 2
	}
	return 1
}
