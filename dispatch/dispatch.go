// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dispatch implements C10, the dispatcher/progress component
// that Build uses for its per-partition counting pass. It wraps
// github.com/grailbio/base/traverse, the same
// fork-join primitive the teacher's encoding/converter and pileup/snp
// packages use to shard work across partitions.
package dispatch

import (
	"sync/atomic"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Listener observes a Dispatcher's progress. Implementations must be
// safe for concurrent use; OnUnit may be called from any worker
// goroutine.
type Listener interface {
	// OnUnit is called once per completed unit of work, after the
	// worker function for that unit returns (successfully or not).
	OnUnit(done, total int64)
}

// LogListener is a Listener that logs progress at a fixed cadence, the
// way cmd/bio-fusion logs "%dMi readpairs" every so often rather than
// per read.
type LogListener struct {
	// Every is the number of completed units between log lines. Zero
	// disables logging.
	Every  int64
	Prefix string
}

func (l *LogListener) OnUnit(done, total int64) {
	if l.Every == 0 || done%l.Every != 0 {
		return
	}
	log.Printf("%s: %d/%d", l.Prefix, done, total)
}

// Dispatcher runs a unit-indexed job across N units of work (e.g. the
// N minimizer partitions), in parallel, reporting progress to an
// optional Listener and supporting cooperative cancellation.
type Dispatcher struct {
	total     int64
	done      int64
	cancelled int32
	listener  Listener
}

// New returns a Dispatcher for a job of the given number of units.
func New(total int, listener Listener) *Dispatcher {
	return &Dispatcher{total: int64(total), listener: listener}
}

// Cancel requests that in-flight and not-yet-started units stop as
// soon as convenient. Run's traverse.Each continues until every
// in-flight worker returns; cooperative workers should poll
// Cancelled().
func (d *Dispatcher) Cancel() { atomic.StoreInt32(&d.cancelled, 1) }

// Cancelled reports whether Cancel has been called.
func (d *Dispatcher) Cancelled() bool { return atomic.LoadInt32(&d.cancelled) != 0 }

// Run executes fn(i) for every unit i in [0,total), in parallel via
// traverse.Each, and returns the first non-nil error (if any), after
// all units have completed. fn should check Cancelled() at reasonable
// intervals in long-running units.
func (d *Dispatcher) Run(fn func(unit int) error) error {
	return traverse.Each(int(d.total), func(unit int) error {
		err := fn(unit)
		done := atomic.AddInt64(&d.done, 1)
		if d.listener != nil {
			d.listener.OnUnit(done, d.total)
		}
		return err
	})
}

// Done returns the number of units completed so far. Safe to call
// concurrently with Run.
func (d *Dispatcher) Done() int64 { return atomic.LoadInt64(&d.done) }

// Total returns the number of units this Dispatcher was constructed
// with.
func (d *Dispatcher) Total() int64 { return d.total }
