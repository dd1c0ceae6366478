// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package storepb defines the small set of wire messages persisted
// verbatim into the graph artifact (spec §6): the minimizer repartition
// table. Rather than a protoc-generated .pb.go, these are hand-written
// gogo/protobuf messages in the pre-generator reflection style (a bare
// struct with protobuf field tags plus the three Message methods),
// following biopb's use of gogo/protobuf for compact typed records
// without pulling in a build-time code generation step.
package storepb

import "github.com/gogo/protobuf/proto"

// RepartTable is the persisted /minimizers/repart collection: the
// partition id assigned to each of the 4^m possible m-mers under the
// frequency ordering scheme (spec §4.2). Empty for the lexicographic
// scheme, which needs no table.
type RepartTable struct {
	Entries []uint32 `protobuf:"varint,1,rep,packed,name=entries"`
}

func (m *RepartTable) Reset()         { *m = RepartTable{} }
func (m *RepartTable) String() string { return proto.CompactTextString(m) }
func (m *RepartTable) ProtoMessage()  {}

// Marshal serializes t.
func Marshal(t *RepartTable) ([]byte, error) { return proto.Marshal(t) }

// Unmarshal deserializes into a fresh RepartTable.
func Unmarshal(b []byte) (*RepartTable, error) {
	t := &RepartTable{}
	if err := proto.Unmarshal(b, t); err != nil {
		return nil, err
	}
	return t, nil
}
