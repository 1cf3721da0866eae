//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package records

// Record is a single keyed value flowing into a merge round. A tombstone
// removes the key from the merged file.
type Record struct {
	Key       string `msgpack:"k" json:"key"`
	Value     []byte `msgpack:"v" json:"value,omitempty"`
	Tombstone bool   `msgpack:"t" json:"tombstone,omitempty"`
}

// Iterator streams records into a merge round. Next returns false once the
// source is exhausted or failed, Err reports which.
type Iterator interface {
	Next() (Record, bool)
	Err() error
}

type sliceIterator struct {
	recs []Record
	pos  int
}

func NewSliceIterator(recs []Record) Iterator {
	return &sliceIterator{recs: recs}
}

func (it *sliceIterator) Next() (Record, bool) {
	if it.pos >= len(it.recs) {
		return Record{}, false
	}
	rec := it.recs[it.pos]
	it.pos++
	return rec, true
}

func (it *sliceIterator) Err() error {
	return nil
}
