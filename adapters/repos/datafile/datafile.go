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

// Package datafile encodes the content of a data file: a msgpack header
// followed by the records, sorted by key, without tombstones.
package datafile

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/weaviate/mergecommit/entities/records"
)

const Version = 1

type header struct {
	Version uint8 `msgpack:"version"`
	Count   int   `msgpack:"count"`
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write encodes recs to w and returns the number of bytes written. Keys must
// be strictly ascending and no record may be a tombstone.
func Write(w io.Writer, recs []records.Record) (int64, error) {
	for i := range recs {
		if recs[i].Tombstone {
			return 0, errors.Errorf("record %q: tombstones cannot be persisted", recs[i].Key)
		}
		if i > 0 && recs[i-1].Key >= recs[i].Key {
			return 0, errors.Errorf("record %d: key %q not after %q", i, recs[i].Key, recs[i-1].Key)
		}
	}

	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(bw)

	if err := enc.Encode(header{Version: Version, Count: len(recs)}); err != nil {
		return cw.n, errors.Wrap(err, "encode header")
	}
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			return cw.n, errors.Wrapf(err, "encode record %q", recs[i].Key)
		}
	}
	if err := bw.Flush(); err != nil {
		return cw.n, errors.Wrap(err, "flush")
	}
	return cw.n, nil
}

// ReadAll decodes a complete data file.
func ReadAll(r io.Reader) ([]records.Record, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bufio.NewReader(r))

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, errors.Wrap(err, "decode header")
	}
	if h.Version != Version {
		return nil, errors.Errorf("unsupported data file version %d", h.Version)
	}
	if h.Count < 0 {
		return nil, errors.Errorf("invalid record count %d", h.Count)
	}

	recs := make([]records.Record, h.Count)
	for i := range recs {
		if err := dec.Decode(&recs[i]); err != nil {
			return nil, errors.Wrapf(err, "decode record %d of %d", i, h.Count)
		}
	}
	return recs, nil
}
