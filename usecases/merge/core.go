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

// Package merge is the record merge core used by merge handles: it reads a
// base data file, applies incoming records and writes the complete result.
// The last record for a key wins, a tombstone removes the key.
package merge

import (
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/mergecommit/adapters/repos/datafile"
	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	"github.com/weaviate/mergecommit/entities/records"
	"github.com/weaviate/mergecommit/usecases/mergehandle"
)

// Core merges one round. It is not reusable across rounds.
type Core struct {
	fs     filesystem.FileSystem
	logger logrus.FieldLogger

	target string
	w      io.WriteCloser
	merged map[string]records.Record
	status mergehandle.WriteStatus
	// err is sticky: once a merge failed, nothing more is written.
	err    error
	closed bool
}

var _ mergehandle.MergeCore = (*Core)(nil)

func New(fs filesystem.FileSystem, logger logrus.FieldLogger) *Core {
	return &Core{
		fs:     fs,
		logger: logger.WithField("action", "merge_core"),
		merged: map[string]records.Record{},
	}
}

func (c *Core) Open(basePath, targetPath string) error {
	if c.w != nil || c.closed {
		return errors.Errorf("merge core already opened for %q", c.target)
	}

	if basePath != "" {
		if err := c.loadBase(basePath); err != nil {
			return err
		}
	}

	w, err := c.fs.Create(targetPath)
	if err != nil {
		return errors.Wrapf(err, "create merge target %q", targetPath)
	}
	c.w = w
	c.target = targetPath
	return nil
}

func (c *Core) loadBase(basePath string) error {
	r, err := c.fs.Open(basePath)
	if err != nil {
		return errors.Wrapf(err, "open merge base %q", basePath)
	}
	defer r.Close()

	recs, err := datafile.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "read merge base %q", basePath)
	}
	for _, rec := range recs {
		c.merged[rec.Key] = rec
	}

	c.logger.WithField("base_path", basePath).
		WithField("records", len(recs)).
		Debug("loaded merge base")
	return nil
}

func (c *Core) Merge(incoming records.Iterator) error {
	if c.err != nil {
		return c.err
	}
	if c.w == nil || c.closed {
		return errors.New("merge core is not open")
	}

	for rec, ok := incoming.Next(); ok; rec, ok = incoming.Next() {
		_, existed := c.merged[rec.Key]
		switch {
		case rec.Tombstone:
			if existed {
				delete(c.merged, rec.Key)
				c.status.RecordsDeleted++
			}
		case existed:
			c.merged[rec.Key] = rec
			c.status.RecordsUpdated++
		default:
			c.merged[rec.Key] = rec
			c.status.RecordsInserted++
		}
	}

	if err := incoming.Err(); err != nil {
		c.err = errors.Wrap(err, "read incoming records")
		return c.err
	}
	return nil
}

// Close writes the merged records sorted by key and closes the target. After
// a failed merge the target is closed without content and the merge error is
// returned.
func (c *Core) Close() (mergehandle.WriteStatus, error) {
	if c.closed {
		return mergehandle.WriteStatus{}, errors.New("merge core already closed")
	}
	c.closed = true

	if c.w == nil {
		return mergehandle.WriteStatus{}, errors.New("merge core was never opened")
	}
	if c.err != nil {
		c.w.Close()
		return mergehandle.WriteStatus{}, c.err
	}

	keys := make([]string, 0, len(c.merged))
	for k := range c.merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	recs := make([]records.Record, len(keys))
	for i, k := range keys {
		recs[i] = c.merged[k]
	}

	n, err := datafile.Write(c.w, recs)
	if err != nil {
		c.w.Close()
		return mergehandle.WriteStatus{}, errors.Wrapf(err, "write merge target %q", c.target)
	}
	if err := c.w.Close(); err != nil {
		return mergehandle.WriteStatus{}, errors.Wrapf(err, "close merge target %q", c.target)
	}

	c.status.RecordsWritten = int64(len(recs))
	c.status.BytesWritten = n
	return c.status, nil
}
