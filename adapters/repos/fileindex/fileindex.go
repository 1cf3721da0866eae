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

// Package fileindex keeps track of the latest committed data file of every
// file group, so the next instant knows which file to merge into.
package fileindex

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/weaviate/mergecommit/entities/filegroup"
)

const (
	indexFileName = "fileindex.db"
	rootBucket    = "committed"
)

// Entry describes the committed file of one file group.
type Entry struct {
	Instant  string `msgpack:"instant" json:"instant"`
	FileName string `msgpack:"file_name" json:"file_name"`
	// BaseFileName is the file the commit merged into, empty for the first
	// commit of the group.
	BaseFileName string `msgpack:"base_file_name" json:"base_file_name,omitempty"`
}

type Index struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the index below dir.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create index dir %q", dir)
	}

	path := filepath.Join(dir, indexFileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init index bucket")
	}

	return &Index{db: db, path: path}, nil
}

func (i *Index) Close() error {
	if err := i.db.Close(); err != nil {
		return errors.Wrapf(err, "close %q", i.path)
	}
	return nil
}

// Get returns the entry of the group and whether there is one.
func (i *Index) Get(id filegroup.ID) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := i.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(rootBucket)).Bucket([]byte(id.Partition))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(id.FileID))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &entry)
	})
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "get index entry for %s/%s", id.Partition, id.FileID)
	}
	return entry, found, nil
}

// Put records entry as the latest commit of the group. Commits must not go
// back in time.
func (i *Index) Put(id filegroup.ID, entry Entry) error {
	if entry.Instant == "" || entry.FileName == "" {
		return errors.Errorf("index entry for %s/%s needs instant and file name", id.Partition, id.FileID)
	}

	err := i.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(rootBucket)).CreateBucketIfNotExists([]byte(id.Partition))
		if err != nil {
			return errors.Wrap(err, "create partition bucket")
		}

		if v := b.Get([]byte(id.FileID)); v != nil {
			var prev Entry
			if err := msgpack.Unmarshal(v, &prev); err != nil {
				return errors.Wrap(err, "decode previous entry")
			}
			if entry.Instant < prev.Instant {
				return errors.Errorf("instant %s is older than committed instant %s",
					entry.Instant, prev.Instant)
			}
		}

		v, err := msgpack.Marshal(entry)
		if err != nil {
			return errors.Wrap(err, "encode entry")
		}
		return b.Put([]byte(id.FileID), v)
	})
	if err != nil {
		return errors.Wrapf(err, "put index entry for %s/%s", id.Partition, id.FileID)
	}
	return nil
}

// BaseFileFor returns the file name a session writing instant should merge
// into. Reopening the committed instant keeps that commit's base, as the
// rounds of one instant find each other by name.
func (i *Index) BaseFileFor(id filegroup.ID, instant string) (string, error) {
	entry, found, err := i.Get(id)
	if err != nil {
		return "", err
	}
	switch {
	case !found:
		return "", nil
	case entry.Instant == instant:
		return entry.BaseFileName, nil
	case entry.Instant < instant:
		return entry.FileName, nil
	default:
		return "", errors.Errorf("instant %s of %s/%s is older than committed instant %s",
			instant, id.Partition, id.FileID, entry.Instant)
	}
}

// List returns the entries of all groups in partition, keyed by file id.
func (i *Index) List(partition string) (map[string]Entry, error) {
	out := map[string]Entry{}
	err := i.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(rootBucket)).Bucket([]byte(partition))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := msgpack.Unmarshal(v, &entry); err != nil {
				return errors.Wrapf(err, "decode entry %q", k)
			}
			out[string(k)] = entry
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list partition %q", partition)
	}
	return out, nil
}
