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

// Package mergehandle implements the commit protocol of an incremental merge
// write: one Session per flush round of one (partition, file id, instant)
// unit. Flush rounds of the same instant roll over to new physical names
// instead of overwriting each other; closing the last round deletes the
// superseded files and renames the newest one to the canonical name.
//
// A Session is owned by a single goroutine. Concurrent or retried attempts on
// the same file group coordinate only through the names on the filesystem.
package mergehandle

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/weaviate/mergecommit/entities/filegroup"
	"github.com/weaviate/mergecommit/entities/records"
)

// Config identifies the unit a Session writes.
type Config struct {
	BasePath  string
	Partition string
	FileID    string
	Instant   string
	Extension string
	// BaseFileName is the committed data file of an earlier instant that the
	// first round merges into. Empty for a new file group.
	BaseFileName string
}

func (c Config) Validate() error {
	if c.Partition == "" {
		return errors.New("partition must be set")
	}
	if c.FileID == "" {
		return errors.New("file id must be set")
	}
	if c.Instant == "" {
		return errors.New("instant must be set")
	}
	if c.Extension == "" {
		return errors.New("extension must be set")
	}
	// the parts end up in a single file name that has to parse back into
	// instant, write token and file id
	if strings.Contains(c.Instant, filegroup.NameSeparator) {
		return errors.Errorf("instant %q must not contain %q", c.Instant, filegroup.NameSeparator)
	}
	for field, v := range map[string]string{
		"instant":   c.Instant,
		"partition": c.Partition,
		"file id":   c.FileID,
	} {
		if strings.ContainsAny(v, pathSeparators) {
			return errors.Errorf("%s %q must not contain a path separator", field, v)
		}
	}
	return nil
}

const pathSeparators = `/\`

// TaskContext describes the task attempt executing the session.
type TaskContext struct {
	PartitionID int
	StageID     int
	// AttemptID is 0 for the first attempt and grows with every retry.
	AttemptID int
}

func (t TaskContext) Validate() error {
	if t.PartitionID < 0 || t.StageID < 0 || t.AttemptID < 0 {
		return errors.Errorf("task ids must not be negative, got partition %d, stage %d, attempt %d",
			t.PartitionID, t.StageID, t.AttemptID)
	}
	return nil
}

func (t TaskContext) WriteToken() string {
	return filegroup.MakeWriteToken(t.PartitionID, t.StageID, t.AttemptID)
}

// MergeCore merges incoming records with an optional base file and writes
// the full result to a target path.
type MergeCore interface {
	// Open prepares a round. basePath is empty when there is nothing to
	// merge with. targetPath must exist once Open returns.
	Open(basePath, targetPath string) error
	Merge(incoming records.Iterator) error
	// Close completes the target file.
	Close() (WriteStatus, error)
}

type WriteStatus struct {
	Partition string
	FileID    string
	Instant   string
	// Path is the canonical path after a successful close.
	Path string

	RecordsInserted int64
	RecordsUpdated  int64
	RecordsDeleted  int64
	RecordsWritten  int64
	BytesWritten    int64

	// Rollovers counts the superseded files removed by the commit.
	Rollovers int
}
