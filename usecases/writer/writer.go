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

// Package writer drives flush rounds: every batch of a round goes to its own
// merge handle session, and the round is acknowledged once all commits are
// visible and indexed.
package writer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/mergecommit/adapters/repos/fileindex"
	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/entities/filegroup"
	"github.com/weaviate/mergecommit/entities/records"
	"github.com/weaviate/mergecommit/usecases/consistency"
	"github.com/weaviate/mergecommit/usecases/merge"
	"github.com/weaviate/mergecommit/usecases/mergehandle"
	"github.com/weaviate/mergecommit/usecases/monitoring"
)

// CommitIndex resolves merge bases and records commits.
type CommitIndex interface {
	BaseFileFor(id filegroup.ID, instant string) (string, error)
	Put(id filegroup.ID, entry fileindex.Entry) error
}

// Batch holds the records of one file group for one round. An empty FileID
// starts a new file group.
type Batch struct {
	Partition string
	FileID    string
	Records   []records.Record
}

type Config struct {
	BasePath  string
	Extension string
	// Concurrency bounds the number of file groups written at once.
	Concurrency int
}

type Writer struct {
	cfg     Config
	fs      filesystem.FileSystem
	index   CommitIndex
	guard   consistency.Guard
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics
}

func New(cfg Config, fs filesystem.FileSystem, index CommitIndex, guard consistency.Guard,
	logger logrus.FieldLogger, metrics *monitoring.Metrics,
) *Writer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Writer{
		cfg:     cfg,
		fs:      fs,
		index:   index,
		guard:   guard,
		logger:  logger,
		metrics: metrics,
	}
}

// FlushRound writes every batch of one round of instant and returns the
// statuses of the successful ones in batch order. Batches of the same file
// group are written as one. Failed groups do not stop the others; their
// errors are returned together.
func (w *Writer) FlushRound(ctx context.Context, instant string, task mergehandle.TaskContext,
	batches []Batch,
) ([]mergehandle.WriteStatus, error) {
	start := time.Now()
	logger := w.logger.WithFields(logrus.Fields{
		"action":  "flush_round",
		"instant": instant,
		"attempt": task.AttemptID,
		"groups":  len(batches),
	})

	if err := task.Validate(); err != nil {
		w.metrics.FlushRound(err)
		return nil, errors.Wrap(err, "invalid task context")
	}
	batches = groupBatches(batches)

	var (
		mu       sync.Mutex
		errs     *multierror.Error
		statuses = make([]*mergehandle.WriteStatus, len(batches))
	)
	addErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = multierror.Append(errs, err)
	}

	eg := enterrors.NewErrorGroupWrapper(logger)
	eg.SetLimit(w.cfg.Concurrency)
	for i := range batches {
		i, batch := i, batches[i]
		id := filegroup.ID{Partition: batch.Partition, FileID: batch.FileID}

		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				addErr(errors.Wrapf(err, "file group %s", id))
				return nil
			}

			status, err := w.writeGroup(ctx, id, instant, task, batch.Records)
			if err != nil {
				addErr(errors.Wrapf(err, "file group %s", id))
				return nil
			}
			statuses[i] = &status
			return nil
		}, id.String())
	}
	if err := eg.Wait(); err != nil {
		addErr(err)
	}

	out := make([]mergehandle.WriteStatus, 0, len(batches))
	for _, s := range statuses {
		if s != nil {
			out = append(out, *s)
		}
	}

	err := errs.ErrorOrNil()
	w.metrics.FlushRound(err)
	if err != nil {
		logger.WithError(err).
			WithField("transient", enterrors.IsTransient(err)).
			WithField("committed", len(out)).
			Error("flush round failed")
		return out, err
	}

	logger.WithField("took", time.Since(start)).Info("flush round committed")
	return out, nil
}

// groupBatches gives unnamed batches a new file id and folds batches of the
// same file group into the first of them, so that no two sessions of a round
// write to the same canonical path. Records keep their batch order, later
// ones win in the merge.
func groupBatches(batches []Batch) []Batch {
	out := make([]Batch, 0, len(batches))
	pos := make(map[filegroup.ID]int, len(batches))
	for _, b := range batches {
		if b.FileID == "" {
			b.FileID = uuid.NewString()
		}
		id := filegroup.ID{Partition: b.Partition, FileID: b.FileID}
		if i, ok := pos[id]; ok {
			merged := make([]records.Record, 0, len(out[i].Records)+len(b.Records))
			merged = append(merged, out[i].Records...)
			out[i].Records = append(merged, b.Records...)
			continue
		}
		pos[id] = len(out)
		out = append(out, b)
	}
	return out
}

func (w *Writer) writeGroup(ctx context.Context, id filegroup.ID, instant string,
	task mergehandle.TaskContext, recs []records.Record,
) (mergehandle.WriteStatus, error) {
	base, err := w.index.BaseFileFor(id, instant)
	if err != nil {
		return mergehandle.WriteStatus{}, err
	}

	cfg := mergehandle.Config{
		BasePath:     w.cfg.BasePath,
		Partition:    id.Partition,
		FileID:       id.FileID,
		Instant:      instant,
		Extension:    w.cfg.Extension,
		BaseFileName: base,
	}
	session, err := mergehandle.New(cfg, task, w.fs, merge.New(w.fs, w.logger),
		mergehandle.NewRolloverAssigner(w.fs, w.logger, w.metrics), w.logger, w.metrics)
	if err != nil {
		return mergehandle.WriteStatus{}, err
	}

	if err := session.Write(records.NewSliceIterator(recs)); err != nil {
		session.CloseGracefully()
		return mergehandle.WriteStatus{}, err
	}
	status, err := session.Close()
	if err != nil {
		return mergehandle.WriteStatus{}, err
	}

	if err := w.guard.WaitTillFileAppears(ctx, session.CurrentWritePath()); err != nil {
		return mergehandle.WriteStatus{}, err
	}
	// the renamed and deleted rollover files must be gone before the next
	// round probes for them
	for _, path := range session.RolloverPaths()[1:] {
		if err := w.guard.WaitTillFileDisappears(ctx, path); err != nil {
			return mergehandle.WriteStatus{}, err
		}
	}

	name, err := filegroup.ParseDataFileName(filepath.Base(status.Path), w.cfg.Extension)
	if err != nil {
		return mergehandle.WriteStatus{}, errors.Wrap(err, "parse committed file name")
	}
	if name.IsRollover() {
		return mergehandle.WriteStatus{}, errors.Errorf("commit of %s left rollover file %q", id, status.Path)
	}

	entry := fileindex.Entry{
		Instant:      name.Instant,
		FileName:     name.String(),
		BaseFileName: base,
	}
	if err := w.index.Put(id, entry); err != nil {
		return mergehandle.WriteStatus{}, errors.Wrapf(err, "index commit of %q", status.Path)
	}
	return status, nil
}
