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

package mergehandle

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/entities/filegroup"
	"github.com/weaviate/mergecommit/entities/records"
	"github.com/weaviate/mergecommit/usecases/monitoring"
)

// Session is the merge handle of one flush round.
type Session struct {
	cfg     Config
	task    TaskContext
	fs      filesystem.FileSystem
	core    MergeCore
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics

	slot          FileSlot
	oldFilePath   string
	newFilePath   string
	rolloverPaths []string
	closed        bool
}

// New removes the output of the previous task attempt, if any, assigns the
// paths of the round and opens the merge core on them.
func New(cfg Config, task TaskContext, fs filesystem.FileSystem, core MergeCore,
	assigner PathAssigner, logger logrus.FieldLogger, metrics *monitoring.Metrics,
) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid merge handle config")
	}
	if err := task.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid task context")
	}

	s := &Session{
		cfg:     cfg,
		task:    task,
		fs:      fs,
		core:    core,
		metrics: metrics,
		logger: logger.WithFields(logrus.Fields{
			"action":    "merge_handle",
			"partition": cfg.Partition,
			"file_id":   cfg.FileID,
			"instant":   cfg.Instant,
			"attempt":   task.AttemptID,
		}),
		slot: FileSlot{
			BasePath:   cfg.BasePath,
			Partition:  cfg.Partition,
			Instant:    cfg.Instant,
			WriteToken: task.WriteToken(),
			FileID:     cfg.FileID,
			Extension:  cfg.Extension,
		},
	}

	if task.AttemptID > 0 {
		if err := s.deleteInvalidDataFile(task.AttemptID - 1); err != nil {
			return nil, err
		}
	}

	a, err := assigner.AssignPaths(s.slot, cfg.BaseFileName, s.slot.FileName(s.slot.WriteToken))
	if err != nil {
		if enterrors.IsHandle(err) {
			return nil, err
		}
		return nil, enterrors.NewErrHandle("assign merge handle paths", err)
	}
	if a.OldPath != "" && a.OldPath == a.NewPath {
		return nil, enterrors.NewErrHandle("assign merge handle paths",
			errors.Errorf("merge base and target are both %q", a.NewPath))
	}

	s.oldFilePath = a.OldPath
	s.newFilePath = a.NewPath
	s.rolloverPaths = a.RolloverPaths

	if err := core.Open(s.oldFilePath, s.newFilePath); err != nil {
		return nil, enterrors.NewErrHandle(
			fmt.Sprintf("open merge file %q", s.newFilePath), err)
	}
	return s, nil
}

// deleteInvalidDataFile removes the file the previous attempt of this task
// wrote under its own write token. A coordinator may invalidate that file
// only after this attempt already reused it as merge base, which would make
// the final rename fail with a missing source. Deleting it up front closes
// that window.
func (s *Session) deleteInvalidDataFile(lastAttemptID int) error {
	lastWriteToken := filegroup.MakeWriteToken(s.task.PartitionID, s.task.StageID, lastAttemptID)
	lastDataFileName := s.slot.FileName(lastWriteToken)
	path := s.slot.Path(lastDataFileName)

	exists, err := s.fs.Exists(path)
	if err != nil {
		return enterrors.NewErrHandle(
			fmt.Sprintf("delete merge base file left by task retry %q", lastDataFileName), err)
	}
	if !exists {
		return nil
	}

	s.logger.WithField("path", path).
		Info("deleting invalid merge base file due to task retry")
	if err := s.fs.Delete(path, false); err != nil && !enterrors.IsNotFound(err) {
		return enterrors.NewErrHandle(
			fmt.Sprintf("delete merge base file left by task retry %q", lastDataFileName), err)
	}
	s.metrics.StaleFileDeleted()
	return nil
}

// Write merges incoming into the round's target.
func (s *Session) Write(incoming records.Iterator) error {
	if s.closed {
		return enterrors.NewErrHandle("write to merge handle",
			errors.Errorf("handle for %q is closed", s.newFilePath))
	}

	if err := s.core.Merge(incoming); err != nil {
		return errors.Wrapf(err, "merge into %q", s.newFilePath)
	}
	return nil
}

// Close completes the target file and commits it under the canonical name.
// The session is closed afterwards whether or not the commit succeeded.
func (s *Session) Close() (WriteStatus, error) {
	if s.closed {
		return WriteStatus{}, enterrors.NewErrHandle("close merge handle",
			errors.Errorf("handle for %q is already closed", s.newFilePath))
	}
	defer func() { s.closed = true }()

	status, err := s.core.Close()
	if err != nil {
		return WriteStatus{}, errors.Wrapf(err, "close merge file %q", s.newFilePath)
	}

	if err := s.finalizeWrite(); err != nil {
		return WriteStatus{}, err
	}

	status.Partition = s.cfg.Partition
	status.FileID = s.cfg.FileID
	status.Instant = s.cfg.Instant
	status.Path = s.newFilePath
	status.Rollovers = len(s.rolloverPaths) - 1
	return status, nil
}

// finalizeWrite keeps only the newest file of the rollover chain and moves
// it to the canonical path. Every rollover file holds the full merge of all
// rounds before it, so the older ones are redundant. Visibility of the
// result is left to the consistency guard of the caller.
func (s *Session) finalizeWrite() error {
	start := time.Now()

	s.rolloverPaths = append(s.rolloverPaths, s.newFilePath)
	if len(s.rolloverPaths) == 1 {
		s.metrics.Commit(monitoring.CommitNoop, 0)
		s.logger.WithField("path", s.newFilePath).
			Debug("single flush round, no rollover to commit")
		return nil
	}

	for _, path := range s.rolloverPaths[:len(s.rolloverPaths)-1] {
		if err := s.fs.Delete(path, false); err != nil {
			if enterrors.IsNotFound(err) {
				s.logger.WithField("path", path).
					Debug("temporary roll file already removed")
				continue
			}
			s.metrics.Commit(monitoring.CommitFailed, time.Since(start))
			return enterrors.NewErrCommit(
				fmt.Sprintf("clean the temporary roll file %q", path), err)
		}
	}

	lastPath := s.rolloverPaths[len(s.rolloverPaths)-1]
	desiredPath := s.rolloverPaths[0]
	if err := s.fs.Rename(lastPath, desiredPath); err != nil {
		s.metrics.Commit(monitoring.CommitFailed, time.Since(start))
		return enterrors.NewErrCommit(
			fmt.Sprintf("rename the temporary roll file %q to %q", lastPath, desiredPath), err)
	}

	s.newFilePath = desiredPath
	s.metrics.Commit(monitoring.CommitRenamed, time.Since(start))
	s.logger.WithField("path", desiredPath).
		WithField("rollovers", len(s.rolloverPaths)-1).
		Info("committed rolled over merge file")
	return nil
}

// CloseGracefully is Close for abort paths. It never returns an error: a
// failed close is logged and the in-progress file is deleted once, on a best
// effort basis. Calling it on a closed session does nothing.
func (s *Session) CloseGracefully() {
	if s.closed {
		return
	}

	_, err := s.Close()
	if err == nil {
		return
	}

	s.logger.WithError(err).Warn("error while trying to dispose the merge handle")

	path := s.newFilePath
	if err := s.fs.Delete(path, false); err != nil {
		if enterrors.IsNotFound(err) {
			s.metrics.GracefulCleanup(monitoring.CleanupMissing)
			s.logger.WithField("path", path).
				Info("intermediate merge data file does not exist, nothing to delete")
			return
		}
		s.metrics.GracefulCleanup(monitoring.CleanupFailed)
		s.logger.WithField("path", path).WithError(err).
			Warn("deleting the intermediate merge data file failed")
		return
	}

	s.metrics.GracefulCleanup(monitoring.CleanupDeleted)
	s.logger.WithField("path", path).
		Info("deleted the intermediate merge data file")
}

// CurrentWritePath is the file the round writes to, and the canonical file
// once the session was closed successfully.
func (s *Session) CurrentWritePath() string {
	return s.newFilePath
}

// OldFilePath is the merge base of the round, empty for a new file group.
func (s *Session) OldFilePath() string {
	return s.oldFilePath
}

func (s *Session) RolloverPaths() []string {
	return append([]string(nil), s.rolloverPaths...)
}

func (s *Session) Closed() bool {
	return s.closed
}
