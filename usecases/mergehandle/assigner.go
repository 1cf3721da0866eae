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
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/entities/filegroup"
	"github.com/weaviate/mergecommit/usecases/monitoring"
)

// FileSlot carries everything needed to turn a write token into a path.
type FileSlot struct {
	BasePath   string
	Partition  string
	Instant    string
	WriteToken string
	FileID     string
	Extension  string
}

func (s FileSlot) Path(fileName string) string {
	return filepath.Join(s.BasePath, s.Partition, fileName)
}

func (s FileSlot) FileName(writeToken string) string {
	return filegroup.MakeDataFileName(s.Instant, writeToken, s.FileID, s.Extension)
}

// Assignment is the outcome of path assignment for one round.
type Assignment struct {
	// OldPath is the merge base of the round, empty if there is none.
	OldPath string
	NewPath string
	// RolloverPaths lists the files earlier rounds of the same instant
	// produced, oldest first. The first entry is the canonical path.
	RolloverPaths []string
}

// PathAssigner decides where a round reads from and writes to.
type PathAssigner interface {
	AssignPaths(slot FileSlot, oldFileName, newFileName string) (Assignment, error)
}

// PlainAssigner uses the names as given. It never probes the filesystem.
type PlainAssigner struct{}

func (PlainAssigner) AssignPaths(slot FileSlot, oldFileName, newFileName string) (Assignment, error) {
	a := Assignment{NewPath: slot.Path(newFileName)}
	if oldFileName != "" {
		a.OldPath = slot.Path(oldFileName)
	}
	return a, nil
}

// RolloverAssigner treats an existing target as the output of an earlier
// round of the same instant: it becomes the merge base and the round moves on
// to the next rollover name. The probing is not bounded.
type RolloverAssigner struct {
	fs      filesystem.FileSystem
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics
}

func NewRolloverAssigner(fs filesystem.FileSystem, logger logrus.FieldLogger,
	metrics *monitoring.Metrics,
) *RolloverAssigner {
	return &RolloverAssigner{fs: fs, logger: logger, metrics: metrics}
}

func (r *RolloverAssigner) AssignPaths(slot FileSlot, oldFileName, newFileName string) (Assignment, error) {
	a, _ := PlainAssigner{}.AssignPaths(slot, oldFileName, newFileName)

	for rollNumber := 0; ; rollNumber++ {
		exists, err := r.fs.Exists(a.NewPath)
		if err != nil {
			return Assignment{}, enterrors.NewErrHandle(
				fmt.Sprintf("check existing path for merge handle %q", a.NewPath), err)
		}
		if !exists {
			return a, nil
		}

		a.OldPath = a.NewPath
		a.RolloverPaths = append(a.RolloverPaths, a.OldPath)
		a.NewPath = slot.Path(slot.FileName(filegroup.MakeRolloverWriteToken(slot.WriteToken, rollNumber)))

		r.metrics.RolloverProbe()
		r.logger.WithField("action", "merge_handle_rollover").
			WithField("old_path", a.OldPath).
			WithField("new_path", a.NewPath).
			Warn("duplicate write for merge bucket, rolling over to new path")
	}
}
