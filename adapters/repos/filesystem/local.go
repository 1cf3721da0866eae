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

package filesystem

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/mergecommit/entities/diskio"
	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/usecases/monitoring"
)

// Local is a FileSystem on top of the operating system's filesystem. Written
// files are fsynced on close and the parent directory of a rename target is
// fsynced after the rename, so a committed rename survives a crash.
type Local struct {
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics
}

var _ FileSystem = (*Local)(nil)

func NewLocal(logger logrus.FieldLogger, metrics *monitoring.Metrics) *Local {
	return &Local{
		logger:  logger.WithField("action", "local_filesystem"),
		metrics: metrics,
	}
}

func (l *Local) Exists(path string) (bool, error) {
	exists, err := diskio.FileExists(path)
	l.metrics.FileOp(string(OpExists), err)
	if err != nil {
		return false, enterrors.NewErrIO(string(OpExists), path, err)
	}
	return exists, nil
}

func (l *Local) Delete(path string, recursive bool) (err error) {
	defer func() { l.metrics.FileOp(string(OpDelete), err) }()

	if _, err := os.Lstat(path); err != nil {
		return classify(OpDelete, path, err)
	}

	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return classify(OpDelete, path, err)
	}
	return nil
}

func (l *Local) Rename(src, dst string) (err error) {
	defer func() { l.metrics.FileOp(string(OpRename), err) }()

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(src); os.IsNotExist(statErr) {
				return enterrors.NewErrNotFound(src, err)
			}
		}
		return enterrors.NewErrIO(string(OpRename), src, err)
	}

	if err := diskio.Fsync(filepath.Dir(dst)); err != nil {
		return enterrors.NewErrIO(string(OpRename), dst, err)
	}
	return nil
}

func (l *Local) Create(path string) (io.WriteCloser, error) {
	f, err := diskio.CreateFile(path)
	l.metrics.FileOp(string(OpCreate), err)
	if err != nil {
		return nil, enterrors.NewErrIO(string(OpCreate), path, err)
	}

	return diskio.NewMeteredWriter(&syncOnClose{f}, l.metrics.BytesWritten), nil
}

func (l *Local) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	l.metrics.FileOp(string(OpOpen), err)
	if err != nil {
		return nil, classify(OpOpen, path, err)
	}

	return diskio.NewMeteredReader(f, func(read, _ int64) {
		l.metrics.BytesRead(read)
	}), nil
}

type syncOnClose struct {
	*os.File
}

func (s *syncOnClose) Close() error {
	if err := s.File.Sync(); err != nil {
		s.File.Close()
		return enterrors.NewErrIO("fsync", s.File.Name(), err)
	}
	if err := s.File.Close(); err != nil {
		return enterrors.NewErrIO("close", s.File.Name(), err)
	}
	return nil
}

func classify(op Operation, path string, err error) error {
	if os.IsNotExist(err) {
		return enterrors.NewErrNotFound(path, err)
	}
	return enterrors.NewErrIO(string(op), path, err)
}
