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
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	"github.com/weaviate/mergecommit/entities/records"
)

const (
	basePath = "/data"
	ext      = ".mpk"
)

// concatCore appends the keys of all incoming records to the content of the
// base file, so the content of a file shows every round merged into it.
type concatCore struct {
	fs      filesystem.FileSystem
	content []byte
	w       io.WriteCloser
	written int64
}

func newConcatCore(fs filesystem.FileSystem) *concatCore {
	return &concatCore{fs: fs}
}

func (c *concatCore) Open(basePath, targetPath string) error {
	if basePath != "" {
		r, err := c.fs.Open(basePath)
		if err != nil {
			return err
		}
		defer r.Close()
		if c.content, err = io.ReadAll(r); err != nil {
			return err
		}
	}
	w, err := c.fs.Create(targetPath)
	if err != nil {
		return err
	}
	c.w = w
	return nil
}

func (c *concatCore) Merge(incoming records.Iterator) error {
	for rec, ok := incoming.Next(); ok; rec, ok = incoming.Next() {
		c.content = append(c.content, rec.Key+","...)
		c.written++
	}
	return incoming.Err()
}

func (c *concatCore) Close() (WriteStatus, error) {
	if _, err := c.w.Write(c.content); err != nil {
		return WriteStatus{}, err
	}
	if err := c.w.Close(); err != nil {
		return WriteStatus{}, err
	}
	return WriteStatus{RecordsWritten: c.written, BytesWritten: int64(len(c.content))}, nil
}

type mockCore struct {
	mock.Mock
}

func (m *mockCore) Open(basePath, targetPath string) error {
	args := m.Called(basePath, targetPath)
	return args.Error(0)
}

func (m *mockCore) Merge(incoming records.Iterator) error {
	args := m.Called(incoming)
	return args.Error(0)
}

func (m *mockCore) Close() (WriteStatus, error) {
	args := m.Called()
	return args.Get(0).(WriteStatus), args.Error(1)
}

func testConfig(instant, fileID string) Config {
	return Config{
		BasePath:  basePath,
		Partition: "p1",
		FileID:    fileID,
		Instant:   instant,
		Extension: ext,
	}
}

func nullLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func keys(ks ...string) records.Iterator {
	recs := make([]records.Record, len(ks))
	for i, k := range ks {
		recs[i] = records.Record{Key: k, Value: []byte(k)}
	}
	return records.NewSliceIterator(recs)
}

// runRound opens a rollover session, writes ks and closes it.
func runRound(t *testing.T, fs *filesystem.Memory, cfg Config, task TaskContext, ks ...string) WriteStatus {
	t.Helper()
	s, err := New(cfg, task, fs, newConcatCore(fs), NewRolloverAssigner(fs, nullLogger(), nil), nullLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(keys(ks...)))
	status, err := s.Close()
	require.NoError(t, err)
	return status
}

func content(t *testing.T, fs *filesystem.Memory, path string) string {
	t.Helper()
	data, ok := fs.Get(path)
	require.True(t, ok, "expected %q to exist, have %v", path, fs.Paths())
	return string(data)
}
