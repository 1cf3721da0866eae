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

package merge

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/mergecommit/adapters/repos/datafile"
	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/entities/records"
	"github.com/weaviate/mergecommit/usecases/mergehandle"
)

func nullLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func put(k, v string) records.Record {
	return records.Record{Key: k, Value: []byte(v)}
}

func del(k string) records.Record {
	return records.Record{Key: k, Tombstone: true}
}

func readFile(t *testing.T, fs *filesystem.Memory, path string) []records.Record {
	t.Helper()
	data, ok := fs.Get(path)
	require.True(t, ok, "expected %q to exist, have %v", path, fs.Paths())
	recs, err := datafile.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	return recs
}

func writeFile(t *testing.T, fs *filesystem.Memory, path string, recs ...records.Record) {
	t.Helper()
	var buf bytes.Buffer
	_, err := datafile.Write(&buf, recs)
	require.NoError(t, err)
	fs.Put(path, buf.Bytes())
}

type failingIterator struct {
	recs []records.Record
	err  error
}

func (it *failingIterator) Next() (records.Record, bool) {
	if len(it.recs) == 0 {
		return records.Record{}, false
	}
	rec := it.recs[0]
	it.recs = it.recs[1:]
	return rec, true
}

func (it *failingIterator) Err() error {
	if len(it.recs) == 0 {
		return it.err
	}
	return nil
}

func handleConfig(instant string) mergehandle.Config {
	return mergehandle.Config{
		BasePath:  "/data",
		Partition: "2024",
		FileID:    "fg1",
		Instant:   instant,
		Extension: ".mpk",
	}
}

func flush(t *testing.T, fs *filesystem.Memory, cfg mergehandle.Config, task mergehandle.TaskContext,
	recs ...records.Record,
) mergehandle.WriteStatus {
	t.Helper()
	s, err := mergehandle.New(cfg, task, fs, New(fs, nullLogger()),
		mergehandle.NewRolloverAssigner(fs, nullLogger(), nil), nullLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(records.NewSliceIterator(recs)))
	status, err := s.Close()
	require.NoError(t, err)
	return status
}

func TestCore_MergeSemantics(t *testing.T) {
	fs := filesystem.NewMemory()
	writeFile(t, fs, "/base.mpk", put("a", "1"), put("b", "1"), put("c", "1"))

	c := New(fs, nullLogger())
	require.NoError(t, c.Open("/base.mpk", "/target.mpk"))

	_, created := fs.Get("/target.mpk")
	assert.True(t, created, "target must exist after open")

	require.NoError(t, c.Merge(records.NewSliceIterator([]records.Record{
		put("b", "2"), del("c"), put("d", "1"), del("x"),
	})))
	require.NoError(t, c.Merge(records.NewSliceIterator([]records.Record{
		put("d", "2"), put("a", "2"), del("a"),
	})))

	status, err := c.Close()
	require.NoError(t, err)

	assert.Equal(t, []records.Record{put("b", "2"), put("d", "2")}, readFile(t, fs, "/target.mpk"))
	assert.Equal(t, int64(1), status.RecordsInserted)
	assert.Equal(t, int64(3), status.RecordsUpdated)
	assert.Equal(t, int64(2), status.RecordsDeleted)
	assert.Equal(t, int64(2), status.RecordsWritten)
	assert.Greater(t, status.BytesWritten, int64(0))

	// base is never modified
	assert.Len(t, readFile(t, fs, "/base.mpk"), 3)
}

func TestCore_Lifecycle(t *testing.T) {
	t.Run("missing base", func(t *testing.T) {
		fs := filesystem.NewMemory()
		err := New(fs, nullLogger()).Open("/missing.mpk", "/target.mpk")
		require.Error(t, err)
		assert.True(t, enterrors.IsNotFound(err))
		assert.Empty(t, fs.Paths())
	})

	t.Run("corrupt base", func(t *testing.T) {
		fs := filesystem.NewMemory()
		fs.Put("/base.mpk", []byte{0xc1})
		err := New(fs, nullLogger()).Open("/base.mpk", "/target.mpk")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read merge base")
	})

	t.Run("merge before open", func(t *testing.T) {
		err := New(filesystem.NewMemory(), nullLogger()).Merge(records.NewSliceIterator(nil))
		require.Error(t, err)
	})

	t.Run("double open", func(t *testing.T) {
		fs := filesystem.NewMemory()
		c := New(fs, nullLogger())
		require.NoError(t, c.Open("", "/target.mpk"))
		require.Error(t, c.Open("", "/other.mpk"))
	})

	t.Run("double close", func(t *testing.T) {
		fs := filesystem.NewMemory()
		c := New(fs, nullLogger())
		require.NoError(t, c.Open("", "/target.mpk"))
		_, err := c.Close()
		require.NoError(t, err)
		_, err = c.Close()
		require.Error(t, err)
	})

	t.Run("empty round writes an empty file", func(t *testing.T) {
		fs := filesystem.NewMemory()
		c := New(fs, nullLogger())
		require.NoError(t, c.Open("", "/target.mpk"))
		status, err := c.Close()
		require.NoError(t, err)
		assert.Empty(t, readFile(t, fs, "/target.mpk"))
		assert.Equal(t, int64(0), status.RecordsWritten)
	})

	t.Run("failed iterator is sticky", func(t *testing.T) {
		fs := filesystem.NewMemory()
		c := New(fs, nullLogger())
		require.NoError(t, c.Open("", "/target.mpk"))

		it := &failingIterator{recs: []records.Record{put("a", "1")}, err: errors.New("connection reset")}
		err := c.Merge(it)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")

		err = c.Merge(records.NewSliceIterator([]records.Record{put("b", "1")}))
		require.Error(t, err)

		_, err = c.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestSessionWithCore_RoundsOfOneInstant(t *testing.T) {
	fs := filesystem.NewMemory()
	cfg := handleConfig("20240101")
	canonical := "/data/2024/20240101_0-0-0_fg1.mpk"

	status := flush(t, fs, cfg, mergehandle.TaskContext{}, put("a", "1"), put("b", "1"))
	assert.Equal(t, canonical, status.Path)
	assert.Equal(t, int64(2), status.RecordsInserted)

	status = flush(t, fs, cfg, mergehandle.TaskContext{}, put("b", "2"), del("a"), put("c", "1"))
	assert.Equal(t, canonical, status.Path)
	assert.Equal(t, 1, status.Rollovers)
	assert.Equal(t, int64(1), status.RecordsInserted)
	assert.Equal(t, int64(1), status.RecordsUpdated)
	assert.Equal(t, int64(1), status.RecordsDeleted)

	assert.Equal(t, []string{canonical}, fs.Paths())
	assert.Equal(t, []records.Record{put("b", "2"), put("c", "1")}, readFile(t, fs, canonical))
}

func TestSessionWithCore_NextInstantMergesCommittedFile(t *testing.T) {
	fs := filesystem.NewMemory()
	first := "/data/2024/20240101_0-0-0_fg1.mpk"
	second := "/data/2024/20240102_0-1-0_fg1.mpk"

	flush(t, fs, handleConfig("20240101"), mergehandle.TaskContext{}, put("a", "1"))

	cfg := handleConfig("20240102")
	cfg.BaseFileName = "20240101_0-0-0_fg1.mpk"
	status := flush(t, fs, cfg, mergehandle.TaskContext{StageID: 1}, put("b", "1"))

	assert.Equal(t, second, status.Path)
	assert.Equal(t, []string{first, second}, fs.Paths())
	assert.Equal(t, []records.Record{put("a", "1"), put("b", "1")}, readFile(t, fs, second))
}

func TestSessionWithCore_RetriedAttempt(t *testing.T) {
	fs := filesystem.NewMemory()
	cfg := handleConfig("20240101")

	flush(t, fs, cfg, mergehandle.TaskContext{}, put("a", "1"))
	status := flush(t, fs, cfg, mergehandle.TaskContext{AttemptID: 1}, put("b", "1"))

	// the retry does not see the output of the failed attempt
	retried := "/data/2024/20240101_0-0-1_fg1.mpk"
	assert.Equal(t, retried, status.Path)
	assert.Equal(t, []string{retried}, fs.Paths())
	assert.Equal(t, []records.Record{put("b", "1")}, readFile(t, fs, retried))
}

func TestSessionWithCore_AbortedRoundKeepsCommittedFile(t *testing.T) {
	fs := filesystem.NewMemory()
	cfg := handleConfig("20240101")
	canonical := "/data/2024/20240101_0-0-0_fg1.mpk"

	flush(t, fs, cfg, mergehandle.TaskContext{}, put("a", "1"))

	s, err := mergehandle.New(cfg, mergehandle.TaskContext{}, fs, New(fs, nullLogger()),
		mergehandle.NewRolloverAssigner(fs, nullLogger(), nil), nullLogger(), nil)
	require.NoError(t, err)

	it := &failingIterator{recs: []records.Record{put("b", "1")}, err: errors.New("upstream gone")}
	require.Error(t, s.Write(it))
	s.CloseGracefully()

	assert.True(t, s.Closed())
	assert.Equal(t, []string{canonical}, fs.Paths())
	assert.Equal(t, []records.Record{put("a", "1")}, readFile(t, fs, canonical))
}

func TestSessionWithCore_ManyRounds(t *testing.T) {
	fs := filesystem.NewMemory()
	cfg := handleConfig("20240101")
	canonical := "/data/2024/20240101_0-0-0_fg1.mpk"

	var expected []records.Record
	for i := 0; i < 20; i++ {
		rec := put(fmt.Sprintf("k%02d", i), "v")
		expected = append(expected, rec)
		flush(t, fs, cfg, mergehandle.TaskContext{}, rec)
	}

	assert.Equal(t, []string{canonical}, fs.Paths())
	assert.Equal(t, expected, readFile(t, fs, canonical))
}
