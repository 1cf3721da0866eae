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

package fileindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/mergecommit/entities/filegroup"
)

func openIndex(t *testing.T, dir string) *Index {
	t.Helper()
	idx, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndex_PutGet(t *testing.T) {
	idx := openIndex(t, t.TempDir())
	id := filegroup.ID{Partition: "2024", FileID: "fg1"}

	_, found, err := idx.Get(id)
	require.NoError(t, err)
	assert.False(t, found)

	entry := Entry{Instant: "t1", FileName: "t1_0-0-0_fg1.mpk"}
	require.NoError(t, idx.Put(id, entry))

	got, found, err := idx.Get(id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry, got)

	_, found, err = idx.Get(filegroup.ID{Partition: "2024", FileID: "fg2"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIndex_PutRejects(t *testing.T) {
	idx := openIndex(t, t.TempDir())
	id := filegroup.ID{Partition: "2024", FileID: "fg1"}

	assert.Error(t, idx.Put(id, Entry{FileName: "x.mpk"}))
	assert.Error(t, idx.Put(id, Entry{Instant: "t1"}))

	require.NoError(t, idx.Put(id, Entry{Instant: "t2", FileName: "t2_0-0-0_fg1.mpk"}))
	err := idx.Put(id, Entry{Instant: "t1", FileName: "t1_0-0-0_fg1.mpk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than committed instant t2")
}

func TestIndex_BaseFileFor(t *testing.T) {
	idx := openIndex(t, t.TempDir())
	id := filegroup.ID{Partition: "2024", FileID: "fg1"}

	base, err := idx.BaseFileFor(id, "t1")
	require.NoError(t, err)
	assert.Empty(t, base)

	require.NoError(t, idx.Put(id, Entry{
		Instant:      "t2",
		FileName:     "t2_0-0-0_fg1.mpk",
		BaseFileName: "t1_0-0-0_fg1.mpk",
	}))

	tests := []struct {
		instant  string
		expected string
		wantErr  bool
	}{
		{instant: "t3", expected: "t2_0-0-0_fg1.mpk"},
		{instant: "t2", expected: "t1_0-0-0_fg1.mpk"},
		{instant: "t1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.instant, func(t *testing.T) {
			base, err := idx.BaseFileFor(id, tt.instant)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, base)
		})
	}
}

func TestIndex_ListAndReopen(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, idx.Put(filegroup.ID{Partition: "p1", FileID: "a"}, Entry{Instant: "t1", FileName: "a1"}))
	require.NoError(t, idx.Put(filegroup.ID{Partition: "p1", FileID: "b"}, Entry{Instant: "t1", FileName: "b1"}))
	require.NoError(t, idx.Put(filegroup.ID{Partition: "p2", FileID: "a"}, Entry{Instant: "t1", FileName: "a2"}))
	require.NoError(t, idx.Close())

	idx = openIndex(t, dir)
	entries, err := idx.List("p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]Entry{
		"a": {Instant: "t1", FileName: "a1"},
		"b": {Instant: "t1", FileName: "b1"},
	}, entries)

	entries, err = idx.List("missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
