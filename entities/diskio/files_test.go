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

package diskio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.db")

	exists, err := FileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	exists, err = FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2024", "01", "t1_0-0-0_f1.mpk")

	f, err := CreateFile(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, Fsync(filepath.Dir(path)))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestMeteredReaderWriter(t *testing.T) {
	var buf bytes.Buffer
	var written int64
	w := NewMeteredWriter(nopWriteCloser{&buf}, func(n int64) { written += n })
	_, err := w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, int64(11), written)

	var read int64
	r := NewMeteredReader(io.NopCloser(&buf), func(n, _ int64) { read += n })
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
	assert.Equal(t, int64(11), read)
}
