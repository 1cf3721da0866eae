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
	"bytes"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"

	enterrors "github.com/weaviate/mergecommit/entities/errors"
)

// Memory is an in-process FileSystem. Besides dry runs it is used to inject
// failures into single operations on single paths, which the local
// filesystem cannot do deterministically.
type Memory struct {
	sync.Mutex
	files    map[string][]byte
	failures map[failure]error
	ops      []RecordedOp
}

type failure struct {
	op   Operation
	path string
}

type RecordedOp struct {
	Op   Operation
	Path string
	Dst  string
}

var _ FileSystem = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		files:    map[string][]byte{},
		failures: map[failure]error{},
	}
}

// FailOn makes every following op on path return err until cleared.
func (m *Memory) FailOn(op Operation, path string, err error) {
	m.Lock()
	defer m.Unlock()

	m.failures[failure{op, path}] = err
}

func (m *Memory) ClearFailures() {
	m.Lock()
	defer m.Unlock()

	m.failures = map[failure]error{}
}

func (m *Memory) Put(path string, data []byte) {
	m.Lock()
	defer m.Unlock()

	m.files[path] = append([]byte(nil), data...)
}

func (m *Memory) Get(path string) ([]byte, bool) {
	m.Lock()
	defer m.Unlock()

	data, ok := m.files[path]
	return data, ok
}

// Paths returns all existing paths in lexical order.
func (m *Memory) Paths() []string {
	m.Lock()
	defer m.Unlock()

	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Ops returns the recorded operations of the given kind, in call order.
func (m *Memory) Ops(op Operation) []RecordedOp {
	m.Lock()
	defer m.Unlock()

	var out []RecordedOp
	for _, o := range m.ops {
		if o.Op == op {
			out = append(out, o)
		}
	}
	return out
}

func (m *Memory) record(op Operation, path, dst string) error {
	m.ops = append(m.ops, RecordedOp{Op: op, Path: path, Dst: dst})
	if err, ok := m.failures[failure{op, path}]; ok {
		if enterrors.IsNotFound(err) || enterrors.IsIO(err) {
			return err
		}
		return enterrors.NewErrIO(string(op), path, err)
	}
	return nil
}

func (m *Memory) Exists(path string) (bool, error) {
	m.Lock()
	defer m.Unlock()

	if err := m.record(OpExists, path, ""); err != nil {
		return false, err
	}
	_, ok := m.files[path]
	return ok, nil
}

func (m *Memory) Delete(path string, recursive bool) error {
	m.Lock()
	defer m.Unlock()

	if err := m.record(OpDelete, path, ""); err != nil {
		return err
	}

	found := false
	if _, ok := m.files[path]; ok {
		delete(m.files, path)
		found = true
	}
	if recursive {
		prefix := strings.TrimSuffix(path, "/") + "/"
		for p := range m.files {
			if strings.HasPrefix(p, prefix) {
				delete(m.files, p)
				found = true
			}
		}
	}
	if !found {
		return enterrors.NewErrNotFound(path, fs.ErrNotExist)
	}
	return nil
}

func (m *Memory) Rename(src, dst string) error {
	m.Lock()
	defer m.Unlock()

	if err := m.record(OpRename, src, dst); err != nil {
		return err
	}

	data, ok := m.files[src]
	if !ok {
		return enterrors.NewErrNotFound(src, fs.ErrNotExist)
	}
	delete(m.files, src)
	m.files[dst] = data
	return nil
}

func (m *Memory) Create(path string) (io.WriteCloser, error) {
	m.Lock()
	defer m.Unlock()

	if err := m.record(OpCreate, path, ""); err != nil {
		return nil, err
	}
	m.files[path] = nil
	return &memoryWriter{fs: m, path: path}, nil
}

func (m *Memory) Open(path string) (io.ReadCloser, error) {
	m.Lock()
	defer m.Unlock()

	if err := m.record(OpOpen, path, ""); err != nil {
		return nil, err
	}
	data, ok := m.files[path]
	if !ok {
		return nil, enterrors.NewErrNotFound(path, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type memoryWriter struct {
	fs     *Memory
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, enterrors.NewErrIO("write", w.path, fs.ErrClosed)
	}
	return w.buf.Write(p)
}

// Close publishes the written content, unless the file was deleted or
// renamed away in the meantime.
func (w *memoryWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.fs.Lock()
	defer w.fs.Unlock()

	if _, ok := w.fs.files[w.path]; !ok {
		return enterrors.NewErrNotFound(w.path, fs.ErrNotExist)
	}
	w.fs.files[w.path] = w.buf.Bytes()
	return nil
}
