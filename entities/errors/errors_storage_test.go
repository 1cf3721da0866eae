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

package errors

import (
	"io/fs"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	t.Run("not found survives wrapping", func(t *testing.T) {
		err := pkgerrors.Wrap(NewErrNotFound("/data/p1/f1", fs.ErrNotExist), "rename")

		assert.True(t, IsNotFound(err))
		assert.False(t, IsIO(err))
		assert.ErrorIs(t, err, fs.ErrNotExist)

		var nf ErrNotFound
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "/data/p1/f1", nf.Path())
	})

	t.Run("io carries the operation", func(t *testing.T) {
		err := NewErrIO("delete", "/data/p1/f1", fs.ErrPermission)

		assert.True(t, IsIO(err))
		assert.False(t, IsNotFound(err))
		assert.Equal(t, "delete", err.Op())
		assert.Contains(t, err.Error(), "permission denied")
	})

	t.Run("handle and commit are distinct", func(t *testing.T) {
		cause := NewErrIO("exists", "/x", fs.ErrPermission)
		handle := NewErrHandle("probe rollover path", cause)
		commit := NewErrCommit("rename rollover file", cause)

		assert.True(t, IsHandle(handle))
		assert.False(t, IsCommit(handle))
		assert.True(t, IsCommit(commit))
		assert.False(t, IsHandle(commit))

		// the underlying filesystem kind stays reachable
		assert.True(t, IsIO(handle))
		assert.True(t, IsIO(commit))
	})

	t.Run("not visible is transient", func(t *testing.T) {
		err := pkgerrors.Wrap(NewNotVisible("wait for /x"), "flush round")
		assert.True(t, IsTransient(err))
		assert.False(t, IsTransient(NewErrCommit("rename", fs.ErrClosed)))
	})
}
