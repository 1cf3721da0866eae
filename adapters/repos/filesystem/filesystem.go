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

// Package filesystem contains the gateways merge handles use to probe,
// delete, rename and stream data files.
//
// All gateways share the same failure contract: a missing path is reported
// as entities/errors.ErrNotFound, every other failure as
// entities/errors.ErrIO. Exists never reports a missing path as an error.
package filesystem

import (
	"io"
)

type Operation string

const (
	OpExists Operation = "exists"
	OpDelete Operation = "delete"
	OpRename Operation = "rename"
	OpCreate Operation = "create"
	OpOpen   Operation = "open"
)

// FileSystem is not transactional. The only atomicity it promises is that
// Rename either fully replaces dst with src or fails.
type FileSystem interface {
	Exists(path string) (bool, error)
	Delete(path string, recursive bool) error
	// Rename overwrites dst if it exists.
	Rename(src, dst string) error
	// Create truncates an existing file. The path exists once Create returns,
	// its content is complete once the writer is closed.
	Create(path string) (io.WriteCloser, error)
	Open(path string) (io.ReadCloser, error)
}
