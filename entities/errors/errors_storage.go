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
	"errors"
	"fmt"
)

// ErrNotFound is returned by filesystem gateways when the addressed path does
// not exist. Existence probes never return it, they report false instead.
type ErrNotFound struct {
	path string
	err  error
}

func (e ErrNotFound) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%q not found: %v", e.path, e.err)
	}
	return fmt.Sprintf("%q not found", e.path)
}

func (e ErrNotFound) Unwrap() error {
	return e.err
}

func (e ErrNotFound) Path() string {
	return e.path
}

func NewErrNotFound(path string, err error) ErrNotFound {
	return ErrNotFound{path: path, err: err}
}

// ErrIO is any filesystem failure other than a missing path.
type ErrIO struct {
	op   string
	path string
	err  error
}

func (e ErrIO) Error() string {
	return fmt.Sprintf("%s %q: %v", e.op, e.path, e.err)
}

func (e ErrIO) Unwrap() error {
	return e.err
}

func (e ErrIO) Op() string {
	return e.op
}

func NewErrIO(op, path string, err error) ErrIO {
	return ErrIO{op: op, path: path, err: err}
}

// ErrHandle is a generic failure of a merge handle before any data was
// written, e.g. while cleaning up after a previous attempt or while probing
// for a free rollover path.
type ErrHandle struct {
	msg string
	err error
}

func (e ErrHandle) Error() string {
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e ErrHandle) Unwrap() error {
	return e.err
}

func NewErrHandle(msg string, err error) ErrHandle {
	return ErrHandle{msg: msg, err: err}
}

// ErrCommit means the final delete/rename step of a merge handle failed. The
// commit for the file did not happen.
type ErrCommit struct {
	msg string
	err error
}

func (e ErrCommit) Error() string {
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e ErrCommit) Unwrap() error {
	return e.err
}

func NewErrCommit(msg string, err error) ErrCommit {
	return ErrCommit{msg: msg, err: err}
}

func IsNotFound(err error) bool {
	var target ErrNotFound
	return errors.As(err, &target)
}

func IsIO(err error) bool {
	var target ErrIO
	return errors.As(err, &target)
}

func IsHandle(err error) bool {
	var target ErrHandle
	return errors.As(err, &target)
}

func IsCommit(err error) bool {
	var target ErrCommit
	return errors.As(err, &target)
}
