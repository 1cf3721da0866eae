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

// Package filegroup names the physical data files of a logical file group.
//
// A data file name has the form
//
//	<instant>_<writeToken>_<fileID><ext>
//
// where the write token encodes the execution location of the writer as
// <partition>-<stage>-<attempt>. Rollover files of the same commit append a
// counter to the token: <partition>-<stage>-<attempt>-<n>.
package filegroup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	NameSeparator  = "_"
	tokenSeparator = "-"

	writeTokenParts = 3
)

// ID identifies a logical file group, independent of its physical names.
type ID struct {
	Partition string
	FileID    string
}

func (id ID) String() string {
	return id.Partition + "/" + id.FileID
}

func MakeWriteToken(partitionID, stageID, attemptID int) string {
	return fmt.Sprintf("%d-%d-%d", partitionID, stageID, attemptID)
}

func MakeRolloverWriteToken(writeToken string, rollNumber int) string {
	return writeToken + tokenSeparator + strconv.Itoa(rollNumber)
}

func MakeDataFileName(instant, writeToken, fileID, ext string) string {
	return instant + NameSeparator + writeToken + NameSeparator + fileID + ext
}

// DataFileName is the parsed form of a data file name.
type DataFileName struct {
	Instant    string
	WriteToken string
	FileID     string
	Extension  string
}

func (n DataFileName) String() string {
	return MakeDataFileName(n.Instant, n.WriteToken, n.FileID, n.Extension)
}

// IsRollover reports whether the name belongs to an intermediate rollover
// file rather than a canonical one.
func (n DataFileName) IsRollover() bool {
	return len(strings.Split(n.WriteToken, tokenSeparator)) > writeTokenParts
}

// RollNumber returns the rollover counter, or -1 for canonical names.
func (n DataFileName) RollNumber() int {
	parts := strings.Split(n.WriteToken, tokenSeparator)
	if len(parts) <= writeTokenParts {
		return -1
	}
	rn, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return -1
	}
	return rn
}

// ParseDataFileName splits a base name produced by MakeDataFileName. Neither
// the instant nor the write token may contain an underscore, the file id
// may.
func ParseDataFileName(name, ext string) (DataFileName, error) {
	if !strings.HasSuffix(name, ext) {
		return DataFileName{}, errors.Errorf("data file %q does not have extension %q", name, ext)
	}
	stem := strings.TrimSuffix(name, ext)

	parts := strings.SplitN(stem, NameSeparator, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return DataFileName{}, errors.Errorf("data file %q is not of the form <instant>_<token>_<fileID>%s", name, ext)
	}

	token := strings.Split(parts[1], tokenSeparator)
	if len(token) < writeTokenParts {
		return DataFileName{}, errors.Errorf("data file %q has malformed write token %q", name, parts[1])
	}
	for _, p := range token {
		if _, err := strconv.Atoi(p); err != nil {
			return DataFileName{}, errors.Wrapf(err, "data file %q has malformed write token %q", name, parts[1])
		}
	}

	return DataFileName{
		Instant:    parts[0],
		WriteToken: parts[1],
		FileID:     parts[2],
		Extension:  ext,
	}, nil
}
