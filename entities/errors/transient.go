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

// IsTransient reports whether reissuing the flush round is likely to succeed
// without operator intervention.
func IsTransient(err error) bool {
	if errors.Is(err, NotVisible) {
		return true
	}

	return false
}

var NotVisible = errors.New("file not visible")

func NewNotVisible(msg string) error {
	return fmt.Errorf("%s: %w", msg, NotVisible)
}
