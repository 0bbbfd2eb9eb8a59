// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/llmqa/llmqa/pkg/errutil"
)

var errTaken = errors.New("username already registered")

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("USERNAME_TAKEN").Wrap(errTaken)
	errutil.AssertErrorCode(t, err, "USERNAME_TAKEN")
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.Code("USERNAME_TAKEN").With("username", "alice").Wrap(errTaken)
	errutil.AssertErrorContext(t, err, "username", "alice")
}

func TestAssertCoded(t *testing.T) {
	err := oops.Code("USERNAME_TAKEN").With("username", "alice").Wrap(errTaken)
	errutil.AssertCoded(t, err, errTaken, "USERNAME_TAKEN")
}
