// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package cix

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteRejected is returned when a write call isn't accepted
	ErrRemoteRejected = errors.New("remote rejected")
	// ErrRemoteUnavailable is returned when a read call fails, it's never retried
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrNotAvailable is the known transient internal error of image listing and cloud creation
	ErrNotAvailable = errors.New("not available")
)

// RemoteError describes a failed control plane call
type RemoteError struct {
	Op     string
	Kind   string
	ID     string
	Status int
	Body   string

	class error
	cause error
}

func (e *RemoteError) Error() string {
	target := e.Kind
	if e.ID != "" {
		target += " " + e.ID
	}

	if e.cause != nil {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, target, e.class, e.cause)
	}

	return fmt.Sprintf("%s %s: %s: status %d: %s", e.Op, target, e.class, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.class, e.cause}
	}

	return []error{e.class}
}
