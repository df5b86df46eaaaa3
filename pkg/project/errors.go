// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"errors"
	"fmt"
)

var (
	ErrCorrelationMismatch = errors.New("correlation mismatch")
	ErrNotCreated          = errors.New("project wasn't created")
	ErrNoPublicIP          = errors.New("no public ip")
	ErrVPNCheck            = errors.New("vpn check failed")
)

// CorrelationError is returned when a generated resource can't be matched to a control plane resource by name
type CorrelationError struct {
	Kind string
	Name string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("%s %q: no matching control plane resource", e.Kind, e.Name)
}

func (e *CorrelationError) Unwrap() error {
	return ErrCorrelationMismatch
}
