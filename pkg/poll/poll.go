// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

// Package poll confirms resource state transitions by polling with a fixed interval until a terminal state or
// a timeout is reached.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	ErrTimedOut = errors.New("timed out")
	ErrFailed   = errors.New("failed")
)

// Resource identifies what is being polled in logs and errors
type Resource struct {
	Kind string
	ID   string
}

func (r Resource) String() string {
	return r.Kind + " " + r.ID
}

// TimeoutError is returned when a poll didn't reach a terminal outcome in time
type TimeoutError struct {
	Resource  Resource
	Op        string
	LastState string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s didn't complete within %s, last state %s", e.Resource, e.Op, e.Timeout, e.LastState)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimedOut
}

// StateError is returned when a resource reached an explicit failure state
type StateError struct {
	Resource Resource
	Op       string
	State    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s failed in state %s", e.Resource, e.Op, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrFailed
}

// Table declares the expected states of a single transition. States that are in none of the sets are treated as
// in progress.
type Table[S comparable] struct {
	Name       string
	InProgress []S
	Success    S
	Failure    []S
}

func (t Table[S]) Classify(state S) Outcome {
	switch {
	case state == t.Success:
		return Succeeded
	case slices.Contains(t.Failure, state):
		return Failed
	default:
		return Pending
	}
}

// Reader fetches the current state of a resource, its errors are never retried
type Reader[S comparable] func(ctx context.Context) (S, error)

type Result[S comparable] struct {
	Outcome   Outcome
	Reads     int
	LastState S
	TimedOut  bool
}

// Poll reads the state until it's the success state, an explicit failure state or the timeout elapses. The timeout
// is never reported before it has fully elapsed.
func Poll[S comparable](ctx context.Context, res Resource, read Reader[S], table Table[S], interval, timeout time.Duration) (Result[S], error) {
	result := Result[S]{Outcome: Pending}
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		state, err := read(ctx)
		result.Reads++
		if err != nil {
			result.Outcome = Failed

			return result, fmt.Errorf("reading state of %s: %w", res, err)
		}
		result.LastState = state

		outcome := table.Classify(state)
		slog.Debug("Polled", "kind", res.Kind, "id", res.ID, "op", table.Name, "attempt", result.Reads, "state", state, "outcome", outcome)

		switch outcome {
		case Succeeded:
			result.Outcome = Succeeded
			slog.Info("Transition completed", "kind", res.Kind, "id", res.ID, "op", table.Name, "state", state, "took", time.Since(start).Round(time.Second))

			return result, nil
		case Failed:
			result.Outcome = Failed
			err := &StateError{Resource: res, Op: table.Name, State: fmt.Sprint(state)}
			slog.Error("Transition failed", "kind", res.Kind, "id", res.ID, "op", table.Name, "state", state)

			return result, err
		case Pending:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			result.Outcome = Failed
			result.TimedOut = true
			err := &TimeoutError{Resource: res, Op: table.Name, LastState: fmt.Sprint(state), Timeout: timeout}
			slog.Error("Transition timed out", "kind", res.Kind, "id", res.ID, "op", table.Name, "state", state, "timeout", timeout)

			return result, err
		}

		if err := wait(ctx, min(interval, remaining)); err != nil {
			result.Outcome = Failed

			return result, fmt.Errorf("polling %s: %w", res, err)
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck
	case <-time.After(d):
		return nil
	}
}
