// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package cix

import (
	"fmt"
)

// State is the lifecycle stage of a control plane resource
type State int

const (
	StateRequested        State = 1
	StateBuilding         State = 2
	StateUnresourced      State = 3
	StateRunning          State = 4
	StateQuiesce          State = 5
	StateQuiesced         State = 6
	StateRestart          State = 7
	StateScrub            State = 8
	StateScrubQueue       State = 9
	StateRunningUpdate    State = 10
	StateRunningUpdating  State = 11
	StateQuiescing        State = 12
	StateRestarting       State = 13
	StateScrubPrep        State = 14
	StateQuiescedUpdate   State = 15
	StateQuiescedUpdating State = 16
	StateClosed           State = 99
)

var stateNames = map[State]string{
	StateRequested:        "requested",
	StateBuilding:         "building",
	StateUnresourced:      "unresourced",
	StateRunning:          "running",
	StateQuiesce:          "quiesce",
	StateQuiesced:         "quiesced",
	StateRestart:          "restart",
	StateScrub:            "scrub",
	StateScrubQueue:       "scrub_queue",
	StateRunningUpdate:    "running_update",
	StateRunningUpdating:  "running_updating",
	StateQuiescing:        "quiescing",
	StateRestarting:       "restarting",
	StateScrubPrep:        "scrub_prep",
	StateQuiescedUpdate:   "quiesced_update",
	StateQuiescedUpdating: "quiesced_updating",
	StateClosed:           "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return fmt.Sprintf("%s(%d)", name, int(s))
	}

	return fmt.Sprintf("unknown(%d)", int(s))
}
