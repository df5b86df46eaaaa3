// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"time"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/poll"
	kmetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Timing is the fixed poll interval and the overall timeout of a single check
type Timing struct {
	Interval kmetav1.Duration `json:"interval,omitempty"`
	Timeout  kmetav1.Duration `json:"timeout,omitempty"`
}

func every(interval, timeout time.Duration) Timing {
	return Timing{
		Interval: kmetav1.Duration{Duration: interval},
		Timeout:  kmetav1.Duration{Duration: timeout},
	}
}

type Timings struct {
	RouterBuild  Timing `json:"routerBuild,omitempty"`
	RouterUpdate Timing `json:"routerUpdate,omitempty"`
	RouterDelete Timing `json:"routerDelete,omitempty"`

	VMBuild    Timing `json:"vmBuild,omitempty"`
	VMUpdating Timing `json:"vmUpdating,omitempty"`
	VMStop     Timing `json:"vmStop,omitempty"`
	VMStart    Timing `json:"vmStart,omitempty"`
	VMDelete   Timing `json:"vmDelete,omitempty"`

	Ping    Timing `json:"ping,omitempty"`
	Recheck Timing `json:"recheck,omitempty"`
	VPN     Timing `json:"vpn,omitempty"`

	ProjectDelete Timing `json:"projectDelete,omitempty"`

	// Grace is waited instead of probing VMs that can't be probed
	Grace kmetav1.Duration `json:"grace,omitempty"`
}

var DefaultTimings = Timings{
	RouterBuild:  every(time.Minute, 30 * time.Minute),
	RouterUpdate: every(time.Minute, 10 * time.Minute),
	RouterDelete: every(time.Minute, 10 * time.Minute),

	VMBuild:    every(time.Minute, 8 * time.Hour),
	VMUpdating: every(time.Minute, 8 * time.Hour),
	VMStop:     every(5 * time.Second, 8 * time.Hour),
	VMStart:    every(5 * time.Second, 8 * time.Hour),
	VMDelete:   every(time.Minute, 8 * time.Hour),

	Ping:    every(10 * time.Second, 10 * time.Minute),
	Recheck: every(10 * time.Second, 5 * time.Minute),
	VPN:     every(30 * time.Second, 3 * time.Minute),

	ProjectDelete: every(time.Minute, 20 * time.Minute),

	Grace: kmetav1.Duration{Duration: time.Minute},
}

var (
	routerBuildTable = poll.Table[cix.State]{
		Name:       "build",
		InProgress: []cix.State{cix.StateRequested, cix.StateBuilding},
		Success:    cix.StateRunning,
		Failure:    []cix.State{cix.StateUnresourced},
	}
	routerUpdateTable = poll.Table[cix.State]{
		Name:       "update",
		InProgress: []cix.State{cix.StateRunningUpdate, cix.StateRunningUpdating},
		Success:    cix.StateRunning,
	}
	routerDeleteTable = poll.Table[cix.State]{
		Name:       "delete",
		InProgress: []cix.State{cix.StateScrub, cix.StateScrubPrep},
		Success:    cix.StateScrubQueue,
	}

	vmBuildTable = poll.Table[cix.State]{
		Name:       "build",
		InProgress: []cix.State{cix.StateRequested, cix.StateBuilding},
		Success:    cix.StateRunning,
		Failure:    []cix.State{cix.StateUnresourced},
	}
	vmUpdatingTable = poll.Table[cix.State]{
		Name:       "update",
		InProgress: []cix.State{cix.StateRunningUpdate, cix.StateRunningUpdating},
		Success:    cix.StateRunning,
		Failure: []cix.State{
			cix.StateUnresourced,
			cix.StateQuiesce,
			cix.StateQuiesced,
			cix.StateScrub,
			cix.StateScrubPrep,
			cix.StateScrubQueue,
			cix.StateClosed,
		},
	}
	vmStopTable = poll.Table[cix.State]{
		Name:       "stop",
		InProgress: []cix.State{cix.StateQuiesce, cix.StateQuiescing},
		Success:    cix.StateQuiesced,
	}
	vmStartTable = poll.Table[cix.State]{
		Name:       "start",
		InProgress: []cix.State{cix.StateRestart, cix.StateRestarting},
		Success:    cix.StateRunning,
	}
	vmDeleteTable = poll.Table[cix.State]{
		Name:       "delete",
		InProgress: []cix.State{cix.StateScrub, cix.StateScrubPrep},
		Success:    cix.StateScrubQueue,
	}

	projectShutDownTable = poll.Table[bool]{
		Name:       "shut down",
		InProgress: []bool{false},
		Success:    true,
	}
)
