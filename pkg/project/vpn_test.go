// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"testing"
	"time"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/util/sshutil"
	"github.com/stretchr/testify/require"
)

func TestTunnelInspector(t *testing.T) {
	for _, tt := range []struct {
		name    string
		vpns    []cix.VPN
		router  *cix.Router
		out     string
		errOut  string
		err     error
		called  bool
		wantErr error
	}{
		{
			name:   "no vpns",
			called: false,
		},
		{
			name:   "associations",
			vpns:   []cix.VPN{{ID: 1, Description: "vpn-1"}},
			router: &cix.Router{ID: 3, ManagementIP: "10.0.0.3", Username: "robot", Credentials: "secret"},
			out:    "Index State Initiator cookie\n1 UP 8f7a...",
			called: true,
		},
		{
			name:    "stderr",
			vpns:    []cix.VPN{{ID: 1, Description: "vpn-1"}},
			router:  &cix.Router{ID: 3, ManagementIP: "10.0.0.3", Username: "robot", Credentials: "secret"},
			errOut:  "error: permission denied",
			called:  true,
			wantErr: ErrVPNCheck,
		},
		{
			name:    "no output",
			vpns:    []cix.VPN{{ID: 1, Description: "vpn-1"}},
			router:  &cix.Router{ID: 3, ManagementIP: "10.0.0.3", Username: "robot", Credentials: "secret"},
			err:     sshutil.ErrNoOutput,
			called:  true,
			wantErr: sshutil.ErrNoOutput,
		},
		{
			name:    "router unavailable",
			vpns:    []cix.VPN{{ID: 1, Description: "vpn-1"}},
			wantErr: cix.ErrRemoteUnavailable,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(nil)
			api.router = tt.router

			called := false
			inspector := &TunnelInspector{
				API:    api,
				Timing: every(time.Millisecond, time.Second),
				wait: func(_ context.Context, cfg *sshutil.Config, cmd string, interval time.Duration) (string, string, error) {
					called = true
					require.Equal(t, DefaultTunnelCommand, cmd)
					require.Equal(t, time.Millisecond, interval)
					require.Equal(t, "10.0.0.3", cfg.Remote.Host)
					require.Equal(t, "robot", cfg.Remote.User)
					require.Equal(t, "secret", cfg.Password)

					return tt.out, tt.errOut, tt.err
				},
			}

			router := &Router{Handle: cix.VirtualRouter{ID: 7, RouterID: 3}, VPNs: tt.vpns}
			err := inspector.CheckTunnels(context.Background(), "token", router)
			require.Equal(t, tt.called, called)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
		})
	}
}
