// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "reachable",
			want: true,
		},
		{
			name: "unreachable",
			err:  errors.New("exit status 1"), //nolint:goerr113
			want: false,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPing(1)

			var gotArgs []string
			p.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
				gotArgs = append([]string{name}, args...)

				return []byte("1 packets transmitted"), tt.err
			}

			require.Equal(t, tt.want, p.Probe(context.Background(), "10.0.0.1"))
			require.Equal(t, []string{"ping", "-c", "1", "-W", "1", "10.0.0.1"}, gotArgs)
		})
	}
}

func TestPingCanceled(t *testing.T) {
	p := NewPing(1)
	p.run = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return nil, nil
	}

	require.NoError(t, p.pings.Acquire(context.Background(), 1))
	defer p.pings.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.False(t, p.Probe(ctx, "10.0.0.1"))
}
