// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/topology"
	"github.com/stretchr/testify/require"
)

var errStop = errors.New("stop")

type fakeControlPlane struct {
	regions  []cix.Address
	servers  []cix.Server
	projects []cix.Project
	images   []topology.Image
	tokens   []string
}

func (f *fakeControlPlane) Token(_ context.Context, creds cix.Credentials) (string, error) {
	f.tokens = append(f.tokens, creds.Email)

	return "token-" + creds.Email, nil
}

func (f *fakeControlPlane) ListRegions(context.Context, string) ([]cix.Address, error) {
	return f.regions, nil
}

func (f *fakeControlPlane) ListServers(context.Context, string, string, bool) ([]cix.Server, error) {
	return f.servers, nil
}

func (f *fakeControlPlane) ListAssets(context.Context, string, string, []string) ([]cix.Asset, error) {
	return nil, nil
}

func (f *fakeControlPlane) ListOpenProjects(context.Context, string) ([]cix.Project, error) {
	return f.projects, nil
}

func (f *fakeControlPlane) ListImages(context.Context, string, string) ([]topology.Image, error) {
	return f.images, nil
}

func (f *fakeControlPlane) CreateCloud(context.Context, string, *topology.Topology) (*cix.Cloud, error) {
	return nil, fmt.Errorf("create: %w", cix.ErrRemoteRejected)
}

func (f *fakeControlPlane) UpdateCloud(context.Context, string, int, *topology.Topology) error {
	return nil
}

func (f *fakeControlPlane) ReadState(context.Context, string, string, int) (cix.State, error) {
	return cix.StateRunning, nil
}

func (f *fakeControlPlane) UpdateState(context.Context, string, string, int, cix.State) error {
	return nil
}

func (f *fakeControlPlane) ReadProject(_ context.Context, _ string, id int) (*cix.Project, error) {
	return &cix.Project{ID: id}, nil
}

func (f *fakeControlPlane) ListVMs(context.Context, string, cix.VMFilter) ([]cix.VM, error) {
	return nil, nil
}

func (f *fakeControlPlane) ReadRouter(context.Context, string, int) (*cix.Router, error) {
	return &cix.Router{}, nil
}

// scriptedPrompter answers selections in order and records what it was offered
type scriptedPrompter struct {
	answers []int
	offered [][]string
}

func (p *scriptedPrompter) Select(_ string, items []string) (int, error) {
	p.offered = append(p.offered, items)
	if len(p.answers) == 0 {
		return 0, errStop
	}

	answer := p.answers[0]
	p.answers = p.answers[1:]

	return answer, nil
}

func (p *scriptedPrompter) Password(string) (string, error) {
	return "", errStop
}

func testConfigValue() *Config {
	cfg := DefaultConfig
	cfg.Admin = Credentials{Email: "admin@example.test", Password: "secret", APIKey: "key"}
	cfg.Robot = Credentials{Email: "robot@example.test", Password: "secret", APIKey: "key"}

	return &cfg
}

func TestRunOffersHeavyOnlyForEmptyRegions(t *testing.T) {
	for _, tt := range []struct {
		name     string
		projects []cix.Project
		want     []string
	}{
		{
			name: "empty region",
			want: []string{"Validator light", "Validator custom", "Validator heavy"},
		},
		{
			name:     "region with projects",
			projects: []cix.Project{{ID: 1, Name: "customer"}},
			want:     []string{"Validator light", "Validator custom"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeControlPlane{
				regions:  []cix.Address{{ID: 5, Name: "Cork"}, {ID: 7, Name: "Dublin"}},
				servers:  testServers,
				projects: tt.projects,
			}
			prompter := &scriptedPrompter{answers: []int{1}}
			out := &bytes.Buffer{}

			err := New(testConfigValue(), api, nil, prompter, out).Run(context.Background())
			require.ErrorIs(t, err, errStop)
			require.Len(t, prompter.offered, 2)
			require.Equal(t, []string{"5 Cork", "7 Dublin"}, prompter.offered[0])
			require.Equal(t, tt.want, prompter.offered[1])
			require.Contains(t, out.String(), "Servers in region #7")
		})
	}
}

func TestHeavyStopsWhenEveryKindFails(t *testing.T) {
	api := &fakeControlPlane{
		servers: testServers,
		images: []topology.Image{
			{ID: 3, DisplayName: "Ubuntu 22.04", AnswerFileName: "ubuntu"},
		},
	}
	out := &bytes.Buffer{}

	v := New(testConfigValue(), api, nil, &scriptedPrompter{}, out)
	require.NoError(t, v.Heavy(context.Background(), "7"))
	require.Contains(t, out.String(), "Server Stats")
	require.Contains(t, out.String(), "Server Utilisation")
}

func TestGenerate(t *testing.T) {
	api := &fakeControlPlane{
		images: []topology.Image{
			{ID: 3, DisplayName: "Ubuntu 22.04", AnswerFileName: "ubuntu", MultipleIPs: true},
			{ID: 7, DisplayName: "Windows Server 2022", AnswerFileName: "windows"},
		},
	}
	v := New(testConfigValue(), api, nil, &scriptedPrompter{}, &bytes.Buffer{})

	topo, err := v.Generate(context.Background(), ModeLight, "7", "")
	require.NoError(t, err)
	require.Len(t, topo.VMs, 2)
	require.Equal(t, "7", topo.Project.RegionID)

	topo, err = v.Generate(context.Background(), ModeHeavy, "7", "")
	require.NoError(t, err)
	require.Len(t, topo.VMs, 1)

	_, err = v.Generate(context.Background(), Mode("unknown"), "7", "")
	require.Error(t, err)
}

func TestInvalidRegion(t *testing.T) {
	api := &fakeControlPlane{}
	v := New(testConfigValue(), api, nil, &scriptedPrompter{}, &bytes.Buffer{})

	for _, region := range []string{"", "dublin", "0", "-3"} {
		t.Run(region, func(t *testing.T) {
			require.ErrorIs(t, v.Light(context.Background(), region), ErrInvalidRegion)
			require.ErrorIs(t, v.Heavy(context.Background(), region), ErrInvalidRegion)
			require.ErrorIs(t, v.Servers(context.Background(), region), ErrInvalidRegion)

			_, err := v.Generate(context.Background(), ModeLight, region, "")
			require.ErrorIs(t, err, ErrInvalidRegion)
		})
	}
	require.Empty(t, api.tokens)
}
