// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package cix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cloudcix/validator/pkg/topology"
)

const (
	KindCloud         = "cloud"
	KindProject       = "project"
	KindVirtualRouter = "virtual_router"
	KindVM            = "vm"
	KindRouter        = "router"
	KindImage         = "image"
	KindServer        = "server"
	KindAddress       = "address"
	KindAsset         = "asset"
	KindToken         = "token"
)

func iaas(kind string, id ...int) string {
	path := "iaas/" + kind
	for _, v := range id {
		path += "/" + strconv.Itoa(v)
	}

	return path
}

func itoa(id int) string {
	return strconv.Itoa(id)
}

// Token exchanges credentials for an access token
func (c *Client) Token(ctx context.Context, creds Credentials) (string, error) {
	out := struct {
		Token string `json:"token"`
	}{}

	if err := c.do(ctx, call{
		op:     "create",
		kind:   KindToken,
		method: http.MethodPost,
		path:   "membership/token",
		body:   creds,
		status: http.StatusCreated,
		out:    &out,
	}); err != nil {
		return "", err
	}

	if out.Token == "" {
		return "", fmt.Errorf("create token: empty token in response") //nolint:goerr113
	}

	return out.Token, nil
}

// ListRegions returns the addresses that are cloud regions
func (c *Client) ListRegions(ctx context.Context, token string) ([]Address, error) {
	out := envelope[[]Address]{}

	if err := c.do(ctx, call{
		op:     "list",
		kind:   KindAddress,
		method: http.MethodGet,
		path:   "membership/address",
		query:  url.Values{"search[cloud_region]": {"true"}, "order": {"id"}},
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return nil, err
	}

	return out.Content, nil
}

func (c *Client) ListServers(ctx context.Context, token string, region string, enabledOnly bool) ([]Server, error) {
	query := url.Values{"search[region_id]": {region}}
	if enabledOnly {
		query.Set("search[enabled]", "true")
	}

	out := envelope[[]Server]{}

	if err := c.do(ctx, call{
		op:     "list",
		kind:   KindServer,
		method: http.MethodGet,
		path:   iaas(KindServer),
		query:  query,
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return nil, err
	}

	return out.Content, nil
}

func (c *Client) ListAssets(ctx context.Context, token string, region string, tags []string) ([]Asset, error) {
	out := envelope[[]Asset]{}

	if err := c.do(ctx, call{
		op:     "list",
		kind:   KindAsset,
		method: http.MethodGet,
		path:   "asset/asset",
		query:  url.Values{"assetTag__in": tags, "idAddress": {region}},
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return nil, err
	}

	return out.Content, nil
}

// ListOpenProjects returns the projects that aren't closed
func (c *Client) ListOpenProjects(ctx context.Context, token string) ([]Project, error) {
	out := envelope[[]Project]{}

	if err := c.do(ctx, call{
		op:     "list",
		kind:   KindProject,
		method: http.MethodGet,
		path:   iaas(KindProject),
		query:  url.Values{"search[closed]": {"false"}},
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return nil, err
	}

	return out.Content, nil
}

// ListImages returns the enabled images of the region. The known transient internal error is reported as
// topology.ErrCatalogUnavailable.
func (c *Client) ListImages(ctx context.Context, token string, region string) ([]topology.Image, error) {
	out := envelope[[]topology.Image]{}

	err := c.do(ctx, call{
		op:     "list",
		kind:   KindImage,
		method: http.MethodGet,
		path:   iaas(KindImage),
		query: url.Values{
			"search[regions__region]": {region},
			"search[enabled]":         {"true"},
			"order":                   {"name"},
		},
		token:      token,
		status:     http.StatusOK,
		out:        &out,
		statusErrs: map[int]error{http.StatusInternalServerError: ErrNotAvailable},
	})
	if errors.Is(err, ErrNotAvailable) {
		return nil, fmt.Errorf("%w: %w", topology.ErrCatalogUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	return out.Content, nil
}

// CreateCloud submits the topology. The known internal error is reported as ErrNotAvailable.
func (c *Client) CreateCloud(ctx context.Context, token string, topo *topology.Topology) (*Cloud, error) {
	out := envelope[Cloud]{}

	if err := c.do(ctx, call{
		op:         "create",
		kind:       KindCloud,
		method:     http.MethodPost,
		path:       iaas(KindCloud),
		token:      token,
		body:       topo,
		status:     http.StatusCreated,
		out:        &out,
		statusErrs: map[int]error{http.StatusInternalServerError: ErrNotAvailable},
	}); err != nil {
		return nil, err
	}

	return &out.Content, nil
}

// UpdateCloud resubmits the whole topology of an existing project
func (c *Client) UpdateCloud(ctx context.Context, token string, projectID int, topo *topology.Topology) error {
	return c.do(ctx, call{
		op:     "update",
		kind:   KindCloud,
		id:     itoa(projectID),
		method: http.MethodPut,
		path:   iaas(KindCloud, projectID),
		token:  token,
		body:   topo,
		status: http.StatusOK,
	})
}

// ReadState reads the state of a virtual router, VM or project
func (c *Client) ReadState(ctx context.Context, token string, kind string, id int) (State, error) {
	out := envelope[struct {
		State State `json:"state"`
	}]{}

	if err := c.do(ctx, call{
		op:     "read",
		kind:   kind,
		id:     itoa(id),
		method: http.MethodGet,
		path:   iaas(kind, id),
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return 0, err
	}

	return out.Content.State, nil
}

// UpdateState requests a state transition of a VM or project
func (c *Client) UpdateState(ctx context.Context, token string, kind string, id int, state State) error {
	return c.do(ctx, call{
		op:     "partial_update",
		kind:   kind,
		id:     itoa(id),
		method: http.MethodPatch,
		path:   iaas(kind, id),
		token:  token,
		body:   map[string]State{"state": state},
		status: http.StatusOK,
	})
}

func (c *Client) ReadProject(ctx context.Context, token string, id int) (*Project, error) {
	out := envelope[Project]{}

	if err := c.do(ctx, call{
		op:     "read",
		kind:   KindProject,
		id:     itoa(id),
		method: http.MethodGet,
		path:   iaas(KindProject, id),
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return nil, err
	}

	return &out.Content, nil
}

func (c *Client) ReadRouter(ctx context.Context, token string, id int) (*Router, error) {
	out := envelope[Router]{}

	if err := c.do(ctx, call{
		op:     "read",
		kind:   KindRouter,
		id:     itoa(id),
		method: http.MethodGet,
		path:   iaas(KindRouter, id),
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return nil, err
	}

	return &out.Content, nil
}

type VMFilter struct {
	ProjectID    int
	ExcludeIDs   []int
	ExcludeState State
}

func (f VMFilter) query() url.Values {
	query := url.Values{}
	if f.ProjectID != 0 {
		query.Set("project_id", itoa(f.ProjectID))
	}
	for _, id := range f.ExcludeIDs {
		query.Add("exclude[id__in]", itoa(id))
	}
	if f.ExcludeState != 0 {
		query.Set("exclude[state]", itoa(int(f.ExcludeState)))
	}

	return query
}

func (c *Client) ListVMs(ctx context.Context, token string, filter VMFilter) ([]VM, error) {
	out := envelope[[]VM]{}

	if err := c.do(ctx, call{
		op:     "list",
		kind:   KindVM,
		method: http.MethodGet,
		path:   iaas(KindVM),
		query:  filter.query(),
		token:  token,
		status: http.StatusOK,
		out:    &out,
	}); err != nil {
		return nil, err
	}

	return out.Content, nil
}
