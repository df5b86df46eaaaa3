// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

// Package cix is a client for the subset of the control plane API used to provision and observe projects.
package cix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 60 * time.Second

	authHeader   = "X-Auth-Token"
	maxErrorBody = 4096
)

// Config is passed explicitly to the client, nothing is read from the process environment
type Config struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("api url is required") //nolint:goerr113
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported api url scheme %q", base.Scheme) //nolint:goerr113
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base: base,
		http: httpClient,
	}, nil
}

// call is a single API request, status is the only accepted response status
type call struct {
	op     string
	kind   string
	id     string
	method string
	path   string
	query  url.Values
	token  string
	body   any
	status int
	out    any

	// statusErrs maps response statuses to error classes instead of the default one
	statusErrs map[int]error
}

func (c *call) fail(class error, status int, body string, cause error) *RemoteError {
	return &RemoteError{
		Op:     c.op,
		Kind:   c.kind,
		ID:     c.id,
		Status: status,
		Body:   body,
		class:  class,
		cause:  cause,
	}
}

func (c *Client) do(ctx context.Context, req call) error {
	class := ErrRemoteRejected
	if req.method == http.MethodGet {
		class = ErrRemoteUnavailable
	}

	target := c.base.JoinPath(req.path)
	if !strings.HasSuffix(target.Path, "/") {
		target.Path += "/"
	}
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshalling %s %s request: %w", req.op, req.kind, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set(authHeader, req.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s %s: %w", req.op, req.kind, err)
		}

		return req.fail(class, 0, "", err)
	}
	defer resp.Body.Close()

	slog.Debug("API call", "method", req.method, "path", target.Path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode != req.status {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if statusClass, ok := req.statusErrs[resp.StatusCode]; ok {
			class = statusClass
		}

		return req.fail(class, resp.StatusCode, strings.TrimSpace(string(data)), nil)
	}

	if req.out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
		return req.fail(class, resp.StatusCode, "", fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}
