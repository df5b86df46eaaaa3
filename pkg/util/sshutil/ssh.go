// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package sshutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/appleboy/easyssh-proxy"
	"github.com/pkg/sftp"
)

var (
	ErrTimeout  = fmt.Errorf("timeout")
	ErrNoOutput = fmt.Errorf("no output")
)

type Remote struct {
	User string
	Host string
	Port uint
}

type Config struct {
	Remote Remote
	Proxy  *Remote

	Password   string
	SSHKey     string
	SSHKeyPath string
	SSHTimeout time.Duration

	ssh *easyssh.MakeConfig
}

func (c *Config) init() error {
	if c.SSHTimeout == 0 {
		c.SSHTimeout = 60 * time.Second
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = 22
	}
	if c.Remote.Host == "" {
		return fmt.Errorf("remote host is required") //nolint:goerr113
	}

	if c.ssh == nil {
		c.ssh = &easyssh.MakeConfig{
			User:     c.Remote.User,
			Server:   c.Remote.Host,
			Port:     fmt.Sprintf("%d", c.Remote.Port),
			Password: c.Password,
			Key:      c.SSHKey,
			KeyPath:  c.SSHKeyPath,
			Timeout:  c.SSHTimeout,
		}

		if c.Proxy != nil {
			c.ssh.Proxy = easyssh.DefaultConfig{
				User:     c.Proxy.User,
				Server:   c.Proxy.Host,
				Port:     fmt.Sprintf("%d", c.Proxy.Port),
				Password: c.Password,
				Key:      c.SSHKey,
				KeyPath:  c.SSHKeyPath,
				Timeout:  c.SSHTimeout,
			}
		}
	}

	return nil
}

// Wait runs the command every interval until it prints anything on stdout or stderr. Connection failures and
// empty output are retried until the context is done.
func (c *Config) Wait(ctx context.Context, cmd string, interval time.Duration) (string, string, error) {
	if err := c.init(); err != nil {
		return "", "", fmt.Errorf("initializing ssh config: %w", err)
	}

	for attempt := 1; ; attempt++ {
		outStr, errStr, err := c.RunContext(ctx, cmd)
		switch {
		case outStr != "" || errStr != "":
			return outStr, errStr, nil
		case ctx.Err() != nil:
			return "", "", fmt.Errorf("waiting for %s: %w", c.Remote.Host, ErrNoOutput)
		case err != nil:
			slog.Debug("SSH attempt failed", "host", c.Remote.Host, "attempt", attempt, "err", err)
		}

		select {
		case <-ctx.Done():
			return "", "", fmt.Errorf("waiting for %s: %w", c.Remote.Host, ErrNoOutput)
		case <-time.After(interval):
		}
	}
}

// RunContext runs the command and returns its stdout and stderr, the session is closed once the context is done
func (c *Config) RunContext(ctx context.Context, cmd string) (string, string, error) {
	if err := c.init(); err != nil {
		return "", "", fmt.Errorf("initializing ssh config: %w", err)
	}

	session, client, err := c.ssh.Connect()
	if err != nil {
		return "", "", fmt.Errorf("connecting: %w", err)
	}
	defer client.Close()
	defer session.Close()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Start(cmd); err != nil {
		return "", "", fmt.Errorf("starting command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()

		return "", "", fmt.Errorf("cancelled: %w", errors.Join(ctx.Err(), ErrTimeout))
	case err := <-done:
		if err != nil {
			return stdout.String(), stderr.String(), fmt.Errorf("running command: %w", err)
		}
	}

	return stdout.String(), stderr.String(), nil
}

// UploadWith writes the content to the remote path and makes it executable if requested
func UploadWith(ftp *sftp.Client, content io.Reader, remotePath string, executable bool) error {
	remote, err := ftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("creating remote file: %w", err)
	}
	defer remote.Close()

	if _, err := io.Copy(remote, content); err != nil {
		return fmt.Errorf("copying file: %w", err)
	}

	if executable {
		if err := remote.Chmod(0o755); err != nil {
			return fmt.Errorf("making remote file executable: %w", err)
		}
	}

	return nil
}
