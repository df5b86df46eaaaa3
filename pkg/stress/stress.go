// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

// Package stress prepares a VM over SSH and measures it from the local host with nping and iperf3.
package stress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"text/template"
	"time"

	"dario.cat/mergo"
	"github.com/Masterminds/sprig/v3"
	"github.com/cloudcix/validator/pkg/util/sshutil"
	"github.com/melbahja/goph"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
	kmetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var ErrAborted = errors.New("aborted by user")

// PasswordFunc asks for the password of the VM, ErrAborted stops testing it
type PasswordFunc func(name, addr string) (string, error)

type Config struct {
	User       string           `json:"user,omitempty"`
	Packages   []string         `json:"packages,omitempty"`
	Services   []string         `json:"services,omitempty"`
	Ports      string           `json:"ports,omitempty"`
	Pings      int              `json:"pings,omitempty"`
	Streams    int              `json:"streams,omitempty"`
	Seconds    int              `json:"seconds,omitempty"`
	SSHTimeout kmetav1.Duration `json:"sshTimeout,omitempty"`
}

var DefaultConfig = Config{
	User:       "administrator",
	Packages:   []string{"nginx", "dnsmasq", "iperf3"},
	Services:   []string{"nginx", "dnsmasq -p 5353", "iperf3 -s -D"},
	Ports:      "22,5353,80",
	Pings:      3,
	Streams:    4,
	Seconds:    10,
	SSHTimeout: kmetav1.Duration{Duration: 30 * time.Second},
}

const scriptPath = "/tmp/validator-prepare.sh"

const scriptTmpl = `#!/bin/bash
set -e
echo {{ .Password | squote }} | sudo -S apt-get -y update
echo {{ .Password | squote }} | sudo -S apt-get -q install -y {{ .Packages | join " " }}
{{- range .Services }}
echo {{ $.Password | squote }} | sudo -S {{ . }}
{{- end }}
rm -f "$0"
`

type scriptData struct {
	Password string
	Packages []string
	Services []string
}

func renderScript(cfg Config, password string) (string, error) {
	tmpl, err := template.New("prepare").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(scriptTmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, scriptData{
		Password: password,
		Packages: cfg.Packages,
		Services: cfg.Services,
	}); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

type prepareFunc func(ctx context.Context, addr, password string) error

// Tester implements the bandwidth test of a single VM
type Tester struct {
	cfg      Config
	password PasswordFunc

	run     runFunc
	prepare prepareFunc
}

func NewTester(cfg Config, password PasswordFunc) (*Tester, error) {
	if err := mergo.Merge(&cfg, DefaultConfig); err != nil {
		return nil, fmt.Errorf("merging default config: %w", err)
	}
	if password == nil {
		return nil, fmt.Errorf("password prompt is required") //nolint:goerr113
	}

	t := &Tester{
		cfg:      cfg,
		password: password,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
		},
	}
	t.prepare = t.prepareOverSSH

	return t, nil
}

func (t *Tester) prepareOverSSH(ctx context.Context, addr, password string) error {
	client, err := goph.NewConn(&goph.Config{
		User:     t.cfg.User,
		Addr:     addr,
		Port:     22,
		Auth:     goph.Password(password),
		Timeout:  t.cfg.SSHTimeout.Duration,
		Callback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
	})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer client.Close()

	script, err := renderScript(t.cfg, password)
	if err != nil {
		return fmt.Errorf("rendering prepare script: %w", err)
	}

	ftp, err := client.NewSftp()
	if err != nil {
		return fmt.Errorf("creating sftp: %w", err)
	}
	defer ftp.Close()

	if err := sshutil.UploadWith(ftp, strings.NewReader(script), scriptPath, true); err != nil {
		return fmt.Errorf("uploading prepare script: %w", err)
	}

	out, err := client.RunContext(ctx, "bash "+scriptPath)
	if err != nil {
		return fmt.Errorf("running prepare script: %w: %s", err, string(out))
	}

	return nil
}

// Test prepares the VM and runs nping and iperf3 against it
func (t *Tester) Test(ctx context.Context, name, addr string) error {
	password, err := t.password(name, addr)
	if err != nil {
		return fmt.Errorf("asking password for %s: %w", name, err)
	}

	slog.Info("Preparing VM for bandwidth test", "name", name, "addr", addr)
	if err := t.prepare(ctx, addr, password); err != nil {
		return fmt.Errorf("preparing %s: %w", name, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		out, err := t.run(ctx, "nping", "-c", strconv.Itoa(t.cfg.Pings), "-p", t.cfg.Ports, addr)
		if err != nil {
			return fmt.Errorf("running nping: %w: %s", err, string(out))
		}
		slog.Debug("Nping result", "name", name, "out", string(out))

		return nil
	})

	g.Go(func() error {
		out, err := t.run(ctx, "iperf3", "-P", strconv.Itoa(t.cfg.Streams), "-J", "-t", strconv.Itoa(t.cfg.Seconds), "-c", addr)
		if err != nil {
			return fmt.Errorf("running iperf client: %w: %s", err, string(out))
		}

		report, err := parseIPerf3Report(out)
		if err != nil {
			return fmt.Errorf("parsing iperf report: %w", err)
		}

		slog.Info("IPerf3 result", "name", name,
			"sendSpeed", asMbps(report.End.SumSent.BitsPerSecond),
			"receiveSpeed", asMbps(report.End.SumReceived.BitsPerSecond),
			"sent", asMB(float64(report.End.SumSent.Bytes)),
			"received", asMB(float64(report.End.SumReceived.Bytes)),
		)

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("testing %s: %w", name, err)
	}

	return nil
}

type iperf3Report struct {
	End iperf3ReportEnd `json:"end"`
}

type iperf3ReportEnd struct {
	SumSent     iperf3ReportSum `json:"sum_sent"`
	SumReceived iperf3ReportSum `json:"sum_received"`
}

type iperf3ReportSum struct {
	Bytes         int64   `json:"bytes"`
	BitsPerSecond float64 `json:"bits_per_second"`
}

func parseIPerf3Report(data []byte) (*iperf3Report, error) {
	report := &iperf3Report{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("unmarshaling iperf3 report: %w", err)
	}

	return report, nil
}

func asMbps(in float64) string {
	return fmt.Sprintf("%.2f Mbps", in/1_000_000)
}

func asMB(in float64) string {
	return fmt.Sprintf("%.2f MB", in/1000/1000)
}
