// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package validator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudcix/validator/pkg/project"
	"github.com/stretchr/testify/require"
)

const testConfig = `
api:
  url: https://api.example.test
admin:
  email: admin@example.test
  password: secret
  apiKey: key
robot:
  email: robot@example.test
  password: secret
  apiKey: key
timings:
  ping:
    interval: 1s
    timeout: 30s
heavy:
  maxProjects: 3
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, DefaultConfigFile, testConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "https://api.example.test", cfg.API.URL)
	require.Equal(t, time.Second, cfg.Timings.Ping.Interval.Duration)
	require.Equal(t, 30*time.Second, cfg.Timings.Ping.Timeout.Duration)
	require.Equal(t, project.DefaultTimings.VMBuild, cfg.Timings.VMBuild)
	require.Equal(t, filepath.Join(dir, DefaultConfigsDir), cfg.ConfigsDir)
	require.Equal(t, 3, cfg.Heavy.MaxProjects)
	require.Equal(t, 1, cfg.Heavy.CPU)
	require.Equal(t, 50, cfg.Heavy.StorageGB)
	require.Equal(t, "administrator", cfg.Bandwidth.User)
	require.EqualValues(t, 16, cfg.Ping.Parallel)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, ErrConfigNotExist)

	_, err = LoadConfig(writeFile(t, dir, "unknown.yaml", "api:\n  url: https://x\nunknown: true\n"))
	require.ErrorContains(t, err, "unmarshalling config")

	cfg, err := LoadConfig(writeFile(t, dir, "invalid.yaml", "api:\n  url: not a url\n"))
	require.NoError(t, err)
	require.ErrorContains(t, cfg.Validate(), "validating config")
}

func TestCustomDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "")
	writeFile(t, dir, "a.yml", "")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o700))

	cfg := &Config{ConfigsDir: dir}
	docs, err := cfg.CustomDocuments()
	require.NoError(t, err)
	require.Equal(t, []string{"a.yml", "b.yaml"}, docs)
}
