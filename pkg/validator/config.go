// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package validator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dario.cat/mergo"
	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/project"
	"github.com/cloudcix/validator/pkg/stress"
	"github.com/cloudcix/validator/pkg/util/sshutil"
	"github.com/go-playground/validator/v10"
	kmetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

const (
	DefaultConfigFile = "validator.yaml"
	DefaultConfigsDir = "configs"
)

var ErrConfigNotExist = errors.New("does not exist")

type Config struct {
	API        APIConfig       `json:"api"`
	Admin      Credentials     `json:"admin"`
	Robot      Credentials     `json:"robot"`
	ConfigsDir string          `json:"configsDir,omitempty"`
	Timings    project.Timings `json:"timings,omitempty"`
	VPNCheck   bool            `json:"vpnCheck,omitempty"`
	VPNProxy   *ProxyConfig    `json:"vpnProxy,omitempty"`
	Bandwidth  stress.Config   `json:"bandwidth,omitempty"`
	Heavy      HeavyConfig     `json:"heavy,omitempty"`
	Ping       PingConfig      `json:"ping,omitempty"`
}

type APIConfig struct {
	URL     string           `json:"url" validate:"required,url"`
	Timeout kmetav1.Duration `json:"timeout,omitempty"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	APIKey   string `json:"apiKey" validate:"required"`
}

func (c Credentials) cix() cix.Credentials {
	return cix.Credentials{
		Email:    c.Email,
		Password: c.Password,
		APIKey:   c.APIKey,
	}
}

type ProxyConfig struct {
	User string `json:"user" validate:"required"`
	Host string `json:"host" validate:"required,hostname|ip"`
	Port uint   `json:"port,omitempty"`
}

func (p *ProxyConfig) remote() *sshutil.Remote {
	if p == nil {
		return nil
	}

	return &sshutil.Remote{User: p.User, Host: p.Host, Port: p.Port}
}

type HeavyConfig struct {
	CPU       int `json:"cpu,omitempty" validate:"min=1"`
	RAM       int `json:"ram,omitempty" validate:"min=1"`
	StorageGB int `json:"storageGB,omitempty" validate:"min=1"`
	// MaxProjects stops filling the region after this many projects, zero means until every project type fails
	MaxProjects int `json:"maxProjects,omitempty" validate:"min=0"`
}

type PingConfig struct {
	Parallel int64 `json:"parallel,omitempty" validate:"min=1"`
}

var DefaultConfig = Config{
	API: APIConfig{
		Timeout: kmetav1.Duration{Duration: cix.DefaultTimeout},
	},
	ConfigsDir: DefaultConfigsDir,
	Timings:    project.DefaultTimings,
	Bandwidth:  stress.DefaultConfig,
	Heavy: HeavyConfig{
		CPU:       1,
		RAM:       1,
		StorageGB: 50,
	},
	Ping: PingConfig{
		Parallel: 16,
	},
}

// LoadConfig reads the config file and fills in the defaults, it's validated separately after flag overrides
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config %q: %w", path, ErrConfigNotExist)
		}

		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := mergo.Merge(cfg, DefaultConfig); err != nil {
		return nil, fmt.Errorf("merging default config: %w", err)
	}

	if !filepath.IsAbs(cfg.ConfigsDir) {
		cfg.ConfigsDir = filepath.Join(filepath.Dir(path), cfg.ConfigsDir)
	}

	return cfg, nil
}

func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	return nil
}

func (cfg *Config) clientConfig() cix.Config {
	return cix.Config{
		URL:     cfg.API.URL,
		Timeout: cfg.API.Timeout.Duration,
	}
}

// CustomDocuments lists the custom topology documents in the configs dir sorted by name
func (cfg *Config) CustomDocuments() ([]string, error) {
	entries, err := os.ReadDir(cfg.ConfigsDir)
	if err != nil {
		return nil, fmt.Errorf("reading configs dir: %w", err)
	}

	docs := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		docs = append(docs, entry.Name())
	}
	sort.Strings(docs)

	return docs, nil
}

func projectName(mode string, now time.Time) string {
	return fmt.Sprintf("validator-%s-%s", mode, now.Format("20060102-150405"))
}
