// Package config loads the balancer's static configuration and, separately,
// the secrets used by the administrative channel.
//
// Configuration is read once at process start. Node addresses, names and
// administrability cannot change without a restart.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/llmbalancer/internal/cluster"
)

// Environment variables consulted by Load and LoadSecrets.
const (
	EnvConfigFile  = "LB_CONFIG"
	EnvSecretsFile = "LB_SECRETS_FILE"
	EnvListen      = "LB_LISTEN"
	EnvLogLevel    = "LB_LOG_LEVEL"
)

const (
	DefaultConfigFile  = "balancer.yaml"
	DefaultSecretsFile = "/etc/llmbalancer/secrets.yaml"
)

// NodeConfig is one entry of the nodes list.
type NodeConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	Administrable bool   `yaml:"administrable"`
	AdminHost     string `yaml:"admin_host"`
}

// RateLimit configures the token bucket in front of inference routes.
// A non-positive RPS disables limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Config is the balancer's static configuration.
type Config struct {
	Listen        string        `yaml:"listen"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	ShortTimeout  time.Duration `yaml:"short_timeout"`
	LongTimeout   time.Duration `yaml:"long_timeout"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	Nodes         []NodeConfig  `yaml:"nodes"`
}

// Default returns the configuration used when no config file exists: the
// two-node home cluster on the 192.168.100.0/24 link.
func Default() Config {
	return Config{
		Listen:        ":8000",
		ProbeInterval: 5 * time.Second,
		ProbeTimeout:  2 * time.Second,
		ShortTimeout:  5 * time.Second,
		LongTimeout:   300 * time.Second,
		RateLimit:     RateLimit{RPS: 0, Burst: 0},
		LogLevel:      "info",
		LogFormat:     "text",
		Nodes: []NodeConfig{
			{ID: "node-a", Name: "Node A (Primary)", URL: "http://192.168.100.1:11434"},
			{ID: "node-b", Name: "Node B (Secondary)", URL: "http://192.168.100.2:11434"},
		},
	}
}

// Load reads the YAML file named by LB_CONFIG (or balancer.yaml), layering it
// over Default, then applies environment overrides and validates the result.
// A missing file is not an error.
func Load() (Config, error) {
	return LoadFile(getenv(EnvConfigFile, DefaultConfigFile))
}

// LoadFile is Load with an explicit path.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// A nodes list in the file replaces the default list wholesale.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.Listen = getenv(EnvListen, cfg.Listen)
	cfg.LogLevel = getenv(EnvLogLevel, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can start a balancer.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"probe_interval", c.ProbeInterval},
		{"probe_timeout", c.ProbeTimeout},
		{"short_timeout", c.ShortTimeout},
		{"long_timeout", c.LongTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.value)
		}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}

	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.ID == "" {
			return fmt.Errorf("nodes[%d]: id is required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("nodes[%d]: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = true

		u, err := url.Parse(n.URL)
		if err != nil {
			return fmt.Errorf("node %s: invalid url %q: %w", n.ID, n.URL, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("node %s: url %q must be an absolute http(s) url", n.ID, n.URL)
		}
	}
	return nil
}

// ClusterNodes converts the nodes list to cluster.Node values in order.
// Names default to the ID; admin hosts default to the URL host on port 22.
func (c Config) ClusterNodes() []cluster.Node {
	out := make([]cluster.Node, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		node := cluster.Node{
			ID:            n.ID,
			Name:          n.Name,
			URL:           n.URL,
			Administrable: n.Administrable,
			AdminHost:     n.AdminHost,
		}
		if node.Name == "" {
			node.Name = n.ID
		}
		if node.AdminHost == "" {
			if u, err := url.Parse(n.URL); err == nil {
				node.AdminHost = u.Hostname() + ":22"
			}
		}
		out = append(out, node)
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
