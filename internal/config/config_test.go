package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Len(t, cfg.Nodes, 2)
	assert.Equal(t, ":8000", cfg.Listen)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "balancer.yaml", `
listen: ":9000"
probe_interval: 3s
long_timeout: 2m
rate_limit:
  rps: 10
  burst: 20
nodes:
  - id: pulsar
    name: Pulsar
    url: http://10.0.0.5:11434
  - id: pi
    url: http://10.0.0.6:11434
    administrable: true
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 3*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 2*time.Minute, cfg.LongTimeout)
	// Unset fields keep their defaults
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 5*time.Second, cfg.ShortTimeout)
	assert.Equal(t, RateLimit{RPS: 10, Burst: 20}, cfg.RateLimit)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, "pulsar", cfg.Nodes[0].ID)
	assert.True(t, cfg.Nodes[1].Administrable)
}

func TestLoadFileEnvOverrides(t *testing.T) {
	t.Setenv(EnvListen, ":7777")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := writeFile(t, "custom.yaml", "listen: \":9100\"\n")
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen)
}

func TestLoadFileInvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "listen: [\n")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty listen", mutate: func(c *Config) { c.Listen = "" }, wantErr: "listen"},
		{name: "no nodes", mutate: func(c *Config) { c.Nodes = nil }, wantErr: "at least one node"},
		{name: "missing id", mutate: func(c *Config) { c.Nodes[0].ID = "" }, wantErr: "id is required"},
		{name: "duplicate id", mutate: func(c *Config) { c.Nodes[1].ID = c.Nodes[0].ID }, wantErr: "duplicate"},
		{name: "relative url", mutate: func(c *Config) { c.Nodes[0].URL = "localhost:11434" }, wantErr: "absolute"},
		{name: "zero interval", mutate: func(c *Config) { c.ProbeInterval = 0 }, wantErr: "probe_interval"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsFirstBadDuration(t *testing.T) {
	cfg := Default()
	cfg.ProbeTimeout = 0
	cfg.LongTimeout = -time.Second
	cfg.ShortTimeout = 0

	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, "probe_timeout must be positive, got 0s", err.Error())
	}
}

func TestClusterNodes(t *testing.T) {
	cfg := Default()
	cfg.Nodes = []NodeConfig{
		{ID: "a", URL: "http://10.0.0.1:11434"},
		{ID: "b", Name: "Bee", URL: "http://10.0.0.2:11434", Administrable: true, AdminHost: "10.0.0.2:2222"},
	}

	nodes := cfg.ClusterNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "a", nodes[0].Name)
	assert.Equal(t, "10.0.0.1:22", nodes[0].AdminHost)
	assert.False(t, nodes[0].Administrable)
	assert.Equal(t, "Bee", nodes[1].Name)
	assert.Equal(t, "10.0.0.2:2222", nodes[1].AdminHost)
	assert.True(t, nodes[1].Administrable)
}

func TestLoadSecretsFile(t *testing.T) {
	path := writeFile(t, "secrets.yaml", `
admin_token: s3cret-token
nodes:
  pi:
    user: pi
    password: hunter2
  nokey:
    user: root
`)

	s, err := LoadSecretsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-token", s.AdminToken)

	creds, ok := s.Credentials("pi")
	require.True(t, ok)
	assert.Equal(t, "pi", creds.User)

	_, ok = s.Credentials("nokey")
	assert.False(t, ok, "user without password or key is unusable")
	_, ok = s.Credentials("absent")
	assert.False(t, ok)
}

func TestLoadSecretsMissingFile(t *testing.T) {
	t.Setenv(EnvSecretsFile, filepath.Join(t.TempDir(), "nope.yaml"))

	s, err := LoadSecrets()
	require.NoError(t, err)
	assert.Empty(t, s.AdminToken)
	_, ok := s.Credentials("pi")
	assert.False(t, ok)
}

func TestSecretsNeverPrinted(t *testing.T) {
	s := &Secrets{
		AdminToken: "tok-123",
		Nodes:      map[string]NodeCredentials{"pi": {User: "pi", Password: "hunter2"}},
	}
	for _, out := range []string{
		fmt.Sprint(s),
		fmt.Sprintf("%v", s),
		fmt.Sprintf("%+v", s),
		fmt.Sprintf("%#v", s),
		fmt.Sprint(s.Nodes["pi"]),
	} {
		assert.NotContains(t, out, "tok-123")
		assert.NotContains(t, out, "hunter2")
	}

	var nilSecrets *Secrets
	_, ok := nilSecrets.Credentials("pi")
	assert.False(t, ok)
}

func TestLoadSecretsInvalidYAMLHidesContent(t *testing.T) {
	path := writeFile(t, "secrets.yaml", "admin_token: [hunter2\n")
	_, err := LoadSecretsFile(path)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}
