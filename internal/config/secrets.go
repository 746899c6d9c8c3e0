package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeCredentials authenticate the administrative connection to one node.
// Either Password or PrivateKeyFile must be set.
type NodeCredentials struct {
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	PrivateKeyFile string `yaml:"private_key_file"`
	KnownHostsFile string `yaml:"known_hosts_file"`
	Command        string `yaml:"command"`
}

// Secrets is the one configuration boundary that holds credentials. It is
// loaded from its own file, never from the main config.
type Secrets struct {
	AdminToken string                     `yaml:"admin_token"`
	Nodes      map[string]NodeCredentials `yaml:"nodes"`
}

// LoadSecrets reads the file named by LB_SECRETS_FILE. A missing file
// yields empty Secrets; administrative actions then fail cleanly.
func LoadSecrets() (*Secrets, error) {
	return LoadSecretsFile(getenv(EnvSecretsFile, DefaultSecretsFile))
}

// LoadSecretsFile is LoadSecrets with an explicit path.
func LoadSecretsFile(path string) (*Secrets, error) {
	s := &Secrets{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		// The parse error may quote file contents.
		return nil, fmt.Errorf("parse secrets file %s: invalid yaml", path)
	}
	return s, nil
}

// Credentials returns the credentials for nodeID, if any are usable.
func (s *Secrets) Credentials(nodeID string) (NodeCredentials, bool) {
	if s == nil {
		return NodeCredentials{}, false
	}
	c, ok := s.Nodes[nodeID]
	if !ok || c.User == "" || (c.Password == "" && c.PrivateKeyFile == "") {
		return NodeCredentials{}, false
	}
	return c, true
}

// String redacts every credential so Secrets can be logged safely.
func (s *Secrets) String() string {
	if s == nil {
		return "secrets(none)"
	}
	token := "unset"
	if s.AdminToken != "" {
		token = "set"
	}
	return fmt.Sprintf("secrets(admin_token=%s, nodes=%d)", token, len(s.Nodes))
}

// GoString keeps %#v from printing fields.
func (s *Secrets) GoString() string { return s.String() }

func (c NodeCredentials) String() string {
	return fmt.Sprintf("credentials(user=%s)", c.User)
}
