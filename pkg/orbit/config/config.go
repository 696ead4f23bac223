package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	DefaultServer = "http://localhost:3005"
)

type Config struct {
	Version  string   `yaml:"version"`
	Server   string   `yaml:"server,omitempty"`
	Auth     Auth     `yaml:"auth,omitempty"`
	Settings Settings `yaml:"settings,omitempty"`
}

// Auth says where the device grant runs. Leaving the endpoints empty uses
// discovery against Authority, or the server's own device routes.
type Auth struct {
	ClientID                    string   `yaml:"client-id,omitempty"`
	Authority                   string   `yaml:"authority,omitempty"`
	DeviceAuthorizationEndpoint string   `yaml:"device-authorization-endpoint,omitempty"`
	TokenEndpoint               string   `yaml:"token-endpoint,omitempty"`
	Scopes                      []string `yaml:"scopes,omitempty"`
	CAFile                      string   `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify       bool     `yaml:"insecure-skip-tls-verify,omitempty"`
}

type Settings struct {
	OutputFormat string `yaml:"output-format,omitempty"`
	TokenStorage string `yaml:"token-storage,omitempty"`
	DefaultMode  string `yaml:"default-mode,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Server:  DefaultServer,
		Settings: Settings{
			OutputFormat: "table",
			TokenStorage: "file",
			DefaultMode:  "chat",
		},
	}
}

// Load reads the config at path. A missing file yields the defaults, so a fresh
// install works without running any setup.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	cfg := DefaultConfig()
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) Validate() error {
	if c.Version != VersionV1 {
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
	if c.Server != "" {
		if err := validateURL("server", c.Server); err != nil {
			return err
		}
	}
	for name, value := range map[string]string{
		"auth.authority":                     c.Auth.Authority,
		"auth.device-authorization-endpoint": c.Auth.DeviceAuthorizationEndpoint,
		"auth.token-endpoint":                c.Auth.TokenEndpoint,
	} {
		if value == "" {
			continue
		}
		if err := validateURL(name, value); err != nil {
			return err
		}
	}
	if (c.Auth.DeviceAuthorizationEndpoint == "") != (c.Auth.TokenEndpoint == "") {
		return errors.New("auth.device-authorization-endpoint and auth.token-endpoint must be set together")
	}
	if f := c.Settings.OutputFormat; f != "" && !slices.Contains([]string{"table", "json", "yaml"}, f) {
		return fmt.Errorf("settings.output-format %q is not one of table, json, yaml", f)
	}
	if s := c.Settings.TokenStorage; s != "" && s != "file" && s != "keychain" {
		return fmt.Errorf("settings.token-storage %q is not one of file, keychain", s)
	}
	if m := c.Settings.DefaultMode; m != "" && !slices.Contains([]string{"chat", "tool", "agent"}, m) {
		return fmt.Errorf("settings.default-mode %q is not one of chat, tool, agent", m)
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", field, raw)
	}
	return nil
}
