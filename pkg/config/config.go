package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultSessionCookieName = "orbit.session_token"
)

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For headers
	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdownTimeout"`
}

type Frontend struct {
	// BaseURL is the web client that hosts the device approval page.
	BaseURL string `yaml:"baseURL"`
	// AllowedOrigins are passed to the CORS middleware. Credentials are allowed for these origins.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

type Completion struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"apiKey"`
	APIKeyEnv string `yaml:"apiKeyEnv"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"maxTokens"`
	BaseURL   string `yaml:"baseURL"`
	// SystemPrompts overrides the built-in prompt per conversation mode (chat, tool, agent).
	SystemPrompts map[string]string `yaml:"systemPrompts"`
	// Timeout bounds a single completion call (e.g. "60s").
	Timeout string `yaml:"timeout"`
}

type Auth struct {
	SessionCookieName string `yaml:"sessionCookieName"`
}

type RateLimit struct {
	// TokenLookupRate is requests per second per client IP on /api/me/:access_token.
	TokenLookupRate  float64 `yaml:"tokenLookupRate"`
	TokenLookupBurst int     `yaml:"tokenLookupBurst"`
}

type Config struct {
	Server     Server     `yaml:"server"`
	Frontend   Frontend   `yaml:"frontend"`
	Database   Database   `yaml:"database"`
	Completion Completion `yaml:"completion"`
	Auth       Auth       `yaml:"auth"`
	RateLimit  RateLimit  `yaml:"rateLimit"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Server: Server{
			ListenAddress:   ":3005",
			ShutdownTimeout: "10s",
		},
		Frontend: Frontend{
			BaseURL:        "http://localhost:3000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: Database{
			Driver:       DriverSQLite,
			DSN:          "file:orbit.db?_foreign_keys=on",
			MaxOpenConns: 1,
		},
		Completion: Completion{
			Provider:  "anthropic",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
			Timeout:   "60s",
		},
		Auth: Auth{
			SessionCookieName: DefaultSessionCookieName,
		},
		RateLimit: RateLimit{
			TokenLookupRate:  5,
			TokenLookupBurst: 10,
		},
	}
}

// Load reads the orbit-server configuration from a YAML file. Values missing
// from the file keep their defaults. A missing file at the default path is
// not an error; a missing file at an explicit path is.
func Load(configPath ...string) (Config, error) {
	cfg := Defaults()

	path := "./config.yaml"
	explicit := false
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
		explicit = true
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("trying to open orbit config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn is required")
	}
	if c.Completion.MaxTokens < 0 {
		return errors.New("completion maxTokens must not be negative")
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return err
	}
	if _, err := c.CompletionTimeout(); err != nil {
		return err
	}
	return nil
}

func (c Config) ShutdownTimeout() (time.Duration, error) {
	return parseDuration("server.shutdownTimeout", c.Server.ShutdownTimeout, 10*time.Second)
}

func (c Config) CompletionTimeout() (time.Duration, error) {
	return parseDuration("completion.timeout", c.Completion.Timeout, 60*time.Second)
}

// SessionCookieName returns the configured cookie name or the default.
func (c Config) SessionCookieName() string {
	if c.Auth.SessionCookieName != "" {
		return c.Auth.SessionCookieName
	}
	return DefaultSessionCookieName
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}
