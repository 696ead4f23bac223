package cli

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orbit-cli/orbit/pkg/config"
)

// DefaultConfigPath is used when neither --config-path nor ORBIT_SERVER_CONFIG is set.
const DefaultConfigPath = "./config.yaml"

type Config struct {
	// Application flags
	Debug       bool
	EnableHTTP2 bool

	// Configuration flags
	ConfigPath string

	// Overrides for values in the configuration file. Empty means "keep".
	ListenAddress   string
	DatabaseDriver  string
	DatabaseURL     string
	FrontendURL     string
	CompletionModel string
	APIKey          string
	ShutdownTimeout string
}

// Parse reads the process flags.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		// the flag set has already printed the error and usage
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return cfg
}

// ParseArgs parses args with environment variable fallbacks for every flag.
func ParseArgs(args []string) (*Config, error) {
	config := &Config{}
	fs := flag.NewFlagSet("orbit-server", flag.ContinueOnError)
	// The pattern: fs.XxxVar(&variable, "flag-name", defaultValueOrEnvValue, "help text")
	fs.BoolVar(&config.Debug, "debug", getEnvBool("ORBIT_DEBUG", false), "Enable debug level logging")
	fs.BoolVar(&config.EnableHTTP2, "enable-http2", getEnvBool("ORBIT_ENABLE_HTTP2", false),
		"If set, HTTP/2 will be enabled for the TLS listener")

	fs.StringVar(&config.ConfigPath, "config-path", getEnvString("ORBIT_SERVER_CONFIG", DefaultConfigPath),
		"Path to the orbit-server configuration file")

	fs.StringVar(&config.ListenAddress, "listen-address", getEnvString("ORBIT_LISTEN_ADDRESS", ""),
		"The address the API server binds to (host:port)")
	fs.StringVar(&config.DatabaseDriver, "database-driver", getEnvString("ORBIT_DATABASE_DRIVER", ""),
		"Database driver: sqlite or postgres")
	fs.StringVar(&config.DatabaseURL, "database-url", getEnvString("DATABASE_URL", ""),
		"Database connection string")
	fs.StringVar(&config.FrontendURL, "frontend-url", getEnvString("ORBIT_FRONTEND_URL", ""),
		"Base URL of the web frontend that hosts the device verification page")
	fs.StringVar(&config.CompletionModel, "model", getEnvString("ORBIT_MODEL", ""),
		"Completion model name")
	fs.StringVar(&config.APIKey, "anthropic-api-key", getEnvString("ANTHROPIC_API_KEY", ""),
		"Anthropic API key")
	fs.StringVar(&config.ShutdownTimeout, "shutdown-timeout", getEnvString("ORBIT_SHUTDOWN_TIMEOUT", ""),
		"Graceful shutdown timeout (e.g., '10s')")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}

// Apply copies every non-empty override onto cfg.
func (c *Config) Apply(cfg *config.Config, log *zap.SugaredLogger) {
	if c.ListenAddress != "" {
		cfg.Server.ListenAddress = c.ListenAddress
	}
	if c.DatabaseDriver != "" {
		cfg.Database.Driver = c.DatabaseDriver
	}
	if c.DatabaseURL != "" {
		cfg.Database.DSN = c.DatabaseURL
	}
	if c.FrontendURL != "" {
		cfg.Frontend.BaseURL = c.FrontendURL
	}
	if c.CompletionModel != "" {
		cfg.Completion.Model = c.CompletionModel
	}
	if c.APIKey != "" {
		cfg.Completion.APIKey = c.APIKey
	}
	if c.ShutdownTimeout != "" {
		def, _ := cfg.ShutdownTimeout()
		d, err := parseDuration("shutdown-timeout", c.ShutdownTimeout, def)
		if err != nil && log != nil {
			log.Warn(err)
		}
		cfg.Server.ShutdownTimeout = d.String()
	}
}

func (c *Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		"debug", c.Debug,
		"enable_http2", c.EnableHTTP2,
		"config_path", c.ConfigPath,
		"listen_address", c.ListenAddress,
		"database_driver", c.DatabaseDriver,
		"database_url_set", c.DatabaseURL != "",
		"frontend_url", c.FrontendURL,
		"model", c.CompletionModel,
		"anthropic_api_key_set", c.APIKey != "",
		"shutdown_timeout", c.ShutdownTimeout,
	)
}

// DisableHTTP2 is used to configure TLS options to disable HTTP/2.
// This is important because HTTP/2 has known vulnerabilities (CVE-2023-44487, CVE-2024-3156).
func DisableHTTP2(c *tls.Config) {
	c.NextProtos = []string{"http/1.1"}
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	duration := def
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			duration = d
		} else {
			return duration, fmt.Errorf("invalid %s %q; using default %s: %w", name, value, def.String(), err)
		}
	}

	return duration, nil
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
