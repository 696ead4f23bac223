package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName  = "orbit"
	defaultConfigFile     = "config.yaml"
	defaultCredentialFile = "credential.json"
)

func configDir() string {
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".orbit")
}

func DefaultConfigPath() string {
	if env := os.Getenv("ORBIT_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(configDir(), defaultConfigFile)
}

// DefaultCredentialPath is where the file token store keeps the credential.
func DefaultCredentialPath() string {
	return filepath.Join(configDir(), defaultCredentialFile)
}
