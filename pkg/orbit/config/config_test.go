package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbit", "config.yaml")
	cfg := DefaultConfig()
	cfg.Server = "https://orbit.example.com"
	cfg.Auth = Auth{
		Authority: "https://idp.example.com",
		ClientID:  "orbit-cli",
		Scopes:    []string{"openid", "email"},
	}
	cfg.Settings.TokenStorage = "keychain"
	require.NoError(t, Save(path, &cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: https://orbit.example.com\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://orbit.example.com", cfg.Server)
	assert.Equal(t, VersionV1, cfg.Version)
	assert.Equal(t, "table", cfg.Settings.OutputFormat)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "bad yaml", content: "server: [", errMsg: "failed to parse config"},
		{name: "bad version", content: "version: v2", errMsg: "unsupported config version"},
		{name: "relative server", content: "server: orbit.example.com", errMsg: "must be an absolute http(s) URL"},
		{name: "half endpoints", content: "auth:\n  token-endpoint: https://idp.example.com/token", errMsg: "must be set together"},
		{name: "bad output", content: "settings:\n  output-format: xml", errMsg: "output-format"},
		{name: "bad storage", content: "settings:\n  token-storage: vault", errMsg: "token-storage"},
		{name: "bad mode", content: "settings:\n  default-mode: turbo", errMsg: "default-mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSave_Nil(t *testing.T) {
	require.Error(t, Save(filepath.Join(t.TempDir(), "config.yaml"), nil))
}

func TestDefaultConfigPath(t *testing.T) {
	t.Run("uses ORBIT_CONFIG env var when set", func(t *testing.T) {
		t.Setenv("ORBIT_CONFIG", "/custom/path/config.yaml")
		assert.Equal(t, "/custom/path/config.yaml", DefaultConfigPath())
	})

	t.Run("uses user config dir otherwise", func(t *testing.T) {
		t.Setenv("ORBIT_CONFIG", "")
		result := DefaultConfigPath()
		assert.True(t, strings.HasSuffix(result, filepath.Join("orbit", "config.yaml")), result)
	})
}

func TestDefaultCredentialPath(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultCredentialPath(), filepath.Join("orbit", "credential.json")))
}
