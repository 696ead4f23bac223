package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// Credential is the single access credential of a local installation.
type Credential struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the credential carries an expiry at or before now.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func (c *Credential) oauth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
	}
	if c.ExpiresAt != nil {
		tok.Expiry = *c.ExpiresAt
	}
	return tok
}

func credentialFromOAuth2(tok *oauth2.Token) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}
	return cred
}

// TokenStore holds at most one Credential. Save overwrites, Delete is idempotent,
// and Load returns ErrNoCredential when nothing is stored.
type TokenStore interface {
	Load() (*Credential, error)
	Save(cred *Credential) error
	Delete() error
}

type StorageMode string

const (
	StorageFile     StorageMode = "file"
	StorageKeychain StorageMode = "keychain"

	keyringService = "orbit"
	keyringAccount = "credential"
)

// NewTokenStore returns the backend for mode. path is only used by the file backend.
func NewTokenStore(mode StorageMode, path string) (TokenStore, error) {
	switch mode {
	case "", StorageFile:
		if path == "" {
			return nil, errors.New("credential path is required")
		}
		return &FileTokenStore{Path: path}, nil
	case StorageKeychain:
		return &KeyringTokenStore{Service: keyringService, Account: keyringAccount}, nil
	default:
		return nil, fmt.Errorf("unknown token storage %q (expected file or keychain)", mode)
	}
}

func encodeCredential(cred *Credential) ([]byte, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, errors.New("credential has no access token")
	}
	content, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential: %w", err)
	}
	return content, nil
}

func decodeCredential(content []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(content, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse credential: %w", err)
	}
	if cred.AccessToken == "" {
		return nil, ErrNoCredential
	}
	return &cred, nil
}

// FileTokenStore keeps the credential as a JSON file readable only by the owner.
type FileTokenStore struct {
	Path string
}

func (s *FileTokenStore) Load() (*Credential, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	return decodeCredential(content)
}

// Save writes through a temp file and a rename so a crash never leaves a torn credential.
func (s *FileTokenStore) Save(cred *Credential) error {
	content, err := encodeCredential(cred)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create credential file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credential permissions: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace credential: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Delete() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// KeyringTokenStore keeps the credential JSON in the OS keychain.
type KeyringTokenStore struct {
	Service string
	Account string
}

func (s *KeyringTokenStore) Load() (*Credential, error) {
	secret, err := keyring.Get(s.Service, s.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to read keychain: %w", err)
	}
	return decodeCredential([]byte(secret))
}

func (s *KeyringTokenStore) Save(cred *Credential) error {
	content, err := encodeCredential(cred)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.Service, s.Account, string(content)); err != nil {
		return fmt.Errorf("failed to write keychain: %w", err)
	}
	return nil
}

func (s *KeyringTokenStore) Delete() error {
	if err := keyring.Delete(s.Service, s.Account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keychain entry: %w", err)
	}
	return nil
}
