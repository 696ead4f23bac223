package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const refreshWindow = 2 * time.Minute

// TokenManager reads the stored credential and refreshes it shortly before it expires.
type TokenManager struct {
	Store TokenStore
	Clock Clock
}

func (m *TokenManager) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock.Now()
}

// Current returns the stored credential. ok is false when there is none.
func (m *TokenManager) Current() (*Credential, bool, error) {
	cred, err := m.Store.Load()
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return cred, true, nil
}

// Due reports whether cred expires within the refresh window.
func (m *TokenManager) Due(cred *Credential) bool {
	return cred.ExpiresAt != nil && cred.ExpiresAt.Sub(m.now()) <= refreshWindow
}

// RefreshIfNeeded returns the stored credential, exchanging its refresh token first
// when it expires within the refresh window. refreshed reports whether a new
// credential was saved. An HTTP client can be supplied with the oauth2.HTTPClient
// context key.
func (m *TokenManager) RefreshIfNeeded(ctx context.Context, oauthCfg oauth2.Config) (cred *Credential, refreshed bool, err error) {
	cred, ok, err := m.Current()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrUnauthenticated
	}
	if !m.Due(cred) {
		return cred, false, nil
	}
	if cred.RefreshToken == "" {
		if cred.Expired(m.now()) {
			return nil, false, ErrUnauthenticated
		}
		return cred, false, nil
	}
	// an empty access token forces the source to hit the token endpoint
	src := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken, TokenType: cred.TokenType})
	tok, err := src.Token()
	if err != nil {
		return cred, false, fmt.Errorf("failed to refresh token: %w", err)
	}
	next := credentialFromOAuth2(tok)
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	if err := m.Store.Save(next); err != nil {
		return next, true, err
	}
	return next, true, nil
}
