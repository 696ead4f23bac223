package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultClientID is the client registered for the CLI on orbit-server.
	DefaultClientID = "orbit-cli"

	deviceGrantType    = "urn:ietf:params:oauth:grant-type:device_code"
	defaultGrantExpiry = 30 * time.Minute
	noBrowserEnv       = "ORBIT_NO_BROWSER"
)

// DeviceGrant is the in-flight handshake. It is never persisted.
type DeviceGrant struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresAt               time.Time
	Interval                time.Duration
}

// User is the identity behind a credential, as reported by orbit-server.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// SessionLookup resolves an access token to its user. It returns
// ErrUnauthenticated when the server rejects the token.
type SessionLookup interface {
	LookupSession(ctx context.Context, accessToken string) (*User, error)
}

type DeviceConfig struct {
	ClientID  string
	Scopes    []string
	Endpoints Endpoints
}

// DeviceAuthClient runs the OAuth device authorization grant and owns the
// local credential through its TokenStore.
type DeviceAuthClient struct {
	cfg         DeviceConfig
	store       TokenStore
	http        *resty.Client
	clock       Clock
	out         io.Writer
	openBrowser func(string) error
	lookup      SessionLookup
	log         *zap.SugaredLogger
	interactive bool
}

type Option func(*DeviceAuthClient)

func WithClock(clock Clock) Option {
	return func(c *DeviceAuthClient) { c.clock = clock }
}

func WithOutput(w io.Writer) Option {
	return func(c *DeviceAuthClient) { c.out = w }
}

func WithHTTPClient(client *resty.Client) Option {
	return func(c *DeviceAuthClient) { c.http = client }
}

func WithSessionLookup(lookup SessionLookup) Option {
	return func(c *DeviceAuthClient) { c.lookup = lookup }
}

func WithBrowserOpener(open func(string) error) Option {
	return func(c *DeviceAuthClient) { c.openBrowser = open }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *DeviceAuthClient) { c.log = log }
}

// NonInteractive never opens a browser.
func NonInteractive() Option {
	return func(c *DeviceAuthClient) { c.interactive = false }
}

func NewDeviceAuthClient(cfg DeviceConfig, store TokenStore, opts ...Option) (*DeviceAuthClient, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Endpoints.DeviceAuthorization == "" || cfg.Endpoints.Token == "" {
		return nil, errors.New("device authorization and token endpoints are required")
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}
	c := &DeviceAuthClient{
		cfg:         cfg,
		store:       store,
		clock:       realClock{},
		out:         os.Stdout,
		openBrowser: openBrowser,
		log:         zap.NewNop().Sugar(),
		interactive: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		client, err := NewHTTPClient("", false)
		if err != nil {
			return nil, err
		}
		c.http = client
	}
	return c, nil
}

func (c *DeviceAuthClient) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.cfg.ClientID,
		Scopes:   c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: c.cfg.Endpoints.DeviceAuthorization,
			TokenURL:      c.cfg.Endpoints.Token,
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// OAuthConfig exposes the client registration for token refresh.
func (c *DeviceAuthClient) OAuthConfig() oauth2.Config {
	return *c.oauthConfig()
}

// HTTPContext returns ctx carrying the client's HTTP transport for oauth2 calls.
func (c *DeviceAuthClient) HTTPContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http.GetClient())
}

// StartDeviceFlow requests a device and user code pair.
func (c *DeviceAuthClient) StartDeviceFlow(ctx context.Context) (*DeviceGrant, error) {
	resp, err := c.oauthConfig().DeviceAuth(c.HTTPContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, serverErrorFrom(rerr)
		}
		return nil, &NetworkError{Op: "request device code", Err: err}
	}
	if resp.DeviceCode == "" || resp.UserCode == "" || resp.VerificationURI == "" {
		return nil, &ServerError{StatusCode: http.StatusOK, Code: "invalid_response", Description: "device code response is incomplete"}
	}

	// oauth2 anchors Expiry to the wall clock; re-anchor to ours
	ttl := defaultGrantExpiry
	if !resp.Expiry.IsZero() {
		ttl = time.Until(resp.Expiry).Round(time.Second)
	}
	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = minPollInterval
	}
	grant := &DeviceGrant{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		ExpiresAt:               c.clock.Now().Add(ttl),
		Interval:                interval,
	}
	c.log.Debugw("Device code issued", "verificationURI", grant.VerificationURI, "expiresAt", grant.ExpiresAt, "interval", grant.Interval)
	return grant, nil
}

func serverErrorFrom(rerr *oauth2.RetrieveError) *ServerError {
	serr := &ServerError{Code: rerr.ErrorCode, Description: rerr.ErrorDescription}
	if rerr.Response != nil {
		serr.StatusCode = rerr.Response.StatusCode
	}
	if serr.Code == "" {
		var body tokenResponse
		if json.Unmarshal(rerr.Body, &body) == nil {
			serr.Code = body.Error
			serr.Description = body.ErrorDescription
		}
	}
	if serr.Code == "" && serr.Description == "" {
		serr.Description = strings.TrimSpace(string(rerr.Body))
	}
	return serr
}

// DisplayInstructions tells the user where to approve the grant and opens a
// browser there when the session is interactive.
func (c *DeviceAuthClient) DisplayInstructions(grant *DeviceGrant) {
	_, _ = fmt.Fprintf(c.out, "Visit %s and enter code: %s\n", grant.VerificationURI, grant.UserCode)
	if !c.interactive || strings.EqualFold(os.Getenv(noBrowserEnv), "true") {
		return
	}
	target := grant.VerificationURIComplete
	if target == "" {
		target = grant.VerificationURI
	}
	if err := c.openBrowser(target); err != nil {
		c.log.Debugw("Could not open browser", "error", err)
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// PollForToken waits out the grant's interval before every poll and stops at the
// first terminal answer. No poll is sent at or after the grant's expiry. On
// success the credential replaces whatever the store held.
func (c *DeviceAuthClient) PollForToken(ctx context.Context, grant *DeviceGrant) (*Credential, error) {
	interval := grant.Interval
	if interval <= 0 {
		interval = minPollInterval
	}
	ceiling := intervalCeiling(interval)
	state := StateRequested

	for {
		if !c.clock.Now().Add(interval).Before(grant.ExpiresAt) {
			if err := c.clock.Sleep(ctx, grant.ExpiresAt.Sub(c.clock.Now())); err != nil {
				return nil, err
			}
			c.log.Debugw("Device code expired before approval", "state", state)
			return nil, ErrGrantExpired
		}
		if err := c.clock.Sleep(ctx, interval); err != nil {
			return nil, err
		}

		outcome, cred, err := c.poll(ctx, grant)
		if err != nil {
			return nil, err
		}
		var action Action
		state, action = Transition(state, outcome)
		c.log.Debugw("Polled token endpoint", "state", state, "interval", interval)

		switch action {
		case ActionSucceed:
			if err := c.store.Save(cred); err != nil {
				return nil, fmt.Errorf("failed to save credential: %w", err)
			}
			return cred, nil
		case ActionFail:
			if state == StateDenied {
				return nil, ErrAuthorizationDenied
			}
			return nil, ErrGrantExpired
		}
		if state == StateSlowDown {
			interval = nextInterval(interval, ceiling)
		}
	}
}

func (c *DeviceAuthClient) poll(ctx context.Context, grant *DeviceGrant) (Outcome, *Credential, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":  deviceGrantType,
			"device_code": grant.DeviceCode,
			"client_id":   c.cfg.ClientID,
		}).
		Post(c.cfg.Endpoints.Token)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, &NetworkError{Op: "poll token endpoint", Err: err}
	}

	var payload tokenResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return 0, nil, &ServerError{
			StatusCode:  resp.StatusCode(),
			Code:        "invalid_response",
			Description: fmt.Sprintf("token endpoint returned non-JSON body: %v", err),
		}
	}

	switch payload.Error {
	case "":
		if resp.IsError() || payload.AccessToken == "" {
			return 0, nil, &ServerError{StatusCode: resp.StatusCode(), Code: "invalid_response", Description: "token response has no access token"}
		}
		return OutcomeApproved, c.credentialFrom(payload), nil
	case "authorization_pending":
		return OutcomePending, nil, nil
	case "slow_down":
		return OutcomeSlowDown, nil, nil
	case "access_denied":
		return OutcomeDenied, nil, nil
	case "expired_token":
		return OutcomeExpired, nil, nil
	default:
		return 0, nil, &ServerError{StatusCode: resp.StatusCode(), Code: payload.Error, Description: payload.ErrorDescription}
	}
}

func (c *DeviceAuthClient) credentialFrom(payload tokenResponse) *Credential {
	cred := &Credential{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
	}
	if payload.ExpiresIn > 0 {
		expiry := c.clock.Now().Add(time.Duration(payload.ExpiresIn) * time.Second).UTC()
		cred.ExpiresAt = &expiry
	}
	return cred
}

// Login runs the whole handshake.
func (c *DeviceAuthClient) Login(ctx context.Context) (*Credential, error) {
	grant, err := c.StartDeviceFlow(ctx)
	if err != nil {
		return nil, err
	}
	c.DisplayInstructions(grant)
	return c.PollForToken(ctx, grant)
}

// Logout forgets the credential. It succeeds when there is nothing to forget.
func (c *DeviceAuthClient) Logout() error {
	return c.store.Delete()
}

// WhoAmI asks the server who the stored credential belongs to.
func (c *DeviceAuthClient) WhoAmI(ctx context.Context) (*User, error) {
	cred, err := c.store.Load()
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if c.lookup == nil {
		return nil, errors.New("no session lookup configured")
	}
	return c.lookup.LookupSession(ctx, cred.AccessToken)
}
