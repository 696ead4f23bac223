package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/auth"
)

// Client talks to orbit-server's REST API.
type Client struct {
	baseURL   string
	token     string
	http      *resty.Client
	userAgent string
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{userAgent: "orbit"}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == "" {
		return nil, errors.New("server is required")
	}
	if c.http == nil {
		hc, err := auth.NewHTTPClient("", false)
		if err != nil {
			return nil, err
		}
		c.http = hc
	}
	return c, nil
}

func WithServer(server string) Option {
	return func(c *Client) error {
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid server %q: scheme must be http or https", server)
		}
		c.baseURL = strings.TrimRight(parsed.String(), "/")
		return nil
	}
}

func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

// WithHTTPClient shares a resty client, typically the one the auth flow uses.
func WithHTTPClient(hc *resty.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.http = hc
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		hc, err := auth.NewHTTPClient(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		c.http = hc
		return nil
	}
}

// Server is the base URL requests are sent to.
func (c *Client) Server() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")
	if c.userAgent != "" {
		req.SetHeader("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, c.baseURL+"/"+strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *resty.Response) error {
	var apiErr struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Details string `json:"details"`
	}
	body := resp.Body()
	if len(body) > 0 {
		_ = json.Unmarshal(body, &apiErr)
	}
	msg := strings.TrimSpace(apiErr.Error)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = resp.Status()
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Message: msg, Code: apiErr.Code, Details: apiErr.Details}
}

// HTTPError is a non-2xx answer from orbit-server. 401 and 404 unwrap to
// auth.ErrUnauthenticated and conversation.ErrNotFound.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Details    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return auth.ErrUnauthenticated
	case http.StatusNotFound:
		return conversation.ErrNotFound
	default:
		return nil
	}
}

type identity struct {
	User auth.User `json:"user"`
}

// LookupSession resolves an access token through GET /api/me/:access_token.
func (c *Client) LookupSession(ctx context.Context, accessToken string) (*auth.User, error) {
	if accessToken == "" {
		return nil, auth.ErrUnauthenticated
	}
	var id identity
	if err := c.do(ctx, http.MethodGet, "api/me/"+url.PathEscape(accessToken), nil, &id); err != nil {
		return nil, err
	}
	return &id.User, nil
}
