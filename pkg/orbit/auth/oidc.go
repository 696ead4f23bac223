package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-resty/resty/v2"
)

const (
	defaultDeviceCodePath  = "/api/auth/device/code"
	defaultDeviceTokenPath = "/api/auth/device/token"
	defaultHTTPTimeout     = 30 * time.Second
)

// Endpoints are the two authorization-server URLs the device grant talks to.
type Endpoints struct {
	DeviceAuthorization string
	Token               string
}

// EndpointConfig is what the CLI knows about where to authenticate.
type EndpointConfig struct {
	Server                      string
	Authority                   string
	DeviceAuthorizationEndpoint string
	TokenEndpoint               string
}

// ResolveEndpoints prefers explicitly configured endpoints, then OIDC discovery
// against the authority, then the server's built-in device routes.
func ResolveEndpoints(ctx context.Context, cfg EndpointConfig, client *http.Client) (Endpoints, error) {
	if cfg.DeviceAuthorizationEndpoint != "" && cfg.TokenEndpoint != "" {
		return Endpoints{DeviceAuthorization: cfg.DeviceAuthorizationEndpoint, Token: cfg.TokenEndpoint}, nil
	}
	if cfg.Authority != "" {
		return discoverEndpoints(ctx, cfg.Authority, client)
	}
	if cfg.Server == "" {
		return Endpoints{}, errors.New("server or authority is required")
	}
	base := strings.TrimRight(cfg.Server, "/")
	return Endpoints{
		DeviceAuthorization: base + defaultDeviceCodePath,
		Token:               base + defaultDeviceTokenPath,
	}, nil
}

func discoverEndpoints(ctx context.Context, authority string, client *http.Client) (Endpoints, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, strings.TrimRight(authority, "/"))
	if err != nil {
		return Endpoints{}, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	var claims struct {
		DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
		TokenEndpoint               string `json:"token_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return Endpoints{}, fmt.Errorf("failed to read provider metadata: %w", err)
	}
	if claims.DeviceAuthorizationEndpoint == "" {
		return Endpoints{}, errors.New("device authorization endpoint not advertised")
	}
	if claims.TokenEndpoint == "" {
		return Endpoints{}, errors.New("token endpoint not advertised")
	}
	return Endpoints{DeviceAuthorization: claims.DeviceAuthorizationEndpoint, Token: claims.TokenEndpoint}, nil
}

// NewHTTPClient builds the resty client shared by the auth flow and the REST client.
// Retries stay disabled: a failed poll is reported rather than repeated.
func NewHTTPClient(caFile string, insecure bool) (*resty.Client, error) {
	tlsConfig, err := loadTLSConfig(caFile, insecure)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsConfig,
	}
	return resty.New().
		SetTransport(transport).
		SetTimeout(defaultHTTPTimeout).
		SetHeader("Accept", "application/json"), nil
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	if caFile == "" && !insecure {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	certPool, err := loadCertPool(caFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in via --insecure-skip-tls-verify
		RootCAs:            certPool,
	}, nil
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	return pool, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
