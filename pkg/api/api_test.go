// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/orbit-cli/orbit/pkg/apiresponses"
	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/version"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Server.ListenAddress = ":0"
	cfg.Frontend.BaseURL = "http://localhost:5173/"
	cfg.Frontend.AllowedOrigins = nil
	return cfg
}

func serve(t *testing.T, s *Server, method, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), testConfig(), true, nil)
	require.NotNil(t, s)
	assert.NotNil(t, s.Handler())
}

func TestServer_Version(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), testConfig(), true, nil)

	rec := serve(t, s, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := NewServer(zaptest.NewLogger(t), testConfig(), true, fakePinger{})
	assert.Equal(t, http.StatusOK, serve(t, ok, http.MethodGet, "/healthz", nil).Code)

	down := NewServer(zaptest.NewLogger(t), testConfig(), true, fakePinger{err: errors.New("db gone")})
	rec := serve(t, down, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db gone")
}

func TestServer_Metrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), testConfig(), true, nil)
	rec := serve(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_DeviceRedirect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), testConfig(), true, nil)

	tests := []struct {
		name     string
		path     string
		location string
	}{
		{name: "with code", path: "/device?user_code=WDJB-MJHT", location: "http://localhost:5173/device?user_code=WDJB-MJHT"},
		{name: "escapes code", path: "/device?user_code=a%26b%3Dc", location: "http://localhost:5173/device?user_code=a%26b%3Dc"},
		{name: "without code", path: "/device", location: "http://localhost:5173/device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, s, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}

func TestServer_NoRoute_Json404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), testConfig(), true, nil)
	rec := serve(t, s, http.MethodGet, "/api/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body apiresponses.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestServer_CORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Frontend.AllowedOrigins = []string{"https://orbit.example.com"}
	s := NewServer(zaptest.NewLogger(t), cfg, false, nil)

	rec := serve(t, s, http.MethodOptions, "/api/version", func(r *http.Request) {
		r.Header.Set("Origin", "https://orbit.example.com")
		r.Header.Set("Access-Control-Request-Method", http.MethodGet)
	})
	assert.Equal(t, "https://orbit.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = serve(t, s, http.MethodOptions, "/api/version", func(r *http.Request) {
		r.Header.Set("Origin", "https://evil.example.com")
		r.Header.Set("Access-Control-Request-Method", http.MethodGet)
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAllowedOrigins(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, []string{"http://localhost:5173"}, allowedOrigins(cfg, false))
	assert.Equal(t, []string{"http://localhost:5173"}, allowedOrigins(cfg, true), "dev origin is not duplicated")

	cfg.Frontend.AllowedOrigins = []string{"https://a.example.com"}
	assert.Equal(t, []string{"https://a.example.com"}, allowedOrigins(cfg, false))
	assert.Equal(t, []string{"https://a.example.com", "http://localhost:5173"}, allowedOrigins(cfg, true))
}

type mockAPIController struct {
	registered bool
	err        error
}

func (m *mockAPIController) BasePath() string { return "mock" }

func (m *mockAPIController) Register(rg *gin.RouterGroup) error {
	m.registered = true
	rg.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return m.err
}

func (m *mockAPIController) Handlers() []gin.HandlerFunc { return nil }

func TestServer_RegisterAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), testConfig(), true, nil)
	ctrl := &mockAPIController{}
	require.NoError(t, s.RegisterAll([]APIController{ctrl}))
	assert.True(t, ctrl.registered)

	rec := serve(t, s, http.MethodGet, "/api/mock/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestServer_RegisterAll_Error(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), testConfig(), true, nil)
	err := s.RegisterAll([]APIController{&mockAPIController{err: errors.New("boom")}})
	require.Error(t, err)
}

func TestServer_ListenShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := testConfig()
	cfg.Server.ListenAddress = addr
	cfg.Server.ShutdownTimeout = "2s"
	s := NewServer(zaptest.NewLogger(t), cfg, true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenReportsBindError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig()
	cfg.Server.ListenAddress = l.Addr().String()
	s := NewServer(zaptest.NewLogger(t), cfg, true, nil)
	require.Error(t, s.Listen(context.Background()))
}
