// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/proxmox-multicluster/pkg/apiresponses"
	"github.com/telekom/proxmox-multicluster/pkg/ratelimit"
	"github.com/telekom/proxmox-multicluster/pkg/version"
)

func testServerConfig() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.ListenAddress = ":0"
	return cfg
}

func TestNewServer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name  string
		debug bool
	}{
		{name: "Create server in debug mode", debug: true},
		{name: "Create server in production mode", debug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testServerConfig()
			cfg.Debug = tt.debug
			server := NewServer(logger, cfg)
			defer server.Close()

			assert.NotNil(t, server.gin)
			assert.Equal(t, cfg, server.config)
			assert.NotNil(t, server.apiRateLimiter)
		})
	}
}

func TestNewServer_DefaultsShutdownTimeout(t *testing.T) {
	cfg := testServerConfig()
	cfg.ShutdownTimeout = 0
	server := NewServer(zaptest.NewLogger(t), cfg)
	defer server.Close()

	assert.Equal(t, DefaultServerConfig().ShutdownTimeout, server.config.ShutdownTimeout)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, ratelimit.DefaultAPIConfig(), cfg.RateLimit)
	assert.False(t, cfg.Debug)
}

func TestServer_Healthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), testServerConfig())
	defer server.Close()

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_Version(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), testServerConfig())
	defer server.Close()

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, version.GetBuildInfo().GoVersion, info.GoVersion)
}

func TestServer_Metrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), testServerConfig())
	defer server.Close()

	// one request so the request counter has a sample
	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "proxmox_multicluster_api_requests_total")
}

func TestServer_CorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), testServerConfig())
	defer server.Close()

	t.Run("propagates caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(CorrelationIDHeader, "req-1234")
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		assert.Equal(t, "req-1234", w.Header().Get(CorrelationIDHeader))
	})

	t.Run("assigns id when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Len(t, w.Header().Get(CorrelationIDHeader), 36)
	})
}

func TestServer_RegisterAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), testServerConfig())
	defer server.Close()

	mockController := &mockAPIController{basePath: "test"}

	err := server.RegisterAll([]APIController{mockController})
	require.NoError(t, err)
	assert.True(t, mockController.registerCalled)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RegisterAll_Error(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), testServerConfig())
	defer server.Close()

	err := server.RegisterAll([]APIController{&mockAPIControllerWithError{basePath: "test"}})
	assert.EqualError(t, err, "registration failed")
}

func TestServer_RegisterAll_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testServerConfig()
	cfg.RateLimit = ratelimit.Config{Rate: 1, Burst: 2}
	server := NewServer(zaptest.NewLogger(t), cfg)
	defer server.Close()
	require.NoError(t, server.RegisterAll([]APIController{&mockAPIController{basePath: "test"}}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health checks are not rate limited
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_NoRoute_Json404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), testServerConfig())
	defer server.Close()

	w := httptest.NewRecorder()
	server.gin.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unknown/thing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body apiresponses.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.Contains(t, body.Error, "/api/unknown/thing")
}

func TestServer_CORSOnlyInDebug(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, debug := range []bool{true, false} {
		cfg := testServerConfig()
		cfg.Debug = debug
		server := NewServer(zaptest.NewLogger(t), cfg)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		server.Close()

		if debug {
			assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
		} else {
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		}
	}
}

// Mock implementation of APIController for testing
type mockAPIController struct {
	basePath       string
	handlers       []gin.HandlerFunc
	registerCalled bool
}

func (m *mockAPIController) BasePath() string {
	return m.basePath
}

func (m *mockAPIController) Register(rg *gin.RouterGroup) error {
	m.registerCalled = true
	rg.GET("ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return nil
}

func (m *mockAPIController) Handlers() []gin.HandlerFunc {
	return m.handlers
}

// Mock implementation that returns error
type mockAPIControllerWithError struct {
	basePath string
	handlers []gin.HandlerFunc
}

func (m *mockAPIControllerWithError) BasePath() string {
	return m.basePath
}

func (m *mockAPIControllerWithError) Register(rg *gin.RouterGroup) error {
	return errors.New("registration failed")
}

func (m *mockAPIControllerWithError) Handlers() []gin.HandlerFunc {
	return m.handlers
}
