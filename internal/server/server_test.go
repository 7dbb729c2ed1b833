package server

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/orgoj/lokilog/internal/config"
	"github.com/orgoj/lokilog/internal/logger"
	"github.com/orgoj/lokilog/internal/lokilog"
)

// Helper function to create minimal valid config for testing
func createTestConfig(lokiURL string) *config.Config {
	cfg := &config.Config{}

	cfg.App.Name = "relay-test"
	cfg.App.Environment = "test"
	cfg.Loki.BaseURL = lokiURL

	cfg.AppLog.Level = "DEBUG"
	cfg.AppLog.Format = "text"

	cfg.Relay.Enabled = true
	cfg.Relay.Host = "127.0.0.1"
	cfg.Relay.Port = 8080
	cfg.Relay.Mode = "production"
	cfg.Relay.TrustedProxies = []string{}
	cfg.Relay.MaxMessageLength = 1024
	cfg.Relay.RequestLimits.MaxBodySize = 102400
	cfg.Relay.RequestLimits.RateLimit = 0 // Disabled for most tests

	return cfg
}

func newLoki(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	appLogger := logger.NewAppLogger(&buf, logger.DEBUG, logger.FormatText)
	mgr, err := lokilog.NewManager(lokilog.SettingsFromConfig(cfg), lokilog.WithSink(appLogger))
	require.NoError(t, err)

	s := NewServer(Dependencies{Config: cfg, Manager: mgr, AppLogger: appLogger})
	gin.SetMode(gin.TestMode)
	return s, &buf
}

func doRequest(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer(t *testing.T) {
	t.Run("Creates server successfully", func(t *testing.T) {
		s, buf := newTestServer(t, createTestConfig("http://127.0.0.1:3100"))

		assert.NotNil(t, s.router)
		assert.Equal(t, rate.Inf, s.rateLimit)
		assert.Contains(t, buf.String(), "Rate limiting disabled")
	})

	t.Run("Panics on missing dependencies", func(t *testing.T) {
		cfg := createTestConfig("http://127.0.0.1:3100")
		mgr, err := lokilog.NewManager(lokilog.SettingsFromConfig(cfg))
		require.NoError(t, err)
		appLogger := logger.NewAppLogger(&bytes.Buffer{}, logger.INFO, logger.FormatText)

		assert.Panics(t, func() { NewServer(Dependencies{Manager: mgr, AppLogger: appLogger}) })
		assert.Panics(t, func() { NewServer(Dependencies{Config: cfg, AppLogger: appLogger}) })
		assert.Panics(t, func() { NewServer(Dependencies{Config: cfg, Manager: mgr}) })
	})

	t.Run("Panics on invalid trusted proxies", func(t *testing.T) {
		cfg := createTestConfig("http://127.0.0.1:3100")
		cfg.Relay.TrustedProxies = []string{"not-a-cidr"}
		assert.Panics(t, func() { newTestServer(t, cfg) })
	})

	t.Run("Rate limit settings", func(t *testing.T) {
		cfg := createTestConfig("http://127.0.0.1:3100")
		cfg.Relay.RequestLimits.RateLimit = 120
		s, _ := newTestServer(t, cfg)
		assert.Equal(t, rate.Limit(2), s.rateLimit)
		assert.Equal(t, 120, s.burstLimit)
	})
}

func TestHealthAndVersion(t *testing.T) {
	s, _ := newTestServer(t, createTestConfig("http://127.0.0.1:3100"))

	w := doRequest(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = doRequest(s, http.MethodHead, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = doRequest(s, http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)

	w = doRequest(s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, createTestConfig("http://127.0.0.1:3100"))

	w := doRequest(s, http.MethodGet, "/health", "", nil)
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	id := uuid.NewString()
	w = doRequest(s, http.MethodGet, "/health", "", map[string]string{"X-Request-ID": id})
	assert.Equal(t, id, w.Header().Get("X-Request-ID"))

	w = doRequest(s, http.MethodGet, "/health", "", map[string]string{"X-Request-ID": "<script>"})
	assert.NotEqual(t, "<script>", w.Header().Get("X-Request-ID"))
}

func TestLogEndpoint(t *testing.T) {
	loki := newLoki(t)
	s, _ := newTestServer(t, createTestConfig(loki.URL))

	w := doRequest(s, http.MethodPost, "/log", `{"level":"info","message":"hello","org_id":"org123"}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"forwarded"`)
	assert.Contains(t, w.Body.String(), w.Header().Get("X-Request-ID"))

	w = doRequest(s, http.MethodPost, "/log", `{"level":"fatal","message":"hello"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodGet, "/log", "", nil)
	assert.NotEqual(t, http.StatusAccepted, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	loki := newLoki(t)
	cfg := createTestConfig(loki.URL)
	cfg.Relay.RequestLimits.RateLimit = 2
	cfg.Relay.TrustedProxies = []string{"192.0.2.1"}
	s, buf := newTestServer(t, cfg)

	body := `{"level":"debug","message":"tick"}`
	fromClient := func(ip string) int {
		return doRequest(s, http.MethodPost, "/log", body, map[string]string{"X-Forwarded-For": ip}).Code
	}

	// httptest requests come from 192.0.2.1, trusted above
	assert.Equal(t, http.StatusAccepted, fromClient("198.51.100.1"))
	assert.Equal(t, http.StatusAccepted, fromClient("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, fromClient("198.51.100.1"))
	assert.Contains(t, buf.String(), "Rate limit exceeded for IP: 198.51.100.1")

	// separate bucket per client
	assert.Equal(t, http.StatusAccepted, fromClient("198.51.100.2"))

	// health is never limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/health", "", nil).Code)
	}
}

func TestStart_Shutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := createTestConfig("http://127.0.0.1:3100")
	cfg.Relay.Port = port
	s, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRateLimiter_IdleClientsAreSwept(t *testing.T) {
	cfg := createTestConfig("http://127.0.0.1:3100")
	cfg.Relay.RequestLimits.RateLimit = 60
	s, _ := newTestServer(t, cfg)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	a := s.limiterFor("198.51.100.1")
	b := s.limiterFor("198.51.100.2")
	assert.Same(t, a, s.limiterFor("198.51.100.1"))
	assert.Len(t, s.limiters, 2)

	// .2 goes idle while .1 keeps sending
	clock = clock.Add(limiterIdleTTL / 2)
	s.limiterFor("198.51.100.1")

	clock = clock.Add(limiterIdleTTL/2 + time.Second)
	s.limiterFor("198.51.100.3")

	assert.Len(t, s.limiters, 2)
	assert.Contains(t, s.limiters, "198.51.100.1")
	assert.Contains(t, s.limiters, "198.51.100.3")
	assert.NotContains(t, s.limiters, "198.51.100.2")

	// a swept client starts with a fresh bucket
	assert.NotSame(t, b, s.limiterFor("198.51.100.2"))
}
