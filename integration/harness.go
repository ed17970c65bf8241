package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/kasuganosora/baycode/api/rest"
	"github.com/kasuganosora/baycode/api/sse"
	"github.com/kasuganosora/baycode/audit"
	"github.com/kasuganosora/baycode/cache"
	"github.com/kasuganosora/baycode/community/session"
	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/mail"
	"github.com/kasuganosora/baycode/metrics"
	mw "github.com/kasuganosora/baycode/middleware"
	"github.com/kasuganosora/baycode/store/sqlstore"
	"github.com/kasuganosora/baycode/testutil"
)

// Backend is the database shared by successive server instances, so a
// test can restart the server and observe what survived. Caches are per
// server and start empty, as in a new process.
type Backend struct {
	DB *gorm.DB
}

// NewBackend creates an in-memory database.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	return &Backend{DB: testutil.SetupTestDB(t)}
}

// TestServer wraps a real HTTP server with the community stack wired
// together. It mirrors the dependency wiring in main.go without Redis.
type TestServer struct {
	*Backend
	Cache   cache.Cache
	PubSub  cache.PubSub
	Manager *session.Manager
	Audit   *audit.Service
	Mailer  *mail.LogSender
	Server  *httptest.Server
	URL     string
}

// NewTestServer creates a fully wired server over a fresh backend.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return NewTestServerOn(t, NewBackend(t))
}

// NewTestServerOn creates a fully wired server over b.
func NewTestServerOn(t *testing.T, b *Backend) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	cfg := testutil.Config()
	c, ps := testutil.SetupTestCache(t)

	hooks := hook.NewCenter()
	auditSvc := audit.New(b.DB, logger)
	auditSvc.Attach(hooks)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.Attach(hooks)
	sse.NewPublisher(ps, logger).Attach(hooks)

	mailer := mail.NewLogSender(cfg.Mail.From, cfg.Mail.ResetURL, logger)
	mgr, err := session.New(session.Deps{
		Config:   cfg,
		Adapter:  sqlstore.New(b.DB),
		Sessions: sqlstore.NewSessions(b.DB, nil),
		Hooks:    hooks,
		Mailer:   mailer,
		Logger:   logger,
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger), collector.Middleware(), mw.AuditContext())
	r.Use(mw.RateLimit(rate.Limit(1000), 2000))
	apirest.Mount(r, mgr, logger)
	r.GET("/sse/chat", mw.Auth(mgr), sse.NewHandler(ps, mgr, logger).ServeChat)
	r.GET("/metrics", mw.IPWhitelist([]string{"127.0.0.1", "::1"}), gin.WrapH(metrics.Handler(reg)))

	server := httptest.NewServer(r)
	ts := &TestServer{
		Backend: b,
		Cache:   c,
		PubSub:  ps,
		Manager: mgr,
		Audit:   auditSvc,
		Mailer:  mailer,
		Server:  server,
		URL:     server.URL,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close stops the server and flushes the audit log. It is safe to call
// more than once.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON decodes and closes the response body.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Status returns the status code and closes the body.
func Status(resp *http.Response) int {
	resp.Body.Close()
	return resp.StatusCode
}

var idSeq atomic.Int64

// UniqueID returns prefix with a process-unique suffix.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d_%d", prefix, time.Now().UnixNano()%100000, idSeq.Add(1))
}

// --- Auth helpers ---

// Register signs up username and returns the token and the account.
func (ts *TestServer) Register(t *testing.T, username, password string) (string, map[string]interface{}) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/register", map[string]interface{}{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
		"school":   "Bay High",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string), result["user"].(map[string]interface{})
}

// Login returns a fresh token for username.
func (ts *TestServer) Login(t *testing.T, username, password string) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string)
}
