// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/llmqa/llmqa/internal/answer"
	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/internal/auth/memory"
	"github.com/llmqa/llmqa/internal/observability"
	"github.com/llmqa/llmqa/internal/web"
)

var signingKey = []byte("web-test-key")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// stubProvider answers with a fixed reply or error and records questions.
type stubProvider struct {
	mu        sync.Mutex
	reply     string
	err       error
	questions []string
}

func (p *stubProvider) Answer(_ context.Context, question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions = append(p.questions, question)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

type fixture struct {
	handler  http.Handler
	service  *auth.Service
	store    *memory.UserStore
	clock    *clock
	metrics  *observability.Metrics
	provider *stubProvider
	logs     *bytes.Buffer
}

type fixtureOption func(*web.Options)

func withoutProvider() fixtureOption {
	return func(o *web.Options) { o.Answers = nil }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := auth.NewJWTCodec(signingKey, auth.AlgorithmHS256, auth.WithCodecClock(clk.Now))
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := memory.NewUserStore()
	service, err := auth.NewService(store,
		auth.NewMultiHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		codec,
		30*time.Minute,
		auth.WithClock(clk.Now),
		auth.WithLogger(logger),
	)
	require.NoError(t, err)

	provider := &stubProvider{reply: "## Answer\n- point"}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	options := web.Options{
		Auth:    service,
		Answers: provider,
		Metrics: metrics,
		Logger:  logger,
	}
	for _, opt := range opts {
		opt(&options)
	}

	handler, err := web.NewHandler(options)
	require.NoError(t, err)

	return &fixture{
		handler:  handler,
		service:  service,
		store:    store,
		clock:    clk,
		metrics:  metrics,
		provider: provider,
		logs:     logs,
	}
}

type response struct {
	Status int
	Header http.Header
	Body   map[string]any
	Raw    string
}

func (f *fixture) do(t *testing.T, req *http.Request) response {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	raw, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	resp := response{Status: rec.Code, Header: rec.Header(), Raw: string(raw)}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &resp.Body), "body: %s", raw)
	}
	return resp
}

func (f *fixture) login(t *testing.T, username, password string) response {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(t, req)
}

func (f *fixture) register(t *testing.T, body string) response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

func (f *fixture) withToken(t *testing.T, method, path, token, body string) response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.do(t, req)
}

// mustToken registers username and logs in, returning the access token.
func (f *fixture) mustToken(t *testing.T, username, password string) string {
	t.Helper()
	resp := f.register(t, `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	resp = f.login(t, username, password)
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	return resp.Body["access_token"].(string)
}

var errUpstream = errors.New("upstream timeout")

var _ answer.Provider = (*stubProvider)(nil)
