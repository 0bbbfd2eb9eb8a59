// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package web_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/llmqa/llmqa/internal/web"
)

func TestServer_ServesAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	srv := web.NewServer("127.0.0.1:0", f.handler, slog.New(slog.DiscardHandler))
	errCh, err := srv.Start()
	require.NoError(t, err)
	require.NotEmpty(t, srv.Addr())

	transport := &http.Transport{}
	client := &http.Client{Transport: transport, Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+srv.Addr()+"/", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "LLM Q&A System API is running"))

	_, err = srv.Start()
	assert.Error(t, err, "second start must fail")

	transport.CloseIdleConnections()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx), "stop is idempotent")

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after stop")
	}
}

func TestServer_ListenFailure(t *testing.T) {
	srv := web.NewServer("256.0.0.1:bad", http.NotFoundHandler(), slog.New(slog.DiscardHandler))
	_, err := srv.Start()
	require.Error(t, err)
	assert.Empty(t, srv.Addr())
}
