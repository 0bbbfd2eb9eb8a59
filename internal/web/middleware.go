// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/internal/observability"
)

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by Authenticator.Require.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*auth.User)
	return user, ok && user != nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticator resolves bearer tokens to users.
type Authenticator struct {
	service *auth.Service
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewAuthenticator creates an Authenticator. metrics may be nil.
func NewAuthenticator(service *auth.Service, metrics *observability.Metrics, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{service: service, metrics: metrics, logger: logger}
}

// Require rejects requests without a valid bearer token with 401 and
// WWW-Authenticate: Bearer. Accepted requests carry the user in their context.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, detailNotAuthenticated)
			return
		}

		user, err := a.service.CurrentUser(r.Context(), token)
		a.metrics.ObserveTokenVerification(tokenResult(err))
		if err != nil {
			a.logger.DebugContext(r.Context(), "bearer token rejected", "path", r.URL.Path, "error", err)
			writeAuthError(w, r, a.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// statusRecorder captures the response status and size.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.status = code
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	//nolint:wrapcheck // ResponseWriter passthrough
	return n, err
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// logRequests logs each response at a level derived from its status and
// records request metrics under the matched route pattern.
func logRequests(next http.Handler, logger *slog.Logger, metrics *observability.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// The mux records the matched pattern on the request it receives.
		req := r.WithContext(r.Context())
		next.ServeHTTP(rec, req)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, route, rec.status, elapsed)

		level := slog.LevelInfo
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "response", slog.Group("http",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", elapsed,
		))
	})
}

// recoverPanics turns a handler panic into a 500 and logs the stack.
func recoverPanics(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
					panic(p)
				}
				logger.ErrorContext(r.Context(), "request panic",
					slog.Group("http", "method", r.Method, "path", r.URL.Path),
					slog.Group("error", "panic", p, "stack", string(debug.Stack())),
				)
				writeDetail(w, http.StatusInternalServerError, detailInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsAllowAll allows any origin, method and header, with credentials.
// The request origin is echoed since "*" is not valid alongside credentials.
func corsAllowAll(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowOriginFunc: func(string) bool { return true },
		AllowedMethods: []string{
			http.MethodDelete, http.MethodGet, http.MethodHead, http.MethodOptions,
			http.MethodPatch, http.MethodPost, http.MethodPut,
		},
		AllowedHeaders:       []string{"*"},
		AllowCredentials:     true,
		MaxAge:               600,
		OptionsSuccessStatus: http.StatusOK,
	}).Handler(next)
}
