// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/llmqa/llmqa/internal/answer"
	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/internal/observability"
	"github.com/llmqa/llmqa/pkg/errutil"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Options configures NewHandler.
type Options struct {
	// Auth is required.
	Auth *auth.Service
	// Answers backs POST /ask. When nil the endpoint responds 503.
	Answers answer.Provider
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

type api struct {
	auth    *auth.Service
	answers answer.Provider
	metrics *observability.Metrics
	logger  *slog.Logger
	authn   *Authenticator
}

// NewHandler builds the public API handler with CORS, request logging and
// panic recovery applied.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Auth == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").Errorf("auth service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &api{
		auth:    opts.Auth,
		answers: opts.Answers,
		metrics: opts.Metrics,
		logger:  logger,
		authn:   NewAuthenticator(opts.Auth, opts.Metrics, logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("POST /token", a.handleLogin)
	mux.HandleFunc("POST /token/refresh", a.handleRefresh)
	mux.Handle("POST /token/verify", a.authn.Require(http.HandlerFunc(a.handleVerify)))
	mux.Handle("GET /users/me/{$}", a.authn.Require(http.HandlerFunc(a.handleMe)))
	mux.Handle("GET /users/me", a.authn.Require(http.HandlerFunc(a.handleMe)))
	mux.HandleFunc("POST /register", a.handleRegister)
	mux.Handle("POST /ask", a.authn.Require(http.HandlerFunc(a.handleAsk)))

	var h http.Handler = mux
	h = recoverPanics(h, logger)
	h = logRequests(h, logger, opts.Metrics)
	h = corsAllowAll(h)
	return h, nil
}

func (a *api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "LLM Q&A System API is running"})
}

// handleLogin implements the OAuth2 password grant: form fields username and password.
func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != "" && grant != "password" {
		writeDetail(w, http.StatusUnprocessableEntity, "grant_type must be 'password'")
		return
	}

	token, err := a.auth.Login(r.Context(), auth.Credential{Username: username, Password: password})
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			a.metrics.ObserveLogin(observability.ResultFailure)
		} else {
			a.metrics.ObserveLogin(observability.ResultError)
		}
		writeAuthError(w, r, a.logger, err)
		return
	}

	a.metrics.ObserveLogin(observability.ResultSuccess)
	a.metrics.ObserveTokenIssued("login")
	writeToken(w, token)
}

// handleRefresh reissues a default-lifetime token for a still-valid bearer token.
func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeUnauthorized(w, detailNotAuthenticated)
		return
	}

	fresh, err := a.auth.Refresh(r.Context(), token)
	a.metrics.ObserveTokenVerification(tokenResult(err))
	if err != nil {
		writeAuthError(w, r, a.logger, err)
		return
	}

	a.metrics.ObserveTokenIssued("refresh")
	writeToken(w, fresh)
}

func (a *api) handleVerify(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, detailBadToken)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.metrics.ObserveRegistration(observability.ResultInvalid)
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := a.auth.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			a.metrics.ObserveRegistration(observability.ResultTaken)
		case errors.Is(err, auth.ErrInvalidInput):
			a.metrics.ObserveRegistration(observability.ResultInvalid)
		default:
			a.metrics.ObserveRegistration(observability.ResultError)
		}
		writeAuthError(w, r, a.logger, err)
		return
	}

	a.metrics.ObserveRegistration(observability.ResultSuccess)
	writeJSON(w, http.StatusOK, user)
}

type askRequest struct {
	Question *string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (a *api) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Question == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "question is required")
		return
	}
	if strings.TrimSpace(*req.Question) == "" {
		writeDetail(w, http.StatusBadRequest, detailEmptyQuestion)
		return
	}
	if a.answers == nil {
		writeDetail(w, http.StatusServiceUnavailable, detailAskDisabled)
		return
	}

	text, err := a.answers.Answer(r.Context(), *req.Question)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) {
			writeDetail(w, http.StatusBadRequest, detailEmptyQuestion)
			return
		}
		a.metrics.ObserveAsk(observability.ResultError)
		errutil.LogErrorContext(r.Context(), a.logger, "answer provider failed", err)
		writeDetail(w, http.StatusInternalServerError, detailAskFailed)
		return
	}

	a.metrics.ObserveAsk(observability.ResultSuccess)
	writeJSON(w, http.StatusOK, askResponse{Answer: text})
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return oops.Code("WEB_INVALID_BODY").Errorf("invalid JSON body: %v", err)
	}
	return nil
}
