// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/internal/observability"
	"github.com/llmqa/llmqa/pkg/errutil"
)

// Client-facing details. Authentication failures never say which check failed.
const (
	detailBadCredentials   = "Incorrect username or password"
	detailBadToken         = "Could not validate credentials"
	detailNotAuthenticated = "Not authenticated"
	detailUsernameTaken    = "Username already registered"
	detailEmptyQuestion    = "Question cannot be empty"
	detailAskDisabled      = "Question answering is not configured"
	detailAskFailed        = "Failed to generate an answer"
	detailInternal         = "Internal Server Error"
)

type errorBody struct {
	Detail string `json:"detail"`
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	//nolint:errcheck // client may disconnect
	enc.Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

func writeToken(w http.ResponseWriter, token string) {
	writeJSON(w, http.StatusOK, tokenBody{AccessToken: token, TokenType: "bearer"})
}

// writeAuthError maps an auth error to its HTTP rejection. Anything outside
// the auth taxonomy is logged and reported as a 500.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		writeUnauthorized(w, detailBadCredentials)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		writeUnauthorized(w, detailBadToken)
	case errors.Is(err, auth.ErrUsernameTaken):
		writeDetail(w, http.StatusBadRequest, detailUsernameTaken)
	case errors.Is(err, auth.ErrInvalidInput):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		errutil.LogErrorContext(r.Context(), logger.With("method", r.Method, "path", r.URL.Path),
			"request failed", err)
		writeDetail(w, http.StatusInternalServerError, detailInternal)
	}
}

// tokenResult labels a token check outcome for metrics.
func tokenResult(err error) string {
	switch {
	case err == nil:
		return observability.ResultSuccess
	case errors.Is(err, auth.ErrTokenExpired):
		return observability.ResultExpired
	case errors.Is(err, auth.ErrInvalidToken):
		return observability.ResultInvalid
	default:
		return observability.ResultError
	}
}
