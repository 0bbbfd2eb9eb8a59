// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels shared by the auth counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultExpired = "expired"
	ResultTaken   = "taken"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Metrics holds the llmqa application metrics. A nil *Metrics records nothing,
// so components can be built without an observability server.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	TokensIssuedTotal  *prometheus.CounterVec
	TokenVerifications *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	AskRequestsTotal   *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
}

// NewMetrics creates the application metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmqa_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmqa_tokens_issued_total",
				Help: "Access tokens issued by reason",
			},
			[]string{"reason"},
		),
		TokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmqa_token_verifications_total",
				Help: "Bearer token checks by result",
			},
			[]string{"result"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmqa_registrations_total",
				Help: "Registration attempts by result",
			},
			[]string{"result"},
		),
		AskRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmqa_ask_requests_total",
				Help: "Questions forwarded to the answer provider by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmqa_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmqa_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.LoginsTotal,
		m.TokensIssuedTotal,
		m.TokenVerifications,
		m.RegistrationsTotal,
		m.AskRequestsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestSeconds,
	)
	return m
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// ObserveTokenIssued counts an issued token. reason is "login" or "refresh".
func (m *Metrics) ObserveTokenIssued(reason string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(reason).Inc()
}

// ObserveTokenVerification counts a bearer token check.
func (m *Metrics) ObserveTokenVerification(result string) {
	if m == nil {
		return
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}

// ObserveRegistration counts a registration attempt.
func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

// ObserveAsk counts a question sent to the answer provider.
func (m *Metrics) ObserveAsk(result string) {
	if m == nil {
		return
	}
	m.AskRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestSeconds.WithLabelValues(route).Observe(elapsed.Seconds())
}
