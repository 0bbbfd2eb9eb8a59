// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("llmqa/answer")

// Chat completion defaults.
const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000

	systemPrompt = "You are a helpful assistant."

	// errorBodyLimit caps how much of an error response is kept.
	errorBodyLimit = 4096
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIProvider answers questions through the OpenAI chat completions API.
type OpenAIProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewOpenAIProvider validates cfg and builds a provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, oops.Code("ANSWER_CONFIG_INVALID").Errorf("OpenAI API key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: baseURL + "/chat/completions",
		client:   client,
		logger:   logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Answer sends question to the model and returns the first choice. Failures
// are not retried.
func (p *OpenAIProvider) Answer(ctx context.Context, question string) (answer string, err error) {
	if strings.TrimSpace(question) == "" {
		return "", oops.Code("ANSWER_EMPTY_QUESTION").Wrap(ErrEmptyQuestion)
	}

	ctx, span := tracer.Start(ctx, "answer.openai",
		trace.WithAttributes(attribute.String("llm.model", p.model)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(question)},
		},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	})
	if err != nil {
		return "", oops.Code("ANSWER_REQUEST_FAILED").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", oops.Code("ANSWER_REQUEST_FAILED").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", oops.Code("ANSWER_PROVIDER_FAILED").
			With("model", p.model).
			Wrapf(ErrProviderFailed, "request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	p.logger.DebugContext(ctx, "answer provider responded",
		"model", p.model,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", p.statusError(resp)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", oops.Code("ANSWER_PROVIDER_FAILED").
			With("model", p.model).
			Wrapf(ErrProviderFailed, "decode response: %v", err)
	}
	if len(payload.Choices) == 0 || strings.TrimSpace(payload.Choices[0].Message.Content) == "" {
		return "", oops.Code("ANSWER_PROVIDER_FAILED").
			With("model", p.model).
			Wrapf(ErrProviderFailed, "response has no answer")
	}
	return payload.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	msg := strings.TrimSpace(string(raw))
	var parsed apiError
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}

	return oops.Code("ANSWER_PROVIDER_FAILED").
		With("model", p.model).
		With("status", resp.StatusCode).
		Wrapf(ErrProviderFailed, "status %d: %s", resp.StatusCode, msg)
}
