// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

// Package answer turns a user question into a model-generated answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyQuestion is returned for a question that is blank after trimming.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// ErrProviderFailed wraps every failure talking to the model backend.
var ErrProviderFailed = errors.New("answer provider failed")

// Provider generates an answer for a question.
type Provider interface {
	Answer(ctx context.Context, question string) (string, error)
}

// promptTemplate frames the user's question for the model.
const promptTemplate = `
You are a helpful AI assistant. Provide a detailed, well-formatted response to:
%s

Guidelines:
1. Use clear sections with headings
2. Use bullet points where appropriate
3. Include all relevant details
4. Be concise but thorough
5. Format in markdown
`

// BuildPrompt wraps question in the answer prompt.
func BuildPrompt(question string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(question))
}
