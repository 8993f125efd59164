// Package openai provides a sieve Provider backed by the OpenAI Chat
// Completions API. The active schema is passed as a strict json_schema
// response format so the endpoint constrains its own decoding; sieve still
// validates the reply locally.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/sieve"
)

// Provider implements the sieve Provider interface for the OpenAI API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	name       string
}

// Config holds configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	Model   string        // e.g. "gpt-4o", "gpt-4o-mini"
	BaseURL string        // Optional, defaults to "https://api.openai.com/v1"
	Timeout time.Duration // Optional, defaults to 30s
}

// New creates a new OpenAI provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		apiKey:  config.APIKey,
		model:   config.Model,
		baseURL: config.BaseURL,
		name:    "openai",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends the conversation to OpenAI and returns the response.
func (p *Provider) Call(ctx context.Context, messages []sieve.Message, schema *sieve.Schema, temperature float32) (*sieve.ProviderResponse, error) {
	startTime := time.Now()

	capitan.Emit(ctx, sieve.ProviderCallStarted,
		sieve.ProviderKey.Field(p.name),
		sieve.ModelKey.Field(p.model),
		sieve.SchemaNameKey.Field(schema.Name()),
	)

	apiMessages := make([]message, len(messages))
	for i, m := range messages {
		apiMessages[i] = message{Role: m.Role, Content: m.Content}
	}

	requestBody := chatCompletionRequest{
		Model:       p.model,
		Messages:    apiMessages,
		Temperature: temperature,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   schema.Name(),
				Strict: true,
				Schema: json.RawMessage(schema.JSONSchema()),
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		duration := time.Since(startTime)
		var errorResp errorResponse

		fields := []capitan.Field{
			sieve.ProviderKey.Field(p.name),
			sieve.ModelKey.Field(p.model),
			sieve.HTTPStatusCodeKey.Field(resp.StatusCode),
			sieve.DurationMsKey.Field(int(duration.Milliseconds())),
		}

		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			fields = append(fields,
				sieve.ErrorKey.Field(errorResp.Error.Message),
				sieve.APIErrorTypeKey.Field(errorResp.Error.Type),
			)
			if errorResp.Error.Code != "" {
				fields = append(fields, sieve.APIErrorCodeKey.Field(errorResp.Error.Code))
			}

			capitan.Emit(ctx, sieve.ProviderCallFailed, fields...)

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("rate limit exceeded: %s", errorResp.Error.Message)
			}
			return nil, fmt.Errorf("openai error (%d): %s", resp.StatusCode, errorResp.Error.Message)
		}

		fields = append(fields, sieve.ErrorKey.Field(fmt.Sprintf("status %d", resp.StatusCode)))
		capitan.Emit(ctx, sieve.ProviderCallFailed, fields...)
		return nil, fmt.Errorf("openai error: status %d", resp.StatusCode)
	}

	var completionResp chatCompletionResponse
	if err := json.Unmarshal(body, &completionResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(completionResp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	duration := time.Since(startTime)

	fields := []capitan.Field{
		sieve.ProviderKey.Field(p.name),
		sieve.ModelKey.Field(completionResp.Model),
		sieve.PromptTokensKey.Field(completionResp.Usage.PromptTokens),
		sieve.CompletionTokensKey.Field(completionResp.Usage.CompletionTokens),
		sieve.TotalTokensKey.Field(completionResp.Usage.TotalTokens),
		sieve.DurationMsKey.Field(int(duration.Milliseconds())),
		sieve.HTTPStatusCodeKey.Field(resp.StatusCode),
		sieve.ResponseIDKey.Field(completionResp.ID),
	}

	if completionResp.Choices[0].FinishReason != "" {
		fields = append(fields, sieve.ResponseFinishReasonKey.Field(completionResp.Choices[0].FinishReason))
	}

	capitan.Emit(ctx, sieve.ProviderCallCompleted, fields...)

	return &sieve.ProviderResponse{
		Content: completionResp.Choices[0].Message.Content,
		Usage: sieve.TokenUsage{
			Prompt:     completionResp.Usage.PromptTokens,
			Completion: completionResp.Usage.CompletionTokens,
			Total:      completionResp.Usage.TotalTokens,
		},
	}, nil
}

// Request/Response types for the OpenAI API

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
