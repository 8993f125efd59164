// Package anthropic provides a sieve Provider backed by the Anthropic
// Messages API. The active schema travels as a forced tool's input_schema, so
// the model's reply is a tool_use block already shaped like the record.
package anthropic

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

// recordToolName is the forced tool carrying the extraction schema.
const recordToolName = "record_extraction"

// Provider implements the sieve Provider interface for the Anthropic API.
type Provider struct {
	apiKey     string
	model      string
	version    string
	baseURL    string
	httpClient *http.Client
	name       string
}

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey  string
	Model   string        // e.g. "claude-sonnet-4-20250514"
	Version string        // API version, defaults to "2023-06-01"
	BaseURL string        // Optional, defaults to "https://api.anthropic.com/v1"
	Timeout time.Duration // Optional, defaults to 30s
}

// New creates a new Anthropic provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.Version == "" {
		config.Version = "2023-06-01"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		apiKey:  config.APIKey,
		model:   config.Model,
		version: config.Version,
		baseURL: config.BaseURL,
		name:    "anthropic",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends the conversation to Anthropic and returns the response.
// The reply content is the JSON input of the forced tool call, falling back
// to concatenated text blocks if the model answered in prose anyway.
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

	requestBody := messagesRequest{
		Model:       p.model,
		MaxTokens:   4096,
		Temperature: temperature,
		Messages:    apiMessages,
		Tools: []tool{
			{
				Name:        recordToolName,
				Description: "Record the extracted fields for schema " + schema.Name(),
				InputSchema: json.RawMessage(schema.JSONSchema()),
			},
		},
		ToolChoice: &toolChoice{Type: "tool", Name: recordToolName},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", p.version)

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
			capitan.Emit(ctx, sieve.ProviderCallFailed, fields...)

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("rate limit exceeded: %s", errorResp.Error.Message)
			}
			return nil, fmt.Errorf("anthropic error (%d): %s", resp.StatusCode, errorResp.Error.Message)
		}

		fields = append(fields, sieve.ErrorKey.Field(fmt.Sprintf("status %d", resp.StatusCode)))
		capitan.Emit(ctx, sieve.ProviderCallFailed, fields...)
		return nil, fmt.Errorf("anthropic error: status %d", resp.StatusCode)
	}

	var messagesResp messagesResponse
	if err := json.Unmarshal(body, &messagesResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	content, err := extractContent(messagesResp.Content)
	if err != nil {
		return nil, err
	}

	duration := time.Since(startTime)
	totalTokens := messagesResp.Usage.InputTokens + messagesResp.Usage.OutputTokens

	capitan.Emit(ctx, sieve.ProviderCallCompleted,
		sieve.ProviderKey.Field(p.name),
		sieve.ModelKey.Field(messagesResp.Model),
		sieve.PromptTokensKey.Field(messagesResp.Usage.InputTokens),
		sieve.CompletionTokensKey.Field(messagesResp.Usage.OutputTokens),
		sieve.TotalTokensKey.Field(totalTokens),
		sieve.DurationMsKey.Field(int(duration.Milliseconds())),
		sieve.HTTPStatusCodeKey.Field(resp.StatusCode),
		sieve.ResponseIDKey.Field(messagesResp.ID),
	)

	return &sieve.ProviderResponse{
		Content: content,
		Usage: sieve.TokenUsage{
			Prompt:     messagesResp.Usage.InputTokens,
			Completion: messagesResp.Usage.OutputTokens,
			Total:      totalTokens,
		},
	}, nil
}

// extractContent prefers the forced tool_use input, falling back to text.
func extractContent(blocks []contentBlock) (string, error) {
	var text string
	for _, block := range blocks {
		switch block.Type {
		case "tool_use":
			if block.Name == recordToolName && len(block.Input) > 0 {
				return string(block.Input), nil
			}
		case "text":
			text += block.Text
		}
	}

	if text == "" {
		return "", fmt.Errorf("no usable content in response")
	}
	return text, nil
}

// Request/Response types for the Anthropic API

type messagesRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float32     `json:"temperature"`
	Messages    []message   `json:"messages"`
	Tools       []tool      `json:"tools,omitempty"`
	ToolChoice  *toolChoice `json:"tool_choice,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type messagesResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   usage          `json:"usage"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
