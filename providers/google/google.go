// Package google provides a sieve Provider backed by the Google Gemini API.
// The active schema maps onto Gemini's response_schema generation config
// (an OpenAPI subset, so the sieve fields are converted rather than the raw
// JSON Schema document being passed through).
package google

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

// Provider implements the sieve Provider interface for the Google Gemini API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	name       string
}

// Config holds configuration for the Google provider.
type Config struct {
	APIKey  string
	Model   string        // e.g. "gemini-2.0-flash"
	BaseURL string        // Optional, defaults to the Google AI API
	Timeout time.Duration // Optional, defaults to 30s
}

// New creates a new Google provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		apiKey:  config.APIKey,
		model:   config.Model,
		baseURL: config.BaseURL,
		name:    "google",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends the conversation to Gemini and returns the response.
func (p *Provider) Call(ctx context.Context, messages []sieve.Message, schema *sieve.Schema, temperature float32) (*sieve.ProviderResponse, error) {
	startTime := time.Now()

	capitan.Emit(ctx, sieve.ProviderCallStarted,
		sieve.ProviderKey.Field(p.name),
		sieve.ModelKey.Field(p.model),
		sieve.SchemaNameKey.Field(schema.Name()),
	)

	contents := make([]content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == sieve.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: m.Content}},
		})
	}

	requestBody := generateContentRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:      temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchemaFor(schema),
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

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
			fields = append(fields, sieve.ErrorKey.Field(errorResp.Error.Message))
			capitan.Emit(ctx, sieve.ProviderCallFailed, fields...)

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("rate limit exceeded: %s", errorResp.Error.Message)
			}
			return nil, fmt.Errorf("google error (%d): %s", resp.StatusCode, errorResp.Error.Message)
		}

		fields = append(fields, sieve.ErrorKey.Field(fmt.Sprintf("status %d", resp.StatusCode)))
		capitan.Emit(ctx, sieve.ProviderCallFailed, fields...)
		return nil, fmt.Errorf("google error: status %d", resp.StatusCode)
	}

	var contentResp generateContentResponse
	if err := json.Unmarshal(body, &contentResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(contentResp.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates returned")
	}

	var text string
	for _, prt := range contentResp.Candidates[0].Content.Parts {
		text += prt.Text
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	duration := time.Since(startTime)
	usage := contentResp.UsageMetadata

	capitan.Emit(ctx, sieve.ProviderCallCompleted,
		sieve.ProviderKey.Field(p.name),
		sieve.ModelKey.Field(p.model),
		sieve.PromptTokensKey.Field(usage.PromptTokenCount),
		sieve.CompletionTokensKey.Field(usage.CandidatesTokenCount),
		sieve.TotalTokensKey.Field(usage.TotalTokenCount),
		sieve.DurationMsKey.Field(int(duration.Milliseconds())),
		sieve.HTTPStatusCodeKey.Field(resp.StatusCode),
	)

	return &sieve.ProviderResponse{
		Content: text,
		Usage: sieve.TokenUsage{
			Prompt:     usage.PromptTokenCount,
			Completion: usage.CandidatesTokenCount,
			Total:      usage.TotalTokenCount,
		},
	}, nil
}

// responseSchemaFor converts sieve fields to Gemini's OpenAPI-subset schema.
func responseSchemaFor(schema *sieve.Schema) *responseSchema {
	properties := make(map[string]*responseSchema)
	var required []string

	for _, f := range schema.Fields() {
		prop := &responseSchema{Description: f.Description}
		switch f.Kind {
		case sieve.KindInt:
			prop.Type = "INTEGER"
		case sieve.KindEnum:
			prop.Type = "STRING"
			prop.Enum = f.Values
		default:
			prop.Type = "STRING"
		}
		properties[f.Name] = prop

		if !f.Optional {
			required = append(required, f.Name)
		}
	}

	return &responseSchema{
		Type:       "OBJECT",
		Properties: properties,
		Required:   required,
	}
}

// Request/Response types for the Gemini API

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float32         `json:"temperature"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   *responseSchema `json:"responseSchema,omitempty"`
}

type responseSchema struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description,omitempty"`
	Enum        []string                   `json:"enum,omitempty"`
	Properties  map[string]*responseSchema `json:"properties,omitempty"`
	Required    []string                   `json:"required,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
