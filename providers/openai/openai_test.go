package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zoobzio/sieve"
)

func testSchema(t *testing.T) *sieve.Schema {
	t.Helper()
	return sieve.MustSchema("labels",
		sieve.Enum("sentiment", "happy", "neutral", "sad"),
		sieve.BoundedInt("aggressiveness", 1, 5),
	)
}

func TestProviderCall(t *testing.T) {
	schema := testSchema(t)

	// Create a test server that mimics OpenAI API
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify headers
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Bearer token, got %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		// Verify request body
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		if req.Model != "gpt-4o-mini" {
			t.Errorf("Expected model gpt-4o-mini, got %s", req.Model)
		}
		if req.Temperature != 0.7 {
			t.Errorf("Expected temperature 0.7, got %f", req.Temperature)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "test prompt" {
			t.Errorf("Unexpected messages: %v", req.Messages)
		}

		// Verify the schema travels as a strict response format
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
			t.Fatalf("Expected json_schema response format, got %+v", req.ResponseFormat)
		}
		if req.ResponseFormat.JSONSchema.Name != "labels" || !req.ResponseFormat.JSONSchema.Strict {
			t.Errorf("Unexpected schema format: %+v", req.ResponseFormat.JSONSchema)
		}
		if !strings.Contains(string(req.ResponseFormat.JSONSchema.Schema), `"sentiment"`) {
			t.Error("Schema document missing declared field")
		}

		// Send response
		resp := chatCompletionResponse{
			ID:      "test-id",
			Object:  "chat.completion",
			Created: 1234567890,
			Model:   "gpt-4o-mini",
			Choices: []choice{
				{
					Index: 0,
					Message: message{
						Role:    "assistant",
						Content: `{"sentiment": "neutral", "aggressiveness": 3}`,
					},
					FinishReason: "stop",
				},
			},
			Usage: usage{
				PromptTokens:     10,
				CompletionTokens: 5,
				TotalTokens:      15,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	// Create provider with test server URL
	provider := New(Config{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: server.URL,
	})

	messages := []sieve.Message{{Role: sieve.RoleUser, Content: "test prompt"}}
	response, err := provider.Call(context.Background(), messages, schema, 0.7)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if response.Content != `{"sentiment": "neutral", "aggressiveness": 3}` {
		t.Errorf("Unexpected content: %s", response.Content)
	}
	if response.Usage.Total != 15 {
		t.Errorf("Expected total usage 15, got %d", response.Usage.Total)
	}
}

func TestProviderErrorHandling(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		responseBody  string
		expectedError string
	}{
		{
			name:       "Rate limit error",
			statusCode: http.StatusTooManyRequests,
			responseBody: `{
				"error": {
					"message": "Rate limit exceeded",
					"type": "rate_limit_error",
					"code": "rate_limit"
				}
			}`,
			expectedError: "rate limit exceeded",
		},
		{
			name:       "API error",
			statusCode: http.StatusBadRequest,
			responseBody: `{
				"error": {
					"message": "Invalid request",
					"type": "invalid_request_error"
				}
			}`,
			expectedError: "openai error (400): Invalid request",
		},
		{
			name:          "Generic error",
			statusCode:    http.StatusInternalServerError,
			responseBody:  `not json`,
			expectedError: "openai error: status 500",
		},
		{
			name:          "Empty response",
			statusCode:    http.StatusOK,
			responseBody:  `{"choices": []}`,
			expectedError: "no response choices returned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			provider := New(Config{
				APIKey:  "test-key",
				BaseURL: server.URL,
			})

			messages := []sieve.Message{{Role: sieve.RoleUser, Content: "test"}}
			_, err := provider.Call(context.Background(), messages, testSchema(t), 0.7)
			if err == nil {
				t.Fatal("Expected error but got none")
			}

			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.expectedError, err.Error())
			}
		})
	}
}

func TestProviderDefaults(t *testing.T) {
	provider := New(Config{APIKey: "test-key"})

	if provider.Name() != "openai" {
		t.Errorf("Expected provider name 'openai', got %s", provider.Name())
	}
	if provider.model != "gpt-4o-mini" {
		t.Errorf("Expected default model gpt-4o-mini, got %s", provider.model)
	}
	if provider.baseURL != "https://api.openai.com/v1" {
		t.Errorf("Unexpected default base URL: %s", provider.baseURL)
	}
}
