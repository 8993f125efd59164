package sieve

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// MockProvider simulates LLM behavior for testing.
// It fabricates a schema-satisfying reply deterministically: first enum value,
// low bound for bounded integers, a placeholder for strings. Calls are
// counted so tests can assert the endpoint was (or was not) reached.
type MockProvider struct {
	name      string
	available atomic.Bool
	calls     atomic.Int64
}

// NewMockProvider creates a new mock provider for testing.
func NewMockProvider() *MockProvider {
	m := &MockProvider{name: "mock"}
	m.available.Store(true)
	return m
}

// NewMockProviderWithName creates a new mock provider with a specific name.
func NewMockProviderWithName(name string) *MockProvider {
	m := &MockProvider{name: name}
	m.available.Store(true)
	return m
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return m.name }

// SetAvailable sets the availability status (for testing failures).
func (m *MockProvider) SetAvailable(available bool) {
	m.available.Store(available)
}

// CallCount returns how many times Call has been invoked.
func (m *MockProvider) CallCount() int {
	return int(m.calls.Load())
}

// Call fabricates a deterministic schema-satisfying reply.
func (m *MockProvider) Call(_ context.Context, _ []Message, schema *Schema, _ float32) (*ProviderResponse, error) {
	m.calls.Add(1)

	if !m.available.Load() {
		return nil, fmt.Errorf("provider %s is unavailable", m.name)
	}

	reply := make(map[string]any, len(schema.Fields()))
	for _, f := range schema.Fields() {
		if f.Optional {
			continue
		}
		switch f.Kind {
		case KindInt:
			reply[f.Name] = f.Min
		case KindEnum:
			reply[f.Name] = f.Values[0]
		default:
			reply[f.Name] = "mock " + f.Name
		}
	}

	jsonBytes, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("mock marshal: %w", err)
	}

	return &ProviderResponse{
		Content: string(jsonBytes),
		Usage:   TokenUsage{Prompt: 10, Completion: 5, Total: 15},
	}, nil
}

// NewMockProviderWithResponse creates a mock that always returns a specific
// response. Call counting works the same as MockProvider.
func NewMockProviderWithResponse(response string) *FixedMockProvider {
	return &FixedMockProvider{name: "mock-fixed", response: response}
}

// NewMockProviderWithError creates a mock whose calls always fail.
func NewMockProviderWithError(message string) *FixedMockProvider {
	return &FixedMockProvider{name: "mock-error", errMessage: message}
}

// FixedMockProvider returns a canned response or error on every call.
type FixedMockProvider struct {
	name       string
	response   string
	errMessage string
	calls      atomic.Int64
}

// Name returns the provider identifier.
func (m *FixedMockProvider) Name() string { return m.name }

// CallCount returns how many times Call has been invoked.
func (m *FixedMockProvider) CallCount() int {
	return int(m.calls.Load())
}

// Call returns the canned response or error.
func (m *FixedMockProvider) Call(_ context.Context, _ []Message, _ *Schema, _ float32) (*ProviderResponse, error) {
	m.calls.Add(1)

	if m.errMessage != "" {
		return nil, fmt.Errorf("%s", m.errMessage)
	}
	return &ProviderResponse{
		Content: m.response,
		Usage:   TokenUsage{Prompt: 10, Completion: 5, Total: 15},
	}, nil
}

// NewMockProviderWithCallback creates a mock that delegates response
// generation to a function. The callback sees the full message history and
// the active schema.
func NewMockProviderWithCallback(callback func(messages []Message, schema *Schema, temperature float32) (string, error)) *CallbackMockProvider {
	return &CallbackMockProvider{name: "mock-callback", callback: callback}
}

// CallbackMockProvider delegates response generation to a callback.
type CallbackMockProvider struct {
	name     string
	callback func([]Message, *Schema, float32) (string, error)
	calls    atomic.Int64
}

// Name returns the provider identifier.
func (m *CallbackMockProvider) Name() string { return m.name }

// CallCount returns how many times Call has been invoked.
func (m *CallbackMockProvider) CallCount() int {
	return int(m.calls.Load())
}

// Call invokes the callback.
func (m *CallbackMockProvider) Call(_ context.Context, messages []Message, schema *Schema, temperature float32) (*ProviderResponse, error) {
	m.calls.Add(1)

	content, err := m.callback(messages, schema, temperature)
	if err != nil {
		return nil, err
	}
	return &ProviderResponse{
		Content: content,
		Usage:   TokenUsage{Prompt: 10, Completion: 5, Total: 15},
	}, nil
}
