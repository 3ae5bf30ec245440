// Package model defines the generation provider collaborator consumed by
// pipeline steps: a minimal single-shot text generation contract with
// vendor adapters in subpackages (openai, anthropic).
//
// Provider failures surface as a single error kind, ErrGenerationUnavailable,
// wrapped around the vendor error. There is no internal retry; retry policy
// belongs to the provider integration, not the core.
package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrGenerationUnavailable wraps any provider-side generation failure,
// including missing credentials detected up front.
var ErrGenerationUnavailable = errors.New("generation provider unavailable")

// Info contains metadata about a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Generator is the minimal interface pipeline steps use to drive generation.
type Generator interface {
	// Generate produces a completion for the prompt. Implementations fail
	// fast with ErrGenerationUnavailable when the provider cannot be
	// reached or is misconfigured.
	Generate(ctx context.Context, prompt string) (string, error)

	// Info returns information about the generator implementation.
	Info() Info
}

// MockGenerator is a lightweight in-memory Generator useful for tests &
// examples. Responses are matched by prompt substring so step prompts with
// dynamic content still hit their canned output.
type MockGenerator struct {
	info      Info
	responses map[string]string
	err       error
}

// NewMockGenerator constructs a MockGenerator.
func NewMockGenerator(name string) *MockGenerator {
	return &MockGenerator{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion returned whenever
// the prompt contains marker.
func (m *MockGenerator) AddResponse(marker, response string) { m.responses[marker] = response }

// FailWith forces every Generate call to return the given error.
func (m *MockGenerator) FailWith(err error) { m.err = err }

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	for marker, response := range m.responses {
		if marker != "" && strings.Contains(strings.ToLower(prompt), strings.ToLower(marker)) {
			return response, nil
		}
	}
	return fmt.Sprintf("Mock response to: %s", prompt), nil
}

// Info implements Generator.
func (m *MockGenerator) Info() Info { return m.info }
