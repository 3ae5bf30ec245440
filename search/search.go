// Package search defines the retrieval provider collaborator used by
// pipeline search steps, plus a mock for tests and a minimal HTTP client for
// Tavily-style search APIs.
//
// A failed search yields an empty result set at the call site by contract of
// the consuming pipeline (best-effort aggregation); providers themselves
// still return errors so callers can log them.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Result is one retrieved document reference.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Provider is the retrieval collaborator contract.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// MockProvider is an in-memory Provider for tests & examples. Canned results
// are matched by query substring; unmatched queries return no results.
type MockProvider struct {
	results map[string][]Result
	err     error
}

// NewMockProvider constructs an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{results: make(map[string][]Result)}
}

// AddResults registers canned results returned whenever the query contains marker.
func (m *MockProvider) AddResults(marker string, results ...Result) {
	m.results[marker] = append(m.results[marker], results...)
}

// FailWith forces every Search call to return the given error.
func (m *MockProvider) FailWith(err error) { m.err = err }

// Search implements Provider.
func (m *MockProvider) Search(_ context.Context, query string, maxResults int) ([]Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Result
	for marker, results := range m.results {
		if strings.Contains(strings.ToLower(query), strings.ToLower(marker)) {
			out = append(out, results...)
		}
	}
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// HTTPOptions configures the HTTP search provider.
type HTTPOptions struct {
	// Endpoint is the search API URL.
	Endpoint string
	// APIKey authenticates the request. Defaults to TAVILY_API_KEY.
	APIKey string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// SearchDepth is passed through to the API ("basic" or "advanced").
	SearchDepth string
}

// HTTPProvider calls a Tavily-compatible JSON search API.
type HTTPProvider struct {
	opts HTTPOptions
}

// NewHTTPProvider constructs an HTTPProvider with Tavily defaults.
func NewHTTPProvider(optFns ...func(o *HTTPOptions)) *HTTPProvider {
	opts := HTTPOptions{
		Endpoint:    "https://api.tavily.com/search",
		APIKey:      os.Getenv("TAVILY_API_KEY"),
		Client:      http.DefaultClient,
		SearchDepth: "advanced",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &HTTPProvider{opts: opts}
}

// Available reports whether the API credential is configured.
func (p *HTTPProvider) Available() bool { return p.opts.APIKey != "" }

type httpSearchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeAnswer bool   `json:"include_answer,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
}

type httpSearchResponse struct {
	Results []Result `json:"results"`
}

// Search implements Provider.
func (p *HTTPProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	body, err := json.Marshal(httpSearchRequest{
		APIKey:        p.opts.APIKey,
		Query:         query,
		SearchDepth:   p.opts.SearchDepth,
		IncludeAnswer: true,
		MaxResults:    maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var parsed httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if maxResults > 0 && len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}
	return parsed.Results, nil
}
