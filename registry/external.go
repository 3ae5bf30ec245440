package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/agenthub/core"
)

// AuthMethod selects how an external runner authenticates its requests.
type AuthMethod string

const (
	AuthNone   AuthMethod = "none"
	AuthBearer AuthMethod = "bearer"
	AuthAPIKey AuthMethod = "api_key"
)

// ExternalAPIOptions configures an ExternalAPIRunner.
type ExternalAPIOptions struct {
	// Auth selects the authentication method. Defaults to AuthNone.
	Auth AuthMethod
	// APIKey is the credential used by AuthBearer and AuthAPIKey.
	APIKey string
	// APIKeyHeader names the header used by AuthAPIKey. Defaults to "X-API-Key".
	APIKeyHeader string
	// Headers are extra headers added to every request.
	Headers map[string]string
	// Client defaults to an http.Client with a 60 second timeout.
	Client *http.Client
}

// ExternalAPIRunner dispatches queries to a remote agent over HTTP. The
// remote endpoint receives a JSON body {"query": ..., "context": ...} and
// must answer with {"answer": ..., "sources": [...], "metadata": {...}}.
type ExternalAPIRunner struct {
	endpoint     string
	auth         AuthMethod
	apiKey       string
	apiKeyHeader string
	headers      map[string]string
	client       *http.Client
}

// Compile time check that the external runner satisfies the agent contract.
var _ core.Runner = (*ExternalAPIRunner)(nil)

// NewExternalAPIRunner constructs a runner for a remote agent endpoint.
func NewExternalAPIRunner(endpoint string, optFns ...func(o *ExternalAPIOptions)) (*ExternalAPIRunner, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("external agent endpoint must not be empty")
	}

	opts := ExternalAPIOptions{
		Auth:         AuthNone,
		APIKeyHeader: "X-API-Key",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Auth != AuthNone && opts.APIKey == "" {
		return nil, fmt.Errorf("auth method %q requires an api key", opts.Auth)
	}

	return &ExternalAPIRunner{
		endpoint:     endpoint,
		auth:         opts.Auth,
		apiKey:       opts.APIKey,
		apiKeyHeader: opts.APIKeyHeader,
		headers:      opts.Headers,
		client:       opts.Client,
	}, nil
}

type externalRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

type externalSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type externalResponse struct {
	Answer   string           `json:"answer"`
	Sources  []externalSource `json:"sources"`
	Metadata map[string]any   `json:"metadata"`
}

// Run implements core.Runner.
func (r *ExternalAPIRunner) Run(ctx context.Context, query string, execCtx map[string]any) (*core.Result, error) {
	body, err := json.Marshal(externalRequest{Query: query, Context: execCtx})
	if err != nil {
		return nil, fmt.Errorf("marshal external agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build external agent request: %w", err)
	}
	r.applyHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call external agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("external agent returned status %d: %s", resp.StatusCode, snippet)
	}

	var parsed externalResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode external agent response: %w", err)
	}

	sources := make([]core.Source, 0, len(parsed.Sources))
	for _, s := range parsed.Sources {
		sources = append(sources, core.Source{Title: s.Title, URL: s.URL})
	}
	return &core.Result{Answer: parsed.Answer, Sources: sources, Metadata: parsed.Metadata}, nil
}

// TestConnection issues a lightweight probe against the endpoint. Any HTTP
// answer below 500 counts as reachable; auth failures still prove the
// endpoint is alive.
func (r *ExternalAPIRunner) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	r.applyHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("external agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("external agent unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (r *ExternalAPIRunner) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	switch r.auth {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	case AuthAPIKey:
		req.Header.Set(r.apiKeyHeader, r.apiKey)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
}
