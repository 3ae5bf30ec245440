package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExternalAPIRunner(t *testing.T) {
	t.Run("requires endpoint", func(t *testing.T) {
		_, err := NewExternalAPIRunner("")
		assert.Error(t, err)
	})

	t.Run("auth requires api key", func(t *testing.T) {
		_, err := NewExternalAPIRunner("https://example.com/agent", func(o *ExternalAPIOptions) {
			o.Auth = AuthBearer
		})
		assert.Error(t, err)
	})
}

func TestExternalAPIRunnerRun(t *testing.T) {
	var gotAuth, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req externalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotBody = req.Query

		json.NewEncoder(w).Encode(externalResponse{
			Answer: "remote answer",
			Sources: []externalSource{
				{Title: "Doc", URL: "https://example.com/doc"},
			},
			Metadata: map[string]any{"remote": true},
		})
	}))
	defer srv.Close()

	runner, err := NewExternalAPIRunner(srv.URL, func(o *ExternalAPIOptions) {
		o.Auth = AuthBearer
		o.APIKey = "secret"
	})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "what is up", map[string]any{"user": "u1"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "what is up", gotBody)
	assert.Equal(t, "remote answer", result.Answer)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "https://example.com/doc", result.Sources[0].URL)
	assert.Equal(t, true, result.Metadata["remote"])
}

func TestExternalAPIRunnerAPIKeyHeader(t *testing.T) {
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Custom-Key")
		json.NewEncoder(w).Encode(externalResponse{Answer: "ok"})
	}))
	defer srv.Close()

	runner, err := NewExternalAPIRunner(srv.URL, func(o *ExternalAPIOptions) {
		o.Auth = AuthAPIKey
		o.APIKey = "k123"
		o.APIKeyHeader = "X-Custom-Key"
	})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "k123", gotKey)
}

func TestExternalAPIRunnerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	runner, err := NewExternalAPIRunner(srv.URL)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestExternalAPIRunnerTestConnection(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		runner, err := NewExternalAPIRunner(srv.URL)
		require.NoError(t, err)
		// A 4xx still proves the endpoint is alive.
		assert.NoError(t, runner.TestConnection(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		runner, err := NewExternalAPIRunner(srv.URL)
		require.NoError(t, err)
		assert.Error(t, runner.TestConnection(context.Background()))
	})
}
