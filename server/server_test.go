package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenthub/core"
	"github.com/hupe1980/agenthub/knowledge"
	"github.com/hupe1980/agenthub/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *registry.Registry, *knowledge.Manager) {
	t.Helper()

	km := knowledge.NewManager()
	reg := registry.New(func(o *registry.Options) { o.Knowledge = km })

	def, err := core.NewDefinition("echo", "Echo Agent", "answers with the query",
		core.RunnerFunc(func(_ context.Context, query string, _ map[string]any) (*core.Result, error) {
			if query == "" {
				return nil, core.ErrEmptyQuery
			}
			return &core.Result{Answer: "echo: " + query}, nil
		}))
	require.NoError(t, err)
	require.NoError(t, reg.Register(def))

	return New(reg, km), reg, km
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestRunAgent(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/agenthub/agents/echo/run", map[string]any{"query": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.Result
	decode(t, rec, &result)
	assert.Equal(t, "echo: hello", result.Answer)
	assert.Equal(t, "echo", result.Metadata[core.MetadataAgentKey])
}

func TestRunAgentErrorMapping(t *testing.T) {
	s, _, _ := newTestServer(t)

	t.Run("unknown agent is 404", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/agenthub/agents/nope/run", map[string]any{"query": "hello"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing query is 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/agenthub/agents/echo/run", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("runner failure is 500", func(t *testing.T) {
		km := knowledge.NewManager()
		reg := registry.New()
		def, err := core.NewDefinition("bad", "Bad", "",
			core.RunnerFunc(func(_ context.Context, _ string, _ map[string]any) (*core.Result, error) {
				return nil, assert.AnError
			}))
		require.NoError(t, err)
		require.NoError(t, reg.Register(def))

		srv := New(reg, km)
		rec := doJSON(t, srv, http.MethodPost, "/api/agenthub/agents/bad/run", map[string]any{"query": "q"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestListAgentsAndSelector(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/agenthub/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Agents []core.Definition `json:"agents"`
	}
	decode(t, rec, &listResp)
	require.Len(t, listResp.Agents, 1)
	assert.Equal(t, "echo", listResp.Agents[0].Key)

	rec = doJSON(t, s, http.MethodGet, "/api/agenthub/agents/selector", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var selResp struct {
		Entries []core.SelectorEntry `json:"entries"`
	}
	decode(t, rec, &selResp)
	require.Len(t, selResp.Entries, 1)
	assert.Equal(t, "agent:echo", selResp.Entries[0].ID)
}

func TestGetAgent(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/agenthub/agents/echo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/agenthub/agents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKnowledgeBaseLifecycle(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge", map[string]any{
		"name":        "Docs",
		"description": "product docs",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var kb knowledge.KnowledgeBase
	decode(t, rec, &kb)
	require.NotEmpty(t, kb.ID)
	assert.Equal(t, "v1.0.1", kb.CurrentVersion)

	rec = doJSON(t, s, http.MethodPatch, "/api/agenthub/knowledge/"+kb.ID, map[string]any{"name": "Docs v2"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &kb)
	assert.Equal(t, "Docs v2", kb.Name)

	rec = doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/agenthub/knowledge?enabled_only=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		KnowledgeBases []knowledge.KnowledgeBase `json:"knowledge_bases"`
	}
	decode(t, rec, &listResp)
	assert.Empty(t, listResp.KnowledgeBases)

	rec = doJSON(t, s, http.MethodDelete, "/api/agenthub/knowledge/"+kb.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/agenthub/knowledge/"+kb.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionEndpoints(t *testing.T) {
	s, _, km := newTestServer(t)
	kb := km.Create("Docs", "", nil, "tester")

	rec := doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/versions", map[string]any{
		"document_count":   42,
		"total_size_bytes": 2048,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var v knowledge.Version
	decode(t, rec, &v)
	assert.Equal(t, "v1.0.2", v.Version)

	rec = doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/rollback", map[string]any{
		"target_version": "v1.0.1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/agenthub/knowledge/"+kb.ID+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versionsResp struct {
		CurrentVersion string              `json:"current_version"`
		Versions       []knowledge.Version `json:"versions"`
	}
	decode(t, rec, &versionsResp)
	assert.Equal(t, "v1.0.1", versionsResp.CurrentVersion)
	// Rollback never rewrites history.
	assert.Len(t, versionsResp.Versions, 2)

	rec = doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/rollback", map[string]any{
		"target_version": "v9.9.9",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectorEndpoints(t *testing.T) {
	s, _, km := newTestServer(t)
	kb := km.Create("Docs", "", nil, "tester")

	rec := doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/connectors", map[string]any{
		"connector_type": "web_scraper",
		"name":           "crawler",
		"auto_sync":      true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var conn knowledge.ConnectorConfig
	decode(t, rec, &conn)
	require.NotEmpty(t, conn.ConnectorID)

	rec = doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/sync", map[string]any{
		"connector_id": conn.ConnectorID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var syncResp struct {
		Triggered bool `json:"triggered"`
	}
	decode(t, rec, &syncResp)
	assert.True(t, syncResp.Triggered)

	rec = doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/connectors/"+conn.ConnectorID+"/disable", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Disabled connectors are not eligible for sync.
	rec = doJSON(t, s, http.MethodPost, "/api/agenthub/knowledge/"+kb.ID+"/sync", map[string]any{
		"connector_id": conn.ConnectorID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &syncResp)
	assert.False(t, syncResp.Triggered)

	rec = doJSON(t, s, http.MethodDelete, "/api/agenthub/knowledge/"+kb.ID+"/connectors/"+conn.ConnectorID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/agenthub/knowledge/"+kb.ID+"/connectors/"+conn.ConnectorID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, km := newTestServer(t)
	kb := km.Create("Docs", "", nil, "tester")

	km.RecordQuery(kb.ID, true, 12.5)
	km.RecordQuery(kb.ID, false, 40)

	rec := doJSON(t, s, http.MethodGet, "/api/agenthub/knowledge/"+kb.ID+"/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/agenthub/knowledge/"+kb.ID+"/metrics?period_start=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/agenthub/knowledge/missing/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
