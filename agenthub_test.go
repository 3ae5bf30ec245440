package agenthub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenthub/core"
	"github.com/hupe1980/agenthub/registry"
)

func TestHubWiring(t *testing.T) {
	hub := New()

	kb := hub.Knowledge().Create("Docs", "", nil, "tester")

	def, err := core.NewDefinition("echo", "Echo", "",
		core.RunnerFunc(func(_ context.Context, query string, _ map[string]any) (*core.Result, error) {
			return &core.Result{Answer: query}, nil
		}),
		func(o *core.DefinitionOptions) {
			o.UseKnowledgeBase = true
			o.KnowledgeBaseIDs = []string{kb.ID}
		})
	require.NoError(t, err)

	// Registration validates knowledge base references against the hub's
	// own manager.
	require.NoError(t, hub.Register(def))

	result, err := hub.Execute(context.Background(), "echo", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Answer)

	// Dispatch booked a query metric on the referenced knowledge base.
	assert.Equal(t, 1, hub.Knowledge().Get(kb.ID).QueryCount)
}

func TestHubRejectsUnknownKnowledgeBase(t *testing.T) {
	hub := New()

	def, err := core.NewDefinition("bad", "Bad", "",
		core.RunnerFunc(func(_ context.Context, _ string, _ map[string]any) (*core.Result, error) {
			return &core.Result{}, nil
		}),
		func(o *core.DefinitionOptions) {
			o.UseKnowledgeBase = true
			o.KnowledgeBaseIDs = []string{"missing"}
		})
	require.NoError(t, err)

	assert.ErrorIs(t, hub.Register(def), registry.ErrUnknownKnowledgeBase)
}
