package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Generator = (*MockGenerator)(nil)

func TestMockGeneratorMarkers(t *testing.T) {
	g := NewMockGenerator("test")
	g.AddResponse("travel plan", "here are three plans")

	out, err := g.Generate(context.Background(), "Please create a TRAVEL PLAN for Rome")
	require.NoError(t, err)
	assert.Equal(t, "here are three plans", out)

	out, err = g.Generate(context.Background(), "unrelated prompt")
	require.NoError(t, err)
	assert.Contains(t, out, "Mock response to:")
}

func TestMockGeneratorFailure(t *testing.T) {
	g := NewMockGenerator("test")
	sentinel := errors.New("quota exceeded")
	g.FailWith(sentinel)

	_, err := g.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, sentinel)
}

func TestMockGeneratorContext(t *testing.T) {
	g := NewMockGenerator("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockGeneratorInfo(t *testing.T) {
	g := NewMockGenerator("test")
	info := g.Info()
	assert.Equal(t, "test", info.Name)
	assert.Equal(t, "mock", info.Provider)
}
