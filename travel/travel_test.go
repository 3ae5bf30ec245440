package travel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenthub/core"
	"github.com/hupe1980/agenthub/model"
	"github.com/hupe1980/agenthub/search"
)

// Compile time check that the runner satisfies the agent contract.
var _ core.Runner = (*Runner)(nil)

func newTestRunner(t *testing.T) (*Runner, *model.MockGenerator, *search.MockProvider) {
	t.Helper()

	gen := model.NewMockGenerator("test-model")
	searcher := search.NewMockProvider()

	r, err := NewRunner(gen, searcher)
	require.NoError(t, err)

	return r, gen, searcher
}

func TestNewRunner(t *testing.T) {
	t.Run("requires generator", func(t *testing.T) {
		_, err := NewRunner(nil, search.NewMockProvider())
		assert.ErrorIs(t, err, model.ErrGenerationUnavailable)
	})

	t.Run("requires search provider", func(t *testing.T) {
		_, err := NewRunner(model.NewMockGenerator("test-model"), nil)
		assert.Error(t, err)
	})
}

func TestRunEmptyQuery(t *testing.T) {
	r, _, _ := newTestRunner(t)

	_, err := r.Run(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, core.ErrEmptyQuery)
}

func TestRunProducesPlans(t *testing.T) {
	r, gen, searcher := newTestRunner(t)

	gen.AddResponse("analyze the customer", `{
		"has_destination": true,
		"needs_clarification": false,
		"clarification_questions": [],
		"extracted_preferences": {
			"destination": "Tokyo",
			"duration": "5 days",
			"budget": "moderate",
			"interests": ["food", "temples"]
		}
	}`)
	gen.AddResponse("professional travel consultant", "Plan A ... Plan B ... Plan C")

	searcher.AddResults("tokyo best attractions",
		search.Result{Title: "Top 10 Tokyo", URL: "https://example.com/tokyo", Content: "Senso-ji, Shibuya crossing"},
	)
	searcher.AddResults("tokyo hotels",
		search.Result{Title: "Tokyo Hotels", URL: "https://example.com/hotels", Content: "Shinjuku stays"},
	)

	result, err := r.Run(context.Background(), "Plan me a trip to Tokyo", nil)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "Tokyo Adventure Awaits")
	assert.Contains(t, result.Answer, "Plan A")
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "https://example.com/tokyo", result.Sources[0].URL)
}

func TestRunClarificationShortCircuit(t *testing.T) {
	r, gen, searcher := newTestRunner(t)

	gen.AddResponse("analyze the customer", `{
		"has_destination": false,
		"needs_clarification": true,
		"clarification_questions": ["Where would you like to go?", "How long is your trip?", "What is your budget?"],
		"extracted_preferences": {"destination": "", "duration": "", "budget": "", "interests": []}
	}`)
	searcher.FailWith(errors.New("search must not run during clarification"))

	result, err := r.Run(context.Background(), "help me plan something", nil)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "Quick Questions")
	// Questions are capped at two.
	assert.Contains(t, result.Answer, "1. Where would you like to go?")
	assert.Contains(t, result.Answer, "2. How long is your trip?")
	assert.NotContains(t, result.Answer, "What is your budget?")
	assert.Empty(t, result.Sources)
}

func TestRunDestinationOverridesClarification(t *testing.T) {
	// A present destination anchor forces progress even when the model
	// asked for clarification.
	r, gen, _ := newTestRunner(t)

	gen.AddResponse("analyze the customer", `{
		"has_destination": true,
		"needs_clarification": true,
		"clarification_questions": ["What is your budget?"],
		"extracted_preferences": {"destination": "Lisbon", "duration": "flexible", "budget": "flexible", "interests": []}
	}`)
	gen.AddResponse("professional travel consultant", "Three Lisbon plans")

	result, err := r.Run(context.Background(), "weekend in Lisbon", nil)
	require.NoError(t, err)

	assert.NotContains(t, result.Answer, "Quick Questions")
	assert.Contains(t, result.Answer, "Three Lisbon plans")
}

func TestRunSearchFailuresAreBestEffort(t *testing.T) {
	r, gen, searcher := newTestRunner(t)

	gen.AddResponse("analyze the customer", `{
		"has_destination": true,
		"needs_clarification": false,
		"clarification_questions": [],
		"extracted_preferences": {"destination": "Oslo", "duration": "3 days", "budget": "high", "interests": []}
	}`)
	gen.AddResponse("professional travel consultant", "Oslo plans")
	searcher.FailWith(errors.New("provider down"))

	result, err := r.Run(context.Background(), "trip to Oslo", nil)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "Oslo plans")
	assert.Empty(t, result.Sources)
}

func TestRunUnparseableAnalysisFallsBack(t *testing.T) {
	r, gen, _ := newTestRunner(t)

	gen.AddResponse("analyze the customer", "I cannot produce JSON today, sorry.")
	gen.AddResponse("professional travel consultant", "Fallback plans")

	result, err := r.Run(context.Background(), "visit Kyoto in autumn", nil)
	require.NoError(t, err)

	// Progress bias: no clarification detour on parse failure.
	assert.NotContains(t, result.Answer, "Quick Questions")
	assert.Contains(t, result.Answer, "Fallback plans")
}

func TestRunGenerationFailurePropagates(t *testing.T) {
	r, gen, _ := newTestRunner(t)

	gen.FailWith(model.ErrGenerationUnavailable)

	_, err := r.Run(context.Background(), "trip to Rome", nil)
	assert.ErrorIs(t, err, model.ErrGenerationUnavailable)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 300))

	// A cut that lands inside a multi-byte sequence must back off to the
	// preceding rune boundary and still yield valid UTF-8.
	cjk := strings.Repeat("東京観光", 100)
	for _, max := range []int{200, 300} {
		out := truncate(cjk, max)
		assert.LessOrEqual(t, len(out), max)
		assert.True(t, utf8.ValidString(out))
	}

	emoji := "plan 🗼🗾" + strings.Repeat("🌸", 100)
	out := truncate(emoji, 10)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(emoji, out))
}

func TestParseAnalysisExtractsEmbeddedJSON(t *testing.T) {
	raw := "Sure! Here is the analysis:\n```json\n{\"has_destination\": true, \"needs_clarification\": false, \"extracted_preferences\": {\"destination\": \"Bali\"}}\n```\nHope that helps."

	parsed, ok := parseAnalysis(raw)
	require.True(t, ok)
	assert.True(t, parsed.HasDestination)
	assert.Equal(t, "Bali", parsed.ExtractedPreferences.Destination)
}

func TestNewDefinition(t *testing.T) {
	r, _, _ := newTestRunner(t)

	def, err := NewDefinition(r)
	require.NoError(t, err)

	assert.Equal(t, "travel_planning_agent", def.Key)
	assert.Equal(t, core.AgentTypeConversational, def.AgentType)
	assert.True(t, def.HasCapability(core.CapabilityWebSearch))
	assert.True(t, def.HasCapability(core.CapabilityConditionalLogic))
}
