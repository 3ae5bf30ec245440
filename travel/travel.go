// Package travel implements the travel-planning agent: a four step pipeline
// (analyze, search, plan, synthesize) with conditional branching between
// analysis and retrieval. It is the reference instance of the generic
// pipeline contract and is biased toward progress over interrogation: a
// definite destination always proceeds to planning, and clarification is
// asked only when the query is truly unanchored.
package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/agenthub/core"
	"github.com/hupe1980/agenthub/logging"
	"github.com/hupe1980/agenthub/model"
	"github.com/hupe1980/agenthub/pipeline"
	"github.com/hupe1980/agenthub/search"
)

// Pipeline step names.
const (
	StepAnalyze    = "analyze"
	StepSearch     = "search"
	StepPlan       = "plan"
	StepSynthesize = "synthesize"
)

// Bounds on external retrieval per run. Partial failures of individual
// searches are swallowed; retrieval is best-effort, not all-or-nothing.
const (
	maxSearchQueries       = 2
	maxResultsPerQuery     = 4
	maxClarifyingQuestions = 2
)

// Preferences is the structured extraction produced by the analyze step.
type Preferences struct {
	Destination string   `json:"destination"`
	Duration    string   `json:"duration"`
	Budget      string   `json:"budget"`
	Interests   []string `json:"interests"`
}

// Plan is one structured proposal artifact produced by the planning step.
// Content is free-form rich text; it is not machine-validated beyond
// presence.
type Plan struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// State is the pipeline state threaded through the steps. Each step's output
// is the next step's sole input.
type State struct {
	Query                  string
	Preferences            Preferences
	NeedsClarification     bool
	ClarificationQuestions []string
	SearchResults          []search.Result
	Plans                  []Plan
	Answer                 string
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Runner executes the travel-planning pipeline and satisfies core.Runner.
// Provider configuration is validated once at construction, not per step.
type Runner struct {
	generator model.Generator
	searcher  search.Provider
	pipe      *pipeline.Pipeline[State]
	logger    logging.Logger
}

// NewRunner constructs the travel runner. Both collaborators are required;
// a missing generator fails fast with ErrGenerationUnavailable so the
// configuration problem surfaces before any query is accepted.
func NewRunner(generator model.Generator, searcher search.Provider, optFns ...func(o *RunnerOptions)) (*Runner, error) {
	if generator == nil {
		return nil, fmt.Errorf("%w: no generator configured", model.ErrGenerationUnavailable)
	}
	if searcher == nil {
		return nil, fmt.Errorf("travel runner requires a search provider")
	}

	opts := RunnerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Runner{generator: generator, searcher: searcher, logger: opts.Logger}
	r.pipe = r.buildPipeline()
	return r, nil
}

// buildPipeline wires the state machine: analyze branches either directly to
// synthesize (clarification short-circuit) or through search and plan.
func (r *Runner) buildPipeline() *pipeline.Pipeline[State] {
	p := pipeline.New[State](func(o *pipeline.Options[State]) { o.Logger = r.logger })

	p.AddStep(StepAnalyze, r.analyze)
	p.AddStep(StepSearch, r.search)
	p.AddStep(StepPlan, r.plan)
	p.AddStep(StepSynthesize, r.synthesize)

	p.SetEntryPoint(StepAnalyze)
	p.AddBranch(StepAnalyze, func(st State) string {
		if st.NeedsClarification {
			return StepSynthesize
		}
		return StepSearch
	})
	p.AddEdge(StepSearch, StepPlan)
	p.AddEdge(StepPlan, StepSynthesize)
	p.AddEdge(StepSynthesize, pipeline.End)

	return p
}

// Run implements core.Runner. The execution context (knowledge bases, user
// info) is currently unused by this agent.
func (r *Runner) Run(ctx context.Context, query string, _ map[string]any) (*core.Result, error) {
	normalized := strings.TrimSpace(query)
	if normalized == "" {
		return nil, core.ErrEmptyQuery
	}

	final, err := r.pipe.Run(ctx, State{Query: normalized})
	if err != nil {
		return nil, err
	}

	sources := make([]core.Source, 0, len(final.SearchResults))
	for _, sr := range final.SearchResults {
		sources = append(sources, core.Source{Title: sr.Title, URL: sr.URL})
	}
	return &core.Result{Answer: final.Answer, Sources: sources}, nil
}

// analysisResponse is the JSON shape requested from the generator during the
// analyze step.
type analysisResponse struct {
	HasDestination         bool        `json:"has_destination"`
	NeedsClarification     bool        `json:"needs_clarification"`
	ClarificationQuestions []string    `json:"clarification_questions"`
	ExtractedPreferences   Preferences `json:"extracted_preferences"`
}

// analyze extracts structured preferences from the free-text query and
// decides whether clarification is needed. A present destination anchor
// forces needsClarification=false even if the model suggested asking.
func (r *Runner) analyze(ctx context.Context, st State) (State, error) {
	prompt := fmt.Sprintf(`You are an expert travel consultant. Analyze the customer's question and extract information.

IMPORTANT: ONLY request clarification if the destination is COMPLETELY MISSING or the query is extremely vague.
If you have at least a destination or can suggest general options, set needs_clarification to false.

Query: %s

Return JSON:
{
  "has_destination": true/false,
  "needs_clarification": true/false,
  "clarification_questions": ["only ask if absolutely necessary"],
  "extracted_preferences": {
    "destination": "location name or 'general' if unclear",
    "duration": "number of days or 'flexible'",
    "budget": "budget level or 'flexible'",
    "interests": ["activities/preferences"]
  }
}

Prioritize providing plans immediately rather than asking more questions.`, st.Query)

	raw, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return st, err
	}

	parsed, ok := parseAnalysis(raw)
	if !ok {
		// Unparseable analysis: proceed without clarification, treating the
		// whole query as the destination hint.
		st.NeedsClarification = false
		st.Preferences = Preferences{Destination: st.Query, Duration: "flexible", Budget: "flexible"}
		return st, nil
	}

	st.NeedsClarification = parsed.NeedsClarification && !parsed.HasDestination
	st.ClarificationQuestions = parsed.ClarificationQuestions
	if len(st.ClarificationQuestions) > maxClarifyingQuestions {
		st.ClarificationQuestions = st.ClarificationQuestions[:maxClarifyingQuestions]
	}
	st.Preferences = parsed.ExtractedPreferences
	return st, nil
}

// parseAnalysis extracts the first JSON object embedded in the generator
// output. Models routinely wrap JSON in prose or fences, so the object is
// located by brace offsets rather than decoded wholesale.
func parseAnalysis(raw string) (analysisResponse, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return analysisResponse{}, false
	}
	var parsed analysisResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		// Parse failure: assume the run can proceed with generic preferences.
		return analysisResponse{
			HasDestination:       true,
			ExtractedPreferences: Preferences{Destination: "general", Duration: "flexible", Budget: "flexible"},
		}, true
	}
	return parsed, true
}

// search issues a bounded number of retrieval queries built from the
// extracted preferences. Individual failures are logged and excluded from
// the aggregate; a run never fails because one search call did.
func (r *Runner) search(ctx context.Context, st State) (State, error) {
	destination := st.Preferences.Destination
	if destination == "" {
		destination = st.Query
	}

	queries := []string{
		fmt.Sprintf("%s best attractions places to visit", destination),
		fmt.Sprintf("%s hotels accommodation recommendations", destination),
		fmt.Sprintf("%s local food restaurants must try", destination),
		fmt.Sprintf("%s travel tips transportation guide", destination),
	}
	if len(st.Preferences.Interests) > 0 {
		queries[0] += " " + strings.Join(st.Preferences.Interests, " ")
	}

	var all []search.Result
	for _, q := range queries[:maxSearchQueries] {
		results, err := r.searcher.Search(ctx, q, maxResultsPerQuery)
		if err != nil {
			r.logger.Warn("travel search query failed", "query", q, "error", err)
			continue
		}
		all = append(all, results...)
	}

	st.SearchResults = all
	return st, nil
}

// plan turns retrieval results plus preferences into structured proposal
// artifacts.
func (r *Runner) plan(ctx context.Context, st State) (State, error) {
	prefs := st.Preferences

	var sources []string
	for _, item := range st.SearchResults {
		content := truncate(item.Content, 300)
		sources = append(sources, fmt.Sprintf("- %s\n  URL: %s\n  Info: %s", item.Title, item.URL, content))
	}
	if len(sources) > 10 {
		sources = sources[:10]
	}

	interests := "not specified"
	if len(prefs.Interests) > 0 {
		interests = strings.Join(prefs.Interests, ", ")
	}

	prompt := fmt.Sprintf(`You are a professional travel consultant. Create 3 detailed and personalized travel plans.

CLIENT INFORMATION:
- Destination: %s
- Duration: %s
- Budget: %s
- Interests: %s

RESEARCH INFORMATION:
%s

Create 3 DISTINCT plans (Budget-Friendly, Balanced, Premium), each with a
day-by-day itinerary, accommodation suggestions, a budget breakdown, insider
tips and booking resources. Be specific: real names, realistic prices, actual
locations, and include URLs from the research where relevant.`,
		orFlexible(prefs.Destination), orFlexible(prefs.Duration), orFlexible(prefs.Budget), interests,
		strings.Join(sources, "\n"))

	content, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return st, err
	}

	st.Plans = []Plan{{Content: content, Type: "comprehensive_plans"}}
	return st, nil
}

// synthesize assembles the terminal answer. Clarification wins over any
// partial plan output; plans win over the direct-answer fallback.
func (r *Runner) synthesize(ctx context.Context, st State) (State, error) {
	if st.Answer != "" {
		return st, nil
	}

	if st.NeedsClarification && len(st.ClarificationQuestions) > 0 {
		var b strings.Builder
		b.WriteString("# Quick Questions\n\n")
		b.WriteString("To create the perfect itinerary for you, I need a bit more information:\n\n")
		for i, q := range st.ClarificationQuestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		b.WriteString("\nTip: include destination, duration, and budget for the best recommendations.")
		st.Answer = b.String()
		return st, nil
	}

	if len(st.Plans) > 0 {
		st.Answer = r.formatPlans(st)
		return st, nil
	}

	// Rare fallback: no clarification and no plans; answer directly from
	// whatever retrieval context exists.
	var sources []string
	for _, item := range st.SearchResults {
		content := truncate(item.Content, 200)
		sources = append(sources, fmt.Sprintf("- %s\n  %s\n  %s", item.Title, item.URL, content))
	}
	if len(sources) > 5 {
		sources = sources[:5]
	}

	prompt := fmt.Sprintf(`Based on the research findings, provide a detailed and friendly answer to the customer's travel question.

Question: %s

Research Information:
%s

Provide specific, practical suggestions covering attractions, accommodation,
food, tips and reference links, formatted in clean scannable markdown.`,
		st.Query, strings.Join(sources, "\n"))

	answer, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return st, err
	}
	st.Answer = "# Travel Guide\n\n" + answer
	return st, nil
}

// formatPlans prefixes the plan content with a short personalized header.
func (r *Runner) formatPlans(st State) string {
	prefs := st.Preferences

	var b strings.Builder
	if prefs.Destination != "" && prefs.Destination != "general" {
		fmt.Fprintf(&b, "# Your %s Adventure Awaits\n\n", prefs.Destination)
		if prefs.Duration != "" && prefs.Duration != "flexible" {
			fmt.Fprintf(&b, "%s of experiences", prefs.Duration)
			if prefs.Budget != "" && prefs.Budget != "flexible" {
				fmt.Fprintf(&b, " on a %s budget", prefs.Budget)
			}
			b.WriteString("\n\n")
		}
		if len(prefs.Interests) > 0 {
			fmt.Fprintf(&b, "Focus: %s\n\n", strings.Join(prefs.Interests, ", "))
		}
	} else {
		b.WriteString("# Your Perfect Journey Starts Here\n\n")
	}
	b.WriteString("---\n\n")
	b.WriteString(st.Plans[0].Content)
	return b.String()
}

func orFlexible(s string) string {
	if s == "" {
		return "flexible"
	}
	return s
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// NewDefinition packages the runner as a registrable agent definition.
func NewDefinition(r *Runner) (*core.Definition, error) {
	return core.NewDefinition(
		"travel_planning_agent",
		"AI Travel Planning Assistant",
		"Professional travel consultant producing three detailed plans (budget, balanced, premium) with day-by-day itineraries, accommodation and insider tips.",
		r,
		func(o *core.DefinitionOptions) {
			o.AgentType = core.AgentTypeConversational
			o.Capabilities = []core.Capability{core.CapabilityWebSearch, core.CapabilityConditionalLogic}
			o.Tags = []string{"travel", "planning"}
		},
	)
}
