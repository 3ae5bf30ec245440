package core

import "context"

// ContextKeyKnowledgeBases is the reserved execution-context key under which
// the registry injects the resolved knowledge base objects before invoking a
// runner. Runners that declare knowledge base usage read their bound KBs from
// this key; everything else in the execution context is caller supplied.
const ContextKeyKnowledgeBases = "knowledge_bases"

// Metadata keys stamped onto a Result by the registry after a successful
// dispatch.
const (
	MetadataAgentKey        = "agent_key"
	MetadataAgentName       = "agent_name"
	MetadataVersion         = "version"
	MetadataExecutionTimeMS = "execution_time_ms"
)

// Source is a document reference backing an answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is the structured answer produced by a runner. Metadata is stamped
// by the registry on dispatch (agent key, name, version, elapsed time); a
// runner may pre-populate it with its own entries which are preserved.
type Result struct {
	Answer   string         `json:"answer"`
	Sources  []Source       `json:"sources"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Runner is the execution contract every registrable agent implements: turn a
// query plus an execution context into a structured Result.
//
// Implementations must:
//   - Respect context cancellation on blocking work
//   - Treat the execution context map as read-only
//   - Return an error rather than a partial Result on failure
//
// Concurrent Run calls on the same Runner must be safe; the registry applies
// no per-key exclusivity.
type Runner interface {
	Run(ctx context.Context, query string, execCtx map[string]any) (*Result, error)
}

// RunnerFunc adapts an ordinary function to the Runner interface.
type RunnerFunc func(ctx context.Context, query string, execCtx map[string]any) (*Result, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, query string, execCtx map[string]any) (*Result, error) {
	return f(ctx, query, execCtx)
}
