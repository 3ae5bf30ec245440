package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agenthub/core"
	"github.com/hupe1980/agenthub/knowledge"
	"github.com/hupe1980/agenthub/logging"
)

// KnowledgeProvider is the slice of the knowledge manager the registry
// needs: reference validation at registration time and usage accounting at
// dispatch time. *knowledge.Manager satisfies it.
type KnowledgeProvider interface {
	Get(kbID string) *knowledge.KnowledgeBase
	RecordQuery(kbID string, success bool, latencyMS float64)
}

// Compile time check.
var _ KnowledgeProvider = (*knowledge.Manager)(nil)

// Filter narrows ListAll. Zero-valued fields do not constrain; set fields
// are combined conjunctively.
type Filter struct {
	AgentType  core.AgentType
	Capability core.Capability
	Tag        string
}

// Options configures a Registry.
type Options struct {
	// Knowledge validates knowledge base references and records query
	// metrics. If nil, definitions may not reference knowledge bases.
	Knowledge KnowledgeProvider
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Registry is a concurrency safe in-memory collection of agent definitions.
// Stored and returned definitions are clones; callers can never mutate
// registry state through a returned pointer.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*core.Definition
	knowledge KnowledgeProvider
	logger    logging.Logger
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Registry{
		agents:    make(map[string]*core.Definition),
		knowledge: opts.Knowledge,
		logger:    opts.Logger,
	}
}

// Register adds a definition to the registry. Knowledge base references are
// validated here, once, against the manager's current state; later changes
// to a knowledge base do not retroactively invalidate a registration.
func (r *Registry) Register(def *core.Definition) error {
	if def == nil || def.Key == "" || def.Runner == nil {
		return core.ErrInvalidDefinition
	}

	if def.UsesKnowledgeBase() {
		if r.knowledge == nil {
			return fmt.Errorf("%w: no knowledge manager configured", ErrUnknownKnowledgeBase)
		}
		for _, kbID := range def.KnowledgeBaseIDs {
			kb := r.knowledge.Get(kbID)
			if kb == nil {
				return fmt.Errorf("%w: %s", ErrUnknownKnowledgeBase, kbID)
			}
			if !kb.Enabled {
				return fmt.Errorf("%w: %s", ErrDisabledKnowledgeBase, kbID)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[def.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, def.Key)
	}
	r.agents[def.Key] = def.Clone()

	r.logger.Info("agent registered", "agentKey", def.Key, "agentType", def.AgentType, "version", def.Version)
	return nil
}

// Unregister removes the agent with the given key. Removing an unknown key
// returns ErrUnknownAgent.
func (r *Registry) Unregister(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, key)
	}
	delete(r.agents, key)

	r.logger.Info("agent unregistered", "agentKey", key)
	return nil
}

// Get returns a clone of the definition registered under key.
func (r *Registry) Get(key string) (*core.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.agents[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, key)
	}
	return def.Clone(), nil
}

// Has reports whether an agent is registered under key.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.agents[key]
	return ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// ListAll returns clones of every definition matching the filter, sorted by
// key for stable ordering.
func (r *Registry) ListAll(filter Filter) []*core.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*core.Definition
	for _, def := range r.agents {
		if filter.AgentType != "" && def.AgentType != filter.AgentType {
			continue
		}
		if filter.Capability != "" && !def.HasCapability(filter.Capability) {
			continue
		}
		if filter.Tag != "" && !def.HasTag(filter.Tag) {
			continue
		}
		out = append(out, def.Clone())
	}
	sortByKey(out)
	return out
}

// ListForSelector returns selector entries for every registered agent,
// sorted by display name. Entry IDs live in the "agent:" namespace so they
// never collide with other assistant identifiers in a shared picker.
func (r *Registry) ListForSelector() []core.SelectorEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.SelectorEntry, 0, len(r.agents))
	for _, def := range r.agents {
		out = append(out, def.ToSelectorEntry())
	}
	sortSelector(out)
	return out
}

// AgentsWithTrigger returns clones of agents that have at least one enabled
// trigger of the given type.
func (r *Registry) AgentsWithTrigger(triggerType core.TriggerType) []*core.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*core.Definition
	for _, def := range r.agents {
		if def.HasEnabledTrigger(triggerType) {
			out = append(out, def.Clone())
		}
	}
	sortByKey(out)
	return out
}

// AgentsForKnowledgeBase returns clones of agents referencing the given
// knowledge base.
func (r *Registry) AgentsForKnowledgeBase(kbID string) []*core.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*core.Definition
	for _, def := range r.agents {
		if def.BoundTo(kbID) {
			out = append(out, def.Clone())
		}
	}
	sortByKey(out)
	return out
}

// Execute dispatches a query to the agent registered under key. The
// definition's TimeoutSeconds bounds the run via context deadline. Knowledge
// base IDs are injected into the execution context, result metadata is
// stamped with the dispatch facts, and a query metric is recorded against
// every referenced knowledge base whether the run succeeded or not.
func (r *Registry) Execute(ctx context.Context, key, query string, execCtx map[string]any) (*core.Result, error) {
	def, err := r.Get(key)
	if err != nil {
		return nil, err
	}

	if execCtx == nil {
		execCtx = make(map[string]any)
	}
	if def.UsesKnowledgeBase() && r.knowledge != nil {
		// Runners receive the resolved knowledge bases, not bare ids. A KB
		// removed since registration is simply absent from the slice.
		kbs := make([]*knowledge.KnowledgeBase, 0, len(def.KnowledgeBaseIDs))
		for _, kbID := range def.KnowledgeBaseIDs {
			if kb := r.knowledge.Get(kbID); kb != nil {
				kbs = append(kbs, kb)
			}
		}
		execCtx[core.ContextKeyKnowledgeBases] = kbs
	}

	runCtx := ctx
	if def.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := time.Now()
	result, runErr := def.Runner.Run(runCtx, query, execCtx)
	elapsed := time.Since(start)
	elapsedMS := float64(elapsed.Microseconds()) / 1000

	r.recordUsage(def, runErr == nil, elapsedMS)

	if runErr != nil {
		r.logger.Error("agent execution failed", "agentKey", key, "durationMs", elapsedMS, "error", runErr)
		return nil, fmt.Errorf("agent %s execution failed: %w", key, runErr)
	}

	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata[core.MetadataAgentKey] = def.Key
	result.Metadata[core.MetadataAgentName] = def.Name
	result.Metadata[core.MetadataVersion] = def.Version
	result.Metadata[core.MetadataExecutionTimeMS] = elapsedMS

	r.logger.Info("agent execution completed", "agentKey", key, "durationMs", elapsedMS, "sources", len(result.Sources))
	return result, nil
}

// recordUsage books one query per referenced knowledge base. Failed and
// cancelled runs count too; latency is wall clock dispatch time.
func (r *Registry) recordUsage(def *core.Definition, success bool, latencyMS float64) {
	if r.knowledge == nil || !def.UsesKnowledgeBase() {
		return
	}
	for _, kbID := range def.KnowledgeBaseIDs {
		r.knowledge.RecordQuery(kbID, success, latencyMS)
	}
}

func sortByKey(defs []*core.Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
}

func sortSelector(entries []core.SelectorEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}
