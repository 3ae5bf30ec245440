// Package agenthub provides a high-level façade over the agent registry and
// the knowledge base manager. Most applications interact with this package by:
//  1. Creating an AgentHub via New() (optionally supplying a structured logger)
//  2. Creating knowledge bases and attaching connectors through Knowledge()
//  3. Registering agent definitions through Registry()
//  4. Dispatching queries with Execute()
//
// The façade wires the registry to the manager so knowledge base references
// are validated at registration time and query metrics are booked on every
// dispatch. All defaults are safe for local development and testing;
// production deployments typically supply a structured logger and run the
// scheduler package alongside.
package agenthub

import (
	"context"

	"github.com/hupe1980/agenthub/core"
	"github.com/hupe1980/agenthub/knowledge"
	"github.com/hupe1980/agenthub/logging"
	"github.com/hupe1980/agenthub/registry"
)

// Options configures the AgentHub instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentHub is the high-level façade aggregating the registry and the
// knowledge manager.
type AgentHub struct {
	registry  *registry.Registry
	knowledge *knowledge.Manager
	logger    logging.Logger
}

// New creates a new AgentHub instance with optional overrides.
func New(optFns ...func(o *Options)) *AgentHub {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	km := knowledge.NewManager(func(o *knowledge.ManagerOptions) {
		o.Logger = opts.Logger
	})
	reg := registry.New(func(o *registry.Options) {
		o.Knowledge = km
		o.Logger = opts.Logger
	})

	return &AgentHub{
		registry:  reg,
		knowledge: km,
		logger:    opts.Logger,
	}
}

// Registry returns the agent registry.
func (h *AgentHub) Registry() *registry.Registry { return h.registry }

// Knowledge returns the knowledge base manager.
func (h *AgentHub) Knowledge() *knowledge.Manager { return h.knowledge }

// Register adds an agent definition to the hub's registry.
func (h *AgentHub) Register(def *core.Definition) error {
	return h.registry.Register(def)
}

// Execute dispatches a query to the named agent.
func (h *AgentHub) Execute(ctx context.Context, agentKey, query string, execCtx map[string]any) (*core.Result, error) {
	return h.registry.Execute(ctx, agentKey, query, execCtx)
}
