package core

import (
	"errors"
	"time"
)

// AgentType categorizes the broad behavior of a registered agent.
type AgentType string

const (
	// AgentTypeConversational answers free-form user queries (e.g. travel planning).
	AgentTypeConversational AgentType = "conversational"
	// AgentTypeResearch performs deep multi-source research.
	AgentTypeResearch AgentType = "research"
	// AgentTypeTaskExecutor executes narrowly scoped tasks.
	AgentTypeTaskExecutor AgentType = "task_executor"
	// AgentTypeWorkflow orchestrates multi-step workflows.
	AgentTypeWorkflow AgentType = "workflow"
	// AgentTypeCustom is the escape hatch for everything else.
	AgentTypeCustom AgentType = "custom"
)

// Capability names a discrete ability an agent advertises for discovery.
type Capability string

const (
	CapabilityWebSearch        Capability = "web_search"
	CapabilityRAG              Capability = "rag"
	CapabilityToolCalling      Capability = "tool_calling"
	CapabilityCodeExecution    Capability = "code_execution"
	CapabilityFileProcessing   Capability = "file_processing"
	CapabilityAPIIntegration   Capability = "api_integration"
	CapabilityScheduling       Capability = "scheduling"
	CapabilityConditionalLogic Capability = "conditional_logic"
)

// TriggerType declares how an agent invocation can be initiated.
type TriggerType string

const (
	// TriggerManual fires when a user asks in chat.
	TriggerManual TriggerType = "manual"
	// TriggerScheduled fires on a cron schedule.
	TriggerScheduled TriggerType = "scheduled"
	// TriggerWebhook fires on an external HTTP event.
	TriggerWebhook TriggerType = "webhook"
	// TriggerConnectorEvent fires on knowledge connector sync events.
	TriggerConnectorEvent TriggerType = "connector_event"
)

// TriggerConfig describes one activation mode of an agent. Only the fields
// matching the trigger type are meaningful (CronExpression for scheduled,
// WebhookURL/WebhookSecret for webhook, ConnectorEvents for connector_event).
type TriggerConfig struct {
	Type            TriggerType `json:"type"`
	Enabled         bool        `json:"enabled"`
	CronExpression  string      `json:"cron_expression,omitempty"`
	WebhookURL      string      `json:"webhook_url,omitempty"`
	WebhookSecret   string      `json:"webhook_secret,omitempty"`
	ConnectorEvents []string    `json:"connector_events,omitempty"`
}

// SelectorEntry projects an agent definition into the shape the model
// selector UI expects, letting agents appear alongside plain language models.
// ID carries the "agent:" prefix so agent identifiers are namespace-disjoint
// from model identifiers.
type SelectorEntry struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Provider     string         `json:"provider"`
	Type         string         `json:"type"`
	Capabilities []Capability   `json:"capabilities"`
	Icon         string         `json:"icon"`
	Color        string         `json:"color"`
	Version      string         `json:"version"`
	Metadata     map[string]any `json:"metadata"`
}

// Definition is the immutable descriptor of a registrable agent. Construct it
// with NewDefinition, which fills every default before the value escapes;
// after registration the registry only ever hands out clones, so a Definition
// is never mutated in place.
type Definition struct {
	Key         string
	Name        string
	Description string
	Runner      Runner

	AgentType    AgentType
	Capabilities []Capability

	UseKnowledgeBase bool
	KnowledgeBaseIDs []string

	// API-backed agents
	APIEndpoint    string
	RequiresAPIKey bool

	Version  string
	Triggers []TriggerConfig

	// Resource limits. TimeoutSeconds is enforced by the dispatching caller.
	MaxTokens      int
	TimeoutSeconds int

	// UI metadata
	Icon  string
	Color string
	Tags  []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefinitionOptions carries the optional fields of NewDefinition.
type DefinitionOptions struct {
	AgentType        AgentType
	Capabilities     []Capability
	UseKnowledgeBase bool
	KnowledgeBaseIDs []string
	APIEndpoint      string
	RequiresAPIKey   bool
	Version          string
	Triggers         []TriggerConfig
	MaxTokens        int
	TimeoutSeconds   int
	Icon             string
	Color            string
	Tags             []string
}

// ErrInvalidDefinition is returned by NewDefinition when the descriptor is
// structurally unusable (missing key or runner).
var ErrInvalidDefinition = errors.New("invalid agent definition")

// NewDefinition builds a fully populated Definition. Defaults are filled
// before the value is returned: conversational type, version "1.0.0", a
// single enabled manual trigger, a 300 second timeout and UTC timestamps.
// Exactly one functional runner must be bound; a nil runner or empty key
// yields ErrInvalidDefinition.
func NewDefinition(key, name, description string, runner Runner, optFns ...func(o *DefinitionOptions)) (*Definition, error) {
	if key == "" || runner == nil {
		return nil, ErrInvalidDefinition
	}

	opts := DefinitionOptions{
		AgentType:      AgentTypeConversational,
		Version:        "1.0.0",
		TimeoutSeconds: 300,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(opts.Triggers) == 0 {
		opts.Triggers = []TriggerConfig{{Type: TriggerManual, Enabled: true}}
	}

	now := time.Now().UTC()

	return &Definition{
		Key:              key,
		Name:             name,
		Description:      description,
		Runner:           runner,
		AgentType:        opts.AgentType,
		Capabilities:     append([]Capability(nil), opts.Capabilities...),
		UseKnowledgeBase: opts.UseKnowledgeBase,
		KnowledgeBaseIDs: append([]string(nil), opts.KnowledgeBaseIDs...),
		APIEndpoint:      opts.APIEndpoint,
		RequiresAPIKey:   opts.RequiresAPIKey,
		Version:          opts.Version,
		Triggers:         append([]TriggerConfig(nil), opts.Triggers...),
		MaxTokens:        opts.MaxTokens,
		TimeoutSeconds:   opts.TimeoutSeconds,
		Icon:             opts.Icon,
		Color:            opts.Color,
		Tags:             append([]string(nil), opts.Tags...),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Clone returns a deep copy so callers can never mutate registry state
// through a returned definition.
func (d *Definition) Clone() *Definition {
	cp := *d
	cp.Capabilities = append([]Capability(nil), d.Capabilities...)
	cp.KnowledgeBaseIDs = append([]string(nil), d.KnowledgeBaseIDs...)
	cp.Triggers = make([]TriggerConfig, len(d.Triggers))
	for i, trig := range d.Triggers {
		cp.Triggers[i] = trig
		cp.Triggers[i].ConnectorEvents = append([]string(nil), trig.ConnectorEvents...)
	}
	cp.Tags = append([]string(nil), d.Tags...)
	return &cp
}

// HasCapability reports whether the definition advertises the capability.
func (d *Definition) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// HasTag reports whether the definition carries the tag.
func (d *Definition) HasTag(tag string) bool {
	for _, have := range d.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// HasEnabledTrigger reports whether at least one enabled trigger of the given
// type is declared.
func (d *Definition) HasEnabledTrigger(t TriggerType) bool {
	for _, trig := range d.Triggers {
		if trig.Type == t && trig.Enabled {
			return true
		}
	}
	return false
}

// UsesKnowledgeBase reports whether the definition is bound to at least one
// knowledge base.
func (d *Definition) UsesKnowledgeBase() bool {
	return d.UseKnowledgeBase && len(d.KnowledgeBaseIDs) > 0
}

// BoundTo reports whether kbID is among the definition's bound knowledge bases.
func (d *Definition) BoundTo(kbID string) bool {
	if !d.UseKnowledgeBase {
		return false
	}
	for _, id := range d.KnowledgeBaseIDs {
		if id == kbID {
			return true
		}
	}
	return false
}

// ToSelectorEntry converts the definition into the model-selector format.
// The ID is prefixed with "agent:" to distinguish agents from plain models.
func (d *Definition) ToSelectorEntry() SelectorEntry {
	icon := d.Icon
	if icon == "" {
		icon = "🤖"
	}
	color := d.Color
	if color == "" {
		color = "#6366f1"
	}
	return SelectorEntry{
		ID:           "agent:" + d.Key,
		Name:         d.Name,
		Description:  d.Description,
		Provider:     "AgentHub",
		Type:         "agent",
		Capabilities: append([]Capability(nil), d.Capabilities...),
		Icon:         icon,
		Color:        color,
		Version:      d.Version,
		Metadata: map[string]any{
			"agent_type": d.AgentType,
			"use_kb":     d.UseKnowledgeBase,
			"tags":       append([]string(nil), d.Tags...),
		},
	}
}
