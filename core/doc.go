// Package core defines the foundational contracts of AgentHub: the
// AgentDefinition descriptor that makes agents selectable alongside language
// models, the Runner execution contract every pluggable agent implements, and
// the structured Result shape returned by a dispatch.
//
// Higher level packages (registry, pipeline, travel) build on these types;
// core itself has no dependencies beyond the standard library and uuid.
package core
