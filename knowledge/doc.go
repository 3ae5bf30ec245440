// Package knowledge implements versioned knowledge base management for
// AgentHub: the entity model (knowledge bases, append-only versions,
// connector configurations, usage metrics) and the Manager that owns entity
// lifecycle, sync scheduling bookkeeping and query metrics.
//
// The Manager keeps entities process-local behind a RWMutex and hands out
// clones, so callers never observe partially updated state. Durable
// persistence is an integration concern layered on top.
package knowledge
