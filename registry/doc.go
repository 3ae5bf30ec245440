// Package registry provides the central agent registry: registration and
// lookup of agent definitions, capability and tag based discovery, and
// dispatch of queries to an agent's runner with timeout enforcement,
// knowledge base injection and usage accounting.
package registry
