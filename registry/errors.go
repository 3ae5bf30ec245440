package registry

import "errors"

var (
	// ErrUnknownAgent is returned when no agent is registered under the
	// requested key.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrDuplicateKey is returned by Register when an agent with the same
	// key already exists.
	ErrDuplicateKey = errors.New("agent key already registered")

	// ErrUnknownKnowledgeBase is returned by Register when a definition
	// references a knowledge base the manager does not know.
	ErrUnknownKnowledgeBase = errors.New("unknown knowledge base")

	// ErrDisabledKnowledgeBase is returned by Register when a definition
	// references a knowledge base that exists but is disabled.
	ErrDisabledKnowledgeBase = errors.New("knowledge base is disabled")
)
