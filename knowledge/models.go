package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType enumerates the supported connector pull-sources.
type SourceType string

const (
	SourceNotion      SourceType = "notion"
	SourceSlack       SourceType = "slack"
	SourceGoogleDrive SourceType = "google_drive"
	SourceConfluence  SourceType = "confluence"
	SourceGitHub      SourceType = "github"
	SourceWebScraper  SourceType = "web_scraper"
	SourceCustom      SourceType = "custom"
)

// Status describes the lifecycle state of a knowledge base.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusSyncing  Status = "syncing"
	StatusError    Status = "error"
)

// Version is one append-only snapshot of a knowledge base. Once created it is
// never mutated; rollback changes the knowledge base's current version
// pointer, never the history.
type Version struct {
	Version        string         `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	DocumentCount  int            `json:"document_count"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Checksum       string         `json:"checksum"`
}

// ConnectorConfig describes a configured pull-source feeding a knowledge
// base. NextSyncAt is set only while AutoSync is true and always equals the
// last sync time (or creation time) plus the sync interval.
type ConnectorConfig struct {
	ConnectorID   string         `json:"connector_id"`
	ConnectorType SourceType     `json:"connector_type"`
	Name          string         `json:"name"`
	Enabled       bool           `json:"enabled"`
	Config        map[string]any `json:"config,omitempty"`

	AutoSync            bool       `json:"auto_sync"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt          *time.Time `json:"next_sync_at,omitempty"`

	TotalSyncs  int    `json:"total_syncs"`
	FailedSyncs int    `json:"failed_syncs"`
	LastError   string `json:"last_error,omitempty"`
}

// KnowledgeBase is a versioned, connector-fed collection of content
// associated with one or more agents. It exclusively owns its versions and
// connectors; agents reference it by id only.
type KnowledgeBase struct {
	ID          string `json:"kb_id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Status  Status `json:"status"`
	Enabled bool   `json:"enabled"`

	CurrentVersion string    `json:"current_version"`
	Versions       []Version `json:"versions"`

	Connectors []ConnectorConfig `json:"connectors"`

	AgentKeys []string `json:"agent_keys"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`

	QueryCount    int        `json:"query_count"`
	LastQueriedAt *time.Time `json:"last_queried_at,omitempty"`
}

// UsageMetrics is a read-only, time-bucketed usage snapshot. It is never
// mutated after creation.
type UsageMetrics struct {
	KBID        string    `json:"kb_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalQueries      int     `json:"total_queries"`
	SuccessfulQueries int     `json:"successful_queries"`
	FailedQueries     int     `json:"failed_queries"`
	AvgQueryLatencyMS float64 `json:"avg_query_latency_ms"`

	TotalSyncs      int `json:"total_syncs"`
	SuccessfulSyncs int `json:"successful_syncs"`
	FailedSyncs     int `json:"failed_syncs"`

	DocumentsAdded   int   `json:"documents_added"`
	DocumentsUpdated int   `json:"documents_updated"`
	DocumentsDeleted int   `json:"documents_deleted"`
	BytesProcessed   int64 `json:"bytes_processed"`

	AgentsUsing []string `json:"agents_using"`
}

// newKnowledgeBase allocates a knowledge base with generated id, active
// status and UTC timestamps. Callers seed the initial version separately.
func newKnowledgeBase(name, description string, agentKeys []string, createdBy string) *KnowledgeBase {
	now := time.Now().UTC()
	return &KnowledgeBase{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		Status:         StatusActive,
		Enabled:        true,
		CurrentVersion: "v1.0.0",
		AgentKeys:      append([]string(nil), agentKeys...),
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      createdBy,
	}
}

// appendVersion creates the next version from the current one. The semantic
// version's patch component increments by exactly one; the checksum covers
// document count, byte size and creation timestamp.
func (kb *KnowledgeBase) appendVersion(documentCount int, totalSizeBytes int64, metadata map[string]any) Version {
	now := time.Now().UTC()

	// After a rollback the naive bump could collide with a tag that is
	// already in the history; tags must stay unique rollback targets.
	next := bumpPatch(kb.CurrentVersion)
	for kb.hasVersion(next) {
		next = bumpPatch(next)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%s", documentCount, totalSizeBytes, now.Format(time.RFC3339Nano))))

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	v := Version{
		Version:        next,
		CreatedAt:      now,
		DocumentCount:  documentCount,
		TotalSizeBytes: totalSizeBytes,
		Metadata:       md,
		Checksum:       hex.EncodeToString(sum[:]),
	}

	kb.Versions = append(kb.Versions, v)
	kb.CurrentVersion = next
	kb.UpdatedAt = now
	return v
}

// hasVersion reports whether a tag exists in the history.
func (kb *KnowledgeBase) hasVersion(version string) bool {
	for _, v := range kb.Versions {
		if v.Version == version {
			return true
		}
	}
	return false
}

// rollbackTo points CurrentVersion at an existing historical version. History
// is never deleted or reordered; unknown targets are rejected.
func (kb *KnowledgeBase) rollbackTo(targetVersion string) bool {
	for _, v := range kb.Versions {
		if v.Version == targetVersion {
			kb.CurrentVersion = targetVersion
			kb.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// enabledConnectors returns pointers into kb.Connectors for all enabled
// entries. Only for use under the manager's lock.
func (kb *KnowledgeBase) enabledConnectors() []*ConnectorConfig {
	var out []*ConnectorConfig
	for i := range kb.Connectors {
		if kb.Connectors[i].Enabled {
			out = append(out, &kb.Connectors[i])
		}
	}
	return out
}

// findConnector returns a pointer to the connector with the given id, or nil.
func (kb *KnowledgeBase) findConnector(connectorID string) *ConnectorConfig {
	for i := range kb.Connectors {
		if kb.Connectors[i].ConnectorID == connectorID {
			return &kb.Connectors[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the manager's lock.
func (kb *KnowledgeBase) Clone() *KnowledgeBase {
	cp := *kb
	cp.Versions = make([]Version, len(kb.Versions))
	for i, v := range kb.Versions {
		cp.Versions[i] = v
		if v.Metadata != nil {
			md := make(map[string]any, len(v.Metadata))
			for k, mv := range v.Metadata {
				md[k] = mv
			}
			cp.Versions[i].Metadata = md
		}
	}
	cp.Connectors = make([]ConnectorConfig, len(kb.Connectors))
	for i, c := range kb.Connectors {
		cp.Connectors[i] = c
		if c.Config != nil {
			cfg := make(map[string]any, len(c.Config))
			for k, cv := range c.Config {
				cfg[k] = cv
			}
			cp.Connectors[i].Config = cfg
		}
		if c.LastSyncAt != nil {
			t := *c.LastSyncAt
			cp.Connectors[i].LastSyncAt = &t
		}
		if c.NextSyncAt != nil {
			t := *c.NextSyncAt
			cp.Connectors[i].NextSyncAt = &t
		}
	}
	cp.AgentKeys = append([]string(nil), kb.AgentKeys...)
	if kb.LastQueriedAt != nil {
		t := *kb.LastQueriedAt
		cp.LastQueriedAt = &t
	}
	return &cp
}

// bumpPatch increments the patch component of a "vMAJOR.MINOR.PATCH" tag.
// Malformed tags restart the sequence at v1.0.0 rather than failing; version
// creation never fails by contract.
func bumpPatch(current string) string {
	trimmed := strings.TrimPrefix(current, "v")
	var major, minor, patch int
	if _, err := fmt.Sscanf(trimmed, "%d.%d.%d", &major, &minor, &patch); err != nil {
		return "v1.0.0"
	}
	return fmt.Sprintf("v%d.%d.%d", major, minor, patch+1)
}
