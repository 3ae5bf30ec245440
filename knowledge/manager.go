package knowledge

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agenthub/logging"
)

// DueSync identifies one connector whose auto-sync deadline has passed.
type DueSync struct {
	KBID        string
	ConnectorID string
}

// queryStats accumulates live query counters between metric snapshots.
type queryStats struct {
	total           int
	successful      int
	failed          int
	totalLatencyMS  float64
	successfulSyncs int
	failedSyncs     int
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Manager owns knowledge base lifecycle: CRUD, versioning and rollback,
// connector management, sync bookkeeping and usage metrics. All state is
// process-local and guarded by a RWMutex; every returned entity is a clone.
//
// Mutating operations on an unknown id return a nil/false sentinel rather
// than an error so callers can distinguish "nothing to do" from "something
// broke". The manager runs no background work of its own; sync scheduling is
// driven externally via DueForSync (see the scheduler package).
type Manager struct {
	mu             sync.RWMutex
	knowledgeBases map[string]*KnowledgeBase
	metrics        map[string][]UsageMetrics
	stats          map[string]*queryStats
	logger         logging.Logger
}

// NewManager constructs an empty Manager.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Manager{
		knowledgeBases: make(map[string]*KnowledgeBase),
		metrics:        make(map[string][]UsageMetrics),
		stats:          make(map[string]*queryStats),
		logger:         opts.Logger,
	}
}

// Create allocates a new knowledge base seeded with an initial empty version.
// It never fails.
func (m *Manager) Create(name, description string, agentKeys []string, createdBy string) *KnowledgeBase {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb := newKnowledgeBase(name, description, agentKeys, createdBy)
	kb.appendVersion(0, 0, map[string]any{"initial": true})

	m.knowledgeBases[kb.ID] = kb
	m.stats[kb.ID] = &queryStats{}

	m.logger.Info("knowledge base created", "kb_id", kb.ID, "name", name)
	return kb.Clone()
}

// Get returns a clone of the knowledge base, or nil if absent.
func (m *Manager) Get(kbID string) *KnowledgeBase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return nil
	}
	return kb.Clone()
}

// List returns all knowledge bases, optionally filtered by associated agent
// key and enabled state. Order follows creation time so results are
// deterministic for a given store.
func (m *Manager) List(agentKey string, enabledOnly bool) []*KnowledgeBase {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*KnowledgeBase, 0, len(m.knowledgeBases))
	for _, kb := range m.knowledgeBases {
		if agentKey != "" && !containsString(kb.AgentKeys, agentKey) {
			continue
		}
		if enabledOnly && !kb.Enabled {
			continue
		}
		out = append(out, kb.Clone())
	}
	sortByCreation(out)
	return out
}

// ListForAgent returns all enabled knowledge bases associated with an agent.
func (m *Manager) ListForAgent(agentKey string) []*KnowledgeBase {
	return m.List(agentKey, true)
}

// UpdateRequest carries the partial-update fields of Update. Nil fields are
// left untouched.
type UpdateRequest struct {
	Name        *string
	Description *string
	AgentKeys   []string
}

// Update applies a partial metadata update. Returns the updated clone, or nil
// if the id is unknown.
func (m *Manager) Update(kbID string, req UpdateRequest) *KnowledgeBase {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return nil
	}
	if req.Name != nil {
		kb.Name = *req.Name
	}
	if req.Description != nil {
		kb.Description = *req.Description
	}
	if req.AgentKeys != nil {
		kb.AgentKeys = append([]string(nil), req.AgentKeys...)
	}
	kb.UpdatedAt = time.Now().UTC()
	return kb.Clone()
}

// Delete removes a knowledge base and all its associated metrics. Returns
// true iff the id existed.
func (m *Manager) Delete(kbID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.knowledgeBases[kbID]; !ok {
		return false
	}
	delete(m.knowledgeBases, kbID)
	delete(m.metrics, kbID)
	delete(m.stats, kbID)
	m.logger.Info("knowledge base deleted", "kb_id", kbID)
	return true
}

// Enable activates a knowledge base (status active). Returns false if absent.
func (m *Manager) Enable(kbID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return false
	}
	kb.Enabled = true
	kb.Status = StatusActive
	kb.UpdatedAt = time.Now().UTC()
	return true
}

// Disable deactivates a knowledge base (status inactive). Returns false if absent.
func (m *Manager) Disable(kbID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return false
	}
	kb.Enabled = false
	kb.Status = StatusInactive
	kb.UpdatedAt = time.Now().UTC()
	return true
}

// CreateVersion appends a new version. The patch component increments by
// exactly one over the current version and the history is append-only.
// Returns nil if the id is unknown.
func (m *Manager) CreateVersion(kbID string, documentCount int, totalSizeBytes int64, metadata map[string]any) *Version {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return nil
	}
	v := kb.appendVersion(documentCount, totalSizeBytes, metadata)
	m.logger.Debug("knowledge version created", "kb_id", kbID, "version", v.Version)
	return &v
}

// RollbackVersion points the current version at an existing historical tag.
// Returns false if the knowledge base or the target tag does not exist;
// history is never deleted or reordered.
func (m *Manager) RollbackVersion(kbID, targetVersion string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return false
	}
	if !kb.rollbackTo(targetVersion) {
		return false
	}
	m.logger.Info("knowledge base rolled back", "kb_id", kbID, "version", targetVersion)
	return true
}

// Versions returns the full version history, oldest first. Empty if absent.
func (m *Manager) Versions(kbID string) []Version {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return nil
	}
	return kb.Clone().Versions
}

// AddConnector attaches a new connector configuration. NextSyncAt is seeded
// only when autoSync is true. Returns nil if the knowledge base is unknown.
func (m *Manager) AddConnector(kbID string, connectorType SourceType, name string, config map[string]any, autoSync bool, syncIntervalMinutes int) *ConnectorConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return nil
	}

	cfg := make(map[string]any, len(config))
	for k, v := range config {
		cfg[k] = v
	}

	connector := ConnectorConfig{
		ConnectorID:         uuid.NewString(),
		ConnectorType:       connectorType,
		Name:                name,
		Enabled:             true,
		Config:              cfg,
		AutoSync:            autoSync,
		SyncIntervalMinutes: syncIntervalMinutes,
	}
	if autoSync {
		next := time.Now().UTC().Add(time.Duration(syncIntervalMinutes) * time.Minute)
		connector.NextSyncAt = &next
	}

	kb.Connectors = append(kb.Connectors, connector)
	kb.UpdatedAt = time.Now().UTC()

	m.logger.Info("connector added", "kb_id", kbID, "connector_id", connector.ConnectorID, "type", connectorType)
	out := connector
	return &out
}

// RemoveConnector detaches a connector. Returns false if the knowledge base
// or connector is unknown.
func (m *Manager) RemoveConnector(kbID, connectorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return false
	}
	kept := kb.Connectors[:0]
	removed := false
	for _, c := range kb.Connectors {
		if c.ConnectorID == connectorID {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	kb.Connectors = kept
	if removed {
		kb.UpdatedAt = time.Now().UTC()
	}
	return removed
}

// EnableConnector marks a connector enabled.
func (m *Manager) EnableConnector(kbID, connectorID string) bool {
	return m.setConnectorEnabled(kbID, connectorID, true)
}

// DisableConnector marks a connector disabled.
func (m *Manager) DisableConnector(kbID, connectorID string) bool {
	return m.setConnectorEnabled(kbID, connectorID, false)
}

func (m *Manager) setConnectorEnabled(kbID, connectorID string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return false
	}
	c := kb.findConnector(connectorID)
	if c == nil {
		return false
	}
	c.Enabled = enabled
	kb.UpdatedAt = time.Now().UTC()
	return true
}

// TriggerSync transitions the knowledge base through the syncing state and
// updates each eligible connector's bookkeeping (last sync time, total syncs,
// next auto-sync deadline). With a connector id only that connector is synced
// and it must be enabled; otherwise all enabled connectors are. Returns false
// and leaves the status untouched beyond active when nothing is eligible.
//
// The actual document ingestion is delegated to an external collaborator;
// this method manages state transitions and counters only. status=syncing is
// advisory: concurrent TriggerSync calls for the same id are not serialized
// beyond the manager's lock.
func (m *Manager) TriggerSync(kbID string, connectorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return false
	}

	kb.Status = StatusSyncing

	var eligible []*ConnectorConfig
	if connectorID != "" {
		if c := kb.findConnector(connectorID); c != nil && c.Enabled {
			eligible = append(eligible, c)
		}
	} else {
		eligible = kb.enabledConnectors()
	}

	if len(eligible) == 0 {
		kb.Status = StatusActive
		return false
	}

	now := time.Now().UTC()
	for _, c := range eligible {
		last := now
		c.LastSyncAt = &last
		c.TotalSyncs++
		if c.AutoSync {
			next := now.Add(time.Duration(c.SyncIntervalMinutes) * time.Minute)
			c.NextSyncAt = &next
		}
		if st := m.stats[kbID]; st != nil {
			st.successfulSyncs++
		}
		m.logger.Debug("connector sync triggered", "kb_id", kbID, "connector_id", c.ConnectorID)
	}

	kb.Status = StatusActive
	kb.UpdatedAt = now
	return true
}

// MarkSyncError records a failed sync attempt for a connector and flips the
// knowledge base into the error status. Returns false if either id is unknown.
func (m *Manager) MarkSyncError(kbID, connectorID, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return false
	}
	c := kb.findConnector(connectorID)
	if c == nil {
		return false
	}
	c.FailedSyncs++
	c.LastError = message
	kb.Status = StatusError
	kb.UpdatedAt = time.Now().UTC()
	if st := m.stats[kbID]; st != nil {
		st.failedSyncs++
	}
	m.logger.Warn("connector sync failed", "kb_id", kbID, "connector_id", connectorID, "error", message)
	return true
}

// DueForSync scans all enabled knowledge bases for enabled auto-sync
// connectors whose next sync deadline has passed. Intended to be polled by
// an external scheduler.
func (m *Manager) DueForSync() []DueSync {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	var due []DueSync
	for _, kb := range m.knowledgeBases {
		if !kb.Enabled {
			continue
		}
		for _, c := range kb.enabledConnectors() {
			if c.AutoSync && c.NextSyncAt != nil && !c.NextSyncAt.After(now) {
				due = append(due, DueSync{KBID: kb.ID, ConnectorID: c.ConnectorID})
			}
		}
	}
	return due
}

// RecordQuery increments query counters for a knowledge base. Unknown ids
// are ignored; metric recording must never fail a dispatch.
func (m *Manager) RecordQuery(kbID string, success bool, latencyMS float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	kb.QueryCount++
	kb.LastQueriedAt = &now

	st := m.stats[kbID]
	if st == nil {
		st = &queryStats{}
		m.stats[kbID] = st
	}
	st.total++
	st.totalLatencyMS += latencyMS
	if success {
		st.successful++
	} else {
		st.failed++
	}
}

// SnapshotMetrics materializes the live counters accumulated since the last
// snapshot into an immutable UsageMetrics bucket covering [periodStart,
// periodEnd] and resets the counters. Returns nil if the id is unknown.
func (m *Manager) SnapshotMetrics(kbID string, periodStart, periodEnd time.Time) *UsageMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	kb, ok := m.knowledgeBases[kbID]
	if !ok {
		return nil
	}
	st := m.stats[kbID]
	if st == nil {
		st = &queryStats{}
	}

	snapshot := UsageMetrics{
		KBID:              kbID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		TotalQueries:      st.total,
		SuccessfulQueries: st.successful,
		FailedQueries:     st.failed,
		TotalSyncs:        st.successfulSyncs + st.failedSyncs,
		SuccessfulSyncs:   st.successfulSyncs,
		FailedSyncs:       st.failedSyncs,
		AgentsUsing:       append([]string(nil), kb.AgentKeys...),
	}
	if st.total > 0 {
		snapshot.AvgQueryLatencyMS = st.totalLatencyMS / float64(st.total)
	}

	m.metrics[kbID] = append(m.metrics[kbID], snapshot)
	m.stats[kbID] = &queryStats{}

	out := snapshot
	return &out
}

// Metrics returns the most recent snapshot matching the optional period
// bounds (zero times match everything), or nil if none exists.
func (m *Manager) Metrics(kbID string, periodStart, periodEnd time.Time) *UsageMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buckets := m.metrics[kbID]
	if len(buckets) == 0 {
		return nil
	}

	var latest *UsageMetrics
	for i := range buckets {
		b := buckets[i]
		if !periodStart.IsZero() && b.PeriodStart.Before(periodStart) {
			continue
		}
		if !periodEnd.IsZero() && b.PeriodEnd.After(periodEnd) {
			continue
		}
		latest = &buckets[i]
	}
	if latest == nil {
		return nil
	}
	out := *latest
	out.AgentsUsing = append([]string(nil), latest.AgentsUsing...)
	return &out
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// sortByCreation orders knowledge bases oldest first, breaking timestamp
// ties by id for determinism.
func sortByCreation(kbs []*KnowledgeBase) {
	sort.Slice(kbs, func(i, j int) bool {
		if kbs[i].CreatedAt.Equal(kbs[j].CreatedAt) {
			return kbs[i].ID < kbs[j].ID
		}
		return kbs[i].CreatedAt.Before(kbs[j].CreatedAt)
	})
}
