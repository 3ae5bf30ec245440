// Package server exposes the agent registry and knowledge manager over HTTP.
// It is a thin transport adapter: all domain rules live in the registry and
// manager packages, the handlers only translate between JSON and domain
// calls and map domain errors onto status codes.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/agenthub/core"
	"github.com/hupe1980/agenthub/knowledge"
	"github.com/hupe1980/agenthub/logging"
	"github.com/hupe1980/agenthub/registry"
)

// Options configures a Server.
type Options struct {
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Server bundles the HTTP handlers for agents and knowledge bases.
type Server struct {
	registry  *registry.Registry
	knowledge *knowledge.Manager
	logger    logging.Logger
	engine    *gin.Engine
}

// New builds a Server and mounts all routes.
func New(reg *registry.Registry, km *knowledge.Manager, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Server{
		registry:  reg,
		knowledge: km,
		logger:    opts.Logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	s.mountRoutes(engine)
	s.engine = engine

	return s
}

// Handler returns the root http.Handler, suitable for http.Server or tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) mountRoutes(e *gin.Engine) {
	api := e.Group("/api/agenthub")

	agents := api.Group("/agents")
	agents.GET("", s.listAgents)
	agents.GET("/selector", s.listSelector)
	agents.GET("/:key", s.getAgent)
	agents.POST("/:key/run", s.runAgent)

	kb := api.Group("/knowledge")
	kb.POST("", s.createKnowledgeBase)
	kb.GET("", s.listKnowledgeBases)
	kb.GET("/:id", s.getKnowledgeBase)
	kb.PATCH("/:id", s.updateKnowledgeBase)
	kb.DELETE("/:id", s.deleteKnowledgeBase)
	kb.POST("/:id/enable", s.enableKnowledgeBase)
	kb.POST("/:id/disable", s.disableKnowledgeBase)
	kb.GET("/:id/versions", s.listVersions)
	kb.POST("/:id/versions", s.createVersion)
	kb.POST("/:id/rollback", s.rollbackVersion)
	kb.POST("/:id/connectors", s.addConnector)
	kb.DELETE("/:id/connectors/:cid", s.removeConnector)
	kb.POST("/:id/connectors/:cid/enable", s.enableConnector)
	kb.POST("/:id/connectors/:cid/disable", s.disableConnector)
	kb.POST("/:id/sync", s.triggerSync)
	kb.GET("/:id/metrics", s.getMetrics)
}

// respondError maps domain errors onto the three transport tiers: unknown
// resources are 404, caller mistakes are 400, everything else is 500.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownAgent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrDuplicateKey),
		errors.Is(err, registry.ErrUnknownKnowledgeBase),
		errors.Is(err, registry.ErrDisabledKnowledgeBase),
		errors.Is(err, core.ErrEmptyQuery),
		errors.Is(err, core.ErrInvalidDefinition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func notFound(c *gin.Context, what, id string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found: " + id})
}

// --- agent handlers ---

func (s *Server) listAgents(c *gin.Context) {
	filter := registry.Filter{
		AgentType:  core.AgentType(c.Query("type")),
		Capability: core.Capability(c.Query("capability")),
		Tag:        c.Query("tag"),
	}
	c.JSON(http.StatusOK, gin.H{"agents": s.registry.ListAll(filter)})
}

func (s *Server) listSelector(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": s.registry.ListForSelector()})
}

func (s *Server) getAgent(c *gin.Context) {
	def, err := s.registry.Get(c.Param("key"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

type runRequest struct {
	Query   string         `json:"query" binding:"required"`
	Context map[string]any `json:"context"`
}

func (s *Server) runAgent(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := s.registry.Execute(c.Request.Context(), c.Param("key"), req.Query, req.Context)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// --- knowledge base handlers ---

type createKBRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	AgentKeys   []string `json:"agent_keys"`
	CreatedBy   string   `json:"created_by"`
}

func (s *Server) createKnowledgeBase(c *gin.Context) {
	var req createKBRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	kb := s.knowledge.Create(req.Name, req.Description, req.AgentKeys, req.CreatedBy)
	c.JSON(http.StatusCreated, kb)
}

func (s *Server) listKnowledgeBases(c *gin.Context) {
	enabledOnly := c.Query("enabled_only") == "true"
	list := s.knowledge.List(c.Query("agent_key"), enabledOnly)
	c.JSON(http.StatusOK, gin.H{"knowledge_bases": list})
}

func (s *Server) getKnowledgeBase(c *gin.Context) {
	kb := s.knowledge.Get(c.Param("id"))
	if kb == nil {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, kb)
}

type updateKBRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	AgentKeys   []string `json:"agent_keys"`
}

func (s *Server) updateKnowledgeBase(c *gin.Context) {
	var req updateKBRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	kb := s.knowledge.Update(c.Param("id"), knowledge.UpdateRequest{
		Name:        req.Name,
		Description: req.Description,
		AgentKeys:   req.AgentKeys,
	})
	if kb == nil {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, kb)
}

func (s *Server) deleteKnowledgeBase(c *gin.Context) {
	if !s.knowledge.Delete(c.Param("id")) {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) enableKnowledgeBase(c *gin.Context) {
	if !s.knowledge.Enable(c.Param("id")) {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, s.knowledge.Get(c.Param("id")))
}

func (s *Server) disableKnowledgeBase(c *gin.Context) {
	if !s.knowledge.Disable(c.Param("id")) {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, s.knowledge.Get(c.Param("id")))
}

func (s *Server) listVersions(c *gin.Context) {
	kb := s.knowledge.Get(c.Param("id"))
	if kb == nil {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current_version": kb.CurrentVersion,
		"versions":        s.knowledge.Versions(c.Param("id")),
	})
}

type createVersionRequest struct {
	DocumentCount  int            `json:"document_count"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) createVersion(c *gin.Context) {
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	v := s.knowledge.CreateVersion(c.Param("id"), req.DocumentCount, req.TotalSizeBytes, req.Metadata)
	if v == nil {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.JSON(http.StatusCreated, v)
}

type rollbackRequest struct {
	TargetVersion string `json:"target_version" binding:"required"`
}

func (s *Server) rollbackVersion(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if !s.knowledge.RollbackVersion(c.Param("id"), req.TargetVersion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown knowledge base or version: " + req.TargetVersion})
		return
	}
	c.JSON(http.StatusOK, s.knowledge.Get(c.Param("id")))
}

type addConnectorRequest struct {
	ConnectorType       knowledge.SourceType `json:"connector_type" binding:"required"`
	Name                string               `json:"name" binding:"required"`
	Config              map[string]any       `json:"config"`
	AutoSync            bool                 `json:"auto_sync"`
	SyncIntervalMinutes int                  `json:"sync_interval_minutes"`
}

func (s *Server) addConnector(c *gin.Context) {
	var req addConnectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	conn := s.knowledge.AddConnector(c.Param("id"), req.ConnectorType, req.Name, req.Config, req.AutoSync, req.SyncIntervalMinutes)
	if conn == nil {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	c.JSON(http.StatusCreated, conn)
}

func (s *Server) removeConnector(c *gin.Context) {
	if !s.knowledge.RemoveConnector(c.Param("id"), c.Param("cid")) {
		notFound(c, "connector", c.Param("cid"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) enableConnector(c *gin.Context) {
	if !s.knowledge.EnableConnector(c.Param("id"), c.Param("cid")) {
		notFound(c, "connector", c.Param("cid"))
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) disableConnector(c *gin.Context) {
	if !s.knowledge.DisableConnector(c.Param("id"), c.Param("cid")) {
		notFound(c, "connector", c.Param("cid"))
		return
	}
	c.Status(http.StatusOK)
}

type syncRequest struct {
	ConnectorID string `json:"connector_id"`
}

func (s *Server) triggerSync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	if s.knowledge.Get(c.Param("id")) == nil {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}
	triggered := s.knowledge.TriggerSync(c.Param("id"), req.ConnectorID)
	c.JSON(http.StatusOK, gin.H{"triggered": triggered})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.knowledge.Get(c.Param("id")) == nil {
		notFound(c, "knowledge base", c.Param("id"))
		return
	}

	var start, end time.Time
	if v := c.Query("period_start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_start: " + err.Error()})
			return
		}
		start = t
	}
	if v := c.Query("period_end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_end: " + err.Error()})
			return
		}
		end = t
	}

	metrics := s.knowledge.Metrics(c.Param("id"), start, end)
	if metrics == nil {
		c.JSON(http.StatusOK, gin.H{"metrics": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}
