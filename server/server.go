package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"customer-map/ai"
	"customer-map/bitable"
	"customer-map/config"
	"customer-map/mapview"
	"customer-map/models"
	"customer-map/services"
	"customer-map/storage"
	"customer-map/utils"
)

// Server wires the fetch/transform pipeline, map sessions, and the AI
// summarizer behind the HTTP API.
type Server struct {
	cfg         *config.Config
	logger      *utils.Logger
	client      *bitable.Client
	transformer *services.Transformer
	insights    *services.InsightService
	summarizer  *ai.Summarizer
	sessions    *mapview.Store

	surfaceMu sync.RWMutex
	surfaces  map[string]*mapview.RecordingSurface
}

// New creates a Server with all collaborators constructed from cfg.
func New(cfg *config.Config, logger *utils.Logger) *Server {
	return &Server{
		cfg:         cfg,
		logger:      logger,
		client:      bitable.New(cfg, logger),
		transformer: services.NewTransformer(logger, cfg.DebugRejections),
		insights:    services.NewInsightService(logger),
		summarizer:  ai.New(cfg, logger),
		sessions:    mapview.NewStore(),
		surfaces:    make(map[string]*mapview.RecordingSurface),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/customers", s.handleCustomers)
		api.GET("/customers/export", s.handleExport)
		api.POST("/ai-summary", s.handleAISummary)

		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions/:id", s.handleGetSession)
		api.POST("/sessions/:id/filters", s.handleSessionFilters)
		api.DELETE("/sessions/:id", s.handleCloseSession)
	}
	return r
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	s.logger.Info("[server] listening on %s", s.cfg.ListenAddr)
	return s.Router().Run(s.cfg.ListenAddr)
}

// load runs the full fetch + transform cycle. Data is refetched per call;
// nothing is cached across requests.
func (s *Server) load(ctx context.Context) (*services.TransformResult, error) {
	raws, err := s.client.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.transformer.TransformAll(raws), nil
}

func emptyStats() *models.StatsReport { return &models.StatsReport{} }

func (s *Server) handleCustomers(c *gin.Context) {
	if !s.cfg.UpstreamReady() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "bitable credentials are not configured",
			"customers": []*models.CustomerRecord{},
			"stats":     emptyStats(),
		})
		return
	}

	result, err := s.load(c.Request.Context())
	if err != nil {
		s.logger.Error("[server] customer fetch failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     err.Error(),
			"customers": []*models.CustomerRecord{},
			"stats":     emptyStats(),
		})
		return
	}

	stats := s.insights.Summarize(result.Accepted)
	payload := gin.H{
		"customers": result.Accepted,
		"stats": gin.H{
			"total":       stats.Total,
			"totalVolume": stats.TotalVolume,
		},
	}
	if s.cfg.DebugRejections {
		payload["debug"] = gin.H{
			"rejected":      result.Rejected,
			"rejectedCount": len(result.Rejected),
			"fetchedCount":  result.Total,
		}
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleExport(c *gin.Context) {
	if !s.cfg.UpstreamReady() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bitable credentials are not configured"})
		return
	}

	result, err := s.load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var exporter storage.StreamExporter
	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		exporter = storage.CSVExporter{}
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="customers.csv"`)
	case "xlsx":
		exporter = storage.ExcelExporter{}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="customers.xlsx"`)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
		return
	}

	if err := exporter.Export(c.Writer, result.Accepted); err != nil {
		s.logger.Error("[server] export failed: %v", err)
	}
}

func (s *Server) handleAISummary(c *gin.Context) {
	var req ai.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if req.Stats == nil {
		req.Stats = s.insights.Summarize(req.Customers)
	}

	summary, err := s.summarizer.Summarize(c.Request.Context(), req)
	if errors.Is(err, context.Canceled) {
		// Superseded by a newer request or the client went away;
		// nobody is listening for an error.
		c.Status(http.StatusNoContent)
		return
	}
	if errors.Is(err, ai.ErrNotConfigured) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"data": gin.H{
			"data": gin.H{"summary": summary},
		},
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	if !s.cfg.UpstreamReady() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bitable credentials are not configured"})
		return
	}

	result, err := s.load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	surface := mapview.NewRecordingSurface()
	session, err := mapview.NewSession(surface, result.Accepted, s.logger)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.sessions.Put(session)
	s.surfaceMu.Lock()
	s.surfaces[session.ID] = surface
	s.surfaceMu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"sessionId": session.ID,
		"ops":       surface.Drain(),
		"stats":     s.insights.Summarize(session.Visible()),
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	session := s.sessions.Get(c.Param("id"))
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	visible := session.Visible()
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"filters":  session.Filter(),
		"visible":  visible,
		"stats":    s.insights.Summarize(visible),
		"selected": session.Selected(),
	})
}

func (s *Server) handleSessionFilters(c *gin.Context) {
	session := s.sessions.Get(c.Param("id"))
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	var state models.FilterState
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter state: " + err.Error()})
		return
	}

	if err := session.SetFilter(state); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	visible := session.Visible()
	resp := gin.H{
		"ok":      true,
		"visible": len(visible),
		"stats":   s.insights.Summarize(visible),
	}
	s.surfaceMu.RLock()
	surface := s.surfaces[session.ID]
	s.surfaceMu.RUnlock()
	if surface != nil {
		resp["ops"] = surface.Drain()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCloseSession(c *gin.Context) {
	id := c.Param("id")
	s.sessions.Remove(id)
	s.surfaceMu.Lock()
	delete(s.surfaces, id)
	s.surfaceMu.Unlock()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
