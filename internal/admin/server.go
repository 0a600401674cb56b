// Package admin exposes the pipeline core's narrow operational surface:
// health, Prometheus metrics, a catalog debug listing, and the
// approval-resume endpoint. The chat API and WebSocket streaming surface
// live outside this module.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opsconductor/pipeline-core/internal/admin/middleware"
	"github.com/opsconductor/pipeline-core/internal/pipeline/catalog"
	"github.com/opsconductor/pipeline-core/internal/pipeline/orchestrator"
)

// Server is the admin HTTP surface.
type Server struct {
	orch    *orchestrator.Orchestrator
	catalog *catalog.Catalog
	logger  *zap.Logger
	router  chi.Router
}

// NewServer builds the admin router.
func NewServer(orch *orchestrator.Orchestrator, cat *catalog.Catalog, logger *zap.Logger) *Server {
	s := &Server{orch: orch, catalog: cat, logger: logger}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	}))
	r.Use(middleware.ValidateContentType)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/catalog", s.handleCatalog)
	r.Post("/api/v1/approvals/{requestID}", s.handleApprove)

	s.router = r
	return s
}

// Handler returns the underlying http.Handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.orch.Health()
	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":               health.Status,
		"total_requests":       health.TotalRequests,
		"success_rate_pct":     health.SuccessRatePct,
		"avg_response_time_ms": health.AvgResponseTimeMs,
		"active_requests":      health.ActiveRequests,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	profiles := s.catalog.LoadAll()
	tools := make([]map[string]interface{}, 0, len(profiles))
	for _, p := range profiles {
		caps := make([]string, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, c.Name)
		}
		tools = append(tools, map[string]interface{}{
			"tool_name":    p.ToolName,
			"platform":     p.Platform,
			"category":     p.Category,
			"capabilities": caps,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(tools), "tools": tools})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	result := s.orch.ApproveAndResume(r.Context(), requestID, nil)
	code := http.StatusOK
	if !result.Success {
		code = http.StatusConflict
		s.logger.Warn("approval resume failed", zap.String("request_id", requestID), zap.String("error", result.ErrorMessage))
	}
	body := map[string]interface{}{
		"success": result.Success,
		"status":  string(result.Metrics.Status),
	}
	if result.Execution != nil {
		body["execution_id"] = result.Execution.ExecutionID
		body["completed_steps"] = result.Execution.CompletedSteps
		body["failed_steps"] = result.Execution.FailedSteps
	}
	if result.ErrorMessage != "" {
		body["error"] = result.ErrorMessage
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
