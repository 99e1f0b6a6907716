package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/appraise/pkg/ledger"
)

// EvaluationStore persists evaluations. *ledger.Client implements it.
type EvaluationStore interface {
	Ping(ctx context.Context) error
	SaveEvaluation(ctx context.Context, e *ledger.Evaluation) error
	GetEvaluation(ctx context.Context, fingerprint string) (*ledger.Evaluation, error)
	DeveloperStats(ctx context.Context, developer string) (*ledger.DeveloperStats, error)
}

// HealthServer exposes the engine over HTTP: health and agent status endpoints
// plus the contribution API. The store is optional; without one, contributions
// are scored but not recorded and the lookup endpoints are unavailable.
type HealthServer struct {
	engine   *Engine
	store    EvaluationStore
	addr     string
	server   *http.Server
	listener net.Listener
}

// NewHealthServer creates a server for the engine listening on addr.
func NewHealthServer(engine *Engine, store EvaluationStore, addr string) *HealthServer {
	if addr == "" {
		addr = ":8080"
	}
	return &HealthServer{
		engine: engine,
		store:  store,
		addr:   addr,
	}
}

// Handler returns the routing for all endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthCheckHandler)
	mux.HandleFunc("GET /api/agents/status", h.agentStatusHandler)
	mux.HandleFunc("POST /api/contributions/analyze", h.analyzeHandler)
	mux.HandleFunc("GET /api/contributions/{fingerprint}", h.getEvaluationHandler)
	mux.HandleFunc("GET /api/developers/{developer}/stats", h.developerStatsHandler)
	return mux
}

// Start binds the listen address and serves in the background.
// Bind failures are returned; later serve errors are logged.
func (h *HealthServer) Start() error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = listener

	h.server = &http.Server{
		Handler:      h.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[Server] Serve error: %v", err)
		}
	}()

	log.Printf("[Server] Listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (h *HealthServer) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// Shutdown gracefully shuts down the server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string       `json:"status"`
	Redis  string       `json:"redis,omitempty"`
	Error  string       `json:"error,omitempty"`
	Agents AgentSummary `json:"agents"`
}

// AgentSummary counts agents by status.
type AgentSummary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Unhealthy int `json:"unhealthy"`
	Error     int `json:"error"`
}

// healthCheckHandler handles GET /healthz.
// Returns 200 when at least one agent is active and the ledger (if any) answers,
// 503 otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "healthy",
		Agents: h.agentSummary(),
	}
	code := http.StatusOK

	if response.Agents.Active < response.Agents.Total {
		response.Status = "degraded"
	}
	if response.Agents.Active == 0 {
		response.Status = "unhealthy"
		response.Error = "no active agents"
		code = http.StatusServiceUnavailable
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	writeJSON(w, code, response)
}

func (h *HealthServer) agentSummary() AgentSummary {
	summary := AgentSummary{Total: h.engine.AgentCount()}
	for _, state := range h.engine.AgentStatus() {
		switch state.Status {
		case ledger.AgentStatusActive:
			summary.Active++
		case ledger.AgentStatusUnhealthy:
			summary.Unhealthy++
		case ledger.AgentStatusError:
			summary.Error++
		}
	}
	return summary
}

// AgentStatusResponse is the JSON response of GET /api/agents/status.
type AgentStatusResponse struct {
	Agents         map[ledger.AgentType]ledger.AgentState `json:"agents"`
	AgentCount     int                                    `json:"agent_count"`
	TotalDecisions int64                                  `json:"total_decisions"`
	LastActivityMs int64                                  `json:"last_activity_ms,omitempty"`
}

func (h *HealthServer) agentStatusHandler(w http.ResponseWriter, r *http.Request) {
	response := AgentStatusResponse{
		Agents:         h.engine.AgentStatus(),
		AgentCount:     h.engine.AgentCount(),
		TotalDecisions: h.engine.TotalDecisions(),
	}
	if last := h.engine.LastActivity(); !last.IsZero() {
		response.LastActivityMs = last.UnixMilli()
	}

	writeJSON(w, http.StatusOK, response)
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Error: message})
}
