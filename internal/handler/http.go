package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/service"
	"github.com/diffduel/internal/websocket"
)

// Pinger is a backing store checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the game server API
type Handler struct {
	games      *service.GameService
	hub        *websocket.Hub
	dispatcher websocket.Dispatcher
	wsConfig   *config.WebSocketConfig
	pingers    map[string]Pinger
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	games *service.GameService,
	hub *websocket.Hub,
	dispatcher websocket.Dispatcher,
	wsConfig *config.WebSocketConfig,
	pingers map[string]Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		games:      games,
		hub:        hub,
		dispatcher: dispatcher,
		wsConfig:   wsConfig,
		pingers:    pingers,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/rankings", func(r chi.Router) {
			r.Get("/", h.ListRankings)
			r.Get("/{gameID}", h.GetRanking)
		})

		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Post("/", h.RegisterGame)
			r.Delete("/", h.DeleteGame)
		})

		r.Get("/history", h.ListHistory)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to a status code
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, domain.ErrRankingNotFound)
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.dispatcher, h.wsConfig, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
		"groups":            h.hub.GetGroupCount(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether every backing store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("dependency not ready", "dependency", name, "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Error:   name + " unavailable",
			})
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// ListRankings returns the leaderboards of every game
func (h *Handler) ListRankings(w http.ResponseWriter, r *http.Request) {
	records, err := h.games.Rankings(r.Context())
	if err != nil {
		h.writeServiceError(w, "list rankings", err)
		return
	}
	h.writeSuccess(w, records)
}

// GetRanking returns the leaderboards of one game
func (h *Handler) GetRanking(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	record, err := h.games.Ranking(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, "get ranking", err)
		return
	}
	h.writeSuccess(w, record)
}

// RegisterGame seeds the leaderboards of a new game
func (h *Handler) RegisterGame(w http.ResponseWriter, r *http.Request) {
	record, err := h.games.RegisterGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		h.writeServiceError(w, "register game", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    record,
	})
}

// DeleteGame drops the leaderboards of a game
func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := h.games.DeleteGame(r.Context(), chi.URLParam(r, "gameID")); err != nil {
		h.writeServiceError(w, "delete game", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// ListHistory returns finished games, newest first
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.games.History(r.Context())
	if err != nil {
		h.writeServiceError(w, "list history", err)
		return
	}
	h.writeSuccess(w, records)
}
