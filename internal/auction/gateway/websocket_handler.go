package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gavelhouse/gavel/internal/auth"
)

// TokenVerifier authenticates a bearer token into a principal.
type TokenVerifier interface {
	VerifyToken(token string) (auth.Principal, error)
}

// WebSocketHandler handles WebSocket upgrade requests for auction clients.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          TokenVerifier
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, verifier TokenVerifier) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		verifier:          verifier,
	}
}

// HandleConnection upgrades an HTTP request to a WebSocket connection.
// Clients pass their JWT in the token query parameter; connections
// without a token join as read-only spectators.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	principal := auth.Principal{Role: auth.RoleSpectator}

	if token := r.URL.Query().Get("token"); token != "" {
		verified, err := h.verifier.VerifyToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		principal = verified
	}

	if err := h.connectionManager.UpgradeConnection(w, r, principal); err != nil {
		log.Error().
			Err(err).
			Str("role", string(principal.Role)).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns the number of active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections": h.connectionManager.ConnectionCount(),
	})
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
