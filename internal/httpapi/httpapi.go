package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gavelhouse/gavel/internal/auction"
	"github.com/gavelhouse/gavel/internal/auth"
	"github.com/gavelhouse/gavel/internal/models"
)

// Server exposes the REST surface: authentication exchanges, round CRUD
// for admins, and read-only listings for every client. Live state flows
// over WebSocket; this API covers setup and catch-up reads.
type Server struct {
	rounds        *auction.RoundRepository
	teams         *auction.TeamRepository
	settlement    *auction.SettlementEngine
	auth          *auth.Service
	adminPassword string
}

// NewServer creates the REST API server.
func NewServer(rounds *auction.RoundRepository, teams *auction.TeamRepository, settlement *auction.SettlementEngine, authSvc *auth.Service, adminPassword string) *Server {
	return &Server{
		rounds:        rounds,
		teams:         teams,
		settlement:    settlement,
		auth:          authSvc,
		adminPassword: adminPassword,
	}
}

// RegisterRoutes registers all REST routes with an HTTP mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/admin", s.handleAdminLogin)
	mux.HandleFunc("POST /api/auth/team", s.handleTeamLogin)

	mux.HandleFunc("GET /api/rounds", s.handleListRounds)
	mux.HandleFunc("POST /api/rounds", s.requireAdmin(s.handleCreateRound))
	mux.HandleFunc("GET /api/rounds/{id}", s.handleGetRound)
	mux.HandleFunc("PATCH /api/rounds/{id}", s.requireAdmin(s.handleUpdateRound))
	mux.HandleFunc("DELETE /api/rounds/{id}", s.requireAdmin(s.handleDeleteRound))
	mux.HandleFunc("GET /api/rounds/{id}/bids", s.handleListBids)

	mux.HandleFunc("GET /api/teams", s.handleListTeams)
	mux.HandleFunc("GET /api/teams/{id}/transactions", s.requireAdmin(s.handleListTransactions))

	mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAdminLogin exchanges the shared admin password for a JWT.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.adminPassword)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.auth.IssueAdminToken()
	if err != nil {
		s.internalError(w, err, "failed to issue admin token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleTeamLogin exchanges a team access token for a JWT plus the
// team's public profile.
func (s *Server) handleTeamLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	team, err := s.teams.GetTeamByAccessToken(r.Context(), req.AccessToken)
	if err != nil {
		if errors.Is(err, auction.ErrTeamNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.internalError(w, err, "failed to look up team")
		return
	}

	token, err := s.auth.IssueTeamToken(team.ID)
	if err != nil {
		s.internalError(w, err, "failed to issue team token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"team":  team.Summary(),
	})
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := s.rounds.ListRounds(r.Context())
	if err != nil {
		s.internalError(w, err, "failed to list rounds")
		return
	}
	if rounds == nil {
		rounds = []models.Round{}
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	round, err := s.rounds.GetRound(r.Context(), id)
	if err != nil {
		s.roundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *Server) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var req auction.CreateRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if msg := validateCreateRound(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	round, err := s.rounds.CreateRound(r.Context(), req)
	if err != nil {
		s.internalError(w, err, "failed to create round")
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// handleUpdateRound edits a round. Rounds that have started are
// immutable through this endpoint.
func (s *Server) handleUpdateRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req auction.UpdateRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	round, err := s.rounds.GetRound(r.Context(), id)
	if err != nil {
		s.roundError(w, err)
		return
	}
	if round.Status != models.RoundStatusPending {
		writeError(w, http.StatusConflict, "only pending rounds can be edited")
		return
	}

	updated, err := s.rounds.UpdateRound(r.Context(), id, req)
	if err != nil {
		s.roundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	round, err := s.rounds.GetRound(r.Context(), id)
	if err != nil {
		s.roundError(w, err)
		return
	}
	if round.Status != models.RoundStatusPending {
		writeError(w, http.StatusConflict, "only pending rounds can be deleted")
		return
	}

	if err := s.rounds.DeleteRound(r.Context(), id); err != nil {
		s.roundError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bids, err := s.rounds.ListBidsByRound(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "failed to list bids")
		return
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.teams.ListTeams(r.Context())
	if err != nil {
		s.internalError(w, err, "failed to list teams")
		return
	}
	summaries := make([]models.TeamSummary, 0, len(teams))
	for _, team := range teams {
		summaries = append(summaries, team.Summary())
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	transactions, err := s.settlement.ListTransactionsByTeam(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "failed to list transactions")
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactions)
}

// requireAdmin rejects requests without a valid admin bearer token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		principal, err := s.auth.VerifyToken(token)
		if err != nil || !principal.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	}
}

func validateCreateRound(req auction.CreateRoundRequest) string {
	switch req.Kind {
	case models.RoundKindAscending, models.RoundKindDescending:
	default:
		return "kind must be ASCENDING or DESCENDING"
	}
	if req.Title == "" {
		return "title is required"
	}
	if req.MinPrice < 0 {
		return "min_price must not be negative"
	}
	if req.Kind == models.RoundKindAscending && req.MinIncrement <= 0 {
		return "min_increment must be positive"
	}
	if req.Kind == models.RoundKindDescending {
		if req.StartingPrice == nil || *req.StartingPrice <= req.MinPrice {
			return "starting_price must exceed min_price"
		}
		if req.PriceDecrement == nil || *req.PriceDecrement <= 0 {
			return "price_decrement must be positive"
		}
		if req.DecrementIntervalMs != nil && *req.DecrementIntervalMs <= 0 {
			return "decrement_interval_ms must be positive"
		}
	}
	return ""
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) roundError(w http.ResponseWriter, err error) {
	if errors.Is(err, auction.ErrRoundNotFound) {
		writeError(w, http.StatusNotFound, "round not found")
		return
	}
	s.internalError(w, err, "round operation failed")
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
