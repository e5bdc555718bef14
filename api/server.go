package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
	"github.com/qiaoqiao/match3-server/metrics"
	"github.com/qiaoqiao/match3-server/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	auth    *Authenticator
	router  *mux.Router
}

// NewServer creates a new API server. hub and auth may be nil.
func NewServer(gameService service.GameService, hub *websocket.Hub, auth *Authenticator) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		auth:    auth,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.Middleware)

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Game operations
	api.HandleFunc("/sessions/{id}/board", s.handleGetBoard).Methods("GET")
	api.HandleFunc("/sessions/{id}/move", s.handleMove).Methods("POST")
	api.HandleFunc("/sessions/{id}/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/sessions/{id}/resume", s.handleResume).Methods("POST")
	api.HandleFunc("/sessions/{id}/reshuffle", s.handleReshuffle).Methods("POST")
	api.HandleFunc("/sessions/{id}/hint", s.handleHint).Methods("GET")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	// Scores
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/scores/recent", s.handleRecentScores).Methods("GET")
	api.HandleFunc("/users/{id}", s.handleUserProfile).Methods("GET")
	api.HandleFunc("/users/{id}/scores", s.handleUserScores).Methods("GET")

	// WebSocket
	s.router.Handle("/ws", s.auth.Middleware(http.HandlerFunc(s.handleWebSocket)))

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service sentinels onto status codes
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrIllegalState):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidMove):
		return http.StatusBadRequest
	case strings.Contains(err.Error(), "not found"):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// queryLimit reads ?limit=, returning 0 (the service default) when absent or bad
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Config     string          `json:"config,omitempty"`
		ConfigName string          `json:"config_name,omitempty"` // Deprecated, use config
		UserID     json.RawMessage `json:"user_id,omitempty"`
	}

	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	configName := req.Config
	if configName == "" {
		configName = req.ConfigName
	}

	// user_id may arrive as a number or a string
	userID := strings.Trim(string(req.UserID), `"`)
	if userID == "null" {
		userID = ""
	}

	session, err := s.service.CreateSession(r.Context(), service.CreateSessionRequest{
		ConfigName: configName,
		Owner:      requestOwner(r, userID),
	})
	if err != nil {
		if strings.Contains(err.Error(), "Available configs") {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Game Operation Handlers

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	board, err := s.service.GetBoard(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, board)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Row1 *int `json:"row1"`
		Col1 *int `json:"col1"`
		Row2 *int `json:"row2"`
		Col2 *int `json:"col2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Row1 == nil || req.Col1 == nil || req.Row2 == nil || req.Col2 == nil {
		respondError(w, http.StatusBadRequest, "row1, col1, row2 and col2 are required")
		return
	}

	move := engine.NewMove(*req.Row1, *req.Col1, *req.Row2, *req.Col2)
	result, err := s.service.ApplyMove(r.Context(), sessionID, move)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Debug().
		Str("session", sessionID).
		Stringer("move", move).
		Bool("success", result.Success).
		Int("score", result.Score).
		Int("moves_left", result.MovesLeft).
		Int("seq", result.Sequence).
		Msg("move")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r, s.service.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r, s.service.Resume)
}

func (s *Server) handleReshuffle(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r, s.service.Reshuffle)
}

// respondSession runs a state-changing operation and returns the updated session
func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (*service.SessionInfo, error)) {
	session, err := op(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	hint, err := s.service.Hint(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !hint.Available {
		respondError(w, http.StatusNotFound, "no legal move on the board")
		return
	}
	respondJSON(w, http.StatusOK, hint)
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configName := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	config, err := s.service.LoadConfig(r.Context(), configName)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, config)
}

// Score Handlers

// handleLeaderboard serves the overall leaderboard, or one mode's with ?mode=
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	mode := strings.TrimSpace(r.URL.Query().Get("mode"))
	scores, err := s.service.LeaderboardByMode(r.Context(), mode, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"count":  len(scores),
		"scores": scores,
	}
	if mode != "" {
		resp["mode"] = mode
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleRecentScores serves games finished in the last ?days= days, newest first
func (s *Server) handleRecentScores(w http.ResponseWriter, r *http.Request) {
	days := service.DefaultRecentDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = min(n, service.MaxRecentDays)
	}

	scores, err := s.service.RecentScores(r.Context(), days, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"days":   days,
		"count":  len(scores),
		"scores": scores,
	})
}

func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	profile, err := s.service.UserProfile(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// pathUserID parses {id}, answering 400 when it is not an account id
func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "user id must be a positive integer")
		return 0, false
	}
	return userID, true
}

func (s *Server) handleUserScores(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	scores, err := s.service.UserScores(r.Context(), userID, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"count":   len(scores),
		"scores":  scores,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "websocket hub not running")
		return
	}

	// An empty session is allowed; the client sends join or newGame later
	sessionID := r.URL.Query().Get("session")
	if sessionID != "" {
		if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	owner, verified := tokenOwner(r)
	if !verified {
		owner = requestOwner(r, "")
	}
	s.hub.ServeWS(w, r, sessionID, owner, verified)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
