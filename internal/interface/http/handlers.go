// Package http implements the REST API for the progression engine.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/readstack-hub/progression-engine/internal/application/command"
	"github.com/readstack-hub/progression-engine/internal/application/query"
	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "Progression Engine API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":       "/health",
			"progress":     "/api/v1/users/{id}/progress",
			"achievements": "/api/v1/users/{id}/achievements",
			"ledger":       "/api/v1/users/{id}/ledger",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics exposes basic server metrics as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
		"running":        s.IsRunning(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgress handles GET /api/v1/users/{id}/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	q := query.GetProgressQuery{
		UserID:            userID,
		RecentLedgerLimit: getQueryParamInt(r, "recent", 0),
		BypassCache:       getQueryParamBool(r, "fresh"),
	}

	view, err := s.deps.GetProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "get progress")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleGetAchievements handles GET /api/v1/users/{id}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	q := query.GetAchievementsQuery{
		UserID:     userID,
		OnlyEarned: getQueryParamBool(r, "only_earned"),
		OnlyUnseen: getQueryParamBool(r, "only_unseen"),
	}

	result, err := s.deps.GetAchievementsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "get achievements")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetLedger handles GET /api/v1/users/{id}/ledger
func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	q := query.GetLedgerQuery{
		UserID:   userID,
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", 0),
	}

	result, err := s.deps.GetLedgerHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "get ledger")
		return
	}

	meta := &ResponseMeta{
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  len(result.Entries) == result.PageSize,
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// addPointsRequest is the body of POST /api/v1/users/{id}/points.
type addPointsRequest struct {
	Points        int       `json:"points"`
	Reason        string    `json:"reason"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	PerfectQuiz   bool      `json:"perfect_quiz,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// addPointsResponse mirrors AddPointsResult for the wire.
type addPointsResponse struct {
	TotalPoints   int      `json:"total_points"`
	Level         int      `json:"level"`
	AppliedPoints int      `json:"applied_points"`
	NewlyAwarded  []string `json:"newly_awarded"`
}

// handleAddPoints handles POST /api/v1/users/{id}/points
func (s *Server) handleAddPoints(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req addPointsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.AddPointsCommand{
		UserID:        userID,
		Points:        req.Points,
		Reason:        req.Reason,
		ReferenceID:   req.ReferenceID,
		PerfectQuiz:   req.PerfectQuiz,
		Timestamp:     req.Timestamp,
		CorrelationID: firstNonEmpty(req.CorrelationID, getRequestID(r.Context())),
	}

	result, err := s.deps.AddPointsHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "add points")
		return
	}

	writeJSON(w, http.StatusOK, addPointsResponse{
		TotalPoints:   result.Aggregate.TotalPoints.Int(),
		Level:         int(result.Level),
		AppliedPoints: result.AppliedPoints,
		NewlyAwarded:  awardedIDs(result.NewlyAwarded),
	})
}

// touchStreakRequest is the body of POST /api/v1/users/{id}/streak.
type touchStreakRequest struct {
	Timestamp     time.Time `json:"timestamp,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// touchStreakResponse mirrors TouchStreakResult for the wire.
type touchStreakResponse struct {
	Transition    string   `json:"transition"`
	CurrentStreak int      `json:"current_streak"`
	LongestStreak int      `json:"longest_streak"`
	NewlyAwarded  []string `json:"newly_awarded"`
}

// handleTouchStreak handles POST /api/v1/users/{id}/streak
func (s *Server) handleTouchStreak(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req touchStreakRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.TouchStreakCommand{
		UserID:        userID,
		Timestamp:     req.Timestamp,
		CorrelationID: firstNonEmpty(req.CorrelationID, getRequestID(r.Context())),
	}

	result, err := s.deps.TouchStreakHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "touch streak")
		return
	}

	writeJSON(w, http.StatusOK, touchStreakResponse{
		Transition:    result.Transition.String(),
		CurrentStreak: result.Aggregate.Streak.Current,
		LongestStreak: result.Aggregate.Streak.Longest,
		NewlyAwarded:  awardedIDs(result.NewlyAwarded),
	})
}

// incrementCounterRequest is the body of POST /api/v1/users/{id}/counters/{counter}.
type incrementCounterRequest struct {
	By            int       `json:"by,omitempty"`
	PerfectQuiz   bool      `json:"perfect_quiz,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// incrementCounterResponse mirrors IncrementCounterResult for the wire.
type incrementCounterResponse struct {
	Counter      string   `json:"counter"`
	NewValue     int      `json:"new_value"`
	NewlyAwarded []string `json:"newly_awarded"`
}

// handleIncrementCounter handles POST /api/v1/users/{id}/counters/{counter}
func (s *Server) handleIncrementCounter(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	counter := r.PathValue("counter")

	var req incrementCounterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.IncrementCounterCommand{
		UserID:        userID,
		Counter:       counter,
		By:            req.By,
		PerfectQuiz:   req.PerfectQuiz,
		Timestamp:     req.Timestamp,
		CorrelationID: firstNonEmpty(req.CorrelationID, getRequestID(r.Context())),
	}

	result, err := s.deps.IncrementCounterHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "increment counter")
		return
	}

	writeJSON(w, http.StatusOK, incrementCounterResponse{
		Counter:      result.Counter.String(),
		NewValue:     result.NewValue,
		NewlyAwarded: awardedIDs(result.NewlyAwarded),
	})
}

// markSeenRequest is the body of POST /api/v1/users/{id}/achievements/seen.
type markSeenRequest struct {
	AchievementIDs []string `json:"achievement_ids"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
}

// handleMarkSeen handles POST /api/v1/users/{id}/achievements/seen
func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req markSeenRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.MarkSeenCommand{
		UserID:         userID,
		AchievementIDs: req.AchievementIDs,
		CorrelationID:  firstNonEmpty(req.CorrelationID, getRequestID(r.Context())),
	}

	result, err := s.deps.MarkSeenHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "mark seen")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": result.Updated})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST/ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// maxBodySize bounds request bodies. Commands are small.
const maxBodySize = 64 << 10

// decodeBody reads and parses a JSON body into dest. Writes the error
// response itself and returns false on failure. An empty body decodes to
// the zero value so that bodyless POSTs (streak touch) work.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	return true
}

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Request validation failed", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", "User progress not found")
	case errors.Is(err, shared.ErrConcurrentModification):
		// Lock wait timed out. The write is safe to retry as-is.
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, "try_again", "Temporarily unable to serialize the write, retry")
	default:
		s.logger.Error("request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func awardedIDs(defs []achievement.Definition) []string {
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID.String())
	}
	return ids
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
