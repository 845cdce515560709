package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"modrota/internal/contextutils"
	"modrota/internal/models"
	"modrota/internal/response"
	"modrota/internal/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ModerationHandler exposes the rotation engine's HTTP surface.
type ModerationHandler struct {
	services *services.Collection
	logger   *zap.Logger
}

// NewModerationHandler creates the moderation API handler.
func NewModerationHandler(svcs *services.Collection, logger *zap.Logger) *ModerationHandler {
	return &ModerationHandler{services: svcs, logger: logger}
}

// ===============================
// BADGE / INVITATION ENDPOINTS
// ===============================

// GetStatus returns the caller's open badge or pending invitation.
// GET /api/v1/moderation/status
func (h *ModerationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.services.Invitation.GetStatus(r.Context(), contextutils.GetUserID(r.Context()))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, view)
}

// AnswerInvitation accepts or declines the caller's invitation.
// POST /api/v1/moderation/invitations/{id}/answer
func (h *ModerationHandler) AnswerInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var answer services.InvitationAnswer
	if err := json.NewDecoder(r.Body).Decode(&answer); err != nil {
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := contextutils.GetUserID(r.Context())
	if answer.Accept {
		badge, err := h.services.Invitation.Accept(r.Context(), invitationID, userID)
		if err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
		response.WriteJSON(w, r, http.StatusOK, badge)
		return
	}

	if err := h.services.Invitation.Decline(r.Context(), invitationID, userID); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, map[string]string{"result": "declined"})
}

// PassBadge abandons the caller's active duty early. A reason is mandatory.
// POST /api/v1/moderation/badges/{id}/pass
func (h *ModerationHandler) PassBadge(w http.ResponseWriter, r *http.Request) {
	badgeID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req services.PassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.services.Invitation.PassBadge(r.Context(), badgeID, contextutils.GetUserID(r.Context()), req.Reason); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, map[string]string{"result": "passed"})
}

// CheckEligibility reports whether the caller could be offered a badge in the
// scope, with every failed criterion listed.
// GET /api/v1/moderation/scopes/{kind}/{scopeID}/eligibility
func (h *ModerationHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathScope(w, r)
	if !ok {
		return
	}

	view, err := h.services.Assignment.CheckEligibility(r.Context(), contextutils.GetUserID(r.Context()), scope)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, view)
}

// ===============================
// QUEUE / DECISION ENDPOINTS
// ===============================

// GetQueue returns the badge's review queue.
// GET /api/v1/moderation/badges/{id}/queue
func (h *ModerationHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	badgeID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	view, err := h.services.Queue.GetQueue(r.Context(), badgeID, contextutils.GetUserID(r.Context()), limit)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, view)
}

// SubmitDecision records one keep/remove decision.
// POST /api/v1/moderation/badges/{id}/decisions
func (h *ModerationHandler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	badgeID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req services.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.services.Queue.SubmitDecision(r.Context(), badgeID, contextutils.GetUserID(r.Context()), &req)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusCreated, action)
}

// SubmitBatch records up to fifty decisions, reporting per-item failures.
// POST /api/v1/moderation/badges/{id}/decisions/batch
func (h *ModerationHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	badgeID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req services.BatchDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.services.Queue.SubmitBatch(r.Context(), badgeID, contextutils.GetUserID(r.Context()), &req)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	response.WriteJSON(w, r, status, result)
}

// ===============================
// SCOPE ADMIN ENDPOINTS
// ===============================

// GetConfig returns a scope's tunables.
// GET /api/v1/moderation/scopes/{kind}/{scopeID}/config
func (h *ModerationHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathScope(w, r)
	if !ok {
		return
	}

	cfg, err := h.services.Config.GetConfig(r.Context(), scope)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, cfg)
}

// UpdateConfig applies operator changes to a scope's tunables.
// PATCH /api/v1/moderation/scopes/{kind}/{scopeID}/config
func (h *ModerationHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathScope(w, r)
	if !ok {
		return
	}

	var req services.UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.services.Config.UpdateConfig(r.Context(), scope, &req)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, cfg)
}

// Rebalance forces a capacity pass on one scope, outside the hourly sweep.
// POST /api/v1/moderation/scopes/{kind}/{scopeID}/rebalance
func (h *ModerationHandler) Rebalance(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathScope(w, r)
	if !ok {
		return
	}

	report, err := h.services.Assignment.EnsureScopeCapacity(r.Context(), scope)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, report)
}

// ===============================
// REPORTING ENDPOINTS
// ===============================

// GetScopeStats returns a scope's recent daily aggregates.
// GET /api/v1/moderation/scopes/{kind}/{scopeID}/stats
func (h *ModerationHandler) GetScopeStats(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathScope(w, r)
	if !ok {
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	stats, err := h.services.Stats.GetScopeStats(r.Context(), scope, days)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, stats)
}

// Leaderboard returns the completed-duty ranking.
// GET /api/v1/moderation/leaderboard
func (h *ModerationHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.services.Stats.Leaderboard(r.Context(), limit)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, r, http.StatusOK, entries)
}

// ===============================
// HELPERS
// ===============================

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		response.WriteError(w, r, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func pathScope(w http.ResponseWriter, r *http.Request) (models.Scope, bool) {
	scopeID, err := strconv.ParseInt(chi.URLParam(r, "scopeID"), 10, 64)
	if err != nil {
		response.WriteError(w, r, http.StatusBadRequest, "invalid scope id")
		return models.Scope{}, false
	}
	scope := models.Scope{Kind: models.ScopeKind(chi.URLParam(r, "kind")), ID: scopeID}
	if !scope.Valid() {
		response.WriteError(w, r, http.StatusBadRequest, "invalid scope")
		return models.Scope{}, false
	}
	return scope, true
}
