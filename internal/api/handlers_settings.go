package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wiki-engagement/internal/service"
	"github.com/wiki-engagement/internal/types"
)

// updateSettingsRequest is the body of PUT /api/accounts/{id}/notification-settings.
// Omitted fields keep their stored value.
type updateSettingsRequest struct {
	NotifyOnCommentReply        *bool   `json:"notifyOnCommentReply"`
	NotifyOnFollowedPageComment *bool   `json:"notifyOnFollowedPageComment"`
	NotifyOnFollowedPageUpdate  *bool   `json:"notifyOnFollowedPageUpdate"`
	EmailFrequency              *string `json:"emailFrequency" validate:"omitempty,oneof=none immediate hourly daily"`
}

// authorizeAccountAccess lets callers manage their own settings; admins may manage anyone's
func (s *Server) authorizeAccountAccess(w http.ResponseWriter, r *http.Request, accountID string) bool {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return false
	}
	if caller == accountID {
		return true
	}
	if s.isAdmin(r, caller) {
		return true
	}
	respondError(w, http.StatusForbidden, ErrCodeForbidden, "Cannot access another account's settings", nil)
	return false
}

// handleGetSettings handles GET /api/accounts/{id}/notification-settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	if !s.authorizeAccountAccess(w, r, accountID) {
		return
	}

	settings, err := s.settings.Get(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings handles PUT /api/accounts/{id}/notification-settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	if !s.authorizeAccountAccess(w, r, accountID) {
		return
	}

	var req updateSettingsRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		respondServiceError(w, s.logger, err)
		return
	}

	update := service.SettingsUpdate{
		NotifyOnCommentReply:        req.NotifyOnCommentReply,
		NotifyOnFollowedPageComment: req.NotifyOnFollowedPageComment,
		NotifyOnFollowedPageUpdate:  req.NotifyOnFollowedPageUpdate,
	}
	if req.EmailFrequency != nil {
		f := types.EmailFrequency(*req.EmailFrequency)
		update.EmailFrequency = &f
	}

	settings, err := s.settings.Update(r.Context(), accountID, update)
	if err != nil {
		respondServiceError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}
