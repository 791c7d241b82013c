package api

import (
	"net/http"

	"github.com/wiki-engagement/internal/types"
)

// isAdmin reports whether the account holds the admin role. Lookup failures count as no.
func (s *Server) isAdmin(r *http.Request, accountID string) bool {
	if s.accounts == nil {
		return false
	}
	account, err := s.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		return false
	}
	for _, role := range account.Roles {
		if role == types.RoleAdmin {
			return true
		}
	}
	return false
}

// handleRecalculateCounts handles POST /api/admin/paragraphs/recalculate
func (s *Server) handleRecalculateCounts(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}
	if !s.isAdmin(r, caller) {
		respondError(w, http.StatusForbidden, ErrCodeForbidden, "Admin role required", nil)
		return
	}

	changed, err := s.comments.RecalculateParagraphCounts(r.Context())
	if err != nil {
		respondServiceError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"changed": changed,
	})
}
