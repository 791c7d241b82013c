package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handlePageUpdated handles POST /api/pages/{id}/updated, sent by the page subsystem after an edit.
// Fan-out failures never fail the page edit, so this always answers 202.
func (s *Server) handlePageUpdated(w http.ResponseWriter, r *http.Request) {
	editorID := callerID(r)
	if editorID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	pageID := mux.Vars(r)["id"]
	created := s.pages.NotifyUpdated(r.Context(), pageID, editorID)

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"pageId":        pageID,
		"notifications": created,
	})
}
