package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/service"
)

// createCommentRequest is the body of POST /api/comments
type createCommentRequest struct {
	Content     string  `json:"content" validate:"required,max=10000"`
	PageID      *string `json:"pageId" validate:"required_without=ParagraphID,excluded_with=ParagraphID"`
	ParagraphID *string `json:"paragraphId" validate:"omitempty,min=1"`
	ParentID    *string `json:"parentId" validate:"omitempty,min=1"`
}

// callerID returns the authenticated caller from X-User-ID, or "" when absent
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// handleCreateComment handles POST /api/comments
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	authorID := callerID(r)
	if authorID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	var req createCommentRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		respondServiceError(w, s.logger, err)
		return
	}

	admission, err := s.comments.Create(r.Context(), service.AdmitRequest{
		AuthorID: authorID,
		Content:  req.Content,
		Target: models.CommentTarget{
			PageID:      req.PageID,
			ParagraphID: req.ParagraphID,
			ParentID:    req.ParentID,
		},
		OriginIP: ClientIPv4(r),
	})
	if err != nil {
		respondServiceError(w, s.logger, err)
		return
	}
	if !admission.Admitted() {
		respondServiceError(w, s.logger, admission.Rejection.AsError())
		return
	}

	respondJSON(w, http.StatusCreated, admission.Comment)
}

// handleDeleteComment handles DELETE /api/comments/{id}
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	actorID := callerID(r)
	if actorID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	commentID := mux.Vars(r)["id"]
	if err := s.comments.Delete(r.Context(), actorID, commentID); err != nil {
		respondServiceError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
