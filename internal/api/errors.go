package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError renders any service error through its category.
// System errors are logged and their cause is never exposed to the client.
func respondServiceError(w http.ResponseWriter, logger *logging.Logger, err error) {
	catErr := apperrors.Categorize(err)

	if catErr.StatusCode == http.StatusTooManyRequests {
		if wait, ok := catErr.Details["waitSeconds"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(wait))
		}
	}

	if catErr.StatusCode >= http.StatusInternalServerError {
		logger.WithError(err).WithField("code", catErr.Code).Error("Request failed")
		respondError(w, catErr.StatusCode, catErr.Code, "An internal error occurred", nil)
		return
	}

	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)
