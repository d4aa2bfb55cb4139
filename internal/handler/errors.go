package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/apperrors"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	ErrorCodeConflict       ErrorCode = "CONFLICT"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

func errorCodeFor(err error) ErrorCode {
	switch apperrors.GetCode(err) {
	case apperrors.CodeValidation:
		return ErrorCodeInvalidRequest
	case apperrors.CodeNotFound:
		return ErrorCodeRecordNotFound
	case apperrors.CodeConflict:
		return ErrorCodeConflict
	default:
		return ErrorCodeInternalError
	}
}

func httpStatusFor(err error) int {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// writeError writes err as a JSON error response.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Error(err))
	}

	writeJSON(w, status, ErrorResponse{
		Status:    "error",
		ErrorCode: errorCodeFor(err),
		Message:   err.Error(),
		RequestID: r.Header.Get("X-Request-ID"),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
