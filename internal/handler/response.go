package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/mir00r/stand-router/internal/errors"
)

// ErrorResponse represents error responses
type ErrorResponse struct {
	Code      apperrors.ErrorCode `json:"code"`
	Error     string              `json:"error"`
	RequestID string              `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its HTTP status and JSON body
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{
		Code:  apperrors.GetErrorCode(err),
		Error: err.Error(),
	}

	if dErr, ok := apperrors.AsDispatchError(err); ok {
		resp.Error = dErr.Message
		resp.RequestID = dErr.RequestID
	}

	writeJSON(w, apperrors.GetHTTPStatusCode(err), resp)
}
