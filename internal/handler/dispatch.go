package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/internal/router"
	"github.com/mir00r/stand-router/pkg/logger"
)

// maxDispatchBody bounds the size of a dispatch request body
const maxDispatchBody = 1 << 20

// legacyNotFoundBody is returned for unknown targets in legacy mode
const legacyNotFoundBody = "-1"

// DispatchHandler turns HTTP requests into router dispatches
type DispatchHandler struct {
	router         *router.Router
	metrics        domain.Metrics
	logger         *logger.Logger
	legacyNotFound bool
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(r *router.Router, metrics domain.Metrics, log *logger.Logger, legacyNotFound bool) *DispatchHandler {
	return &DispatchHandler{
		router:         r,
		metrics:        metrics,
		logger:         log.WithField("component", "dispatch_handler"),
		legacyNotFound: legacyNotFound,
	}
}

// ServeHTTP handles POST / and POST /dispatch. The body is either a
// ["TARGET", amount] pair or a {"target": ..., "amount": ...} object.
func (h *DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDispatchBody))
	if err != nil {
		writeError(w, apperrors.NewInvalidRequestError("request body too large or unreadable"))
		return
	}

	req, err := decodeDispatchRequest(body)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.router.DispatchRequest(r.Context(), req)
	if err != nil {
		if h.legacyNotFound && apperrors.GetErrorCode(err) == apperrors.ErrCodeUnknownTarget {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, legacyNotFoundBody)
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeDispatchRequest accepts the pair and object forms of a request
func decodeDispatchRequest(body []byte) (domain.DispatchRequest, error) {
	var req domain.DispatchRequest

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return req, apperrors.NewInvalidRequestError("request body is empty")
	}

	switch trimmed[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(trimmed, &pair); err != nil {
			return req, apperrors.NewInvalidRequestError("malformed JSON array")
		}
		if len(pair) != 2 {
			return req, apperrors.NewInvalidRequestError(fmt.Sprintf("expected [target, amount], got %d elements", len(pair)))
		}
		if err := json.Unmarshal(pair[0], &req.Target); err != nil {
			return req, apperrors.NewInvalidRequestError("target must be a string")
		}
		if err := json.Unmarshal(pair[1], &req.Amount); err != nil {
			return req, apperrors.NewInvalidRequestError("amount must be a number")
		}
	case '{':
		var obj struct {
			Target *string  `json:"target"`
			Amount *float64 `json:"amount"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return req, apperrors.NewInvalidRequestError("malformed JSON object")
		}
		if obj.Target == nil {
			return req, apperrors.NewInvalidRequestError("target is required")
		}
		if obj.Amount == nil {
			return req, apperrors.NewInvalidRequestError("amount is required")
		}
		req.Target = *obj.Target
		req.Amount = *obj.Amount
	default:
		return req, apperrors.NewInvalidRequestError("body must be a JSON array or object")
	}

	return req, nil
}

// MetricsHandler provides metrics endpoint
func (h *DispatchHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, h.metrics.GetStats())
}
