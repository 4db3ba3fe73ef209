package web

// errors.go provides unified error response handling for the web layer.
// Technical errors are logged server-side with the request ID; clients get
// the mapped user message with a machine-readable code.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/finsightlab/finsight/internal/logging"
	"github.com/finsightlab/finsight/internal/session"
	"github.com/finsightlab/finsight/internal/tabular"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// respondError maps the error to a user message, logs the technical detail,
// and writes the JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := session.MapError(err)
	status := statusFor(err, userMsg.Code)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:  userMsg.Message,
		Action: userMsg.Action,
		Code:   userMsg.Code,
	})
}

// statusFor derives the HTTP status from the domain error.
func statusFor(err error, code string) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrTransactionGone):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrSessionCommitted):
		return http.StatusConflict
	case errors.Is(err, session.ErrMappingIncomplete),
		errors.Is(err, session.ErrInvalidRows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrUnknownAction),
		errors.Is(err, tabular.ErrEmptyFile),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	// File-level failures surfaced through the error taxonomy are client
	// errors even when wrapped beyond errors.Is reach.
	if strings.HasPrefix(code, "FILE") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errBadRequest marks malformed request input (bad UUIDs, bad JSON).
var errBadRequest = errors.New("bad request")
