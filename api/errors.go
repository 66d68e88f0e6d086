package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jobline/jobline"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps the error taxonomy onto HTTP statuses: unknown job
// 404, illegal request 400, lost race or exhausted retries 409,
// unreachable store 503, everything else 500.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, jobline.ErrJobNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, jobline.ErrValidation),
		errors.Is(err, jobline.ErrInvalidTransition),
		errors.Is(err, jobline.ErrInvalidState):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, jobline.ErrRetryLimitExceeded):
		status, code = http.StatusConflict, "retry_limit_exceeded"
	case errors.Is(err, jobline.ErrConflict), errors.Is(err, jobline.ErrJobAlreadyExists):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, jobline.ErrUpstreamUnavailable), errors.Is(err, jobline.ErrStoreClosed):
		status, code = http.StatusServiceUnavailable, "upstream_unavailable"
	default:
		status, code = http.StatusInternalServerError, "internal"
		a.logger.Error("request failed", slog.String("error", err.Error()))
	}

	a.writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("write response failed", slog.String("error", err.Error()))
	}
}
