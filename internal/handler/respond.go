// Package handler implements the HTTP API. Every response uses the same
// envelope so mobile clients can parse success and failure uniformly:
//
//	{"data": ..., "message": ..., "errors": [...], "status": 200}
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kolosafo/bookflow/internal/apperr"
)

type envelope struct {
	Data    any      `json:"data"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
	Status  int      `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, data any, message string) {
	errs := []string{}
	if status >= 400 {
		errs = []string{message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{
		Data:    data,
		Message: message,
		Errors:  errs,
		Status:  status,
	})
}

// writeError maps a domain error to its HTTP status. The wrapped cause goes
// to the log, never to the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae := apperr.From(err)
	if ae.Kind == apperr.Internal || ae.Kind == apperr.Upstream {
		logger.Error("request failed", "error", err)
	}
	status := ae.HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{
		Data:    nil,
		Message: ae.Message,
		Errors:  []string{ae.Message},
		Status:  status,
	})
}

// writeFieldErrors reports per-field validation failures as a 400.
func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	msgs := make([]string, 0, len(fields))
	for field, msg := range fields {
		msgs = append(msgs, field+": "+msg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(struct {
		Data    any               `json:"data"`
		Message string            `json:"message"`
		Errors  []string          `json:"errors"`
		Fields  map[string]string `json:"fields"`
		Status  int               `json:"status"`
	}{
		Data:    nil,
		Message: "validation failed",
		Errors:  msgs,
		Fields:  fields,
		Status:  http.StatusBadRequest,
	})
}

// decodeBestEffort decodes an optional request body, ignoring failures.
func decodeBestEffort(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, nil, "invalid JSON")
		return false
	}
	return true
}
