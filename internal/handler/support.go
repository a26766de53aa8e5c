package handler

import (
	"log/slog"
	"net/http"

	"github.com/kolosafo/bookflow/internal/store"
	"github.com/kolosafo/bookflow/internal/validate"
)

type SupportHandler struct {
	support *store.SupportStore
	logger  *slog.Logger
}

func NewSupportHandler(support *store.SupportStore, logger *slog.Logger) *SupportHandler {
	return &SupportHandler{support: support, logger: logger}
}

type supportRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,min=5"`
}

// Create handles POST /api/support
func (h *SupportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req supportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	msg, err := h.support.Create(req.Email, req.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg, "support message received")
}
