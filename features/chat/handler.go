package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"refbook/features/project"
	"refbook/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "message is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Ask(r.Context(), projectID, req)
	if err != nil {
		switch {
		case errors.Is(err, project.ErrNotFound):
			h.writeError(r.Context(), w, "NOT_FOUND", "Project not found", http.StatusNotFound)
		case errors.Is(err, ErrGenerationFailure):
			h.writeError(r.Context(), w, "UPSTREAM_ERROR", "Answer generation failed, please retry", http.StatusBadGateway)
		default:
			slog.ErrorContext(r.Context(), "chat failed", "error", err, "project_id", projectID)
			h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
