package share

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"refbook/features/chat"
	"refbook/features/project"
	"refbook/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /api/projects/{projectId}/share.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")

	var req struct {
		Name string `json:"name"`
	}
	// body is optional
	_ = json.NewDecoder(r.Body).Decode(&req)

	session, err := h.service.Create(r.Context(), projectID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, project.ErrNotFound):
			h.writeError(r.Context(), w, "NOT_FOUND", "Project not found", http.StatusNotFound)
		case errors.Is(err, ErrNoReadyResources):
			h.writeError(r.Context(), w, "NO_READY_RESOURCES", err.Error(), http.StatusUnprocessableEntity)
		default:
			slog.ErrorContext(r.Context(), "failed to create share", "error", err, "project_id", projectID)
			h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": session}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// List handles GET /api/projects/{projectId}/share.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")

	sessions, err := h.service.ListByProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Project not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": sessions,
		"meta": map[string]int{"count": len(sessions)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Resolve handles GET /api/share/{shareId}.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	shareID := r.PathValue("shareId")

	resolved, err := h.service.Resolve(r.Context(), shareID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Share not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resolved}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Chat handles POST /api/share/{shareId}/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	shareID := r.PathValue("shareId")

	var req struct {
		Message string      `json:"message"`
		History []chat.Turn `json:"conversation_history,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "message is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Chat(r.Context(), shareID, req.Message, req.History)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeError(r.Context(), w, "NOT_FOUND", "Share not found", http.StatusNotFound)
		case errors.Is(err, chat.ErrGenerationFailure):
			h.writeError(r.Context(), w, "UPSTREAM_ERROR", "Answer generation failed, please retry", http.StatusBadGateway)
		default:
			slog.ErrorContext(r.Context(), "share chat failed", "error", err, "share_id", shareID)
			h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Delete handles DELETE /api/share/{shareId}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	shareID := r.PathValue("shareId")

	if err := h.service.Delete(r.Context(), shareID); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Share not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
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
