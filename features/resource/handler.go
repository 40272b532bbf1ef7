package resource

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"refbook/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")

	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "url is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.Add(r.Context(), projectID, req.URL, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidURL):
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrProjectNotFound):
			h.writeError(r.Context(), w, "NOT_FOUND", "Project not found", http.StatusNotFound)
		case errors.Is(err, ErrDuplicate):
			h.writeError(r.Context(), w, "CONFLICT", err.Error(), http.StatusConflict)
		default:
			slog.ErrorContext(r.Context(), "failed to add resource", "error", err, "url", req.URL)
			h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")

	resources, err := h.service.List(r.Context(), projectID)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if resources == nil {
		resources = []Resource{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": resources,
		"meta": map[string]int{"count": len(resources)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")
	id := r.PathValue("id")

	res, err := h.service.Get(r.Context(), projectID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Resource not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")
	id := r.PathValue("id")

	res, err := h.service.Refresh(r.Context(), projectID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeError(r.Context(), w, "NOT_FOUND", "Resource not found", http.StatusNotFound)
		case errors.Is(err, ErrConflict):
			h.writeError(r.Context(), w, "CONFLICT", "Resource is already being processed", http.StatusConflict)
		default:
			h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectId")
	id := r.PathValue("id")

	if err := h.service.Delete(r.Context(), projectID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Resource not found", http.StatusNotFound)
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
