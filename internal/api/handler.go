// Package api provides the operational HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ndmitriev/ratepulse/internal/domain"
	"github.com/ndmitriev/ratepulse/internal/store"
)

// Broadcaster sends a notice to every known user. The dialog
// controller satisfies this.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (int, error)
}

// Handler serves reference data and operational endpoints.
type Handler struct {
	repo        store.Repository
	broadcaster Broadcaster
}

// NewHandler creates an ops handler.
func NewHandler(repo store.Repository, broadcaster Broadcaster) *Handler {
	return &Handler{repo: repo, broadcaster: broadcaster}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the ops endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/institutions", h.listInstitutions)
	r.Get("/api/institutions/{id}/topics", h.listTopics)
	r.Get("/api/ratings/count", h.countRatings)
	r.Post("/api/broadcast", h.broadcast)
}

func (h *Handler) listInstitutions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.ListInstitutions(r.Context())
	if err != nil {
		slog.Error("failed to list institutions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list institutions")
		return
	}
	if entries == nil {
		entries = []domain.RefEntry{}
	}
	JSON(w, http.StatusOK, entries)
}

func (h *Handler) listTopics(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid institution id")
		return
	}

	// Confirm the institution exists so an unknown id is a 404, not
	// an empty list.
	if _, err := h.repo.InstitutionName(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			Error(w, http.StatusNotFound, "institution not found")
			return
		}
		slog.Error("failed to resolve institution", "institution_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to resolve institution")
		return
	}

	entries, err := h.repo.ListTopicsForInstitution(r.Context(), id)
	if err != nil {
		slog.Error("failed to list topics", "institution_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list topics")
		return
	}
	if entries == nil {
		entries = []domain.RefEntry{}
	}
	JSON(w, http.StatusOK, entries)
}

func (h *Handler) countRatings(w http.ResponseWriter, r *http.Request) {
	count, err := h.repo.CountRatings(r.Context())
	if err != nil {
		slog.Error("failed to count ratings", "error", err)
		Error(w, http.StatusInternalServerError, "failed to count ratings")
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"count": count})
}

type broadcastRequest struct {
	Text string `json:"text"`
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sent, err := h.broadcaster.Broadcast(r.Context(), req.Text)
	if err != nil {
		slog.Error("broadcast failed", "error", err)
		Error(w, http.StatusInternalServerError, "broadcast failed")
		return
	}
	JSON(w, http.StatusOK, map[string]int{"sent": sent})
}
