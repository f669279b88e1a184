package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventflow/internal/auth"
	"eventflow/internal/community"
	"eventflow/internal/logger"
)

type Handler struct {
	Service *community.Service
	Logger  *logger.Logger
}

func NewHandler(service *community.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

type communityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type adminRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) statusFor(err error) int {
	switch {
	case errors.Is(err, community.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, community.ErrForbidden), errors.Is(err, community.ErrOwnerOnly):
		return http.StatusForbidden
	case errors.Is(err, community.ErrSlugTaken), errors.Is(err, community.ErrAlreadyAdmin),
		errors.Is(err, community.ErrHasRegistrations), errors.Is(err, community.ErrOwnerImmutable):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req communityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	created, err := h.Service.Create(auth.UserID(r.Context()), req.Name, req.Description)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCommunity: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCommunity: failed to encode response: %v", err))
	}
}

func (h *Handler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	found, err := h.Service.GetBySlug(slug)
	if err != nil {
		http.Error(w, "Community not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(found); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetCommunity: failed to encode response: %v", err))
	}
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListMine(auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMine: %v", err))
		http.Error(w, "Failed to list communities", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMine: failed to encode response: %v", err))
	}
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityId")

	var req communityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.Service.Update(communityID, auth.UserID(r.Context()), req.Name, req.Description)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateCommunity: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(updated); err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateCommunity: failed to encode response: %v", err))
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityId")

	if err := h.Service.Delete(communityID, auth.UserID(r.Context())); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteCommunity: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityId")

	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.AddAdmin(communityID, auth.UserID(r.Context()), req.UserID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("AddAdmin: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityId")
	adminID := chi.URLParam(r, "userId")

	if err := h.Service.RemoveAdmin(communityID, auth.UserID(r.Context()), adminID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("RemoveAdmin: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityId")

	admins, err := h.Service.ListAdmins(communityID, auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListAdmins: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(admins); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListAdmins: failed to encode response: %v", err))
	}
}

// RegisterRoutes mounts community endpoints under an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/communities", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.ListMine)
		r.Route("/{communityId}", func(r chi.Router) {
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Get("/admins", h.ListAdmins)
			r.Post("/admins", h.AddAdmin)
			r.Delete("/admins/{userId}", h.RemoveAdmin)
		})
	})
}
