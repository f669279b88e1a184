package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventflow/internal/auth"
	"eventflow/internal/event"
	"eventflow/internal/logger"
	"eventflow/internal/models"
)

type Handler struct {
	Service *event.Service
	Logger  *logger.Logger
}

func NewHandler(service *event.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) statusFor(err error) int {
	switch {
	case errors.Is(err, event.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, event.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, event.ErrNotDraft), errors.Is(err, event.ErrNotPublished),
		errors.Is(err, event.ErrNotEnded):
		return http.StatusConflict
	case errors.Is(err, event.ErrInvalidKind), errors.Is(err, event.ErrInvalidTimes),
		errors.Is(err, event.ErrInvalidWindow), errors.Is(err, event.ErrKindMismatch):
		return http.StatusBadRequest
	case errors.Is(err, event.ErrIncomplete), errors.Is(err, event.ErrPlanEventLimit),
		errors.Is(err, event.ErrPlanCapacity), errors.Is(err, event.ErrPlanApproval),
		errors.Is(err, event.ErrCapacityBelowCount):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) respond(w http.ResponseWriter, op string, result any, err error, okStatus int) {
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	if result == nil {
		w.WriteHeader(okStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(okStatus)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to encode response: %v", op, err))
	}
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var in event.DraftInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.CommunityID = chi.URLParam(r, "communityId")

	created, err := h.Service.CreateDraft(auth.UserID(r.Context()), in)
	h.respond(w, "CreateDraft", created, err, http.StatusCreated)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	found, err := h.Service.Get(chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	h.respond(w, "GetEvent", found, err, http.StatusOK)
}

func (h *Handler) ListByCommunity(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListByCommunity(chi.URLParam(r, "communityId"), auth.UserID(r.Context()))
	if list == nil && err == nil {
		list = []models.Event{}
	}
	h.respond(w, "ListEvents", list, err, http.StatusOK)
}

func (h *Handler) ListByTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		http.Error(w, "tag query parameter is required", http.StatusBadRequest)
		return
	}
	list, err := h.Service.ListByTag(tag)
	if list == nil && err == nil {
		list = []models.Event{}
	}
	h.respond(w, "ListEventsByTag", list, err, http.StatusOK)
}

func (h *Handler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var in event.DetailsInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.Service.UpdateDetails(chi.URLParam(r, "eventId"), auth.UserID(r.Context()), in)
	h.respond(w, "UpdateDetails", updated, err, http.StatusOK)
}

func (h *Handler) SetOnlineDetails(w http.ResponseWriter, r *http.Request) {
	var meta models.EventOnline
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.Service.SetOnlineDetails(chi.URLParam(r, "eventId"), auth.UserID(r.Context()), meta)
	h.respond(w, "SetOnlineDetails", updated, err, http.StatusOK)
}

func (h *Handler) SetOnsiteDetails(w http.ResponseWriter, r *http.Request) {
	var meta models.EventOnsite
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.Service.SetOnsiteDetails(chi.URLParam(r, "eventId"), auth.UserID(r.Context()), meta)
	h.respond(w, "SetOnsiteDetails", updated, err, http.StatusOK)
}

func (h *Handler) SetHackathonDetails(w http.ResponseWriter, r *http.Request) {
	var meta models.EventHackathon
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.Service.SetHackathonDetails(chi.URLParam(r, "eventId"), auth.UserID(r.Context()), meta)
	h.respond(w, "SetHackathonDetails", updated, err, http.StatusOK)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in event.SettingsInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.Service.UpdateSettings(chi.URLParam(r, "eventId"), auth.UserID(r.Context()), in)
	h.respond(w, "UpdateSettings", updated, err, http.StatusOK)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	published, err := h.Service.Publish(chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	h.respond(w, "PublishEvent", published, err, http.StatusOK)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.Service.Cancel(chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	h.respond(w, "CancelEvent", cancelled, err, http.StatusOK)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	completed, err := h.Service.Complete(chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	h.respond(w, "CompleteEvent", completed, err, http.StatusOK)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Service.Delete(chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	h.respond(w, "DeleteEvent", nil, err, http.StatusNoContent)
}

type tagRequest struct {
	Tag string `json:"tag"`
}

func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.Service.AddTag(chi.URLParam(r, "eventId"), auth.UserID(r.Context()), req.Tag)
	h.respond(w, "AddTag", updated, err, http.StatusCreated)
}

func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.RemoveTag(chi.URLParam(r, "eventId"), auth.UserID(r.Context()), chi.URLParam(r, "tag"))
	h.respond(w, "RemoveTag", updated, err, http.StatusOK)
}

// RegisterPublicRoutes mounts the read endpoints. Wrap the router with
// auth.OptionalMiddleware so organizers get their drafts back.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/events", h.ListByTag)
	r.Get("/events/{eventId}", h.Get)
	r.Get("/communities/{communityId}/events", h.ListByCommunity)
}

// RegisterProtectedRoutes mounts the wizard and lifecycle endpoints.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/communities/{communityId}/events", h.CreateDraft)
	r.Put("/events/{eventId}", h.UpdateDetails)
	r.Put("/events/{eventId}/online", h.SetOnlineDetails)
	r.Put("/events/{eventId}/onsite", h.SetOnsiteDetails)
	r.Put("/events/{eventId}/hackathon", h.SetHackathonDetails)
	r.Put("/events/{eventId}/settings", h.UpdateSettings)
	r.Post("/events/{eventId}/publish", h.Publish)
	r.Post("/events/{eventId}/cancel", h.Cancel)
	r.Post("/events/{eventId}/complete", h.Complete)
	r.Delete("/events/{eventId}", h.Delete)
	r.Post("/events/{eventId}/tags", h.AddTag)
	r.Delete("/events/{eventId}/tags/{tag}", h.RemoveTag)
}
