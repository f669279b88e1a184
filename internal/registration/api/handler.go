package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventflow/internal/auth"
	"eventflow/internal/logger"
	"eventflow/internal/models"
	"eventflow/internal/registration"
)

type Handler struct {
	Service *registration.Service
	Logger  *logger.Logger
}

func NewHandler(service *registration.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) statusFor(err error) int {
	switch {
	case errors.Is(err, registration.ErrNotFound), errors.Is(err, registration.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, registration.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, registration.ErrAlreadyRegistered), errors.Is(err, registration.ErrHoldContended),
		errors.Is(err, registration.ErrNotPending), errors.Is(err, registration.ErrNotLive),
		errors.Is(err, registration.ErrAlreadyCheckedIn):
		return http.StatusConflict
	case errors.Is(err, registration.ErrRegistrationClosed), errors.Is(err, registration.ErrEventFull),
		errors.Is(err, registration.ErrNotConfirmed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registration.ErrBadCheckInCode):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeJSON(w http.ResponseWriter, op string, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to encode response: %v", op, err))
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Service.Register(r.Context(), chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Register: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	h.writeJSON(w, "Register", reg, http.StatusCreated)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Cancel(chi.URLParam(r, "registrationId"), auth.UserID(r.Context())); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelRegistration: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Service.ListMine(auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyRegistrations: %v", err))
		http.Error(w, "Failed to list registrations", http.StatusInternalServerError)
		return
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	h.writeJSON(w, "ListMyRegistrations", regs, http.StatusOK)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Service.TicketQR(chi.URLParam(r, "registrationId"), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR: failed to write image: %v", err))
	}
}

type checkInRequest struct {
	Token string `json:"token"`
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	reg, err := h.Service.CheckIn(auth.UserID(r.Context()), chi.URLParam(r, "eventId"), req.Token)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CheckIn: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	h.writeJSON(w, "CheckIn", reg, http.StatusOK)
}

func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Service.ListParticipants(chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListParticipants: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	h.writeJSON(w, "ListParticipants", regs, http.StatusOK)
}

// ExportParticipants streams the participant list as CSV.
func (h *Handler) ExportParticipants(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	regs, err := h.Service.ListParticipants(eventID, auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ExportParticipants: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="participants-%s.csv"`, eventID))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"registration_id", "user_id", "email", "full_name", "status", "registered_at", "attended_at"})
	for _, reg := range regs {
		email, name := "", ""
		if reg.User != nil {
			email, name = reg.User.Email, reg.User.FullName
		}
		attended := ""
		if reg.AttendedAt != nil {
			attended = reg.AttendedAt.UTC().Format("2006-01-02 15:04:05")
		}
		_ = cw.Write([]string{
			reg.ID, reg.UserID, email, name, reg.Status,
			reg.CreatedAt.UTC().Format("2006-01-02 15:04:05"), attended,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ExportParticipants: failed to write csv: %v", err))
	}
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Service.Approve(chi.URLParam(r, "registrationId"), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ApproveRegistration: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	h.writeJSON(w, "ApproveRegistration", reg, http.StatusOK)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Service.Reject(chi.URLParam(r, "registrationId"), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RejectRegistration: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	h.writeJSON(w, "RejectRegistration", reg, http.StatusOK)
}

func (h *Handler) Kick(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Kick(chi.URLParam(r, "registrationId"), auth.UserID(r.Context())); err != nil {
		h.Logger.Error("API", fmt.Sprintf("KickParticipant: %v", err))
		http.Error(w, err.Error(), h.statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes mounts all registration endpoints on an authenticated
// router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/events/{eventId}/register", h.Register)
	r.Get("/events/{eventId}/participants", h.ListParticipants)
	r.Get("/events/{eventId}/participants/export", h.ExportParticipants)
	r.Post("/events/{eventId}/checkin", h.CheckIn)

	r.Get("/registrations", h.ListMine)
	r.Delete("/registrations/{registrationId}", h.Cancel)
	r.Get("/registrations/{registrationId}/qr", h.TicketQR)
	r.Post("/registrations/{registrationId}/approve", h.Approve)
	r.Post("/registrations/{registrationId}/reject", h.Reject)
	r.Delete("/registrations/{registrationId}/kick", h.Kick)
}
