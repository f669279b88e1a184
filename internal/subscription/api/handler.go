package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventflow/internal/auth"
	"eventflow/internal/logger"
	"eventflow/internal/subscription"
	"eventflow/internal/utils"
)

type Handler struct {
	Service *subscription.Service
	Logger  *logger.Logger
}

func NewHandler(service *subscription.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

type checkoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout starts the pro upgrade flow and returns the Stripe hosted
// payment page URL.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityId")

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		http.Error(w, "success_url and cancel_url are required", http.StatusBadRequest)
		return
	}

	url, err := h.Service.CreateCheckoutSession(communityID, auth.UserID(r.Context()), req.SuccessURL, req.CancelURL)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCheckout: %v", err))
		switch {
		case errors.Is(err, subscription.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, subscription.ErrOwnerOnly):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, subscription.ErrAlreadyPro):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Failed to create checkout session", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(checkoutResponse{CheckoutURL: url}); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCheckout: failed to encode response: %v", err))
	}
}

// Webhook receives Stripe events. Signature verification and processing
// happen in the service; the typed error decides the response.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleWebhook(r); err != nil {
		var webhookErr *subscription.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("[%s] %s", webhookErr.Category, webhookErr.InternalError))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(webhookErr.StatusCode)
			_ = json.NewEncoder(w).Encode(utils.ErrorResponse(webhookErr.PublicError, ""))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Webhook processing failed: %v", err))
		http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RegisterPublicRoutes mounts the (Stripe-signed) webhook endpoint.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Webhook)
}

// RegisterProtectedRoutes mounts the billing endpoints.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/communities/{communityId}/subscription/checkout", h.CreateCheckout)
}
