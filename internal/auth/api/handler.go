package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventflow/internal/auth"
	"eventflow/internal/logger"
	"eventflow/internal/utils"
)

type Handler struct {
	Service   *auth.Service
	Providers *auth.OAuthProviders
	Logger    *logger.Logger
}

func NewHandler(service *auth.Service, providers *auth.OAuthProviders, log *logger.Logger) *Handler {
	return &Handler{Service: service, Providers: providers, Logger: log}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.FullName == "" {
		http.Error(w, "email and full_name are required", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.RegisterPassword(r.Context(), req.Email, req.Password, req.FullName, r.UserAgent())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Register: %v", err))
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, auth.ErrPasswordTooShort):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "Registration failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Register: failed to encode response: %v", err))
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.Service.LoginPassword(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Login: %v", err))
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Login: failed to encode response: %v", err))
	}
}

// OAuthLogin redirects the browser to the provider's authorization page.
func (h *Handler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	url, err := h.Providers.AuthURL(r.Context(), provider)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OAuthLogin: %v", err))
		http.Error(w, "Unknown or unconfigured provider", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// OAuthLink starts a link-intent flow for the logged-in user.
func (h *Handler) OAuthLink(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	userID := auth.UserID(r.Context())

	url, err := h.Providers.LinkAuthURL(r.Context(), provider, userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OAuthLink: %v", err))
		http.Error(w, "Unknown or unconfigured provider", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// OAuthCallback finishes both login and link flows.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "missing state or code", http.StatusBadRequest)
		return
	}

	profile, linkUserID, err := h.Providers.Exchange(r.Context(), provider, state, code)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OAuthCallback: exchange failed: %v", err))
		if errors.Is(err, auth.ErrInvalidState) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "OAuth exchange failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if linkUserID != "" {
		if err := h.Service.LinkProvider(linkUserID, profile); err != nil {
			h.Logger.Error("API", fmt.Sprintf("OAuthCallback: link failed: %v", err))
			if errors.Is(err, auth.ErrAccountInUse) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, "Failed to link account", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(utils.SuccessResponse("account linked", nil))
		return
	}

	resp, err := h.Service.LoginWithProvider(r.Context(), profile, r.UserAgent())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OAuthCallback: login failed: %v", err))
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("OAuthCallback: failed to encode response: %v", err))
	}
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.SessionID(r.Context())
	if err := h.Service.Logout(r.Context(), sessionID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Logout: %v", err))
		http.Error(w, "Logout failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := h.Service.LogoutAll(r.Context(), userID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("LogoutAll: %v", err))
		http.Error(w, "Logout failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.GetUser(auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Me: %v", err))
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(user); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Me: failed to encode response: %v", err))
	}
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Service.ListAccounts(auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListAccounts: %v", err))
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(accounts); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListAccounts: failed to encode response: %v", err))
	}
}

func (h *Handler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	err := h.Service.UnlinkProvider(auth.UserID(r.Context()), provider)
	if err != nil {
		if errors.Is(err, auth.ErrLastAccount) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("UnlinkAccount: %v", err))
		http.Error(w, "Failed to unlink: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes wires auth endpoints onto the router. Public routes handle
// login/registration; the protected group is mounted by the caller.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/auth/{provider}/login", h.OAuthLogin)
	r.Get("/auth/{provider}/callback", h.OAuthCallback)
}

func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/logout-all", h.LogoutAll)
	r.Get("/auth/{provider}/link", h.OAuthLink)
	r.Get("/me", h.Me)
	r.Get("/me/accounts", h.ListAccounts)
	r.Delete("/me/accounts/{provider}", h.UnlinkAccount)
}
