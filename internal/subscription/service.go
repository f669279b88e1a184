package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"eventflow/internal/config"
	"eventflow/internal/logger"
	"eventflow/internal/models"
)

var (
	ErrNotFound    = errors.New("community not found")
	ErrOwnerOnly   = errors.New("only the community owner can manage billing")
	ErrAlreadyPro  = errors.New("community is already on the pro plan")
	ErrNotUpgraded = errors.New("community has no active subscription")
)

type DBLayer interface {
	GetCommunityByID(id string) (*models.Community, error)
	GetCommunityByStripeSubscription(subscriptionID string) (*models.Community, error)
	UpdateCommunityBilling(community models.Community) error
	GetAdminRole(communityID, userID string) (string, error)
}

type Service struct {
	DB     DBLayer
	Config config.StripeConfig
	Logger *logger.Logger
}

// InitStripe sets the package-level Stripe API key.
func InitStripe(secretKey string) {
	stripe.Key = secretKey
}

func NewService(db DBLayer, cfg config.StripeConfig, log *logger.Logger) *Service {
	return &Service{DB: db, Config: cfg, Logger: log}
}

// CreateCheckoutSession starts a Stripe Checkout flow in subscription mode
// for upgrading a community to the pro plan. Returns the hosted payment URL.
func (s *Service) CreateCheckoutSession(communityID, userID, successURL, cancelURL string) (string, error) {
	community, err := s.DB.GetCommunityByID(communityID)
	if err != nil {
		return "", err
	}
	if community == nil {
		return "", ErrNotFound
	}

	role, err := s.DB.GetAdminRole(communityID, userID)
	if err != nil {
		return "", err
	}
	if role != models.RoleOwner {
		return "", ErrOwnerOnly
	}
	if community.Plan == models.PlanPro {
		return "", ErrAlreadyPro
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.Config.ProPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.AddMetadata("community_id", communityID)

	sess, err := session.New(params)
	if err != nil {
		s.Logger.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for community %s: %v", communityID, err))
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.Logger.Info("STRIPE", fmt.Sprintf("Created checkout session %s for community %s", sess.ID, communityID))
	return sess.URL, nil
}

// WebhookError carries an HTTP status and a client-safe message alongside
// the detailed internal error.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleWebhook verifies and processes Stripe subscription lifecycle events.
func (s *Service) HandleWebhook(r *http.Request) error {
	if s.Config.WebhookSecret == "" {
		s.Logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.Config.WebhookSecret, opts)
	if err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(event.Data.Raw)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(event.Data.Raw)
	default:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}
	return nil
}

// handleCheckoutCompleted flips the community to the pro plan and records
// its Stripe customer and subscription ids.
func (s *Service) handleCheckoutCompleted(raw json.RawMessage) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}

	communityID, exists := sess.Metadata["community_id"]
	if !exists {
		s.Logger.Error("WEBHOOK", "Checkout session has no community_id in metadata")
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: "Checkout session has no community_id in metadata",
		}
	}

	community, err := s.DB.GetCommunityByID(communityID)
	if err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to load community %s: %v", communityID, err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process subscription",
			InternalError: fmt.Sprintf("Failed to load community %s: %v", communityID, err),
			OriginalErr:   err,
		}
	}
	if community == nil {
		// Nothing to upgrade; a retry from Stripe would not change that.
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("Checkout completed for unknown community %s", communityID))
		return nil
	}

	community.Plan = models.PlanPro
	if sess.Customer != nil {
		community.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		community.StripeSubscriptionID = sess.Subscription.ID
	}
	if err := s.DB.UpdateCommunityBilling(*community); err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to upgrade community %s: %v", communityID, err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process subscription",
			InternalError: fmt.Sprintf("Failed to upgrade community %s: %v", communityID, err),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Community %s upgraded to pro", communityID))
	return nil
}

// handleSubscriptionDeleted downgrades the community back to the free plan.
// Published events stay published; the free limits apply to new publishes.
func (s *Service) handleSubscriptionDeleted(raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal subscription: %v", err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal subscription: %v", err),
			OriginalErr:   err,
		}
	}

	community, err := s.DB.GetCommunityByStripeSubscription(sub.ID)
	if err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to look up subscription %s: %v", sub.ID, err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process subscription",
			InternalError: fmt.Sprintf("Failed to look up subscription %s: %v", sub.ID, err),
			OriginalErr:   err,
		}
	}
	if community == nil {
		// Nothing to downgrade; acknowledge so Stripe stops retrying.
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("No community found for subscription %s", sub.ID))
		return nil
	}

	community.Plan = models.PlanFree
	community.StripeSubscriptionID = ""
	if err := s.DB.UpdateCommunityBilling(*community); err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to downgrade community %s: %v", community.ID, err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process subscription",
			InternalError: fmt.Sprintf("Failed to downgrade community %s: %v", community.ID, err),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Community %s downgraded to free", community.ID))
	return nil
}
