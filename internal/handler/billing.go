// Package handler contains HTTP handlers for the application.
//
// This file implements billing/subscription management handlers backed by Stripe.
//
// Routes:
//   - GET  /api/billing/subscription -> GetSubscription
//   - POST /api/billing/checkout     -> CreateCheckout
//   - POST /api/billing/portal       -> OpenPortal
//   - POST /api/billing/cancel       -> CancelSubscription
//   - POST /api/billing/reactivate   -> ReactivateSubscription
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/billing"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/service"
)

// BillingHandler handles billing and subscription management HTTP requests.
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	baseURL     string
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, userService service.UserService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// RegisterRoutes registers billing routes on the mux. All routes require
// an authenticated user.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/billing/subscription", requireUser(http.HandlerFunc(h.GetSubscription)))
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(h.ReactivateSubscription)))
}

// notConfigured is returned when Stripe credentials are absent.
func (h *BillingHandler) notConfigured(w http.ResponseWriter, r *http.Request, op string) {
	ErrorResponse(w, r, h.logger, domain.Unavailable(nil, op))
}

// GetSubscription returns the user's current plan, enriched with live
// Stripe data when a subscription exists.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	plan := map[string]interface{}{
		"tier":   string(user.SubscriptionTier),
		"status": string(user.SubscriptionStatus),
	}

	if h.billing != nil && user.SubscriptionID != "" {
		sub, err := h.billing.GetSubscription(user.SubscriptionID)
		if err != nil {
			h.logger.Warn("failed to fetch stripe subscription", "error", err, "subscription_id", user.SubscriptionID)
		} else {
			plan["status"] = string(sub.Status)
			plan["periodEnd"] = time.Unix(sub.CurrentPeriodEnd, 0).UTC().Format(time.RFC3339)
			plan["cancelAtPeriodEnd"] = sub.CancelAtPeriodEnd
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"subscription": plan})
}

// CreateCheckout creates a Stripe Checkout session and returns its URL.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.checkout"

	user := middleware.GetUser(r.Context())

	if h.billing == nil {
		h.notConfigured(w, r, op)
		return
	}

	var req struct {
		PriceID string `json:"priceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PriceID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "priceId is required"))
		return
	}
	if h.billing.TierForPriceID(req.PriceID) == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown price"))
		return
	}

	// Ensure the user has a Stripe customer
	customerID := user.StripeCustomerID
	if customerID == "" {
		var err error
		customerID, err = h.billing.CreateCustomer(user.Email, user.Name)
		if err != nil {
			h.logger.Error("failed to create stripe customer", "error", err, "user_id", user.ID)
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to initialize billing"))
			return
		}
		if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
			h.logger.Error("failed to save stripe customer ID", "error", err, "user_id", user.ID)
		}
	}

	successURL := fmt.Sprintf("%s/billing/success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/billing", h.baseURL)

	checkoutURL, err := h.billing.CreateCheckoutSession(customerID, req.PriceID, successURL, cancelURL)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create checkout session"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"url": checkoutURL})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.portal"

	user := middleware.GetUser(r.Context())

	if h.billing == nil {
		h.notConfigured(w, r, op)
		return
	}
	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account exists yet"))
		return
	}

	returnURL := fmt.Sprintf("%s/billing", h.baseURL)
	portalURL, err := h.billing.CreatePortalSession(user.StripeCustomerID, returnURL)
	if err != nil {
		h.logger.Error("failed to create portal session", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to open billing portal"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"url": portalURL})
}

// CancelSubscription sets the subscription to cancel at period end.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.cancel"

	user := middleware.GetUser(r.Context())

	if h.billing == nil {
		h.notConfigured(w, r, op)
		return
	}
	if user.SubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No active subscription to cancel"))
		return
	}

	if err := h.billing.CancelSubscription(user.SubscriptionID); err != nil {
		h.logger.Error("failed to cancel subscription", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to cancel subscription"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReactivateSubscription removes the cancel-at-period-end flag.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.reactivate"

	user := middleware.GetUser(r.Context())

	if h.billing == nil {
		h.notConfigured(w, r, op)
		return
	}
	if user.SubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No subscription to reactivate"))
		return
	}

	if err := h.billing.ReactivateSubscription(user.SubscriptionID); err != nil {
		h.logger.Error("failed to reactivate subscription", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to reactivate subscription"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
