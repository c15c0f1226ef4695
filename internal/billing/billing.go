package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/loansight/loansight/internal/database"
	"github.com/loansight/loansight/internal/errors"
	"github.com/loansight/loansight/internal/ratelimit"
	"github.com/loansight/loansight/internal/types"
)

// Config holds Stripe configuration
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
}

// Service handles paid-tier upgrades through Stripe Checkout
type Service struct {
	stripeClient *client.API
	config       Config
	userService  *database.UserService
	rateLimiter  *ratelimit.RateLimiter
}

// NewService creates the billing service. With no secret key configured the
// service stays disabled and its handlers answer 503.
func NewService(config Config, userService *database.UserService, rateLimiter *ratelimit.RateLimiter) *Service {
	s := &Service{
		config:      config,
		userService: userService,
		rateLimiter: rateLimiter,
	}

	if config.SecretKey != "" {
		stripe.Key = config.SecretKey
		s.stripeClient = &client.API{}
		s.stripeClient.Init(config.SecretKey, nil)
		slog.Info("Stripe billing initialized")
	} else {
		slog.Warn("Stripe secret key not configured, billing endpoints disabled")
	}

	return s
}

// Enabled reports whether Stripe is configured
func (s *Service) Enabled() bool {
	return s.stripeClient != nil
}

// HandleCreateCheckout creates a Stripe checkout session for the unlimited plan
func (s *Service) HandleCreateCheckout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
			return
		}

		userID := c.GetString("user_id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not identified"})
			return
		}

		var req types.CheckoutRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.NewValidationError("invalid checkout request", err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		successURL := req.SuccessURL
		if successURL == "" {
			successURL = "http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"
		}
		cancelURL := req.CancelURL
		if cancelURL == "" {
			cancelURL = "http://localhost:3000/payment/cancelled"
		}

		sessionParams := &stripe.CheckoutSessionParams{
			PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
			Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			SuccessURL:         stripe.String(successURL),
			CancelURL:          stripe.String(cancelURL),
			ClientReferenceID:  stripe.String(userID),
			Metadata: map[string]string{
				"user_id": userID,
				"type":    "subscription",
			},
		}

		if s.config.PriceID != "" {
			sessionParams.LineItems = []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(s.config.PriceID),
					Quantity: stripe.Int64(1),
				},
			}
		} else {
			sessionParams.LineItems = []*stripe.CheckoutSessionLineItemParams{
				{
					PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
						Currency: stripe.String("usd"),
						ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
							Name:        stripe.String("LoanSight Unlimited"),
							Description: stripe.String("Unlimited loan eligibility predictions"),
						},
						UnitAmount: stripe.Int64(900), // $9.00 per month
						Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
							Interval: stripe.String("month"),
						},
					},
					Quantity: stripe.Int64(1),
				},
			}
		}

		session, err := s.stripeClient.CheckoutSessions.New(sessionParams)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id": session.ID,
			"url":        session.URL,
		})
	}
}

// HandleWebhook processes Stripe webhook events
func (s *Service) HandleWebhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
			return
		}

		const MaxBodyBytes = int64(65536)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), s.config.WebhookSecret)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse webhook"})
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse session"})
				return
			}

			s.completeCheckout(c.Request.Context(), &session)
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// completeCheckout upgrades the user and records the payment. Failures are
// logged, not returned, because Stripe retries webhooks on non-2xx.
func (s *Service) completeCheckout(ctx context.Context, session *stripe.CheckoutSession) {
	userID := session.ClientReferenceID
	if userID == "" {
		slog.Error("User ID is empty in checkout webhook", "session_id", session.ID)
		return
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	if err := s.userService.UpgradeUserToPaid(userID, customerID); err != nil {
		slog.Error("Failed to upgrade user", "error", err, "user_id", userID)
		return
	}

	_, err := s.userService.CreatePaymentRecord(
		userID, session.ID, string(session.Currency), "completed", "subscription", session.AmountTotal)
	if err != nil {
		slog.Error("Failed to record payment", "error", err, "user_id", userID)
	}

	// Quota resets immediately so the upgrade takes effect without waiting
	// for the week to roll over
	if s.rateLimiter != nil {
		if err := s.rateLimiter.ResetOnUpgrade(ctx, userID); err != nil {
			slog.Warn("Failed to reset rate limits after upgrade", "error", err, "user_id", userID)
		}
	}

	slog.Info("User upgraded to paid plan", "user_id", userID, "session_id", session.ID)
}
