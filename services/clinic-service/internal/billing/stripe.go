package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	Provider = "stripe"

	MetadataPaymentID     = "payment_id"
	MetadataAppointmentID = "appointment_id"
)

var ErrCheckoutNotConfigured = errors.New("stripe checkout not configured (STRIPE_SECRET_KEY missing)")

type CheckoutRequest struct {
	PaymentID        string
	AppointmentID    string
	PatientName      string
	ConsultationType string
	AmountCents      int64
	SuccessURL       string
	CancelURL        string
	IdempotencyKey   string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Checkout opens a hosted card payment for one consultation.
type Checkout interface {
	Create(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

type StripeCheckout struct {
	api        *client.API
	currency   string
	successURL string
	cancelURL  string
}

type StripeConfig struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
}

// NewStripeCheckout returns nil when no secret key is configured.
func NewStripeCheckout(cfg StripeConfig) *StripeCheckout {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil
	}
	if cfg.Currency == "" {
		cfg.Currency = "mad"
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeCheckout{api: api, currency: strings.ToLower(cfg.Currency), successURL: cfg.SuccessURL, cancelURL: cfg.CancelURL}
}

func (c *StripeCheckout) Create(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if c == nil {
		return CheckoutSession{}, ErrCheckoutNotConfigured
	}
	successURL := firstNonEmpty(req.SuccessURL, c.successURL)
	cancelURL := firstNonEmpty(req.CancelURL, c.cancelURL)
	if successURL == "" || cancelURL == "" {
		return CheckoutSession{}, errors.New("success_url and cancel_url are required (or configure default URLs)")
	}

	params := CheckoutParams(req, c.currency, successURL, cancelURL)
	params.Context = ctx
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CheckoutParams builds a payment-mode session for the consultation amount.
func CheckoutParams(req CheckoutRequest, currency, successURL, cancelURL string) *stripe.CheckoutSessionParams {
	name := "Consultation"
	if req.ConsultationType != "" {
		name += " - " + req.ConsultationType
	}
	metadata := map[string]string{
		MetadataPaymentID:     req.PaymentID,
		MetadataAppointmentID: req.AppointmentID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.PaymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata:    metadata,
			Description: stripe.String(strings.TrimSpace(name + " " + req.PatientName)),
		},
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	return params
}

// WebhookEvent is the part of a verified Stripe event the clinic acts on.
type WebhookEvent struct {
	ID         string
	Type       string
	OccurredAt time.Time
	// Set for checkout.session.* events.
	SessionID     string
	PaymentID     string
	AppointmentID string
	AmountTotal   int64
	Paid          bool
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func ParseWebhook(body []byte, sigHeader, secret string, tolerance time.Duration) (WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, err
	}
	out := WebhookEvent{
		ID:         evt.ID,
		Type:       string(evt.Type),
		OccurredAt: time.Unix(evt.Created, 0).UTC(),
	}
	if !strings.HasPrefix(out.Type, "checkout.session.") || evt.Data == nil {
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("invalid checkout session payload: %w", err)
	}
	out.SessionID = session.ID
	out.PaymentID = strings.TrimSpace(session.Metadata[MetadataPaymentID])
	out.AppointmentID = strings.TrimSpace(session.Metadata[MetadataAppointmentID])
	out.AmountTotal = session.AmountTotal
	out.Paid = session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
