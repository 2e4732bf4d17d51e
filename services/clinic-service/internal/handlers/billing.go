package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/billing"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
)

const (
	EventPaymentPaid = "clinic.payment.paid.v1"

	maxWebhookBytes = 1 << 16
)

type PaymentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Upsert(ctx context.Context, p model.Payment) (model.Payment, error)
	Get(ctx context.Context, id string) (model.Payment, error)
	GetByAppointment(ctx context.Context, appointmentID string) (model.Payment, error)
	ListRange(ctx context.Context, from, to time.Time) ([]model.Payment, error)
	SetProviderRef(ctx context.Context, id, ref string) error
	MarkPaidByRef(ctx context.Context, tx pgx.Tx, ref string, amount int64, method string, paidAt time.Time) (string, error)
	RecordProviderEvent(ctx context.Context, tx pgx.Tx, provider, eventID, eventType string) (bool, error)
}

type BillingConfig struct {
	Location         *time.Location
	WebhookSecret    string
	WebhookTolerance time.Duration
}

type BillingHandler struct {
	payments     PaymentStore
	appointments AppointmentReader
	checkout     billing.Checkout
	events       outbox.Writer
	logger       *slog.Logger
	cfg          BillingConfig
	now          func() time.Time
}

func NewBillingHandler(payments PaymentStore, appointments AppointmentReader, checkout billing.Checkout, events outbox.Writer, logger *slog.Logger, cfg BillingConfig) *BillingHandler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = 5 * time.Minute
	}
	return &BillingHandler{
		payments:     payments,
		appointments: appointments,
		checkout:     checkout,
		events:       events,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// paymentRequest carries the amount as typed at the front desk ("350" or "350,50").
type paymentRequest struct {
	Amount           string `json:"amount"`
	Method           string `json:"method"`
	ConsultationType string `json:"consultation_type"`
}

type paymentView struct {
	model.Payment
	Label     string `json:"label"`
	Reduction int    `json:"reduction_percent"`
	Display   string `json:"amount_display,omitempty"`
}

type paymentListResponse struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Payments []paymentView   `json:"payments"`
	Summary  billing.Summary `json:"summary"`
}

type checkoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type checkoutResponse struct {
	PaymentID string `json:"payment_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type paymentPaidPayload struct {
	PaymentID     string    `json:"payment_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	Provider      string    `json:"provider"`
	ProviderRef   string    `json:"provider_ref"`
	PaidAt        time.Time `json:"paid_at"`
}

func newPaymentView(p model.Payment) paymentView {
	v := paymentView{Payment: p, Label: billing.StatusLabel(p.Amount)}
	if p.Amount != nil {
		v.Display = billing.FormatAmount(*p.Amount)
		if *p.Amount > 0 {
			v.Reduction = billing.Reduction(*p.Amount)
		}
	}
	return v
}

// Put records the fee of one appointment. The status always follows the amount.
func (h *BillingHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := billing.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	appointmentID := r.PathValue("id")
	appt, err := h.appointments.Get(ctx, appointmentID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	p, err := h.payments.GetByAppointment(ctx, appointmentID)
	switch {
	case storage.IsNotFound(err):
		p = model.Payment{ID: uuid.NewString(), AppointmentID: appointmentID}
	case err != nil:
		writeDomainError(w, h.logger, err)
		return
	}
	wasPaid := p.Status == model.PaymentPaid

	p.Amount = amount
	p.Method = strings.TrimSpace(req.Method)
	p.ConsultationType = strings.TrimSpace(req.ConsultationType)
	p = billing.Normalize(p)
	if err := billing.Validate(p); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	switch {
	case p.Status == model.PaymentPaid && (!wasPaid || p.PaidAt == nil):
		paidAt := h.now().UTC()
		p.PaidAt = &paidAt
	case p.Status != model.PaymentPaid:
		p.PaidAt = nil
	}

	saved, err := h.payments.Upsert(ctx, p)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	saved.PatientID = appt.PatientID
	saved.PatientName = appt.PatientName
	saved.AppointmentAt = appt.Start
	h.logger.Info("payment recorded", "payment_id", saved.ID, "appointment_id", appointmentID, "status", saved.Status)
	httpx.WriteJSON(w, http.StatusOK, newPaymentView(saved))
}

// List returns the payments of appointments in the range with the billing summary.
func (h *BillingHandler) List(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, h.now(), h.cfg.Location)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	payments, err := h.payments.ListRange(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	views := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, newPaymentView(p))
	}
	httpx.WriteJSON(w, http.StatusOK, paymentListResponse{
		From:     from,
		To:       to,
		Payments: views,
		Summary:  billing.Summarize(payments),
	})
}

// Checkout opens a Stripe Checkout session for the payment. Without an amount the base fee is charged.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	ctx := r.Context()
	p, err := h.payments.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if p.Status == model.PaymentPaid {
		httpx.WriteError(w, http.StatusConflict, "payment already settled")
		return
	}
	amount := billing.BaseFeeCents
	if p.Amount != nil && *p.Amount > 0 {
		amount = *p.Amount
	}

	sess, err := h.checkout.Create(ctx, billing.CheckoutRequest{
		PaymentID:        p.ID,
		AppointmentID:    p.AppointmentID,
		PatientName:      p.PatientName,
		ConsultationType: p.ConsultationType,
		AmountCents:      amount,
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
		IdempotencyKey:   "checkout-" + p.ID + "-" + billing.FormatAmount(amount),
	})
	if err != nil {
		if errors.Is(err, billing.ErrCheckoutNotConfigured) {
			httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error("checkout session failed", "payment_id", p.ID, "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "payment provider error")
		return
	}
	if err := h.payments.SetProviderRef(ctx, p.ID, sess.ID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.logger.Info("checkout session created", "payment_id", p.ID, "session_id", sess.ID)
	httpx.WriteJSON(w, http.StatusCreated, checkoutResponse{PaymentID: p.ID, SessionID: sess.ID, URL: sess.URL})
}

// StripeWebhook settles payments from checkout.session events. Replayed events are acknowledged and ignored.
func (h *BillingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.cfg.WebhookSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}
	evt, err := billing.ParseWebhook(body, r.Header.Get("Stripe-Signature"), h.cfg.WebhookSecret, h.cfg.WebhookTolerance)
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ctx := r.Context()
	tx, err := h.payments.Begin(ctx)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := h.payments.RecordProviderEvent(ctx, tx, billing.Provider, evt.ID, evt.Type)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if !fresh {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	status := "ignored"
	if settles(evt) {
		paymentID, err := h.payments.MarkPaidByRef(ctx, tx, evt.SessionID, evt.AmountTotal, billing.MethodOnline, evt.OccurredAt)
		switch {
		case storage.IsNotFound(err):
			h.logger.Warn("stripe session matches no payment", "event_id", evt.ID, "session_id", evt.SessionID)
		case err != nil:
			writeDomainError(w, h.logger, err)
			return
		default:
			outboxEvt, err := outbox.NewEvent("payment", paymentID, EventPaymentPaid, paymentPaidPayload{
				PaymentID:     paymentID,
				AppointmentID: evt.AppointmentID,
				AmountCents:   evt.AmountTotal,
				Provider:      billing.Provider,
				ProviderRef:   evt.SessionID,
				PaidAt:        evt.OccurredAt,
			})
			if err == nil {
				err = h.events.Insert(ctx, tx, outboxEvt)
			}
			if err != nil {
				writeDomainError(w, h.logger, err)
				return
			}
			status = "paid"
			h.logger.Info("payment settled online", "payment_id", paymentID, "event_id", evt.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}

func settles(evt billing.WebhookEvent) bool {
	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return evt.Paid && evt.SessionID != ""
	}
	return false
}
