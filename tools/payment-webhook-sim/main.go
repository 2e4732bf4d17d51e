// Command payment-webhook-sim posts a signed Stripe checkout event to a running clinic-service,
// settling a payment without going through Stripe.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookPath = "/api/v1/billing/webhooks/stripe"

type options struct {
	baseURL       string
	eventType     string
	sessionID     string
	paymentID     string
	appointmentID string
	amountCents   int64
	unpaid        bool
	secret        string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func rootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "payment-webhook-sim",
		Short:         "Send a signed checkout.session webhook to clinic-service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(o.secret) == "" {
				return errors.New("STRIPE_WEBHOOK_SECRET is required")
			}
			if strings.TrimSpace(o.sessionID) == "" {
				return errors.New("--session is required (the provider_ref returned by checkout)")
			}
			status, body, err := send(http.DefaultClient, o, time.Now().UTC())
			if err != nil {
				return err
			}
			cmd.Printf("status=%d %s\n", status, strings.TrimSpace(body))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.baseURL, "base-url", config.String("BASE_URL", "http://localhost:8080"), "clinic-service base url")
	f.StringVar(&o.eventType, "type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "checkout.session.* event type")
	f.StringVar(&o.sessionID, "session", config.String("SESSION_ID", ""), "checkout session id")
	f.StringVar(&o.paymentID, "payment-id", "", "payment_id metadata")
	f.StringVar(&o.appointmentID, "appointment-id", "", "appointment_id metadata")
	f.Int64Var(&o.amountCents, "amount", 35000, "amount_total in centimes")
	f.BoolVar(&o.unpaid, "unpaid", false, "report payment_status=unpaid")
	f.StringVar(&o.secret, "secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "webhook signing secret (whsec_...)")
	return cmd
}

func send(client *http.Client, o options, now time.Time) (int, string, error) {
	payload, err := buildEvent(o, now)
	if err != nil {
		return 0, "", err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    o.secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(o.baseURL, "/")+webhookPath, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(body), nil
}

func buildEvent(o options, t time.Time) ([]byte, error) {
	if !strings.HasPrefix(o.eventType, "checkout.session.") {
		return nil, fmt.Errorf("unsupported event type: %s", o.eventType)
	}
	status := stripe.CheckoutSessionPaymentStatusPaid
	if o.unpaid {
		status = stripe.CheckoutSessionPaymentStatusUnpaid
	}
	metadata := map[string]string{}
	if o.paymentID != "" {
		metadata["payment_id"] = o.paymentID
	}
	if o.appointmentID != "" {
		metadata["appointment_id"] = o.appointmentID
	}
	return json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_sim_%d", t.UnixNano()),
		"object":      "event",
		"created":     t.Unix(),
		"type":        o.eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":             o.sessionID,
				"object":         "checkout.session",
				"payment_status": status,
				"amount_total":   o.amountCents,
				"metadata":       metadata,
			},
		},
	})
}
