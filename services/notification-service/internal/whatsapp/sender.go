// Package whatsapp delivers reminder messages through a configurable WhatsApp provider.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	ProviderNoop    = "noop"
	ProviderCloud   = "cloud"
	ProviderTwilio  = "twilio"
	ProviderWebhook = "webhook"

	DefaultCloudBaseURL  = "https://graph.facebook.com/v17.0"
	DefaultTwilioBaseURL = "https://api.twilio.com"
)

// Sender sends one text message to an international phone number (digits only)
// and returns the provider's message id when it reports one.
type Sender interface {
	Send(ctx context.Context, to string, body string) (string, error)
	ProviderID() string
}

var ErrNotConfigured = errors.New("whatsapp provider not configured")

// ProviderError is returned when the provider answers with a non-2xx status.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s returned %d", e.Provider, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Config holds every provider's settings; only the selected provider's fields are read.
type Config struct {
	Provider      string
	Token         string
	PhoneNumberID string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	WebhookURL    string
	WebhookToken  string
	BaseURL       string
	Timeout       time.Duration
}

// New builds the sender named by cfg.Provider. An empty provider means noop.
func New(cfg Config) (Sender, error) {
	client := NewHTTPClient(cfg.Timeout)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNoop:
		return NewNoopSender(), nil
	case ProviderCloud:
		if cfg.Token == "" || cfg.PhoneNumberID == "" {
			return nil, fmt.Errorf("%w: cloud needs WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID", ErrNotConfigured)
		}
		return NewCloudSender(cfg.BaseURL, cfg.PhoneNumberID, cfg.Token, client), nil
	case ProviderTwilio:
		if cfg.TwilioSID == "" || cfg.TwilioToken == "" || cfg.TwilioFrom == "" {
			return nil, fmt.Errorf("%w: twilio needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM", ErrNotConfigured)
		}
		return NewTwilioSender(cfg.BaseURL, cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom, client), nil
	case ProviderWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("%w: webhook needs WHATSAPP_WEBHOOK_URL", ErrNotConfigured)
		}
		return NewWebhookSender(cfg.WebhookURL, cfg.WebhookToken, client), nil
	default:
		return nil, fmt.Errorf("unknown whatsapp provider %q", cfg.Provider)
	}
}

// NewHTTPClient returns a client whose outbound calls are traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// CloudSender posts to the Meta WhatsApp Cloud API.
type CloudSender struct {
	baseURL       string
	phoneNumberID string
	token         string
	http          *http.Client
}

func NewCloudSender(baseURL, phoneNumberID, token string, client *http.Client) *CloudSender {
	if baseURL == "" {
		baseURL = DefaultCloudBaseURL
	}
	return &CloudSender{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: strings.TrimSpace(phoneNumberID),
		token:         strings.TrimSpace(token),
		http:          client,
	}
}

func (s *CloudSender) ProviderID() string { return "whatsapp-cloud" }

type cloudMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             cloudText `json:"text"`
}

type cloudText struct {
	Body string `json:"body"`
}

type cloudResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (s *CloudSender) Send(ctx context.Context, to string, body string) (string, error) {
	raw, err := json.Marshal(cloudMessage{
		MessagingProduct: "whatsapp",
		To:               digits(to),
		Type:             "text",
		Text:             cloudText{Body: body},
	})
	if err != nil {
		return "", err
	}
	endpoint := s.baseURL + "/" + url.PathEscape(s.phoneNumberID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	var out cloudResponse
	if err := do(s.http, req, s.ProviderID(), &out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// TwilioSender uses the Twilio Messages API with whatsapp: addresses.
type TwilioSender struct {
	baseURL string
	sid     string
	token   string
	from    string
	http    *http.Client
}

func NewTwilioSender(baseURL, sid, token, from string, client *http.Client) *TwilioSender {
	if baseURL == "" {
		baseURL = DefaultTwilioBaseURL
	}
	return &TwilioSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		sid:     strings.TrimSpace(sid),
		token:   strings.TrimSpace(token),
		from:    digits(from),
		http:    client,
	}
}

func (s *TwilioSender) ProviderID() string { return "whatsapp-twilio" }

func (s *TwilioSender) Send(ctx context.Context, to string, body string) (string, error) {
	form := url.Values{}
	form.Set("From", "whatsapp:+"+s.from)
	form.Set("To", "whatsapp:+"+digits(to))
	form.Set("Body", body)

	endpoint := s.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(s.sid) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.sid, s.token)

	var out struct {
		SID string `json:"sid"`
	}
	if err := do(s.http, req, s.ProviderID(), &out); err != nil {
		return "", err
	}
	return out.SID, nil
}

// WebhookSender hands the message to an internal relay as JSON.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(endpoint string, token string, client *http.Client) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(endpoint),
		token: strings.TrimSpace(token),
		http:  client,
	}
}

func (s *WebhookSender) ProviderID() string { return "whatsapp-webhook" }

func (s *WebhookSender) Send(ctx context.Context, to string, body string) (string, error) {
	raw, err := json.Marshal(map[string]string{
		"channel": "whatsapp",
		"to":      digits(to),
		"body":    body,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := do(s.http, req, s.ProviderID(), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string { return "whatsapp-noop" }

func (s *NoopSender) Send(_ context.Context, _ string, _ string) (string, error) {
	return "", nil
}

// do runs req and decodes a JSON body into out. Empty or non-JSON success bodies are accepted.
func do(client *http.Client, req *http.Request, provider string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Provider: provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(trim(raw, 512)))}
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, out)
	}
	return nil
}

func trim(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
