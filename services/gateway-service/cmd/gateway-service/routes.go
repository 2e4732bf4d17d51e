package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type upstreams struct {
	clinicURL       *url.URL
	notificationURL *url.URL
	clinic          http.Handler
	notification    http.Handler
}

func newUpstreams(clinicRaw, notificationRaw string, logger *slog.Logger) (upstreams, error) {
	clinicURL, err := parseUpstream(clinicRaw)
	if err != nil {
		return upstreams{}, fmt.Errorf("CLINIC_URL: %w", err)
	}
	notificationURL, err := parseUpstream(notificationRaw)
	if err != nil {
		return upstreams{}, fmt.Errorf("NOTIFICATION_URL: %w", err)
	}
	return upstreams{
		clinicURL:       clinicURL,
		notificationURL: notificationURL,
		clinic:          newProxy(clinicURL, logger),
		notification:    newProxy(notificationURL, logger),
	}, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("absolute url required, got %q", raw)
	}
	return u, nil
}

func newProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("upstream timed out", "upstream", target.Host, "path", r.URL.Path)
			httpx.WriteError(w, http.StatusGatewayTimeout, "upstream timed out")
			return
		}
		logger.Error("upstream error", "err", err, "upstream", target.Host, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy
}

// upstreamReady probes the upstream's /healthz.
func upstreamReady(target *url.URL) func(context.Context) error {
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	health := target.JoinPath("/healthz").String()
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, health, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("healthz returned %d", resp.StatusCode)
		}
		return nil
	}
}

func registerRoutes(mux *http.ServeMux, up upstreams, jwtSecret string) {
	authed := httpx.RequireAuth(jwtSecret)

	// Login and the Stripe webhook carry their own credentials.
	mux.Handle("POST /api/v1/auth/login", up.clinic)
	mux.Handle("POST /api/v1/billing/webhooks/stripe", up.clinic)

	mux.Handle("GET /api/v1/appointments/{id}/notifications", authed(up.notification))
	mux.Handle("/api/v1/", authed(up.clinic))

	mux.HandleFunc("GET /billing/success", checkoutReturn("Paiement reçu", "Le paiement de la consultation a été enregistré."))
	mux.HandleFunc("GET /billing/cancel", checkoutReturn("Paiement annulé", "Aucun montant n'a été débité."))
}

var returnPage = template.Must(template.New("return").Parse(`<!doctype html>
<html lang="fr"><head><meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>body{font-family:system-ui,sans-serif;margin:40px;max-width:640px;line-height:1.4}code{background:#f4f4f4;padding:2px 4px;border-radius:4px}</style>
</head><body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .SessionID}}<p>Référence : <code>{{.SessionID}}</code></p>{{end}}
</body></html>
`))

// checkoutReturn renders the page Stripe redirects the patient to after checkout.
func checkoutReturn(title, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = returnPage.Execute(w, struct {
			Title     string
			Message   string
			SessionID string
		}{title, message, r.URL.Query().Get("session_id")})
	}
}
