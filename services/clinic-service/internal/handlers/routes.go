package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

type Routes struct {
	Appointments  *AppointmentHandler
	Patients      *PatientHandler
	Billing       *BillingHandler
	Notifications *NotificationHandler
	Stats         *StatsHandler
	Auth          *AuthHandler
	JWTSecret     string
}

// Register mounts the clinic API on mux. Everything except login and the Stripe webhook needs a
// bearer token; statistics and settings writes are reserved to the doctor.
func Register(mux *http.ServeMux, rt Routes) {
	authed := func(h http.HandlerFunc, roles ...string) http.Handler {
		var next http.Handler = h
		if len(roles) > 0 {
			next = httpx.RequireRole(roles...)(next)
		}
		return httpx.RequireAuth(rt.JWTSecret)(next)
	}
	doctor := model.RoleDoctor

	mux.HandleFunc("POST /api/v1/auth/login", rt.Auth.Login)
	mux.Handle("GET /api/v1/auth/me", authed(rt.Auth.Me))
	mux.Handle("GET /api/v1/catalog", authed(Catalog))

	a := rt.Appointments
	mux.Handle("GET /api/v1/appointments", authed(a.List))
	mux.Handle("POST /api/v1/appointments", authed(a.Create))
	mux.Handle("POST /api/v1/appointments/resolve", authed(a.Preview))
	mux.Handle("GET /api/v1/appointments/{id}", authed(a.Get))
	mux.Handle("PATCH /api/v1/appointments/{id}", authed(a.Patch))
	mux.Handle("DELETE /api/v1/appointments/{id}", authed(a.Delete))
	mux.Handle("POST /api/v1/appointments/{id}/move", authed(a.Move))
	mux.Handle("POST /api/v1/appointments/{id}/resize", authed(a.Resize))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", authed(a.Cancel))
	mux.Handle("GET /api/v1/agenda/day", authed(a.Day))
	mux.Handle("GET /api/v1/slots", authed(a.Slots))

	p := rt.Patients
	mux.Handle("GET /api/v1/patients", authed(p.List))
	mux.Handle("POST /api/v1/patients", authed(p.Create))
	mux.Handle("GET /api/v1/patients/{id}", authed(p.Get))
	mux.Handle("PATCH /api/v1/patients/{id}", authed(p.Patch))
	mux.Handle("DELETE /api/v1/patients/{id}", authed(p.Delete))
	mux.Handle("GET /api/v1/patients/{id}/appointments", authed(p.Appointments))

	b := rt.Billing
	mux.Handle("PUT /api/v1/appointments/{id}/payment", authed(b.Put))
	mux.Handle("GET /api/v1/payments", authed(b.List))
	mux.Handle("POST /api/v1/payments/{id}/checkout", authed(b.Checkout))
	mux.HandleFunc("POST /api/v1/billing/webhooks/stripe", b.StripeWebhook)

	n := rt.Notifications
	mux.Handle("GET /api/v1/notification-templates", authed(n.ListTemplates))
	mux.Handle("POST /api/v1/notification-templates", authed(n.CreateTemplate))
	mux.Handle("GET /api/v1/notification-templates/{id}", authed(n.GetTemplate))
	mux.Handle("PATCH /api/v1/notification-templates/{id}", authed(n.PatchTemplate))
	mux.Handle("DELETE /api/v1/notification-templates/{id}", authed(n.DeleteTemplate))
	mux.Handle("GET /api/v1/settings", authed(n.GetSettings))
	mux.Handle("PATCH /api/v1/settings", authed(n.PatchSettings, doctor))
	mux.Handle("GET /api/v1/notifications/plan", authed(n.Plan))
	mux.Handle("GET /api/v1/notifications/export", authed(n.Export))

	mux.Handle("GET /api/v1/statistics", authed(rt.Stats.Statistics, doctor))
	mux.Handle("GET /api/v1/dashboard", authed(rt.Stats.Dashboard))
}
