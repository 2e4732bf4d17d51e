package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/billing"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/stats"
)

type PatientLister interface {
	List(ctx context.Context, search string, limit int) ([]model.Patient, error)
}

type PaymentRanger interface {
	ListRange(ctx context.Context, from, to time.Time) ([]model.Payment, error)
}

type StatsHandler struct {
	patients     PatientLister
	appointments AppointmentRanger
	payments     PaymentRanger
	loc          *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

func NewStatsHandler(patients PatientLister, appointments AppointmentRanger, payments PaymentRanger, loc *time.Location, logger *slog.Logger) *StatsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsHandler{patients: patients, appointments: appointments, payments: payments, loc: loc, logger: logger, now: time.Now}
}

func (h *StatsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	from, to, err := parseRange(r, now, h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	patients, err := h.patients.List(ctx, "", 0)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	appts, err := h.appointments.Range(ctx, from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	payments, err := h.payments.ListRange(ctx, from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats.Compute(patients, appts, payments, from, to, now, h.loc))
}

// Dashboard serves the front-desk figures of one day (?date=, default today) or of an inclusive
// from/to range.
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	q := r.URL.Query()
	var from, to time.Time
	if q.Get("from") != "" || q.Get("to") != "" {
		var err error
		if from, to, err = parseRange(r, now, h.loc); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		day, err := parseDay(q.Get("date"), now, h.loc)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid date")
			return
		}
		from, to = day, day.AddDate(0, 0, 1)
	}

	ctx := r.Context()
	since := from.AddDate(0, 0, -7)
	appts, err := h.appointments.Range(ctx, since, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	payments, err := h.payments.ListRange(ctx, since, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats.Dashboard(appts, payments, from, to))
}

// Catalog serves the fixed option lists used by the forms.
func Catalog(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, billing.DefaultCatalog())
}
