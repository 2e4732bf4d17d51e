package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/agenda"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

// Agenda is the appointment workflow. *agenda.Service implements it.
type Agenda interface {
	Location() *time.Location
	Create(ctx context.Context, a model.Appointment) (agenda.Result, error)
	Update(ctx context.Context, id string, patch model.AppointmentPatch) (agenda.Result, error)
	Move(ctx context.Context, id string, newStart time.Time) (agenda.Result, error)
	Resize(ctx context.Context, id string, durationMinutes int) (agenda.Result, error)
	Cancel(ctx context.Context, id, reason string) (model.Appointment, error)
	Delete(ctx context.Context, id string) error
	Day(ctx context.Context, day time.Time) ([]model.Appointment, error)
	Range(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	Preview(ctx context.Context, changed scheduling.Slot) (scheduling.Resolution, error)
}

type AppointmentReader interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
}

type AppointmentHandler struct {
	agenda Agenda
	reader AppointmentReader
	logger *slog.Logger
	now    func() time.Time
}

func NewAppointmentHandler(a Agenda, reader AppointmentReader, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{agenda: a, reader: reader, logger: logger, now: time.Now}
}

type moveRequest struct {
	Start time.Time `json:"start"`
}

type resizeRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type previewRequest struct {
	ID              string    `json:"id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

type listResponse struct {
	From         time.Time           `json:"from"`
	To           time.Time           `json:"to"`
	Appointments []model.Appointment `json:"appointments"`
}

type dayResponse struct {
	Date         string                  `json:"date"`
	Appointments []model.Appointment     `json:"appointments"`
	Grid         []availability.GridCell `json:"grid"`
}

type slotsResponse struct {
	Date            string      `json:"date"`
	DurationMinutes int         `json:"duration_minutes"`
	Slots           []time.Time `json:"slots"`
}

// List returns appointments starting between from and to (inclusive dates), canceled ones included.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, h.now(), h.agenda.Location())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appts, err := h.agenda.Range(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{From: from, To: to, Appointments: appts})
}

// Day returns the day schedule together with the half-hour grid used by the agenda view.
func (h *AppointmentHandler) Day(w http.ResponseWriter, r *http.Request) {
	loc := h.agenda.Location()
	day, err := parseDay(r.URL.Query().Get("date"), h.now(), loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	appts, err := h.agenda.Day(r.Context(), day)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, dayResponse{
		Date:         day.Format(dateLayout),
		Appointments: appts,
		Grid:         availability.Grid(day, availability.Busy(appts)),
	})
}

// Slots lists free start times of the requested length on a day.
func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	loc := h.agenda.Location()
	now := h.now()
	day, err := parseDay(r.URL.Query().Get("date"), now, loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	duration, err := queryInt(r, "duration", scheduling.DefaultDurationMinutes)
	if err != nil || duration <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid duration")
		return
	}
	appts, err := h.agenda.Day(r.Context(), day)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	open, closing := scheduling.DefaultHours(loc).Bounds(day)
	slots := availability.AvailableSlots(open, closing, time.Duration(duration)*time.Minute,
		availability.SlotMinutes*time.Minute, availability.Busy(appts), now)
	if slots == nil {
		slots = []time.Time{}
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Date: day.Format(dateLayout), DurationMinutes: duration, Slots: slots})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.reader.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Appointment
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Start.IsZero() {
		httpx.WriteError(w, http.StatusBadRequest, "start is required")
		return
	}
	req.ID = ""
	res, err := h.agenda.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *AppointmentHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var patch model.AppointmentPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	res, err := h.agenda.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Move handles a drag-and-drop onto a new start time.
func (h *AppointmentHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Start.IsZero() {
		httpx.WriteError(w, http.StatusBadRequest, "start is required")
		return
	}
	res, err := h.agenda.Move(r.Context(), r.PathValue("id"), req.Start)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *AppointmentHandler) Resize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.agenda.Resize(r.Context(), r.PathValue("id"), req.DurationMinutes)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Cancel accepts an empty body.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	a, err := h.agenda.Cancel(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.agenda.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview returns the shifts a proposed change would cause without saving it.
func (h *AppointmentHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Start.IsZero() {
		httpx.WriteError(w, http.StatusBadRequest, "start is required")
		return
	}
	res, err := h.agenda.Preview(r.Context(), scheduling.Slot{ID: req.ID, Start: req.Start, DurationMinutes: req.DurationMinutes})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
