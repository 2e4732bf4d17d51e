package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

const defaultPatientListLimit = 200

type PatientStore interface {
	Create(ctx context.Context, p model.Patient) (model.Patient, error)
	Get(ctx context.Context, id string) (model.Patient, error)
	List(ctx context.Context, search string, limit int) ([]model.Patient, error)
	Update(ctx context.Context, p model.Patient) (time.Time, error)
	Delete(ctx context.Context, id string) error
}

type PatientHandler struct {
	store        PatientStore
	appointments AppointmentReader
	logger       *slog.Logger
}

func NewPatientHandler(store PatientStore, appointments AppointmentReader, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{store: store, appointments: appointments, logger: logger}
}

type patientListResponse struct {
	Patients []model.Patient `json:"patients"`
}

type patientAppointmentsResponse struct {
	PatientID    string              `json:"patient_id"`
	PatientName  string              `json:"patient_name"`
	Appointments []model.Appointment `json:"appointments"`
}

// List supports ?q= search over names, phone and patient number.
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPatientListLimit)
	if err != nil || limit < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	patients, err := h.store.List(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if patients == nil {
		patients = []model.Patient{}
	}
	httpx.WriteJSON(w, http.StatusOK, patientListResponse{Patients: patients})
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p model.Patient
	if !decodeBody(w, r, &p) {
		return
	}
	p = trimPatient(p)
	if err := p.Validate(); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	p.ID = uuid.NewString()
	p.Number = ""

	created, err := h.store.Create(r.Context(), p)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.logger.Info("patient created", "patient_id", created.ID, "number", created.Number)
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *PatientHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var patch model.PatientPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	ctx := r.Context()
	current, err := h.store.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	next := trimPatient(patch.Apply(current))
	if err := next.Validate(); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	updatedAt, err := h.store.Update(ctx, next)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	next.UpdatedAt = updatedAt
	httpx.WriteJSON(w, http.StatusOK, next)
}

func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Appointments lists the patient's visits, most recent first.
func (h *PatientHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	appts, err := h.appointments.ListByPatient(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, patientAppointmentsResponse{PatientID: id, PatientName: p.FullName(), Appointments: appts})
}

func trimPatient(p model.Patient) model.Patient {
	p.LastName = strings.TrimSpace(p.LastName)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
	p.City = strings.TrimSpace(p.City)
	p.District = strings.TrimSpace(p.District)
	p.NationalID = strings.ToUpper(strings.TrimSpace(p.NationalID))
	return p
}
