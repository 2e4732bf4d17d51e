package agenda

import (
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

const (
	EventCreated  = "clinic.appointment.created.v1"
	EventUpdated  = "clinic.appointment.updated.v1"
	EventShifted  = "clinic.appointment.shifted.v1"
	EventCanceled = "clinic.appointment.canceled.v1"
	EventDeleted  = "clinic.appointment.deleted.v1"

	aggregateType = "appointment"
)

type appointmentPayload struct {
	AppointmentID   string     `json:"appointment_id"`
	PatientID       *string    `json:"patient_id,omitempty"`
	PatientName     string     `json:"patient_name"`
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	Start           time.Time  `json:"start"`
	DurationMinutes int        `json:"duration_minutes"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CanceledAt      *time.Time `json:"canceled_at,omitempty"`
}

func newAppointmentPayload(a model.Appointment) appointmentPayload {
	return appointmentPayload{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		Kind:            a.Kind,
		Status:          a.Status,
		Start:           a.Start.UTC(),
		DurationMinutes: a.Duration(),
		CancelReason:    a.CancelReason,
		CanceledAt:      a.CanceledAt,
	}
}

type shiftedPayload struct {
	AppointmentID string    `json:"appointment_id"`
	PreviousStart time.Time `json:"previous_start"`
	NewStart      time.Time `json:"new_start"`
	CausedBy      string    `json:"caused_by"`
	PastClosing   bool      `json:"past_closing,omitempty"`
}
