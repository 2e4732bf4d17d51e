package model

import (
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

const (
	KindPatient       = "patient"
	KindLunchBreak    = "lunch_break"
	KindClinicConsult = "clinic_consult"

	StatusConfirmed = "confirmed"
	StatusPending   = "pending"
	StatusCanceled  = "canceled"
)

// Appointment is one booked window on the agenda. Lunch breaks and clinic consultations are
// placeholders without a patient but occupy the agenda like any other appointment.
type Appointment struct {
	ID              string     `json:"id"`
	PatientID       *string    `json:"patient_id,omitempty"`
	PatientName     string     `json:"patient_name"`
	Contact         string     `json:"contact"`
	Start           time.Time  `json:"start"`
	DurationMinutes int        `json:"duration_minutes"`
	Kind            string     `json:"kind"`
	Type            string     `json:"type"`
	Source          string     `json:"source"`
	Status          string     `json:"status"`
	Location        string     `json:"location"`
	VideoLink       string     `json:"video_link,omitempty"`
	NewPatient      bool       `json:"new_patient"`
	Free            bool       `json:"free"`
	Delegated       bool       `json:"delegated"`
	Canceled        bool       `json:"canceled"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CanceledAt      *time.Time `json:"canceled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration is DurationMinutes with the 30-minute default for rows saved without one.
func (a Appointment) Duration() int {
	if a.DurationMinutes <= 0 {
		return scheduling.DefaultDurationMinutes
	}
	return a.DurationMinutes
}

func (a Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.Duration()) * time.Minute)
}

func (a Appointment) IsPlaceholder() bool {
	return a.Kind == KindLunchBreak || a.Kind == KindClinicConsult
}

// Billable reports whether the consultation is charged: free and delegated ones are not.
func (a Appointment) Billable() bool {
	return !a.Free && !a.Delegated
}

func (a Appointment) Slot() scheduling.Slot {
	return scheduling.Slot{
		ID:              a.ID,
		Start:           a.Start,
		DurationMinutes: a.Duration(),
		Canceled:        a.Canceled,
	}
}

func Slots(appts []Appointment) []scheduling.Slot {
	out := make([]scheduling.Slot, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Slot())
	}
	return out
}

// Normalize fills defaults for optional fields. Only an absent duration gets the default.
func (a Appointment) Normalize() Appointment {
	if a.Kind == "" {
		a.Kind = KindPatient
	}
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = scheduling.DefaultDurationMinutes
	}
	if a.Location == "" {
		a.Location = "cabinet"
	}
	switch a.Kind {
	case KindLunchBreak:
		if a.PatientName == "" {
			a.PatientName = "Pause déjeuner"
		}
	case KindClinicConsult:
		if a.PatientName == "" {
			a.PatientName = "Consultation clinique"
		}
	}
	if a.IsPlaceholder() {
		a.PatientID = nil
	}
	return a
}

func (a Appointment) Validate() error {
	v := NewValidation()
	switch a.Kind {
	case KindPatient, KindLunchBreak, KindClinicConsult:
	default:
		v.Add("kind", "unknown appointment kind")
	}
	switch a.Status {
	case StatusConfirmed, StatusPending, StatusCanceled:
	default:
		v.Add("status", "unknown status")
	}
	if a.Kind == KindPatient && a.PatientName == "" && a.PatientID == nil {
		v.Add("patient_name", "required")
	}
	if a.Start.IsZero() {
		v.Add("start", "required")
	}
	if a.DurationMinutes < 0 {
		v.Add("duration_minutes", "must be positive")
	}
	if a.Contact != "" && !validPhone(a.Contact) {
		v.Add("contact", "must be 10 digits")
	}
	return v.Err()
}

// AppointmentPatch carries a partial edit. Nil fields keep the current value.
type AppointmentPatch struct {
	PatientID       *string    `json:"patient_id"`
	PatientName     *string    `json:"patient_name"`
	Contact         *string    `json:"contact"`
	Start           *time.Time `json:"start"`
	DurationMinutes *int       `json:"duration_minutes"`
	Type            *string    `json:"type"`
	Source          *string    `json:"source"`
	Status          *string    `json:"status"`
	Location        *string    `json:"location"`
	VideoLink       *string    `json:"video_link"`
	NewPatient      *bool      `json:"new_patient"`
	Free            *bool      `json:"free"`
	Delegated       *bool      `json:"delegated"`
}

func (p AppointmentPatch) Apply(a Appointment) Appointment {
	if p.PatientID != nil {
		id := *p.PatientID
		a.PatientID = &id
		if id == "" {
			a.PatientID = nil
		}
	}
	setString(&a.PatientName, p.PatientName)
	setString(&a.Contact, p.Contact)
	if p.Start != nil {
		a.Start = *p.Start
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	setString(&a.Type, p.Type)
	setString(&a.Source, p.Source)
	setString(&a.Status, p.Status)
	setString(&a.Location, p.Location)
	setString(&a.VideoLink, p.VideoLink)
	setBool(&a.NewPatient, p.NewPatient)
	setBool(&a.Free, p.Free)
	setBool(&a.Delegated, p.Delegated)
	return a
}

// Reschedules reports whether applying p changes the appointment's window.
func (p AppointmentPatch) Reschedules(a Appointment) bool {
	if p.Start != nil && !p.Start.Equal(a.Start) {
		return true
	}
	return p.DurationMinutes != nil && *p.DurationMinutes != a.DurationMinutes
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
