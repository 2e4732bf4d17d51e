package model

import "time"

const (
	PaymentPaid    = "paid"
	PaymentUnpaid  = "unpaid"
	PaymentPending = "pending"
)

// Payment is the consultation fee recorded against one appointment. Amount is in cents;
// nil means the amount has not been entered yet.
type Payment struct {
	ID               string     `json:"id"`
	AppointmentID    string     `json:"appointment_id"`
	PatientID        *string    `json:"patient_id,omitempty"`
	PatientName      string     `json:"patient_name"`
	Amount           *int64     `json:"amount"`
	Method           string     `json:"method"`
	ConsultationType string     `json:"consultation_type"`
	Status           string     `json:"status"`
	ProviderRef      string     `json:"provider_ref,omitempty"`
	AppointmentAt    time.Time  `json:"appointment_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type PaymentPatch struct {
	Amount           *int64  `json:"amount"`
	Method           *string `json:"method"`
	ConsultationType *string `json:"consultation_type"`
	Status           *string `json:"status"`
}

func (p PaymentPatch) Apply(pm Payment) Payment {
	if p.Amount != nil {
		amt := *p.Amount
		pm.Amount = &amt
	}
	setString(&pm.Method, p.Method)
	setString(&pm.ConsultationType, p.ConsultationType)
	setString(&pm.Status, p.Status)
	return pm
}
