package model

import "time"

const (
	DefaultClinicName = "Cabinet de Psychiatrie"
	DefaultDoctorName = "Dr. Martin"
	DefaultTimezone   = "Africa/Casablanca"
)

// Settings holds the sender identity used in reminder messages.
type Settings struct {
	ClinicName  string `json:"clinic_name"`
	DoctorName  string `json:"doctor_name"`
	SenderPhone string `json:"sender_phone"`
	Timezone    string `json:"timezone"`
}

func DefaultSettings() Settings {
	return Settings{
		ClinicName: DefaultClinicName,
		DoctorName: DefaultDoctorName,
		Timezone:   DefaultTimezone,
	}
}

// Location resolves Timezone, falling back to UTC when it cannot be loaded.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s Settings) Validate() error {
	v := NewValidation()
	if s.ClinicName == "" {
		v.Add("clinic_name", "required")
	}
	if s.DoctorName == "" {
		v.Add("doctor_name", "required")
	}
	if s.SenderPhone != "" && !validPhone(s.SenderPhone) {
		v.Add("sender_phone", "must be 10 digits")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			v.Add("timezone", "unknown time zone")
		}
	}
	return v.Err()
}

type SettingsPatch struct {
	ClinicName  *string `json:"clinic_name"`
	DoctorName  *string `json:"doctor_name"`
	SenderPhone *string `json:"sender_phone"`
	Timezone    *string `json:"timezone"`
}

func (p SettingsPatch) Apply(s Settings) Settings {
	setString(&s.ClinicName, p.ClinicName)
	setString(&s.DoctorName, p.DoctorName)
	setString(&s.SenderPhone, p.SenderPhone)
	setString(&s.Timezone, p.Timezone)
	return s
}
