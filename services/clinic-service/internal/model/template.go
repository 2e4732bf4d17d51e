package model

import (
	"strings"
	"time"
)

// Template is a reminder message sent SendHoursBefore an appointment.
type Template struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Content         string    `json:"content"`
	Variables       []string  `json:"variables"`
	Active          bool      `json:"active"`
	SendHoursBefore int       `json:"send_hours_before"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (t Template) Validate() error {
	v := NewValidation()
	if strings.TrimSpace(t.Name) == "" {
		v.Add("name", "required")
	}
	if strings.TrimSpace(t.Content) == "" {
		v.Add("content", "required")
	}
	if t.SendHoursBefore < 0 {
		v.Add("send_hours_before", "must not be negative")
	}
	return v.Err()
}

type TemplatePatch struct {
	Name            *string `json:"name"`
	Content         *string `json:"content"`
	Active          *bool   `json:"active"`
	SendHoursBefore *int    `json:"send_hours_before"`
}

func (p TemplatePatch) Apply(t Template) Template {
	setString(&t.Name, p.Name)
	setString(&t.Content, p.Content)
	if p.Active != nil {
		t.Active = *p.Active
	}
	if p.SendHoursBefore != nil {
		t.SendHoursBefore = *p.SendHoursBefore
	}
	return t
}
