package model

import (
	"fmt"
	"strings"
	"time"
)

type Insurance struct {
	Active bool   `json:"active"`
	Name   string `json:"name"`
}

type History struct {
	Active bool     `json:"active"`
	Items  []string `json:"items"`
}

type Patient struct {
	ID         string     `json:"id"`
	Number     string     `json:"number"`
	LastName   string     `json:"last_name"`
	FirstName  string     `json:"first_name"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email,omitempty"`
	City       string     `json:"city,omitempty"`
	District   string     `json:"district,omitempty"`
	NationalID string     `json:"national_id,omitempty"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Insurance  Insurance  `json:"insurance"`
	History    History    `json:"history"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Age in whole years at now, or -1 without a birth date.
func (p Patient) Age(now time.Time) int {
	if p.BirthDate == nil {
		return -1
	}
	b := *p.BirthDate
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	return age
}

func (p Patient) Validate() error {
	v := NewValidation()
	if strings.TrimSpace(p.LastName) == "" {
		v.Add("last_name", "required")
	} else if !nameRe.MatchString(p.LastName) {
		v.Add("last_name", "letters, spaces and hyphens only")
	}
	if strings.TrimSpace(p.FirstName) == "" {
		v.Add("first_name", "required")
	} else if !nameRe.MatchString(p.FirstName) {
		v.Add("first_name", "letters, spaces and hyphens only")
	}
	if !validPhone(p.Phone) {
		v.Add("phone", "must be 10 digits")
	}
	if p.Email != "" && !emailRe.MatchString(p.Email) {
		v.Add("email", "invalid email")
	}
	if p.NationalID != "" && !nationalIDRe.MatchString(p.NationalID) {
		v.Add("national_id", "letters and digits only")
	}
	if p.Insurance.Active && strings.TrimSpace(p.Insurance.Name) == "" {
		v.Add("insurance.name", "required when insured")
	}
	return v.Err()
}

// PatientNumber formats the sequential number shown on the patient card.
func PatientNumber(seq int64) string {
	return fmt.Sprintf("P%05d", seq)
}

type PatientPatch struct {
	LastName   *string    `json:"last_name"`
	FirstName  *string    `json:"first_name"`
	Phone      *string    `json:"phone"`
	Email      *string    `json:"email"`
	City       *string    `json:"city"`
	District   *string    `json:"district"`
	NationalID *string    `json:"national_id"`
	BirthDate  *time.Time `json:"birth_date"`
	Insurance  *Insurance `json:"insurance"`
	History    *History   `json:"history"`
}

func (p PatientPatch) Apply(pt Patient) Patient {
	setString(&pt.LastName, p.LastName)
	setString(&pt.FirstName, p.FirstName)
	setString(&pt.Phone, p.Phone)
	setString(&pt.Email, p.Email)
	setString(&pt.City, p.City)
	setString(&pt.District, p.District)
	setString(&pt.NationalID, p.NationalID)
	if p.BirthDate != nil {
		b := *p.BirthDate
		pt.BirthDate = &b
	}
	if p.Insurance != nil {
		pt.Insurance = *p.Insurance
	}
	if p.History != nil {
		h := *p.History
		h.Items = append([]string(nil), p.History.Items...)
		pt.History = h
	}
	return pt
}
