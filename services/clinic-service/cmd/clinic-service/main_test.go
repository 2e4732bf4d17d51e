package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

const sampleDay = `{
  "changed": {"id": "a", "start": "2026-02-02T10:00:00Z", "duration_minutes": 60},
  "appointments": [
    {"id": "a", "start": "2026-02-02T10:00:00Z", "duration_minutes": 30},
    {"id": "b", "start": "2026-02-02T10:30:00Z", "duration_minutes": 30},
    {"id": "c", "start": "2026-02-02T11:30:00Z", "duration_minutes": 30},
    {"id": "x", "start": "2026-02-02T10:15:00Z", "duration_minutes": 30, "canceled": true}
  ]
}`

func TestResolveCommandPrintsShifts(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetIn(strings.NewReader(sampleDay))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"resolve", "--timezone", "UTC"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var res scheduling.Resolution
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(res.Shifts) != 1 || res.Shifts[0].ID != "b" {
		t.Fatalf("expected only b to move, got %+v", res.Shifts)
	}
	if !res.Shifts[0].NewStart.Equal(time.Date(2026, 2, 2, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected b at 11:00, got %v", res.Shifts[0].NewStart)
	}
}

func TestRunResolveRejectsEarlyStart(t *testing.T) {
	in := `{"changed": {"id": "a", "start": "2026-02-02T08:30:00Z", "duration_minutes": 30}, "appointments": []}`
	err := runResolve(strings.NewReader(in), &bytes.Buffer{}, scheduling.Policy{Hours: scheduling.DefaultHours(time.UTC)})
	if !errors.Is(err, scheduling.ErrOutOfOperatingHours) {
		t.Fatalf("expected out of hours error, got %v", err)
	}
}

func TestRunResolveStrictOverflow(t *testing.T) {
	in := `{
  "changed": {"id": "a", "start": "2026-02-02T20:00:00Z", "duration_minutes": 60},
  "appointments": [{"id": "b", "start": "2026-02-02T20:30:00Z", "duration_minutes": 30}]
}`
	err := runResolve(strings.NewReader(in), &bytes.Buffer{}, scheduling.Policy{Hours: scheduling.DefaultHours(time.UTC), StrictCascade: true})
	if !errors.Is(err, scheduling.ErrCascadeOutOfHours) {
		t.Fatalf("expected cascade error, got %v", err)
	}
}

func TestRunResolveRequiresChangedID(t *testing.T) {
	in := `{"changed": {"start": "2026-02-02T10:00:00Z", "duration_minutes": 30}}`
	if err := runResolve(strings.NewReader(in), &bytes.Buffer{}, scheduling.Policy{}); err == nil {
		t.Fatal("expected missing id to fail")
	}
}

func TestNewStaff(t *testing.T) {
	s, err := newStaff(" Doc@Clinic.MA ", "Dr. Martin", "doctor", "long-enough")
	if err != nil {
		t.Fatalf("newStaff: %v", err)
	}
	if s.Email != "doc@clinic.ma" || s.ID == "" || s.Role != "doctor" {
		t.Fatalf("unexpected staff %+v", s)
	}
	if err := auth.VerifyPassword(s.PasswordHash, "long-enough"); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}

	cases := []struct{ email, role, password string }{
		{"nope", "doctor", "long-enough"},
		{"a@b.c", "nurse", "long-enough"},
		{"a@b.c", "assistant", "short"},
	}
	for _, c := range cases {
		if _, err := newStaff(c.email, "", c.role, c.password); err == nil {
			t.Fatalf("expected %+v to be rejected", c)
		}
	}
}

func TestLoadLocation(t *testing.T) {
	if _, err := loadLocation("Africa/Casablanca"); err != nil {
		t.Fatalf("expected embedded tzdata to resolve Africa/Casablanca: %v", err)
	}
	if _, err := loadLocation("Mars/Olympus"); err == nil {
		t.Fatal("expected unknown zone to fail")
	}
}

func TestRunResolveIgnoresOtherDays(t *testing.T) {
	in := `{
  "changed": {"id": "a", "start": "2026-02-02T10:00:00Z", "duration_minutes": 60},
  "appointments": [{"id": "next-day", "start": "2026-02-03T10:30:00Z", "duration_minutes": 30}]
}`
	var out bytes.Buffer
	if err := runResolve(strings.NewReader(in), &out, scheduling.Policy{Hours: scheduling.DefaultHours(time.UTC)}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var res scheduling.Resolution
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Shifts) != 0 {
		t.Fatalf("expected no shifts, got %+v", res.Shifts)
	}
}
