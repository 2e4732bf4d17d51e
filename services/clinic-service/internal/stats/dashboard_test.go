package stats

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

func TestDashboard(t *testing.T) {
	day := func(d, hh int) time.Time { return time.Date(2026, 2, d, hh, 0, 0, 0, time.UTC) }
	appts := []model.Appointment{
		{ID: "a1", Kind: model.KindPatient, Start: day(3, 9), DurationMinutes: 30, NewPatient: true},
		{ID: "a2", Kind: model.KindPatient, Start: day(3, 10), DurationMinutes: 60},
		{ID: "a3", Kind: model.KindPatient, Start: day(3, 11), DurationMinutes: 45, Free: true},
		{ID: "a4", Kind: model.KindPatient, Start: day(3, 12), DurationMinutes: 30, Delegated: true, NewPatient: true},
		{ID: "a5", Kind: model.KindPatient, Start: day(3, 15), DurationMinutes: 30, Canceled: true},
		{ID: "lunch", Kind: model.KindLunchBreak, Start: day(3, 13), DurationMinutes: 60},

		{ID: "p1", Kind: model.KindPatient, Start: day(2, 9), DurationMinutes: 30},
		{ID: "p2", Kind: model.KindPatient, Start: day(2, 10), DurationMinutes: 30, Free: true},
		{ID: "p3", Kind: model.KindPatient, Start: day(2, 11), DurationMinutes: 30, Canceled: true},

		{ID: "w1", Kind: model.KindPatient, Start: time.Date(2026, 1, 27, 9, 0, 0, 0, time.UTC), DurationMinutes: 50},
		{ID: "w2", Kind: model.KindPatient, Start: time.Date(2026, 1, 27, 10, 0, 0, 0, time.UTC), DurationMinutes: 50},
	}
	amount := func(v int64) *int64 { return &v }
	payments := []model.Payment{
		{AppointmentID: "a1", Amount: amount(40000), Status: model.PaymentPaid},
		{AppointmentID: "a2", Status: model.PaymentPending},
		{AppointmentID: "p1", Amount: amount(30000), Status: model.PaymentPaid},
		{AppointmentID: "p2", Amount: amount(10000), Status: model.PaymentPaid},
		{AppointmentID: "p3", Amount: amount(5000), Status: model.PaymentPaid},
	}

	r := Dashboard(appts, payments, day(3, 0), day(4, 0))

	want := ConsultationCounts{Total: 5, NewPatients: 1, ReturningPatients: 1, Paid: 1, Free: 2, Canceled: 1, AwaitingPayment: 1}
	if r.Consultations != want {
		t.Fatalf("expected %+v, got %+v", want, r.Consultations)
	}
	if r.Revenue.TotalCents != 40000 || r.Revenue.PreviousDayCents != 30000 || r.Revenue.VariationPercent != 33.3 {
		t.Fatalf("unexpected revenue %+v", r.Revenue)
	}
	// (30 + 60 + 45 + 30) / 4 = 41.25, against 50 one week earlier.
	wantDurations := DurationTrend{AverageMinutes: 41, ShortestMinutes: 30, LongestMinutes: 60, WeeklyChangePercent: -18}
	if r.Durations != wantDurations {
		t.Fatalf("expected %+v, got %+v", wantDurations, r.Durations)
	}
}

func TestDashboardEmptyDay(t *testing.T) {
	from := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	r := Dashboard(nil, nil, from, from.AddDate(0, 0, 1))
	if r.Consultations.Total != 0 || r.Revenue.VariationPercent != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Durations.AverageMinutes != 30 || r.Durations.ShortestMinutes != 30 || r.Durations.LongestMinutes != 30 || r.Durations.WeeklyChangePercent != 0 {
		t.Fatalf("expected default durations, got %+v", r.Durations)
	}
}

func TestVariation(t *testing.T) {
	cases := []struct {
		current, previous int64
		want              float64
	}{
		{0, 0, 0},
		{5000, 0, 100},
		{15000, 30000, -50},
		{30000, 20000, 50},
	}
	for _, c := range cases {
		if got := variation(c.current, c.previous); got != c.want {
			t.Fatalf("variation(%d, %d): expected %v, got %v", c.current, c.previous, c.want, got)
		}
	}
}
