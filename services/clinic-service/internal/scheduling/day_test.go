package scheduling

import (
	"testing"
	"time"
)

func TestDayScheduleFiltersAndSorts(t *testing.T) {
	loc := time.UTC
	all := []Slot{
		{ID: "late", Start: at(15, 0), DurationMinutes: 30},
		{ID: "early", Start: at(9, 0), DurationMinutes: 30},
		{ID: "canceled", Start: at(10, 0), DurationMinutes: 30, Canceled: true},
		{ID: "tomorrow", Start: at(9, 0).AddDate(0, 0, 1), DurationMinutes: 30},
	}
	got := DaySchedule(all, at(0, 0), loc)
	if len(got) != 2 || got[0].ID != "early" || got[1].ID != "late" {
		t.Fatalf("unexpected day schedule %+v", got)
	}
}

func TestDayScheduleUsesClinicDate(t *testing.T) {
	loc := time.FixedZone("GMT+1", 3600)
	// 23:30 UTC on Feb 1 is 00:30 on Feb 2 at the clinic.
	s := Slot{ID: "x", Start: time.Date(2026, 2, 1, 23, 30, 0, 0, time.UTC), DurationMinutes: 30}
	got := DaySchedule([]Slot{s}, time.Date(2026, 2, 2, 12, 0, 0, 0, loc), loc)
	if len(got) != 1 {
		t.Fatalf("expected slot to belong to the clinic-local day, got %+v", got)
	}
}

func TestApplyInsertsNewSlot(t *testing.T) {
	day := threeInARow()
	changed := Slot{ID: "4", Start: at(9, 0), DurationMinutes: 15}
	res, err := Resolve(changed, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	out := Apply(day, changed, res.Shifts)
	if len(out) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(out))
	}
	if _, _, ok := FirstOverlap(out); ok {
		t.Fatalf("expected no overlap after apply: %+v", out)
	}
}

func TestFirstOverlap(t *testing.T) {
	day := []Slot{
		{ID: "a", Start: at(9, 0), DurationMinutes: 30},
		{ID: "b", Start: at(9, 20), DurationMinutes: 30},
	}
	a, b, ok := FirstOverlap(day)
	if !ok || a != "a" || b != "b" {
		t.Fatalf("expected a/b overlap, got %s/%s %v", a, b, ok)
	}
	day[1].Start = at(9, 30)
	if _, _, ok := FirstOverlap(day); ok {
		t.Fatal("touching windows must not overlap")
	}
}
