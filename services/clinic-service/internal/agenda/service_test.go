package agenda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

func threeInARow() []model.Appointment {
	return []model.Appointment{appt("1", at(9, 0), 30), appt("2", at(9, 30), 30), appt("3", at(10, 0), 30)}
}

func TestResizeCascadesInOneTransaction(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	res, err := h.svc.Resize(context.Background(), "1", 60)
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if len(res.Shifts) != 2 || res.Shifts[0].ID != "2" || !res.Shifts[0].NewStart.Equal(at(10, 0)) ||
		res.Shifts[1].ID != "3" || !res.Shifts[1].NewStart.Equal(at(10, 30)) {
		t.Fatalf("unexpected shifts %+v", res.Shifts)
	}
	if len(h.store.txs) != 1 || !h.store.txs[0].committed {
		t.Fatalf("expected exactly one committed transaction, got %d", len(h.store.txs))
	}
	if got := h.store.appts["3"].Start; !got.Equal(at(10, 30)) {
		t.Fatalf("shift not persisted, 3 starts at %s", got.Format("15:04"))
	}
	want := []string{EventUpdated, EventShifted, EventShifted}
	got := h.events.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
	if !h.reminders.scheduled["2"].Equal(at(10, 0)) {
		t.Fatalf("reminders for shifted appointment not rescheduled: %v", h.reminders.scheduled)
	}
}

func TestMoveLeavesEarlierAppointments(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	res, err := h.svc.Move(context.Background(), "3", at(9, 15))
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if len(res.Shifts) != 1 || res.Shifts[0].ID != "2" || !res.Shifts[0].NewStart.Equal(at(9, 45)) {
		t.Fatalf("unexpected shifts %+v", res.Shifts)
	}
	if !h.store.appts["1"].Start.Equal(at(9, 0)) {
		t.Fatal("appointment 1 must not move")
	}
}

func TestCreateOutOfHoursTouchesNothing(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	_, err := h.svc.Create(context.Background(), appt("", at(8, 30), 30))
	if !errors.Is(err, scheduling.ErrOutOfOperatingHours) {
		t.Fatalf("expected ErrOutOfOperatingHours, got %v", err)
	}
	if len(h.store.txs) != 0 || h.store.inserts != 0 || len(h.events.events) != 0 {
		t.Fatal("rejected change must not open a transaction or write anything")
	}
}

func TestCreateInsertsAndEmits(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	res, err := h.svc.Create(context.Background(), appt("", at(9, 0), 15))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if res.Appointment.ID != "new-1" || res.Appointment.Status != model.StatusConfirmed {
		t.Fatalf("unexpected appointment %+v", res.Appointment)
	}
	if len(res.Shifts) != 3 {
		t.Fatalf("expected the three existing appointments to shift, got %+v", res.Shifts)
	}
	if h.events.types()[0] != EventCreated {
		t.Fatalf("expected created event first, got %v", h.events.types())
	}
	day, err := h.svc.Day(context.Background(), at(12, 0))
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	for i := 1; i < len(day); i++ {
		if day[i].Start.Before(day[i-1].End()) {
			t.Fatalf("%s overlaps %s", day[i-1].ID, day[i].ID)
		}
	}
}

func TestStrictPolicyRejectsOverflow(t *testing.T) {
	policy := scheduling.Policy{Hours: scheduling.DefaultHours(time.UTC), StrictCascade: true}
	h := newHarness(t, policy, appt("late", at(20, 30), 30))

	_, err := h.svc.Create(context.Background(), appt("", at(20, 15), 30))
	if !errors.Is(err, scheduling.ErrCascadeOutOfHours) {
		t.Fatalf("expected ErrCascadeOutOfHours, got %v", err)
	}
	if h.store.inserts != 0 || len(h.events.events) != 0 {
		t.Fatal("rejected cascade must not write")
	}
	if h.store.txs[0].committed {
		t.Fatal("rejected cascade must not commit")
	}
}

func TestPermissivePolicyReportsOverflow(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, appt("late", at(20, 30), 30))

	res, err := h.svc.Create(context.Background(), appt("", at(20, 15), 30))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(res.Overflow) != 1 || res.Overflow[0] != "late" {
		t.Fatalf("expected late to overflow, got %v", res.Overflow)
	}
}

func TestUpdateWithoutRescheduleSkipsResolver(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	typ := "suivi"
	res, err := h.svc.Update(context.Background(), "1", model.AppointmentPatch{Type: &typ})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(res.Shifts) != 0 || len(h.store.shifts) != 0 {
		t.Fatalf("unexpected shifts %+v", res.Shifts)
	}
	if h.store.appts["1"].Type != "suivi" {
		t.Fatal("patch not persisted")
	}
}

func TestUpdateRejectsCancelThroughPatch(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)
	status := model.StatusCanceled
	_, err := h.svc.Update(context.Background(), "1", model.AppointmentPatch{Status: &status})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelDoesNotPullBack(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	a, err := h.svc.Cancel(context.Background(), "1", "patient malade")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !a.Canceled || a.CanceledAt == nil || a.CancelReason != "patient malade" {
		t.Fatalf("unexpected canceled appointment %+v", a)
	}
	if !h.store.appts["2"].Start.Equal(at(9, 30)) {
		t.Fatal("later appointments must stay put")
	}
	if len(h.reminders.canceled) != 1 || h.reminders.canceled[0] != "1" {
		t.Fatalf("expected reminders of 1 canceled, got %v", h.reminders.canceled)
	}
	if _, err := h.svc.Cancel(context.Background(), "1", ""); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled on second cancel, got %v", err)
	}
	if _, err := h.svc.Move(context.Background(), "1", at(11, 0)); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected moving a canceled appointment to fail, got %v", err)
	}

	day, err := h.svc.Day(context.Background(), at(9, 0))
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if len(day) != 2 {
		t.Fatalf("canceled appointment must leave the day schedule, got %d", len(day))
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	if err := h.svc.Delete(context.Background(), "2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := h.store.appts["2"]; ok {
		t.Fatal("appointment not deleted")
	}
	if err := h.svc.Delete(context.Background(), "2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.svc.Move(context.Background(), "missing", at(10, 0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPreviewDoesNotWrite(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	res, err := h.svc.Preview(context.Background(), scheduling.Slot{ID: "1", Start: at(9, 0), DurationMinutes: 60})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(res.Shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %+v", res.Shifts)
	}
	if len(h.store.txs) != 0 || len(h.store.shifts) != 0 {
		t.Fatal("preview must not write")
	}
}

func TestResizeRejectsNonPositiveDuration(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)
	if _, err := h.svc.Resize(context.Background(), "1", 0); !errors.Is(err, scheduling.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestCreateRejectsNegativeDuration(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	_, err := h.svc.Create(context.Background(), appt("", at(10, 0), -45))
	if !errors.Is(err, scheduling.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if len(h.store.txs) != 0 || h.store.inserts != 0 {
		t.Fatal("rejected booking must not write anything")
	}
}

func TestCreateDefaultsMissingDuration(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)

	res, err := h.svc.Create(context.Background(), appt("", at(11, 0), 0))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if res.Appointment.DurationMinutes != scheduling.DefaultDurationMinutes {
		t.Fatalf("expected default duration, got %d", res.Appointment.DurationMinutes)
	}
}

func TestMoveAcrossDaysLocksBothDaysBeforeTheRow(t *testing.T) {
	h := newHarness(t, scheduling.Policy{}, threeInARow()...)
	tuesday := at(9, 0).AddDate(0, 0, 1)

	if _, err := h.svc.Move(context.Background(), "3", tuesday); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if len(h.store.calls) < 2 || h.store.calls[0] != "lock-days" || h.store.calls[1] != "lock-row" {
		t.Fatalf("expected day locks before the row lock, got %v", h.store.calls)
	}
	monday, _ := h.svc.DayBounds(at(0, 0))
	nextDay, _ := h.svc.DayBounds(tuesday)
	var sawMonday, sawTuesday bool
	for _, d := range h.store.locked {
		sawMonday = sawMonday || d.Equal(monday)
		sawTuesday = sawTuesday || d.Equal(nextDay)
	}
	if !sawMonday || !sawTuesday {
		t.Fatalf("expected both days locked, got %v", h.store.locked)
	}
	if !h.store.appts["3"].Start.Equal(tuesday) {
		t.Fatalf("appointment 3 not moved: %s", h.store.appts["3"].Start)
	}
}
