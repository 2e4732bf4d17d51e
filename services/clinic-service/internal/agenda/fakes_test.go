package agenda

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	appts   map[string]model.Appointment
	txs     []*fakeTx
	inserts int
	shifts  [][]scheduling.Shift
	calls   []string
	locked  []time.Time
}

func newFakeStore(appts ...model.Appointment) *fakeStore {
	s := &fakeStore{appts: map[string]model.Appointment{}}
	for _, a := range appts {
		s.appts[a.ID] = a.Normalize()
	}
	return s
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *fakeStore) Insert(_ context.Context, _ pgx.Tx, a model.Appointment) error {
	s.inserts++
	s.appts[a.ID] = a
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (model.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *fakeStore) LockDays(_ context.Context, _ pgx.Tx, days ...time.Time) error {
	s.calls = append(s.calls, "lock-days")
	s.locked = append(s.locked, days...)
	return nil
}

func (s *fakeStore) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (model.Appointment, error) {
	s.calls = append(s.calls, "lock-row")
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *fakeStore) ListDayForUpdate(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]model.Appointment, error) {
	if err := s.LockDays(ctx, tx, from); err != nil {
		return nil, err
	}
	return s.ListRange(ctx, from, to)
}

func (s *fakeStore) ListRange(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if !a.Start.Before(from) && a.Start.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, _ pgx.Tx, a model.Appointment) error {
	if _, ok := s.appts[a.ID]; !ok {
		return pgx.ErrNoRows
	}
	s.appts[a.ID] = a
	return nil
}

func (s *fakeStore) ApplyShifts(_ context.Context, _ pgx.Tx, shifts []scheduling.Shift) error {
	s.shifts = append(s.shifts, shifts)
	for _, sh := range shifts {
		a := s.appts[sh.ID]
		a.Start = sh.NewStart
		s.appts[sh.ID] = a
	}
	return nil
}

func (s *fakeStore) Cancel(_ context.Context, _ pgx.Tx, id, reason string) (time.Time, error) {
	a, ok := s.appts[id]
	if !ok {
		return time.Time{}, pgx.ErrNoRows
	}
	a.Canceled = true
	a.Status = model.StatusCanceled
	a.CancelReason = reason
	s.appts[id] = a
	return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), nil
}

func (s *fakeStore) Delete(_ context.Context, _ pgx.Tx, id string) error {
	if _, ok := s.appts[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.appts, id)
	return nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (o *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	o.events = append(o.events, evt)
	return nil
}

func (o *fakeOutbox) types() []string {
	out := make([]string, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeReminders struct {
	scheduled map[string]time.Time
	canceled  []string
}

func (r *fakeReminders) Schedule(_ context.Context, _ pgx.Tx, appts ...model.Appointment) error {
	if r.scheduled == nil {
		r.scheduled = map[string]time.Time{}
	}
	for _, a := range appts {
		r.scheduled[a.ID] = a.Start
	}
	return nil
}

func (r *fakeReminders) Cancel(_ context.Context, _ pgx.Tx, id string) error {
	r.canceled = append(r.canceled, id)
	return nil
}

type harness struct {
	svc       *Service
	store     *fakeStore
	events    *fakeOutbox
	reminders *fakeReminders
}

func newHarness(t *testing.T, policy scheduling.Policy, appts ...model.Appointment) harness {
	t.Helper()
	store := newFakeStore(appts...)
	events := &fakeOutbox{}
	reminders := &fakeReminders{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, events, reminders, logger, Config{Policy: policy, Location: time.UTC})
	n := 0
	svc.newID = func() string { n++; return "new-" + string(rune('0'+n)) }
	return harness{svc: svc, store: store, events: events, reminders: reminders}
}

func at(hh, mm int) time.Time {
	return time.Date(2026, 2, 2, hh, mm, 0, 0, time.UTC)
}

func appt(id string, start time.Time, dur int) model.Appointment {
	return model.Appointment{ID: id, PatientName: "Patient " + id, Contact: "0612345678", Start: start, DurationMinutes: dur}
}
