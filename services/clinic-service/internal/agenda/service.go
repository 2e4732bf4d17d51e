package agenda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound = errors.New("appointment not found")
	ErrCanceled = errors.New("appointment is canceled")
)

// Store is the appointment persistence the agenda needs. *storage.AppointmentRepository implements it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	LockDays(ctx context.Context, tx pgx.Tx, days ...time.Time) error
	Insert(ctx context.Context, tx pgx.Tx, a model.Appointment) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	ListDayForUpdate(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]model.Appointment, error)
	ListRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	Update(ctx context.Context, tx pgx.Tx, a model.Appointment) error
	ApplyShifts(ctx context.Context, tx pgx.Tx, shifts []scheduling.Shift) error
	Cancel(ctx context.Context, tx pgx.Tx, id, reason string) (time.Time, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) error
}

// ReminderScheduler keeps reminder jobs aligned with appointment changes inside the same transaction.
type ReminderScheduler interface {
	Schedule(ctx context.Context, tx pgx.Tx, appts ...model.Appointment) error
	Cancel(ctx context.Context, tx pgx.Tx, appointmentID string) error
}

// Result is the outcome of a change that went through the resolver.
type Result struct {
	Appointment model.Appointment  `json:"appointment"`
	Shifts      []scheduling.Shift `json:"shifts"`
	Overflow    []string           `json:"overflow,omitempty"`
}

type Config struct {
	Policy   scheduling.Policy
	Location *time.Location
}

type Service struct {
	store     Store
	events    outbox.Writer
	reminders ReminderScheduler
	resolver  *scheduling.Resolver
	loc       *time.Location
	logger    *slog.Logger
	tracer    trace.Tracer
	newID     func() string
}

func NewService(store Store, events outbox.Writer, reminders ReminderScheduler, logger *slog.Logger, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if cfg.Policy.Hours.Location == nil {
		cfg.Policy.Hours.Location = loc
	}
	return &Service{
		store:     store,
		events:    events,
		reminders: reminders,
		resolver:  scheduling.NewResolver(cfg.Policy),
		loc:       loc,
		logger:    logger,
		tracer:    otelx.Tracer("agenda"),
		newID:     uuid.NewString,
	}
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) dayStart(t time.Time) time.Time {
	from, _ := s.DayBounds(t)
	return from
}

// DayBounds returns the clinic-local midnight of t's day and of the next day.
func (s *Service) DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(s.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 0, 1)
}

// Create books a, pushing later appointments of the same day forward when they overlap.
func (s *Service) Create(ctx context.Context, a model.Appointment) (Result, error) {
	if a.DurationMinutes < 0 {
		return Result{}, scheduling.ErrInvalidDuration
	}
	a = a.Normalize()
	if a.ID == "" {
		a.ID = s.newID()
	}
	a.Canceled = false
	a.CanceledAt = nil
	a.CancelReason = ""
	if a.Status == model.StatusCanceled {
		a.Status = model.StatusConfirmed
	}
	if err := a.Validate(); err != nil {
		return Result{}, err
	}
	if err := s.resolver.Validate(a.Slot()); err != nil {
		return Result{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := s.place(ctx, tx, a, true)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	s.logResult("appointment created", res)
	return res, nil
}

// Update applies patch. A changed window goes through the resolver like a new booking.
func (s *Service) Update(ctx context.Context, id string, patch model.AppointmentPatch) (Result, error) {
	if patch.Status != nil && *patch.Status == model.StatusCanceled {
		v := model.NewValidation()
		v.Add("status", "use the cancel endpoint")
		return Result{}, v.Err()
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Day locks come before the row lock, in the same order Create takes them.
	seen, err := s.store.Get(ctx, id)
	if err != nil {
		return Result{}, s.notFound(err)
	}
	days := []time.Time{s.dayStart(seen.Start)}
	if patch.Start != nil {
		days = append(days, s.dayStart(*patch.Start))
	}
	if err := s.store.LockDays(ctx, tx, days...); err != nil {
		return Result{}, err
	}
	current, err := s.store.GetForUpdate(ctx, tx, id)
	if err != nil {
		return Result{}, s.notFound(err)
	}
	reschedules := patch.Reschedules(current)
	if reschedules && current.Canceled {
		return Result{}, ErrCanceled
	}

	next := patch.Apply(current)
	if next.DurationMinutes <= 0 {
		return Result{}, scheduling.ErrInvalidDuration
	}
	if err := next.Validate(); err != nil {
		return Result{}, err
	}

	var res Result
	if reschedules {
		if err := s.resolver.Validate(next.Slot()); err != nil {
			return Result{}, err
		}
		res, err = s.place(ctx, tx, next, false)
		if err != nil {
			return Result{}, err
		}
	} else {
		if err := s.store.Update(ctx, tx, next); err != nil {
			return Result{}, s.notFound(err)
		}
		if err := s.emit(ctx, tx, next.ID, EventUpdated, newAppointmentPayload(next)); err != nil {
			return Result{}, err
		}
		if !next.Canceled {
			if err := s.reminders.Schedule(ctx, tx, next); err != nil {
				return Result{}, fmt.Errorf("schedule reminders: %w", err)
			}
		}
		res = Result{Appointment: next, Shifts: []scheduling.Shift{}}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	s.logResult("appointment updated", res)
	return res, nil
}

// Move is the drag-and-drop entry point.
func (s *Service) Move(ctx context.Context, id string, newStart time.Time) (Result, error) {
	return s.Update(ctx, id, model.AppointmentPatch{Start: &newStart})
}

// Resize changes the duration and keeps the start.
func (s *Service) Resize(ctx context.Context, id string, durationMinutes int) (Result, error) {
	if durationMinutes <= 0 {
		return Result{}, scheduling.ErrInvalidDuration
	}
	return s.Update(ctx, id, model.AppointmentPatch{DurationMinutes: &durationMinutes})
}

// Cancel flags the appointment as canceled. Later appointments are not pulled back.
func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := s.store.GetForUpdate(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, s.notFound(err)
	}
	if a.Canceled {
		return model.Appointment{}, ErrCanceled
	}
	canceledAt, err := s.store.Cancel(ctx, tx, id, reason)
	if err != nil {
		return model.Appointment{}, s.notFound(err)
	}
	a.Canceled = true
	a.Status = model.StatusCanceled
	a.CancelReason = reason
	a.CanceledAt = &canceledAt

	if err := s.reminders.Cancel(ctx, tx, id); err != nil {
		return model.Appointment{}, fmt.Errorf("cancel reminders: %w", err)
	}
	if err := s.emit(ctx, tx, id, EventCanceled, newAppointmentPayload(a)); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment canceled", "appointment_id", id)
	return a, nil
}

// Delete removes the appointment from the agenda.
func (s *Service) Delete(ctx context.Context, id string) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := s.store.GetForUpdate(ctx, tx, id)
	if err != nil {
		return s.notFound(err)
	}
	if err := s.reminders.Cancel(ctx, tx, id); err != nil {
		return fmt.Errorf("cancel reminders: %w", err)
	}
	if err := s.store.Delete(ctx, tx, id); err != nil {
		return s.notFound(err)
	}
	if err := s.emit(ctx, tx, id, EventDeleted, newAppointmentPayload(a)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

// Day returns the day schedule of day: non-canceled appointments ordered by start.
func (s *Service) Day(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	from, to := s.DayBounds(day)
	all, err := s.store.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.Appointment, 0, len(all))
	for _, a := range all {
		if !a.Canceled {
			out = append(out, a)
		}
	}
	return out, nil
}

// Range lists every appointment starting in [from, to), canceled ones included.
func (s *Service) Range(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	return s.store.ListRange(ctx, from, to)
}

// Preview runs the resolver for a proposed window without writing anything.
func (s *Service) Preview(ctx context.Context, changed scheduling.Slot) (scheduling.Resolution, error) {
	if changed.DurationMinutes <= 0 {
		return scheduling.Resolution{}, scheduling.ErrInvalidDuration
	}
	if err := s.resolver.Validate(changed); err != nil {
		return scheduling.Resolution{}, err
	}
	from, to := s.DayBounds(changed.Start)
	day, err := s.store.ListRange(ctx, from, to)
	if err != nil {
		return scheduling.Resolution{}, err
	}
	return s.resolver.Resolve(changed, model.Slots(day))
}

// place writes changed and the cascade it causes inside tx.
func (s *Service) place(ctx context.Context, tx pgx.Tx, changed model.Appointment, insert bool) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "agenda.place")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", changed.ID), attribute.Bool("appointment.new", insert))

	from, to := s.DayBounds(changed.Start)
	day, err := s.store.ListDayForUpdate(ctx, tx, from, to)
	if err != nil {
		return Result{}, err
	}

	res, err := s.resolver.Resolve(changed.Slot(), model.Slots(day))
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("agenda.shifts", len(res.Shifts)), attribute.Int("agenda.overflow", len(res.Overflow)))
	// The cascade only pushes later appointments; an earlier one may still run into changed.
	if first, second, ok := scheduling.FirstOverlap(scheduling.Apply(model.Slots(day), changed.Slot(), res.Shifts)); ok {
		s.logger.Warn("day still has overlapping appointments", "appointment_id", changed.ID, "first", first, "second", second)
	}

	eventType := EventUpdated
	if insert {
		eventType = EventCreated
		err = s.store.Insert(ctx, tx, changed)
	} else {
		err = s.store.Update(ctx, tx, changed)
	}
	if err != nil {
		return Result{}, s.notFound(err)
	}
	if err := s.store.ApplyShifts(ctx, tx, res.Shifts); err != nil {
		return Result{}, fmt.Errorf("apply shifts: %w", err)
	}

	if err := s.emit(ctx, tx, changed.ID, eventType, newAppointmentPayload(changed)); err != nil {
		return Result{}, err
	}

	byID := make(map[string]model.Appointment, len(day))
	for _, a := range day {
		byID[a.ID] = a
	}
	overflow := make(map[string]bool, len(res.Overflow))
	for _, id := range res.Overflow {
		overflow[id] = true
	}

	touched := []model.Appointment{changed}
	for _, sh := range res.Shifts {
		prev := byID[sh.ID]
		if err := s.emit(ctx, tx, sh.ID, EventShifted, shiftedPayload{
			AppointmentID: sh.ID,
			PreviousStart: prev.Start.UTC(),
			NewStart:      sh.NewStart.UTC(),
			CausedBy:      changed.ID,
			PastClosing:   overflow[sh.ID],
		}); err != nil {
			return Result{}, err
		}
		prev.Start = sh.NewStart
		touched = append(touched, prev)
	}
	if err := s.reminders.Schedule(ctx, tx, touched...); err != nil {
		return Result{}, fmt.Errorf("schedule reminders: %w", err)
	}

	return Result{Appointment: changed, Shifts: res.Shifts, Overflow: res.Overflow}, nil
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, id, eventType string, payload any) error {
	evt, err := outbox.NewEvent(aggregateType, id, eventType, payload)
	if err != nil {
		return err
	}
	return s.events.Insert(ctx, tx, evt)
}

func (s *Service) logResult(msg string, res Result) {
	s.logger.Info(msg, "appointment_id", res.Appointment.ID, "shifts", len(res.Shifts))
	if len(res.Overflow) > 0 {
		s.logger.Warn("cascade pushed appointments past closing time", "appointment_id", res.Appointment.ID, "overflow", res.Overflow)
	}
}

func (s *Service) notFound(err error) error {
	if storage.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
