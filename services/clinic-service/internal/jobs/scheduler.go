package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/notifications"
)

type TemplateSource interface {
	ListActive(ctx context.Context, tx pgx.Tx) ([]model.Template, error)
}

type SettingsSource interface {
	GetOrDefault(ctx context.Context) (model.Settings, error)
}

type UpcomingSource interface {
	ListUpcoming(ctx context.Context, tx pgx.Tx, from time.Time) ([]model.Appointment, error)
}

// Scheduler keeps reminder jobs in step with the agenda, the templates and the clinic settings.
// It runs inside the caller's transaction.
type Scheduler struct {
	repo         *Repository
	templates    TemplateSource
	settings     SettingsSource
	appointments UpcomingSource
	now          func() time.Time
}

func NewScheduler(repo *Repository, templates TemplateSource, settings SettingsSource, appointments UpcomingSource) *Scheduler {
	return &Scheduler{repo: repo, templates: templates, settings: settings, appointments: appointments, now: time.Now}
}

// Schedule (re)plans the reminders of every given appointment.
func (s *Scheduler) Schedule(ctx context.Context, tx pgx.Tx, appts ...model.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	templates, err := s.templates.ListActive(ctx, tx)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return nil
	}
	settings, err := s.settings.GetOrDefault(ctx)
	if err != nil {
		return err
	}
	return s.plan(ctx, tx, appts, templates, settings)
}

func (s *Scheduler) Cancel(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	_, err := s.repo.CancelForAppointment(ctx, tx, appointmentID)
	return err
}

// TemplateChanged aligns pending reminders with a template that was created or edited from before
// to after. Deactivating cancels them; a new text or offset replans them for upcoming
// appointments. Reminders already sent are left alone.
func (s *Scheduler) TemplateChanged(ctx context.Context, tx pgx.Tx, before, after model.Template) error {
	if !after.Active {
		_, err := s.repo.CancelForTemplate(ctx, tx, after.ID)
		return err
	}
	if before.Active && before.Content == after.Content && before.SendHoursBefore == after.SendHoursBefore {
		return nil
	}
	settings, err := s.settings.GetOrDefault(ctx)
	if err != nil {
		return err
	}
	return s.replanUpcoming(ctx, tx, []model.Template{after}, settings)
}

// SettingsChanged rewrites pending reminders with the new clinic identity and time zone.
func (s *Scheduler) SettingsChanged(ctx context.Context, tx pgx.Tx, settings model.Settings) error {
	templates, err := s.templates.ListActive(ctx, tx)
	if err != nil || len(templates) == 0 {
		return err
	}
	return s.replanUpcoming(ctx, tx, templates, settings)
}

func (s *Scheduler) replanUpcoming(ctx context.Context, tx pgx.Tx, templates []model.Template, settings model.Settings) error {
	appts, err := s.appointments.ListUpcoming(ctx, tx, s.now())
	if err != nil {
		return err
	}
	return s.plan(ctx, tx, appts, templates, settings)
}

func (s *Scheduler) plan(ctx context.Context, tx pgx.Tx, appts []model.Appointment, templates []model.Template, settings model.Settings) error {
	now := s.now()
	for _, a := range appts {
		if a.Canceled || a.IsPlaceholder() || a.Contact == "" {
			if _, err := s.repo.CancelForAppointment(ctx, tx, a.ID); err != nil {
				return err
			}
			continue
		}
		for _, job := range Plan(a, templates, settings, now) {
			if err := s.repo.Upsert(ctx, tx, job); err != nil {
				return err
			}
		}
	}
	return nil
}

// Plan builds one job per active template. Reminders whose send time has already passed are
// planned as canceled so a stale schedule never fires.
func Plan(a model.Appointment, templates []model.Template, settings model.Settings, now time.Time) []Job {
	loc := settings.Location()
	out := make([]Job, 0, len(templates))
	for _, t := range templates {
		if !t.Active {
			continue
		}
		remindAt := notifications.SendAt(a.Start, t)
		status := StatusPending
		if remindAt.Before(now) {
			status = StatusCanceled
		}
		out = append(out, Job{
			AppointmentID: a.ID,
			TemplateID:    t.ID,
			Recipient:     notifications.InternationalPhone(a.Contact, notifications.DefaultCountryCode),
			RemindAt:      remindAt,
			Message:       notifications.RenderTemplate(t, notifications.Data{PatientName: a.PatientName, AppointmentAt: a.Start}, settings, loc),
			Status:        status,
		})
	}
	return out
}
