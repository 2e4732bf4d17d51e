package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/notifications"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type TemplateStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, t model.Template) (model.Template, error)
	Get(ctx context.Context, id string) (model.Template, error)
	List(ctx context.Context, activeOnly bool) ([]model.Template, error)
	Update(ctx context.Context, tx pgx.Tx, t model.Template) (model.Template, error)
	Delete(ctx context.Context, id string) error
}

type SettingsStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetOrDefault(ctx context.Context) (model.Settings, error)
	Update(ctx context.Context, tx pgx.Tx, s model.Settings) error
}

// ReminderPlanner realigns planned reminder jobs when templates or settings change.
// *jobs.Scheduler implements it.
type ReminderPlanner interface {
	TemplateChanged(ctx context.Context, tx pgx.Tx, before, after model.Template) error
	SettingsChanged(ctx context.Context, tx pgx.Tx, s model.Settings) error
}

type AppointmentRanger interface {
	Range(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
}

type NotificationHandler struct {
	templates    TemplateStore
	settings     SettingsStore
	appointments AppointmentRanger
	reminders    ReminderPlanner
	loc          *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

func NewNotificationHandler(templates TemplateStore, settings SettingsStore, appointments AppointmentRanger, reminders ReminderPlanner, loc *time.Location, logger *slog.Logger) *NotificationHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationHandler{
		templates:    templates,
		settings:     settings,
		appointments: appointments,
		reminders:    reminders,
		loc:          loc,
		logger:       logger,
		now:          time.Now,
	}
}

type templateListResponse struct {
	Templates []model.Template `json:"templates"`
}

type planResponse struct {
	From     time.Time                      `json:"from"`
	To       time.Time                      `json:"to"`
	Messages []notifications.PlannedMessage `json:"messages"`
}

func withVariables(t model.Template) model.Template {
	t.Variables = notifications.Variables(t.Content)
	return t
}

func (h *NotificationHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	templates, err := h.templates.List(r.Context(), activeOnly)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	out := make([]model.Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, withVariables(t))
	}
	httpx.WriteJSON(w, http.StatusOK, templateListResponse{Templates: out})
}

func (h *NotificationHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t model.Template
	if !decodeBody(w, r, &t) {
		return
	}
	t.Name = strings.TrimSpace(t.Name)
	if err := t.Validate(); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	t.ID = uuid.NewString()
	var created model.Template
	err := inTx(r.Context(), h.templates.Begin, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if created, err = h.templates.Create(ctx, tx, t); err != nil {
			return err
		}
		return h.reminders.TemplateChanged(ctx, tx, model.Template{}, created)
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, withVariables(created))
}

func (h *NotificationHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, withVariables(t))
}

func (h *NotificationHandler) PatchTemplate(w http.ResponseWriter, r *http.Request) {
	var patch model.TemplatePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	ctx := r.Context()
	current, err := h.templates.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	next := patch.Apply(current)
	next.Name = strings.TrimSpace(next.Name)
	if err := next.Validate(); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	var saved model.Template
	err = inTx(ctx, h.templates.Begin, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if saved, err = h.templates.Update(ctx, tx, next); err != nil {
			return err
		}
		return h.reminders.TemplateChanged(ctx, tx, current, saved)
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, withVariables(saved))
}

func (h *NotificationHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.GetOrDefault(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *NotificationHandler) PatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	ctx := r.Context()
	current, err := h.settings.GetOrDefault(ctx)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	next := patch.Apply(current)
	next.SenderPhone = strings.TrimSpace(next.SenderPhone)
	if err := next.Validate(); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	err = inTx(ctx, h.settings.Begin, func(ctx context.Context, tx pgx.Tx) error {
		if err := h.settings.Update(ctx, tx, next); err != nil {
			return err
		}
		return h.reminders.SettingsChanged(ctx, tx, next)
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.logger.Info("clinic settings updated")
	httpx.WriteJSON(w, http.StatusOK, next)
}

// Plan lists the reminders due for appointments between from and to.
func (h *NotificationHandler) Plan(w http.ResponseWriter, r *http.Request) {
	from, to, plan, _, ok := h.plan(w, r)
	if !ok {
		return
	}
	if plan == nil {
		plan = []notifications.PlannedMessage{}
	}
	httpx.WriteJSON(w, http.StatusOK, planResponse{From: from, To: to, Messages: plan})
}

// Export downloads the plan as a spreadsheet, one sheet per active template.
func (h *NotificationHandler) Export(w http.ResponseWriter, r *http.Request) {
	from, to, plan, templates, ok := h.plan(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := notifications.Export(&buf, plan, templates, h.loc); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	name := notifications.ExportFilename(from, to.AddDate(0, 0, -1))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *NotificationHandler) plan(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, []notifications.PlannedMessage, []model.Template, bool) {
	from, to, err := parseRange(r, h.now(), h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, nil, nil, false
	}
	ctx := r.Context()
	settings, err := h.settings.GetOrDefault(ctx)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return time.Time{}, time.Time{}, nil, nil, false
	}
	templates, err := h.templates.List(ctx, true)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return time.Time{}, time.Time{}, nil, nil, false
	}
	appts, err := h.appointments.Range(ctx, from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return time.Time{}, time.Time{}, nil, nil, false
	}
	return from, to, notifications.Plan(appts, templates, settings, from, to), templates, true
}

// inTx runs fn in a transaction from begin and commits when fn succeeds.
func inTx(ctx context.Context, begin func(context.Context) (pgx.Tx, error), fn func(context.Context, pgx.Tx) error) error {
	tx, err := begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
