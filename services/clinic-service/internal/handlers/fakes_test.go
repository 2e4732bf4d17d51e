package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/agenda"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/billing"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

const (
	testJWTSecret     = "handlers-test-secret"
	testWebhookSecret = "whsec_handlers_test"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

// fakeAgenda serves both the workflow and the read side from one map.
type fakeAgenda struct {
	appts    map[string]model.Appointment
	result   agenda.Result
	err      error
	created  []model.Appointment
	moved    map[string]time.Time
	resized  map[string]int
	canceled map[string]string
	preview  scheduling.Slot
}

func newFakeAgenda(appts ...model.Appointment) *fakeAgenda {
	f := &fakeAgenda{
		appts:    map[string]model.Appointment{},
		moved:    map[string]time.Time{},
		resized:  map[string]int{},
		canceled: map[string]string{},
	}
	for _, a := range appts {
		f.appts[a.ID] = a
	}
	return f
}

func (f *fakeAgenda) Location() *time.Location { return time.UTC }

func (f *fakeAgenda) Create(_ context.Context, a model.Appointment) (agenda.Result, error) {
	if f.err != nil {
		return agenda.Result{}, f.err
	}
	a.ID = "new-appt"
	f.created = append(f.created, a)
	f.appts[a.ID] = a
	res := f.result
	res.Appointment = a
	return res, nil
}

func (f *fakeAgenda) Update(_ context.Context, id string, patch model.AppointmentPatch) (agenda.Result, error) {
	if f.err != nil {
		return agenda.Result{}, f.err
	}
	a, ok := f.appts[id]
	if !ok {
		return agenda.Result{}, agenda.ErrNotFound
	}
	a = patch.Apply(a)
	f.appts[id] = a
	res := f.result
	res.Appointment = a
	return res, nil
}

func (f *fakeAgenda) Move(ctx context.Context, id string, newStart time.Time) (agenda.Result, error) {
	f.moved[id] = newStart
	return f.Update(ctx, id, model.AppointmentPatch{Start: &newStart})
}

func (f *fakeAgenda) Resize(ctx context.Context, id string, durationMinutes int) (agenda.Result, error) {
	if durationMinutes <= 0 {
		return agenda.Result{}, scheduling.ErrInvalidDuration
	}
	f.resized[id] = durationMinutes
	return f.Update(ctx, id, model.AppointmentPatch{DurationMinutes: &durationMinutes})
}

func (f *fakeAgenda) Cancel(_ context.Context, id, reason string) (model.Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, agenda.ErrNotFound
	}
	if a.Canceled {
		return model.Appointment{}, agenda.ErrCanceled
	}
	a.Canceled = true
	a.Status = model.StatusCanceled
	a.CancelReason = reason
	f.appts[id] = a
	f.canceled[id] = reason
	return a, nil
}

func (f *fakeAgenda) Delete(_ context.Context, id string) error {
	if _, ok := f.appts[id]; !ok {
		return agenda.ErrNotFound
	}
	delete(f.appts, id)
	return nil
}

func (f *fakeAgenda) Day(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	all, err := f.Range(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	var out []model.Appointment
	for _, a := range all {
		if !a.Canceled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgenda) Range(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if !a.Start.Before(from) && a.Start.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeAgenda) Preview(_ context.Context, changed scheduling.Slot) (scheduling.Resolution, error) {
	f.preview = changed
	if f.err != nil {
		return scheduling.Resolution{}, f.err
	}
	return scheduling.Resolution{Shifts: f.result.Shifts, Overflow: f.result.Overflow}, nil
}

func (f *fakeAgenda) Get(_ context.Context, id string) (model.Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeAgenda) ListByPatient(_ context.Context, patientID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if a.PatientID != nil && *a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out, nil
}

type fakePatients struct {
	rows map[string]model.Patient
	seq  int64
}

func newFakePatients(ps ...model.Patient) *fakePatients {
	f := &fakePatients{rows: map[string]model.Patient{}}
	for _, p := range ps {
		f.rows[p.ID] = p
	}
	return f
}

func (f *fakePatients) Create(_ context.Context, p model.Patient) (model.Patient, error) {
	f.seq++
	p.Number = model.PatientNumber(f.seq)
	f.rows[p.ID] = p
	return p, nil
}

func (f *fakePatients) Get(_ context.Context, id string) (model.Patient, error) {
	p, ok := f.rows[id]
	if !ok {
		return model.Patient{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakePatients) List(_ context.Context, search string, limit int) ([]model.Patient, error) {
	var out []model.Patient
	s := strings.ToLower(search)
	for _, p := range f.rows {
		if s == "" || strings.Contains(strings.ToLower(p.LastName+" "+p.FirstName+" "+p.Phone), s) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePatients) Update(_ context.Context, p model.Patient) (time.Time, error) {
	if _, ok := f.rows[p.ID]; !ok {
		return time.Time{}, pgx.ErrNoRows
	}
	f.rows[p.ID] = p
	return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), nil
}

func (f *fakePatients) Delete(_ context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

type fakePayments struct {
	rows   map[string]model.Payment
	events map[string]bool
	txs    []*fakeTx
}

func newFakePayments(ps ...model.Payment) *fakePayments {
	f := &fakePayments{rows: map[string]model.Payment{}, events: map[string]bool{}}
	for _, p := range ps {
		f.rows[p.ID] = p
	}
	return f
}

func (f *fakePayments) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakePayments) Upsert(_ context.Context, p model.Payment) (model.Payment, error) {
	for id, existing := range f.rows {
		if existing.AppointmentID == p.AppointmentID {
			p.ID = id
		}
	}
	f.rows[p.ID] = p
	return p, nil
}

func (f *fakePayments) Get(_ context.Context, id string) (model.Payment, error) {
	p, ok := f.rows[id]
	if !ok {
		return model.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakePayments) GetByAppointment(_ context.Context, appointmentID string) (model.Payment, error) {
	for _, p := range f.rows {
		if p.AppointmentID == appointmentID {
			return p, nil
		}
	}
	return model.Payment{}, pgx.ErrNoRows
}

func (f *fakePayments) ListRange(_ context.Context, from, to time.Time) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range f.rows {
		if !p.AppointmentAt.Before(from) && p.AppointmentAt.Before(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentAt.Before(out[j].AppointmentAt) })
	return out, nil
}

func (f *fakePayments) SetProviderRef(_ context.Context, id, ref string) error {
	p, ok := f.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.ProviderRef = ref
	f.rows[id] = p
	return nil
}

func (f *fakePayments) MarkPaidByRef(_ context.Context, _ pgx.Tx, ref string, amount int64, method string, paidAt time.Time) (string, error) {
	for id, p := range f.rows {
		if p.ProviderRef == ref {
			p.Status = model.PaymentPaid
			p.Amount = &amount
			p.Method = method
			p.PaidAt = &paidAt
			f.rows[id] = p
			return id, nil
		}
	}
	return "", pgx.ErrNoRows
}

func (f *fakePayments) RecordProviderEvent(_ context.Context, _ pgx.Tx, provider, eventID, _ string) (bool, error) {
	key := provider + "/" + eventID
	if f.events[key] {
		return false, nil
	}
	f.events[key] = true
	return true, nil
}

type fakeTemplates struct {
	rows map[string]model.Template
	txs  []*fakeTx
}

func newFakeTemplates(ts ...model.Template) *fakeTemplates {
	f := &fakeTemplates{rows: map[string]model.Template{}}
	for _, t := range ts {
		f.rows[t.ID] = t
	}
	return f
}

func (f *fakeTemplates) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeTemplates) Create(_ context.Context, _ pgx.Tx, t model.Template) (model.Template, error) {
	f.rows[t.ID] = t
	return t, nil
}

func (f *fakeTemplates) Get(_ context.Context, id string) (model.Template, error) {
	t, ok := f.rows[id]
	if !ok {
		return model.Template{}, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeTemplates) List(_ context.Context, activeOnly bool) ([]model.Template, error) {
	var out []model.Template
	for _, t := range f.rows {
		if !activeOnly || t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SendHoursBefore > out[j].SendHoursBefore })
	return out, nil
}

func (f *fakeTemplates) Update(_ context.Context, _ pgx.Tx, t model.Template) (model.Template, error) {
	if _, ok := f.rows[t.ID]; !ok {
		return model.Template{}, pgx.ErrNoRows
	}
	f.rows[t.ID] = t
	return t, nil
}

func (f *fakeTemplates) Delete(_ context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

type fakeSettings struct {
	current *model.Settings
	txs     []*fakeTx
}

func (f *fakeSettings) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeSettings) GetOrDefault(context.Context) (model.Settings, error) {
	if f.current == nil {
		return model.DefaultSettings(), nil
	}
	return *f.current, nil
}

func (f *fakeSettings) Update(_ context.Context, _ pgx.Tx, s model.Settings) error {
	f.current = &s
	return nil
}

type templateChange struct {
	before, after model.Template
}

type fakePlanner struct {
	templates []templateChange
	settings  []model.Settings
	err       error
}

func (f *fakePlanner) TemplateChanged(_ context.Context, _ pgx.Tx, before, after model.Template) error {
	f.templates = append(f.templates, templateChange{before: before, after: after})
	return f.err
}

func (f *fakePlanner) SettingsChanged(_ context.Context, _ pgx.Tx, s model.Settings) error {
	f.settings = append(f.settings, s)
	return f.err
}

type fakeStaff struct {
	rows map[string]model.Staff
}

func (f *fakeStaff) GetByEmail(_ context.Context, email string) (model.Staff, error) {
	s, ok := f.rows[strings.ToLower(email)]
	if !ok {
		return model.Staff{}, pgx.ErrNoRows
	}
	return s, nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (f *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

type fakeCheckout struct {
	requests []billing.CheckoutRequest
}

func (f *fakeCheckout) Create(_ context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error) {
	f.requests = append(f.requests, req)
	return billing.CheckoutSession{ID: "cs_test_" + req.PaymentID, URL: "https://checkout.stripe.test/" + req.PaymentID}, nil
}

type harness struct {
	agenda    *fakeAgenda
	patients  *fakePatients
	payments  *fakePayments
	templates *fakeTemplates
	settings  *fakeSettings
	planner   *fakePlanner
	staff     *fakeStaff
	events    *fakeOutbox
	checkout  *fakeCheckout
	now       time.Time
	handler   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		agenda:    newFakeAgenda(),
		patients:  newFakePatients(),
		payments:  newFakePayments(),
		templates: newFakeTemplates(),
		settings:  &fakeSettings{},
		planner:   &fakePlanner{},
		staff:     &fakeStaff{rows: map[string]model.Staff{}},
		events:    &fakeOutbox{},
		checkout:  &fakeCheckout{},
		now:       time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return h.now }

	appts := NewAppointmentHandler(h.agenda, h.agenda, logger)
	appts.now = clock
	billingHandler := NewBillingHandler(h.payments, h.agenda, h.checkout, h.events, logger, BillingConfig{
		Location:         time.UTC,
		WebhookSecret:    testWebhookSecret,
		WebhookTolerance: 5 * time.Minute,
	})
	billingHandler.now = clock
	notes := NewNotificationHandler(h.templates, h.settings, h.agenda, h.planner, time.UTC, logger)
	notes.now = clock
	statsHandler := NewStatsHandler(h.patients, h.agenda, h.payments, time.UTC, logger)
	statsHandler.now = clock
	authHandler := NewAuthHandler(h.staff, testJWTSecret, time.Hour, logger)

	mux := http.NewServeMux()
	Register(mux, Routes{
		Appointments:  appts,
		Patients:      NewPatientHandler(h.patients, h.agenda, logger),
		Billing:       billingHandler,
		Notifications: notes,
		Stats:         statsHandler,
		Auth:          authHandler,
		JWTSecret:     testJWTSecret,
	})
	h.handler = mux
	return h
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.NewClaims("staff-1", role, "Test", time.Now(), time.Hour), testJWTSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

// do sends a request as role; an empty role sends no token.
func (h *harness) do(t *testing.T, method, path, body, role string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", bearer(t, role))
	}
	rw := httptest.NewRecorder()
	h.handler.ServeHTTP(rw, req)
	return rw
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 2, 2, hour, minute, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }
