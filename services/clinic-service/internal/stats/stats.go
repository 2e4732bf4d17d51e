package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/billing"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

const (
	NotSpecified = "Non spécifié"
	NoInsurer    = "Sans mutuelle"
)

type AppointmentStats struct {
	Status                 map[string]int `json:"status"`
	Source                 map[string]int `json:"source"`
	Hours                  map[string]int `json:"hours"`
	AverageDurationMinutes int            `json:"average_duration_minutes"`
	Total                  int            `json:"total"`
}

type Report struct {
	From           time.Time        `json:"from"`
	To             time.Time        `json:"to"`
	Cities         map[string]int   `json:"cities"`
	AgeGroups      map[string]int   `json:"age_groups"`
	Insurers       map[string]int   `json:"insurers"`
	RevenueByMonth map[string]int64 `json:"revenue_by_month_cents"`
	Appointments   AppointmentStats `json:"appointments"`
	PaymentMethods map[string]int   `json:"payment_methods"`
	Billing        billing.Summary  `json:"billing"`
}

// Compute builds the statistics page. Patient breakdowns cover every patient; appointment and
// payment figures cover appointments starting in [from, to), in loc.
func Compute(patients []model.Patient, appts []model.Appointment, payments []model.Payment, from, to, now time.Time, loc *time.Location) Report {
	if loc == nil {
		loc = time.UTC
	}
	r := Report{
		From:           from,
		To:             to,
		Cities:         map[string]int{},
		AgeGroups:      map[string]int{},
		Insurers:       map[string]int{},
		RevenueByMonth: map[string]int64{},
		Appointments: AppointmentStats{
			Status: map[string]int{},
			Source: map[string]int{},
			Hours:  map[string]int{},
		},
		PaymentMethods: map[string]int{},
	}

	for _, p := range patients {
		r.Cities[orDefault(p.City, NotSpecified)]++
		if age := p.Age(now); age >= 0 {
			r.AgeGroups[AgeGroup(age)]++
		}
		insurer := NoInsurer
		if p.Insurance.Active && p.Insurance.Name != "" {
			insurer = p.Insurance.Name
		}
		r.Insurers[insurer]++
	}

	var totalMinutes int
	for _, a := range appts {
		if !inRange(a.Start, from, to) {
			continue
		}
		r.Appointments.Total++
		r.Appointments.Status[orDefault(a.Status, "-")]++
		r.Appointments.Source[orDefault(a.Source, NotSpecified)]++
		r.Appointments.Hours[a.Start.In(loc).Format("15")+":00"]++
		totalMinutes += a.Duration()
	}
	if r.Appointments.Total > 0 {
		r.Appointments.AverageDurationMinutes = int(math.Round(float64(totalMinutes) / float64(r.Appointments.Total)))
	}

	var inPeriod []model.Payment
	for _, p := range payments {
		if !inRange(p.AppointmentAt, from, to) {
			continue
		}
		inPeriod = append(inPeriod, p)
		if p.Amount == nil || *p.Amount <= 0 {
			continue
		}
		r.RevenueByMonth[p.AppointmentAt.In(loc).Format("2006-01")] += *p.Amount
		method := p.Method
		if method == "" || method == billing.NoMethod {
			method = NotSpecified
		}
		r.PaymentMethods[method]++
	}
	r.Billing = billing.Summarize(inPeriod)
	return r
}

// AgeGroup buckets an age into its decade, e.g. 34 -> "30-39".
func AgeGroup(age int) string {
	lo := age / 10 * 10
	return fmt.Sprintf("%d-%d", lo, lo+9)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
