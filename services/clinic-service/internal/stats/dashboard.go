package stats

import (
	"math"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

type ConsultationCounts struct {
	Total             int `json:"total"`
	NewPatients       int `json:"new_patients"`
	ReturningPatients int `json:"returning_patients"`
	Paid              int `json:"paid"`
	Free              int `json:"free"`
	Canceled          int `json:"canceled"`
	AwaitingPayment   int `json:"awaiting_payment"`
}

type RevenueTrend struct {
	TotalCents       int64   `json:"total_cents"`
	PreviousDayCents int64   `json:"previous_day_cents"`
	VariationPercent float64 `json:"variation_percent"`
}

type DurationTrend struct {
	AverageMinutes      int `json:"average_minutes"`
	ShortestMinutes     int `json:"shortest_minutes"`
	LongestMinutes      int `json:"longest_minutes"`
	WeeklyChangePercent int `json:"weekly_change_percent"`
}

type DashboardReport struct {
	From          time.Time          `json:"from"`
	To            time.Time          `json:"to"`
	Consultations ConsultationCounts `json:"consultations"`
	Revenue       RevenueTrend       `json:"revenue"`
	Durations     DurationTrend      `json:"durations"`
}

// Dashboard computes the front-desk figures for patient appointments starting in [from, to).
// Revenue is compared with the day before from, the average duration with the same day one week
// earlier, so appts and payments must cover [from-7d, to). Lunch breaks and clinic consultations
// are not consultations and are left out.
func Dashboard(appts []model.Appointment, payments []model.Payment, from, to time.Time) DashboardReport {
	r := DashboardReport{From: from, To: to}

	amounts := make(map[string]int64, len(payments))
	settled := make(map[string]bool, len(payments))
	for _, p := range payments {
		if p.Amount != nil {
			amounts[p.AppointmentID] = *p.Amount
		}
		settled[p.AppointmentID] = p.Status == model.PaymentPaid
	}

	prevFrom := from.AddDate(0, 0, -1)
	weekFrom := from.AddDate(0, 0, -7)
	weekTo := weekFrom.AddDate(0, 0, 1)

	var durations, lastWeek []int
	for _, a := range appts {
		if a.IsPlaceholder() {
			continue
		}
		switch {
		case inRange(a.Start, from, to):
			r.Consultations.Total++
			if a.Canceled {
				r.Consultations.Canceled++
				continue
			}
			durations = append(durations, a.Duration())
			if !a.Billable() {
				r.Consultations.Free++
				continue
			}
			if a.NewPatient {
				r.Consultations.NewPatients++
			} else {
				r.Consultations.ReturningPatients++
			}
			if amounts[a.ID] > 0 {
				r.Consultations.Paid++
			}
			if !settled[a.ID] {
				r.Consultations.AwaitingPayment++
			}
			r.Revenue.TotalCents += amounts[a.ID]
		case inRange(a.Start, prevFrom, from):
			if !a.Canceled && a.Billable() {
				r.Revenue.PreviousDayCents += amounts[a.ID]
			}
		case inRange(a.Start, weekFrom, weekTo):
			if !a.Canceled {
				lastWeek = append(lastWeek, a.Duration())
			}
		}
	}

	r.Revenue.VariationPercent = variation(r.Revenue.TotalCents, r.Revenue.PreviousDayCents)
	r.Durations = durationTrend(durations, lastWeek)
	return r
}

// variation is the change from previous to current in percent, one decimal. Any revenue after a
// day without revenue counts as +100%.
func variation(current, previous int64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	v := float64(current-previous) / float64(previous) * 100
	return math.Round(v*10) / 10
}

func durationTrend(durations, lastWeek []int) DurationTrend {
	d := DurationTrend{
		AverageMinutes:  scheduling.DefaultDurationMinutes,
		ShortestMinutes: scheduling.DefaultDurationMinutes,
		LongestMinutes:  scheduling.DefaultDurationMinutes,
	}
	if len(durations) > 0 {
		d.AverageMinutes = int(math.Round(mean(durations)))
		d.ShortestMinutes, d.LongestMinutes = durations[0], durations[0]
		for _, m := range durations[1:] {
			d.ShortestMinutes = min(d.ShortestMinutes, m)
			d.LongestMinutes = max(d.LongestMinutes, m)
		}
	}
	if len(lastWeek) > 0 {
		prev := mean(lastWeek)
		d.WeeklyChangePercent = int(math.Round((float64(d.AverageMinutes) - prev) / prev * 100))
	}
	return d
}

func mean(v []int) float64 {
	var sum int
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}
