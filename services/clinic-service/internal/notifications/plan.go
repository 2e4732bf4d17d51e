package notifications

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

// PlannedMessage is one reminder that will go out for one appointment and one template.
type PlannedMessage struct {
	AppointmentID string    `json:"appointment_id"`
	TemplateID    string    `json:"template_id"`
	TemplateName  string    `json:"template_name"`
	PatientName   string    `json:"patient_name"`
	Phone         string    `json:"phone"`
	AppointmentAt time.Time `json:"appointment_at"`
	SendAt        time.Time `json:"send_at"`
	Message       string    `json:"message"`
	Link          string    `json:"whatsapp_link"`
}

// SendAt is when template t goes out for an appointment starting at start.
func SendAt(start time.Time, t model.Template) time.Time {
	return start.Add(-time.Duration(t.SendHoursBefore) * time.Hour)
}

// Plan lists the reminders of every active template for the non-canceled appointments with a
// contact starting in [from, to), ordered by send time.
func Plan(appts []model.Appointment, templates []model.Template, settings model.Settings, from, to time.Time) []PlannedMessage {
	loc := settings.Location()
	var out []PlannedMessage
	for _, a := range appts {
		if a.Canceled || a.Contact == "" || a.IsPlaceholder() {
			continue
		}
		if a.Start.Before(from) || !a.Start.Before(to) {
			continue
		}
		for _, t := range templates {
			if !t.Active {
				continue
			}
			msg := RenderTemplate(t, Data{PatientName: a.PatientName, AppointmentAt: a.Start}, settings, loc)
			out = append(out, PlannedMessage{
				AppointmentID: a.ID,
				TemplateID:    t.ID,
				TemplateName:  t.Name,
				PatientName:   a.PatientName,
				Phone:         a.Contact,
				AppointmentAt: a.Start,
				SendAt:        SendAt(a.Start, t),
				Message:       msg,
				Link:          WhatsAppLink(a.Contact, msg),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SendAt.Equal(out[j].SendAt) {
			return out[i].SendAt.Before(out[j].SendAt)
		}
		return out[i].AppointmentAt.Before(out[j].AppointmentAt)
	})
	return out
}
