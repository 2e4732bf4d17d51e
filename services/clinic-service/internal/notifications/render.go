package notifications

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

const (
	VarPatientName     = "patientName"
	VarAppointmentDate = "appointmentDate"
	VarAppointmentTime = "appointmentTime"
	VarDoctorName      = "doctorName"
	VarClinicName      = "clinicName"

	// DefaultCountryCode is prepended to national numbers written with a leading 0.
	DefaultCountryCode = "212"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z]+)\}`)

var (
	frenchDays   = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frenchMonths = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août",
		"septembre", "octobre", "novembre", "décembre"}
)

// Data is what a reminder knows about the appointment it is about.
type Data struct {
	PatientName   string
	AppointmentAt time.Time
}

// Values returns the placeholder values for d, with dates rendered in loc.
func Values(d Data, settings model.Settings, loc *time.Location) map[string]string {
	at := d.AppointmentAt
	if loc != nil {
		at = at.In(loc)
	}
	return map[string]string{
		VarPatientName:     d.PatientName,
		VarAppointmentDate: FrenchLongDate(at),
		VarAppointmentTime: at.Format("15:04"),
		VarDoctorName:      settings.DoctorName,
		VarClinicName:      settings.ClinicName,
	}
}

// Render replaces every known {placeholder} of content. Unknown placeholders are kept.
func Render(content string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(m string) string {
		if v, ok := values[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// RenderTemplate renders t for one appointment.
func RenderTemplate(t model.Template, d Data, settings model.Settings, loc *time.Location) string {
	return Render(t.Content, Values(d, settings, loc))
}

// Variables lists the distinct placeholders of content in order of first use.
func Variables(content string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// FrenchLongDate formats t as "lundi 2 février 2026".
func FrenchLongDate(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d", frenchDays[t.Weekday()], t.Day(), frenchMonths[t.Month()-1], t.Year())
}

// InternationalPhone strips formatting from phone and rewrites national numbers with countryCode.
func InternationalPhone(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "00"):
		return digits[2:]
	case strings.HasPrefix(digits, "0") && countryCode != "":
		return countryCode + digits[1:]
	}
	return digits
}

// WhatsAppLink opens a WhatsApp chat with phone prefilled with message.
func WhatsAppLink(phone, message string) string {
	return "https://wa.me/" + InternationalPhone(phone, DefaultCountryCode) + "?text=" + url.QueryEscape(message)
}
