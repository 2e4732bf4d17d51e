package billing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

// BaseFeeCents is the standard consultation fee (400 MAD).
const BaseFeeCents int64 = 40000

const (
	LabelPaid    = "Payé"
	LabelUnpaid  = "Non payé"
	LabelPending = "En attente"

	NoMethod = "-"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Reduction is the discount percentage granted when amount is below the base fee.
func Reduction(amountCents int64) int {
	if amountCents >= BaseFeeCents {
		return 0
	}
	return int(math.Round(float64(BaseFeeCents-amountCents) / float64(BaseFeeCents) * 100))
}

// StatusFor derives the payment status from the amount: nil is pending, zero unpaid.
func StatusFor(amount *int64) string {
	switch {
	case amount == nil:
		return model.PaymentPending
	case *amount > 0:
		return model.PaymentPaid
	default:
		return model.PaymentUnpaid
	}
}

// StatusLabel is the label shown in the billing table, e.g. "Payé - Réduction 13%".
func StatusLabel(amount *int64) string {
	switch StatusFor(amount) {
	case model.PaymentPending:
		return LabelPending
	case model.PaymentUnpaid:
		return LabelUnpaid
	}
	if r := Reduction(*amount); r > 0 {
		return fmt.Sprintf("%s - Réduction %d%%", LabelPaid, r)
	}
	return LabelPaid
}

// ParseAmount reads "350", "350,5" or "350.50" as cents. Empty input means no amount yet.
func ParseAmount(raw string) (*int64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, " ", ""))
	if s == "" {
		return nil, nil
	}
	s = strings.Replace(s, ",", ".", 1)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || !digitsOnly(whole) || (hasFrac && (len(frac) == 0 || len(frac) > 2 || !digitsOnly(frac))) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > (math.MaxInt64-99)/100 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	cents := units * 100
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		f, _ := strconv.ParseInt(frac, 10, 64)
		cents += f
	}
	return &cents, nil
}

// FormatAmount renders cents the way the front desk writes them: "350" or "350,50".
func FormatAmount(cents int64) string {
	if cents%100 == 0 {
		return strconv.FormatInt(cents/100, 10)
	}
	return fmt.Sprintf("%d,%02d", cents/100, cents%100)
}

// Normalize derives the status from the amount and blanks the method of unpaid consultations.
func Normalize(p model.Payment) model.Payment {
	p.Status = StatusFor(p.Amount)
	if p.Status != model.PaymentPaid {
		p.Method = NoMethod
	}
	if p.Method == "" {
		p.Method = NoMethod
	}
	return p
}

func Validate(p model.Payment) error {
	v := model.NewValidation()
	if p.AppointmentID == "" {
		v.Add("appointment_id", "required")
	}
	if p.Amount != nil && *p.Amount < 0 {
		v.Add("amount", "must not be negative")
	}
	switch {
	case p.Amount == nil:
		if p.Status != model.PaymentPending {
			v.Add("status", "must be pending without an amount")
		}
	case *p.Amount == 0:
		if p.Status != model.PaymentUnpaid && p.Status != model.PaymentPending {
			v.Add("status", "a zero amount cannot be paid")
		}
		if p.Method != NoMethod && p.Method != "" {
			v.Add("method", "no payment method for a zero amount")
		}
	case *p.Amount > 0:
		if p.Status != model.PaymentPaid {
			v.Add("status", "a positive amount must be paid")
		}
		if p.Method != NoMethod && !validMethod(p.Method) {
			v.Add("method", "unknown payment method")
		}
	}
	if p.ConsultationType != "" && !contains(ConsultationTypes, p.ConsultationType) {
		v.Add("consultation_type", "unknown consultation type")
	}
	return v.Err()
}

type Summary struct {
	Count        int    `json:"count"`
	TotalCents   int64  `json:"total_cents"`
	Total        string `json:"total"`
	Paid         int    `json:"paid"`
	Unpaid       int    `json:"unpaid"`
	Pending      int    `json:"pending"`
	WithDiscount int    `json:"with_discount"`
}

func Summarize(payments []model.Payment) Summary {
	var s Summary
	for _, p := range payments {
		s.Count++
		switch StatusFor(p.Amount) {
		case model.PaymentPaid:
			s.Paid++
			s.TotalCents += *p.Amount
			if Reduction(*p.Amount) > 0 {
				s.WithDiscount++
			}
		case model.PaymentUnpaid:
			s.Unpaid++
		default:
			s.Pending++
		}
	}
	s.Total = FormatAmount(s.TotalCents)
	return s
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validMethod(m string) bool {
	return contains(PaymentMethods, m) || m == MethodOnline
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
