package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/agenda"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/billing"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
)

const dateLayout = "2006-01-02"

type windowErrorBody struct {
	Error string    `json:"error"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type cascadeErrorBody struct {
	Error string   `json:"error"`
	IDs   []string `json:"ids"`
}

type validationErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// writeDomainError maps service errors to responses. Anything unknown is logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		werr *scheduling.WindowError
		cerr *scheduling.CascadeError
		verr *model.ValidationError
	)
	switch {
	case errors.As(err, &werr):
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, windowErrorBody{Error: werr.Error(), Start: werr.Start, End: werr.End})
	case errors.As(err, &cerr):
		httpx.WriteJSON(w, http.StatusConflict, cascadeErrorBody{Error: scheduling.ErrCascadeOutOfHours.Error(), IDs: cerr.IDs})
	case errors.As(err, &verr):
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, validationErrorBody{Error: model.ErrValidation.Error(), Fields: verr.Fields})
	case errors.Is(err, scheduling.ErrInvalidDuration), errors.Is(err, billing.ErrInvalidAmount):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, agenda.ErrNotFound), storage.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, agenda.ErrCanceled):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case storage.IsUniqueViolation(err):
		httpx.WriteError(w, http.StatusConflict, "already exists")
	case storage.IsForeignKeyViolation(err):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "referenced record does not exist")
	default:
		logger.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// parseDay reads a YYYY-MM-DD value in loc. An empty value is today.
func parseDay(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	return time.ParseInLocation(dateLayout, raw, loc)
}

// parseRange reads from/to query dates as the half-open range [from 00:00, to+1 00:00).
// Missing bounds default to the current month.
func parseRange(r *http.Request, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	q := r.URL.Query()
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from")
		}
		from = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to")
		}
		to = t.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return from, to, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
