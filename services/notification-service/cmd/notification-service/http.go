package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/storage"
)

// NotificationLister reads delivery history.
type NotificationLister interface {
	ListByAppointment(ctx context.Context, appointmentID string) ([]storage.Notification, error)
}

type notificationView struct {
	ID                int64     `json:"id"`
	ReminderID        int64     `json:"reminder_id"`
	TemplateID        string    `json:"template_id"`
	Channel           string    `json:"channel"`
	Recipient         string    `json:"recipient"`
	Provider          string    `json:"provider"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Status            string    `json:"status"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type historyResponse struct {
	AppointmentID string             `json:"appointment_id"`
	Notifications []notificationView `json:"notifications"`
}

func historyHandler(list NotificationLister, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		rows, err := list.ListByAppointment(r.Context(), id)
		if err != nil {
			logger.Error("list notifications failed", "err", err, "appointment_id", id)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp := historyResponse{AppointmentID: id, Notifications: make([]notificationView, 0, len(rows))}
		for _, n := range rows {
			resp.Notifications = append(resp.Notifications, notificationView{
				ID:                n.ID,
				ReminderID:        n.ReminderID,
				TemplateID:        n.TemplateID,
				Channel:           n.Channel,
				Recipient:         n.Recipient,
				Provider:          n.Provider,
				ProviderMessageID: n.ProviderMessageID,
				Status:            n.Status,
				Error:             n.Error,
				CreatedAt:         n.CreatedAt,
			})
		}
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}

// registerRoutes mounts the history endpoint; it requires a staff token when jwtSecret is set.
func registerRoutes(mux *http.ServeMux, list NotificationLister, jwtSecret string, logger *slog.Logger) {
	var h http.Handler = historyHandler(list, logger)
	if jwtSecret != "" {
		h = httpx.RequireAuth(jwtSecret)(h)
	}
	mux.Handle("GET /api/v1/appointments/{id}/notifications", h)
}
