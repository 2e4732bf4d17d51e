package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
)

type StaffStore interface {
	GetByEmail(ctx context.Context, email string) (model.Staff, error)
}

type AuthHandler struct {
	staff  StaffStore
	secret string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthHandler(staff StaffStore, secret string, ttl time.Duration, logger *slog.Logger) *AuthHandler {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthHandler{staff: staff, secret: secret, ttl: ttl, logger: logger, now: time.Now}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        string    `json:"role"`
	Name        string    `json:"name"`
}

type meResponse struct {
	StaffID string `json:"staff_id"`
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	staff, err := h.staff.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeDomainError(w, h.logger, err)
		return
	}
	if err := auth.VerifyPassword(staff.PasswordHash, req.Password); err != nil {
		h.logger.Warn("login rejected", "staff_id", staff.ID)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := h.now()
	claims := auth.NewClaims(staff.ID, staff.Role, staff.Name, now, h.ttl)
	token, err := auth.SignHS256(claims, h.secret)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(h.ttl).UTC().Truncate(time.Second),
		Role:        staff.Role,
		Name:        staff.Name,
	})
}

// Me echoes the caller's token claims.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{StaffID: claims.Subject, Role: claims.Role, Name: claims.Name})
}
