package model

import "time"

const (
	RoleDoctor    = "doctor"
	RoleAssistant = "assistant"
)

type Staff struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func ValidRole(role string) bool {
	return role == RoleDoctor || role == RoleAssistant
}
