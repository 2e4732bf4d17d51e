package main

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
	"github.com/spf13/cobra"
)

const minPasswordLength = 8

func createStaffCmd(service string) *cobra.Command {
	var (
		email    string
		name     string
		role     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "create-staff",
		Short: "Create a staff account that can log in to the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = config.String("STAFF_PASSWORD", "")
			}
			s, err := newStaff(email, name, role, password)
			if err != nil {
				return err
			}
			dbURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			logger := runtime.NewLogger(service)
			ctx, stop := runtime.SignalContext()
			defer stop()

			pool, err := db.Open(ctx, dbURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			created, err := storage.NewStaffRepository(pool).Create(ctx, s)
			if err != nil {
				if storage.IsUniqueViolation(err) {
					return errors.New("a staff account with this email already exists")
				}
				return err
			}
			logger.Info("staff account created", "staff_id", created.ID, "role", created.Role)
			cmd.Println(created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", model.RoleAssistant, "doctor or assistant")
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to $STAFF_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// newStaff validates the account fields and hashes the password.
func newStaff(email, name, role, password string) (model.Staff, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return model.Staff{}, errors.New("a valid --email is required")
	}
	if !model.ValidRole(role) {
		return model.Staff{}, errors.New("--role must be doctor or assistant")
	}
	if len(password) < minPasswordLength {
		return model.Staff{}, errors.New("password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return model.Staff{}, err
	}
	return model.Staff{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: hash,
	}, nil
}
