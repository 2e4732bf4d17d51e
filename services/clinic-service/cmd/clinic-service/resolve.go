package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
	"github.com/spf13/cobra"
)

// dayFile is the input of the resolve command: the changed appointment in its new window and
// the rest of the day as currently stored.
type dayFile struct {
	Changed      slotJSON   `json:"changed"`
	Appointments []slotJSON `json:"appointments"`
}

type slotJSON struct {
	ID              string    `json:"id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Canceled        bool      `json:"canceled,omitempty"`
}

func (s slotJSON) slot() scheduling.Slot {
	return scheduling.Slot{ID: s.ID, Start: s.Start, DurationMinutes: s.DurationMinutes, Canceled: s.Canceled}
}

func resolveCmd() *cobra.Command {
	var (
		file     string
		timezone string
		strict   bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Run the slot conflict resolver over a JSON day file and print the shifts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := loadLocation(timezone)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runResolve(in, cmd.OutOrStdout(), scheduling.Policy{
				Hours:         scheduling.DefaultHours(loc),
				StrictCascade: strict,
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "day file, - for stdin")
	cmd.Flags().StringVar(&timezone, "timezone", model.DefaultTimezone, "clinic time zone")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject cascades that end after closing time")
	return cmd
}

func runResolve(r io.Reader, w io.Writer, policy scheduling.Policy) error {
	var day dayFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&day); err != nil {
		return fmt.Errorf("invalid day file: %w", err)
	}
	if day.Changed.ID == "" {
		return errors.New("invalid day file: changed.id is required")
	}

	slots := make([]scheduling.Slot, 0, len(day.Appointments))
	for _, a := range day.Appointments {
		slots = append(slots, a.slot())
	}
	slots = scheduling.DaySchedule(slots, day.Changed.Start, policy.Hours.Location)
	res, err := scheduling.NewResolver(policy).Resolve(day.Changed.slot(), slots)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
