package notifications

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/xuri/excelize/v2"
)

var exportHeader = []any{"Patient", "Téléphone", "Date RDV", "Heure RDV", "Heure envoi", "Message"}

// ExportFilename names the workbook for the range [from, to].
func ExportFilename(from, to time.Time) string {
	return fmt.Sprintf("notifications_%s_%s.xlsx", from.Format("02-01-2006"), to.Format("02-01-2006"))
}

// Export writes plan as an .xlsx workbook with one sheet per active template.
func Export(w io.Writer, plan []PlannedMessage, templates []model.Template, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	byTemplate := map[string][]PlannedMessage{}
	for _, m := range plan {
		byTemplate[m.TemplateID] = append(byTemplate[m.TemplateID], m)
	}

	used := map[string]bool{}
	first := true
	for _, t := range templates {
		if !t.Active {
			continue
		}
		name := sheetName(t.Name, used)
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := writeSheet(f, name, byTemplate[t.ID], loc, bold); err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
	}
	if first {
		if err := f.SetSheetName("Sheet1", "Notifications"); err != nil {
			return err
		}
		if err := writeSheet(f, "Notifications", nil, loc, bold); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, rows []PlannedMessage, loc *time.Location, headerStyle int) error {
	header := exportHeader
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", headerStyle); err != nil {
		return err
	}
	for i, m := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		at := m.AppointmentAt.In(loc)
		row := []any{
			m.PatientName,
			m.Phone,
			at.Format("02/01/2006"),
			at.Format("15:04"),
			m.SendAt.In(loc).Format("02/01/2006 15:04"),
			m.Message,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "E", 18); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "F", "F", 80)
}

// sheetName makes name a unique, valid worksheet name.
func sheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "Modèle"
	}
	clean = truncateRunes(clean, 31)

	candidate := clean
	for i := 2; used[candidate]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateRunes(clean, 31-len([]rune(suffix))) + suffix
	}
	used[candidate] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
