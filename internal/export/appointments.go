package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"salon/internal/model"
)

var appointmentColumns = []string{
	"Date", "Start", "End", "Service", "Client", "Email", "Phone", "Status", "Price", "Notes",
}

// WriteAppointments renders appointments as an XLSX workbook with an
// "Appointments" sheet and a per-service "Summary" sheet. services is used
// to look up prices; unknown services are priced at zero.
func WriteAppointments(out io.Writer, appts []model.Appointment, services map[string]model.Service) error {
	w := NewSheetWriter()
	defer w.Close()

	if err := w.AddSheet("Appointments"); err != nil {
		return err
	}
	if err := w.WriteHeader(appointmentColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	type summary struct {
		name     string
		count    int
		revenue  decimal.Decimal
		canceled int
	}
	byService := make(map[string]*summary)

	for _, a := range appts {
		svc := services[a.ServiceID]
		name := a.ServiceName
		if name == "" {
			name = svc.Name
		}

		row := []any{
			a.Date.Format(model.DateLayout),
			a.StartTime,
			a.EndTime,
			name,
			a.ClientName,
			a.ClientEmail,
			a.ClientPhone,
			string(a.Status),
			svc.Price.StringFixed(2),
			a.Notes,
		}
		if err := w.WriteRow(row); err != nil {
			return fmt.Errorf("write appointment %s: %w", a.ID, err)
		}

		s, ok := byService[a.ServiceID]
		if !ok {
			s = &summary{name: name}
			byService[a.ServiceID] = s
		}
		if a.Status == model.StatusCancelled {
			s.canceled++
			continue
		}
		s.count++
		s.revenue = s.revenue.Add(svc.Price)
	}

	if err := w.AddSheet("Summary"); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Service", "Appointments", "Cancelled", "Revenue"}); err != nil {
		return err
	}

	ids := make([]string, 0, len(byService))
	for id := range byService {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return byService[ids[i]].name < byService[ids[j]].name })

	total := decimal.Zero
	for _, id := range ids {
		s := byService[id]
		total = total.Add(s.revenue)
		if err := w.WriteRow([]any{s.name, s.count, s.canceled, s.revenue.StringFixed(2)}); err != nil {
			return err
		}
	}
	if err := w.WriteRow([]any{"Total", "", "", total.StringFixed(2)}); err != nil {
		return err
	}

	return w.Save(out)
}
