package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"salon/internal/database"
	"salon/internal/export"
	"salon/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type categoryRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	SortOrder int    `json:"sort_order" validate:"min=0"`
}

type serviceRequest struct {
	CategoryID      string          `json:"category_id"`
	Name            string          `json:"name" validate:"required,max=100"`
	Description     string          `json:"description" validate:"max=1000"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,min=1,max=720"`
	Price           decimal.Decimal `json:"price"`
	IsActive        *bool           `json:"is_active"`
	SortOrder       int             `json:"sort_order" validate:"min=0"`
}

type hoursRequest struct {
	IsOpen    bool   `json:"is_open"`
	OpenTime  string `json:"open_time" validate:"omitempty,datetime=15:04"`
	CloseTime string `json:"close_time" validate:"omitempty,datetime=15:04"`
}

type weekHoursRequest struct {
	Weekday string `json:"weekday" validate:"required"`
	hoursRequest
}

type dayOffRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason" validate:"max=200"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

func (s *HTTPServer) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c := &model.Category{Name: req.Name, SortOrder: req.SortOrder}
	if err := s.store.CreateCategory(r.Context(), c); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (s *HTTPServer) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.store.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c.Name, c.SortOrder = req.Name, req.SortOrder
	if err := s.store.UpdateCategory(r.Context(), c); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *HTTPServer) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminListServices includes deactivated services.
func (s *HTTPServer) handleAdminListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context(), false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if services == nil {
		services = []model.Service{}
	}
	writeJSON(w, r, http.StatusOK, services)
}

func (s *HTTPServer) handleAdminGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.store.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, svc)
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Price.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "price must not be negative")
		return
	}
	if !s.categoryExists(w, r, req.CategoryID) {
		return
	}

	svc := &model.Service{IsActive: true}
	req.apply(svc)
	if err := s.store.CreateService(r.Context(), svc); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, svc)
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Price.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "price must not be negative")
		return
	}
	svc, err := s.store.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.categoryExists(w, r, req.CategoryID) {
		return
	}

	req.apply(svc)
	if err := s.store.UpdateService(r.Context(), svc); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, svc)
}

func (req *serviceRequest) apply(svc *model.Service) {
	svc.CategoryID = req.CategoryID
	svc.Name = req.Name
	svc.Description = req.Description
	svc.DurationMinutes = req.DurationMinutes
	svc.Price = req.Price
	svc.SortOrder = req.SortOrder
	if req.IsActive != nil {
		svc.IsActive = *req.IsActive
	}
}

func (s *HTTPServer) categoryExists(w http.ResponseWriter, r *http.Request, id string) bool {
	if id == "" {
		return true
	}
	if _, err := s.store.GetCategory(r.Context(), id); err != nil {
		if statusFor(err) == http.StatusNotFound {
			writeError(w, r, http.StatusBadRequest, "unknown category_id")
			return false
		}
		s.fail(w, r, err)
		return false
	}
	return true
}

// handleDeactivateService hides a service; appointments keep referencing it.
func (s *HTTPServer) handleDeactivateService(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeactivateService(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListHours returns all seven weekdays; missing rows show as closed.
func (s *HTTPServer) handleListHours(w http.ResponseWriter, r *http.Request) {
	hours, err := s.store.GetWeeklyHours(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]model.OperatingHours, 0, len(model.AllWeekdays))
	for _, d := range model.AllWeekdays {
		h, ok := hours[d]
		if !ok {
			h = model.OperatingHours{Weekday: d}
		}
		out = append(out, h)
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *HTTPServer) handleGetHours(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseWeekday(chi.URLParam(r, "weekday"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hours, err := s.store.GetWeeklyHours(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	h, ok := hours[day]
	if !ok {
		h = model.OperatingHours{Weekday: day}
	}
	writeJSON(w, r, http.StatusOK, h)
}

// handleSetHours replaces one weekday's schedule.
// PUT /api/admin/hours/{weekday}
func (s *HTTPServer) handleSetHours(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseWeekday(chi.URLParam(r, "weekday"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req hoursRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	h := &model.OperatingHours{Weekday: day, IsOpen: req.IsOpen, OpenTime: req.OpenTime, CloseTime: req.CloseTime}
	if err := s.booker.SetHours(r.Context(), h); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h)
}

// handleReplaceHours updates several weekdays at once. All entries are
// validated before any is saved.
// PUT /api/admin/hours
func (s *HTTPServer) handleReplaceHours(w http.ResponseWriter, r *http.Request) {
	var req []weekHoursRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one weekday is required")
		return
	}

	seen := make(map[model.Weekday]bool, len(req))
	rows := make([]*model.OperatingHours, 0, len(req))
	for i, item := range req {
		if err := s.validate.Struct(item); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("entry %d: %v", i, validationMessage(err)))
			return
		}
		day, err := model.ParseWeekday(item.Weekday)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("entry %d: %v", i, err))
			return
		}
		if seen[day] {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("entry %d: duplicate weekday %s", i, day))
			return
		}
		seen[day] = true
		h := &model.OperatingHours{Weekday: day, IsOpen: item.IsOpen, OpenTime: item.OpenTime, CloseTime: item.CloseTime}
		if err := h.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("%s: %v", day, err))
			return
		}
		rows = append(rows, h)
	}

	for _, h := range rows {
		if err := s.booker.SetHours(r.Context(), h); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.handleListHours(w, r)
}

func (s *HTTPServer) handleListDaysOff(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.dateRange(w, r)
	if !ok {
		return
	}
	days, err := s.store.ListDaysOff(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if days == nil {
		days = []model.DayOff{}
	}
	writeJSON(w, r, http.StatusOK, days)
}

func (s *HTTPServer) handleCreateDayOff(w http.ResponseWriter, r *http.Request) {
	var req dayOffRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	d := &model.DayOff{Date: date, Reason: req.Reason}
	if err := s.booker.AddDayOff(r.Context(), d); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, d)
}

func (s *HTTPServer) handleDeleteDayOff(w http.ResponseWriter, r *http.Request) {
	if err := s.booker.RemoveDayOff(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAppointments lists appointments filtered by from, to, status
// and service_id.
// GET /api/admin/appointments
func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.appointmentFilter(w, r)
	if !ok {
		return
	}
	appts, err := s.store.ListAppointments(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, r, http.StatusOK, appts)
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.store.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, appt)
}

// handleChangeStatus moves an appointment along its lifecycle.
// PATCH /api/admin/appointments/{id}/status
func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := s.booker.ChangeStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, appt)
}

// handleExportAppointments streams the filtered appointments as XLSX.
// GET /api/admin/appointments/export
func (s *HTTPServer) handleExportAppointments(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.appointmentFilter(w, r)
	if !ok {
		return
	}
	appts, err := s.store.ListAppointments(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	services, err := s.store.ListServices(r.Context(), false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	byID := make(map[string]model.Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}

	var buf bytes.Buffer
	if err := export.WriteAppointments(&buf, appts, byID); err != nil {
		s.fail(w, r, fmt.Errorf("export appointments: %w", err))
		return
	}

	name := "appointments_" + time.Now().Format("20060102_150405") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) appointmentFilter(w http.ResponseWriter, r *http.Request) (database.AppointmentFilter, bool) {
	from, to, ok := s.dateRange(w, r)
	if !ok {
		return database.AppointmentFilter{}, false
	}
	filter := database.AppointmentFilter{From: from, To: to, ServiceID: r.URL.Query().Get("service_id")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return database.AppointmentFilter{}, false
		}
		filter.Status = status
	}
	return filter, true
}

func (s *HTTPServer) dateRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	from, err := dateParam(r, "from")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, false
	}
	to, err = dateParam(r, "to")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, false
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		writeError(w, r, http.StatusBadRequest, "from must be before or equal to to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
