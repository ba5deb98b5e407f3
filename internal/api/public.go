package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"salon/internal/availability"
	"salon/internal/booking"
	"salon/internal/database"
	"salon/internal/model"
)

const clockLayout = "15:04"

// serviceView is a service as shown on the public menu.
type serviceView struct {
	ID              string          `json:"id"`
	CategoryID      string          `json:"category_id,omitempty"`
	CategoryName    string          `json:"category_name,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	Duration        string          `json:"duration"`
	Price           decimal.Decimal `json:"price"`
}

type availabilityResponse struct {
	Date            string                  `json:"date"`
	ServiceID       string                  `json:"service_id"`
	DurationMinutes int                     `json:"duration_minutes"`
	Slots           []availability.TimeSlot `json:"slots"`
}

type bookingRequest struct {
	ServiceID   string `json:"service_id" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required,datetime=15:04"`
	ClientName  string `json:"client_name" validate:"required,max=100"`
	ClientEmail string `json:"client_email" validate:"required,email,max=254"`
	ClientPhone string `json:"client_phone" validate:"omitempty,max=32"`
	Notes       string `json:"notes" validate:"omitempty,max=1000"`
}

func (s *HTTPServer) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cats == nil {
		cats = []model.Category{}
	}
	writeJSON(w, r, http.StatusOK, cats)
}

// handleListServices returns the active menu.
// GET /api/services
func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context(), true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	out := make([]serviceView, 0, len(services))
	for i := range services {
		out = append(out, newServiceView(&services[i], names[services[i].CategoryID]))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func newServiceView(svc *model.Service, categoryName string) serviceView {
	return serviceView{
		ID:              svc.ID,
		CategoryID:      svc.CategoryID,
		CategoryName:    categoryName,
		Name:            svc.Name,
		Description:     svc.Description,
		DurationMinutes: svc.DurationMinutes,
		Duration:        availability.FormatDuration(svc.DurationMinutes),
		Price:           svc.Price,
	}
}

func (s *HTTPServer) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.store.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !svc.IsActive {
		s.fail(w, r, database.ErrNotFound)
		return
	}

	var categoryName string
	if svc.CategoryID != "" {
		c, err := s.store.GetCategory(r.Context(), svc.CategoryID)
		if err != nil && statusFor(err) != http.StatusNotFound {
			s.fail(w, r, err)
			return
		}
		if c != nil {
			categoryName = c.Name
		}
	}
	writeJSON(w, r, http.StatusOK, newServiceView(svc, categoryName))
}

// handleAvailability returns the bookable start times for a service on a date.
// GET /api/availability?date=YYYY-MM-DD&service_id=...
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("date") == "" || q.Get("service_id") == "" {
		writeError(w, r, http.StatusBadRequest, "date and service_id are required")
		return
	}
	date, err := dateParam(r, "date")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	slots, svc, err := s.booker.AvailableSlots(r.Context(), date, q.Get("service_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, availabilityResponse{
		Date:            date.Format(model.DateLayout),
		ServiceID:       svc.ID,
		DurationMinutes: svc.DurationMinutes,
		Slots:           slots,
	})
}

// handleBook creates an appointment.
// POST /api/appointments
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	appt, err := s.booker.Book(r.Context(), booking.BookingRequest{
		ServiceID:   req.ServiceID,
		Date:        date,
		StartTime:   req.StartTime,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		Notes:       req.Notes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, appt)
}
