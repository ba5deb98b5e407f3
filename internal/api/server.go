package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"salon/internal/availability"
	"salon/internal/booking"
	"salon/internal/database"
	"salon/internal/model"
)

// Store is the read and catalog side of storage used by the handlers.
type Store interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, c *model.Category) error
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id string) error

	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	CreateService(ctx context.Context, s *model.Service) error
	UpdateService(ctx context.Context, s *model.Service) error
	DeactivateService(ctx context.Context, id string) error

	GetWeeklyHours(ctx context.Context) (model.WeeklyHours, error)
	ListDaysOff(ctx context.Context, from, to time.Time) ([]model.DayOff, error)
	ListAppointments(ctx context.Context, f database.AppointmentFilter) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
}

// Booker runs availability and every calendar mutation.
type Booker interface {
	AvailableSlots(ctx context.Context, date time.Time, serviceID string) ([]availability.TimeSlot, *model.Service, error)
	Book(ctx context.Context, req booking.BookingRequest) (*model.Appointment, error)
	ChangeStatus(ctx context.Context, id string, next model.AppointmentStatus) (*model.Appointment, error)
	SetHours(ctx context.Context, h *model.OperatingHours) error
	AddDayOff(ctx context.Context, d *model.DayOff) error
	RemoveDayOff(ctx context.Context, id string) error
}

// Check is a readiness probe for one dependency.
type Check func(ctx context.Context) error

// Options configures the HTTP server.
type Options struct {
	Address      string
	APIKey       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TrustProxy enables middleware.RealIP. Without it the rate limiter keys
	// on the TCP peer address.
	TrustProxy bool
	// BookingRate is the per-client refill rate for POST /api/appointments.
	BookingRate  float64
	BookingBurst int
	Checks       map[string]Check
}

// HTTPServer serves the public booking API and the admin API.
type HTTPServer struct {
	store    Store
	booker   Booker
	apiKey   string
	checks   map[string]Check
	limiter  *ipLimiter
	validate *validator.Validate
	logger   zerolog.Logger
	server   *http.Server
}

// NewHTTPServer builds the router and the underlying http.Server.
func NewHTTPServer(store Store, booker Booker, opts Options, logger *zerolog.Logger) *HTTPServer {
	if opts.BookingRate <= 0 {
		opts.BookingRate = 5.0 / 60
	}
	if opts.BookingBurst <= 0 {
		opts.BookingBurst = 3
	}

	s := &HTTPServer{
		store:    store,
		booker:   booker,
		apiKey:   opts.APIKey,
		checks:   opts.Checks,
		limiter:  newIPLimiter(opts.BookingRate, opts.BookingBurst),
		validate: newValidator(),
		logger:   logger.With().Str("component", "http").Logger(),
	}

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           s.routes(opts.TrustProxy),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) routes(trustProxy bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleListCategories)
		r.Get("/services", s.handleListServices)
		r.Get("/services/{id}", s.handleGetService)
		r.Get("/availability", s.handleAvailability)
		r.With(s.rateLimit).Post("/appointments", s.handleBook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuth)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", s.handleListCategories)
				r.Post("/", s.handleCreateCategory)
				r.Put("/{id}", s.handleUpdateCategory)
				r.Delete("/{id}", s.handleDeleteCategory)
			})

			r.Route("/services", func(r chi.Router) {
				r.Get("/", s.handleAdminListServices)
				r.Post("/", s.handleCreateService)
				r.Get("/{id}", s.handleAdminGetService)
				r.Put("/{id}", s.handleUpdateService)
				r.Delete("/{id}", s.handleDeactivateService)
			})

			r.Route("/hours", func(r chi.Router) {
				r.Get("/", s.handleListHours)
				r.Put("/", s.handleReplaceHours)
				r.Get("/{weekday}", s.handleGetHours)
				r.Put("/{weekday}", s.handleSetHours)
			})

			r.Route("/days-off", func(r chi.Router) {
				r.Get("/", s.handleListDaysOff)
				r.Post("/", s.handleCreateDayOff)
				r.Delete("/{id}", s.handleDeleteDayOff)
			})

			r.Route("/appointments", func(r chi.Router) {
				r.Get("/", s.handleListAppointments)
				r.Get("/export", s.handleExportAppointments)
				r.Get("/{id}", s.handleGetAppointment)
				r.Patch("/{id}/status", s.handleChangeStatus)
			})
		})
	})

	return r
}

// Handler exposes the router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
