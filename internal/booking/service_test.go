package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"salon/internal/availability"
	"salon/internal/database"
	"salon/internal/events"
	"salon/internal/lock"
	"salon/internal/model"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetService(ctx context.Context, id string) (*model.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

func (m *mockRepo) GetWeeklyHours(ctx context.Context) (model.WeeklyHours, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.WeeklyHours), args.Error(1)
}

func (m *mockRepo) ListDaysOff(ctx context.Context, from, to time.Time) ([]model.DayOff, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]model.DayOff), args.Error(1)
}

func (m *mockRepo) AppointmentsOnDate(ctx context.Context, date time.Time) ([]model.Appointment, error) {
	args := m.Called(ctx, date)
	return args.Get(0).([]model.Appointment), args.Error(1)
}

func (m *mockRepo) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockRepo) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Appointment), args.Error(1)
}

func (m *mockRepo) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *mockRepo) UpsertHours(ctx context.Context, h *model.OperatingHours) error {
	return m.Called(ctx, h).Error(0)
}

func (m *mockRepo) CreateDayOff(ctx context.Context, d *model.DayOff) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockRepo) DeleteDayOff(ctx context.Context, id string) (time.Time, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(time.Time), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p any) error { return m.Called(et, p).Error(0) }

type memoryCache struct {
	data    map[string][]availability.TimeSlot
	version int
}

func (c *memoryCache) key(date time.Time, d int) string {
	return fmt.Sprintf("%s:%d", date.Format(model.DateLayout), d)
}

func (c *memoryCache) Get(_ context.Context, date time.Time, d int) ([]availability.TimeSlot, bool) {
	s, ok := c.data[c.key(date, d)]
	return s, ok
}

func (c *memoryCache) Version(context.Context, time.Time) string {
	return fmt.Sprint(c.version)
}

func (c *memoryCache) Set(_ context.Context, date time.Time, d int, version string, slots []availability.TimeSlot) {
	if version != fmt.Sprint(c.version) {
		return
	}
	c.data[c.key(date, d)] = slots
}

// 2026-03-02 is a Monday.
var (
	monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now    = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
)

func haircut() *model.Service {
	return &model.Service{ID: "svc-1", Name: "Haircut", DurationMinutes: 60, Price: decimal.NewFromInt(30), IsActive: true}
}

func mondayHours() model.WeeklyHours {
	return model.NewWeeklyHours([]model.OperatingHours{
		{Weekday: model.Monday, IsOpen: true, OpenTime: "09:00", CloseTime: "12:00"},
	})
}

func newTestService(repo *mockRepo, pub EventPublisher, cache SlotCache, locker lock.Locker) *Service {
	s := NewService(repo, availability.NewEngine(zerolog.Nop()), cache, locker, pub, Options{
		MaxAdvance: 30 * 24 * time.Hour,
		LockWait:   50 * time.Millisecond,
	}, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func expectCalendar(repo *mockRepo, date time.Time, appts []model.Appointment) {
	repo.On("GetWeeklyHours", mock.Anything).Return(mondayHours(), nil)
	repo.On("ListDaysOff", mock.Anything, date, date).Return([]model.DayOff{}, nil)
	repo.On("AppointmentsOnDate", mock.Anything, date).Return(appts, nil)
}

func TestAvailableSlots_UsesCache(t *testing.T) {
	repo := new(mockRepo)
	cache := &memoryCache{data: map[string][]availability.TimeSlot{}}
	s := newTestService(repo, nil, cache, nil)

	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)
	expectCalendar(repo, monday, []model.Appointment{
		{ID: "a1", Date: monday, StartTime: "10:00", EndTime: "11:00", Status: model.StatusConfirmed},
	})

	slots, svc, err := s.AvailableSlots(context.Background(), monday, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "Haircut", svc.Name)
	assert.Equal(t, []string{"09:00", "11:00"}, availability.Times(slots))

	_, _, err = s.AvailableSlots(context.Background(), monday, "svc-1")
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "GetWeeklyHours", 1)
	repo.AssertNumberOfCalls(t, "AppointmentsOnDate", 1)
}

func TestAvailableSlots_DropsElapsedTimesToday(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }

	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)
	expectCalendar(repo, monday, []model.Appointment{})

	slots, _, err := s.AvailableSlots(context.Background(), monday, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30", "11:00"}, availability.Times(slots))
}

func TestAvailableSlots_PastDateIsEmpty(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)
	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)

	slots, _, err := s.AvailableSlots(context.Background(), monday.AddDate(0, 0, -7), "svc-1")
	require.NoError(t, err)
	assert.Empty(t, slots)
	repo.AssertNotCalled(t, "GetWeeklyHours", mock.Anything)
}

func TestAvailableSlots_InactiveService(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)
	svc := haircut()
	svc.IsActive = false
	repo.On("GetService", mock.Anything, "svc-1").Return(svc, nil)

	_, _, err := s.AvailableSlots(context.Background(), monday, "svc-1")
	assert.ErrorIs(t, err, ErrServiceInactive)
}

func TestBook_Success(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	s := newTestService(repo, bus, nil, nil)

	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)
	expectCalendar(repo, monday, []model.Appointment{})
	repo.On("CreateAppointment", mock.Anything, mock.MatchedBy(func(a *model.Appointment) bool {
		return a.StartTime == "09:30" && a.EndTime == "10:30" && a.Status == model.StatusConfirmed && a.ClientName == "Ada"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.Appointment).ID = "appt-1"
	}).Return(nil)
	bus.On("PublishJSON", events.AppointmentCreated, mock.MatchedBy(func(p events.AppointmentPayload) bool {
		return p.AppointmentID == "appt-1" && p.Date == "2026-03-02"
	})).Return(nil)

	appt, err := s.Book(context.Background(), BookingRequest{
		ServiceID:   "svc-1",
		Date:        monday,
		StartTime:   "9:30",
		ClientName:  " Ada ",
		ClientEmail: "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "appt-1", appt.ID)
	assert.Equal(t, "Haircut", appt.ServiceName)

	repo.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestBook_SlotOverlapsExisting(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	s := newTestService(repo, bus, nil, nil)

	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)
	expectCalendar(repo, monday, []model.Appointment{
		{ID: "a1", Date: monday, StartTime: "10:00", EndTime: "10:45", Status: model.StatusConfirmed},
	})

	_, err := s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday, StartTime: "09:30"})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	repo.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
	bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestBook_OffGridStart(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)

	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)
	expectCalendar(repo, monday, []model.Appointment{})

	_, err := s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday, StartTime: "09:15"})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_StorageRace(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)

	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)
	expectCalendar(repo, monday, []model.Appointment{})
	repo.On("CreateAppointment", mock.Anything, mock.Anything).Return(database.ErrSlotTaken)

	_, err := s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday, StartTime: "09:00"})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_DateRules(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)

	_, err := s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday.AddDate(0, 0, -1), StartTime: "09:00"})
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday.AddDate(0, 0, 31), StartTime: "09:00"})
	assert.ErrorIs(t, err, ErrDateTooFar)

	_, err = s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", StartTime: "09:00"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.AssertNotCalled(t, "GetService", mock.Anything, mock.Anything)
}

func TestBook_InvalidStartTime(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)
	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)

	_, err := s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday, StartTime: "nine"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBook_RunsPastMidnight(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)
	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)

	_, err := s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday, StartTime: "23:30"})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_LockHeld(t *testing.T) {
	repo := new(mockRepo)
	locker := lock.NewLocalLock()
	s := newTestService(repo, nil, nil, locker)
	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)

	ok, err := locker.Lock(context.Background(), "booking:2026-03-02", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Book(context.Background(), BookingRequest{ServiceID: "svc-1", Date: monday, StartTime: "09:00"})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestChangeStatus(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	s := newTestService(repo, bus, nil, nil)

	appt := &model.Appointment{ID: "a1", Date: monday, StartTime: "10:00", EndTime: "11:00", Status: model.StatusConfirmed}
	repo.On("GetAppointment", mock.Anything, "a1").Return(appt, nil)
	repo.On("UpdateAppointmentStatus", mock.Anything, "a1", model.StatusConfirmed, model.StatusCancelled).Return(nil)
	bus.On("PublishJSON", events.AppointmentStatusChanged, mock.MatchedBy(func(p events.AppointmentPayload) bool {
		return p.Status == "cancelled" && p.PrevStatus == "confirmed" && p.Date == "2026-03-02"
	})).Return(nil)

	got, err := s.ChangeStatus(context.Background(), "a1", model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	bus.AssertExpectations(t)
}

func TestChangeStatus_TerminalStatus(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)

	repo.On("GetAppointment", mock.Anything, "a1").Return(&model.Appointment{ID: "a1", Status: model.StatusCancelled}, nil)

	_, err := s.ChangeStatus(context.Background(), "a1", model.StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateAppointmentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChangeStatus_ChangedConcurrently(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	s := newTestService(repo, bus, nil, nil)

	// The read still sees confirmed, but another writer cancelled it first.
	repo.On("GetAppointment", mock.Anything, "a1").Return(&model.Appointment{ID: "a1", Status: model.StatusConfirmed}, nil)
	repo.On("UpdateAppointmentStatus", mock.Anything, "a1", model.StatusConfirmed, model.StatusCompleted).
		Return(fmt.Errorf("appointment a1 is cancelled, not confirmed: %w", database.ErrStatusChanged))

	_, err := s.ChangeStatus(context.Background(), "a1", model.StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestChangeStatus_NotFound(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, nil, nil, nil)
	repo.On("GetAppointment", mock.Anything, "nope").Return(nil, database.ErrNotFound)

	_, err := s.ChangeStatus(context.Background(), "nope", model.StatusCancelled)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSetHours(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	s := newTestService(repo, bus, nil, nil)

	err := s.SetHours(context.Background(), &model.OperatingHours{Weekday: model.Monday, IsOpen: true, OpenTime: "18:00", CloseTime: "09:00"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.On("UpsertHours", mock.Anything, mock.MatchedBy(func(h *model.OperatingHours) bool {
		return h.Weekday == model.Sunday && !h.IsOpen && h.OpenTime == ""
	})).Return(nil)
	bus.On("PublishJSON", events.CalendarChanged, mock.MatchedBy(func(p events.CalendarPayload) bool {
		return p.Date == ""
	})).Return(nil)

	require.NoError(t, s.SetHours(context.Background(), &model.OperatingHours{Weekday: model.Sunday, IsOpen: false, OpenTime: "10:00"}))
	repo.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestDaysOff(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	s := newTestService(repo, bus, nil, nil)

	repo.On("CreateDayOff", mock.Anything, mock.Anything).Return(nil)
	repo.On("DeleteDayOff", mock.Anything, "d1").Return(monday, nil)
	bus.On("PublishJSON", events.CalendarChanged, mock.MatchedBy(func(p events.CalendarPayload) bool {
		return p.Date == "2026-03-02"
	})).Return(nil).Twice()

	require.NoError(t, s.AddDayOff(context.Background(), &model.DayOff{Date: monday, Reason: "training"}))
	require.NoError(t, s.RemoveDayOff(context.Background(), "d1"))
	assert.ErrorIs(t, s.AddDayOff(context.Background(), &model.DayOff{}), ErrInvalidInput)

	bus.AssertExpectations(t)
}

func TestRemoveDayOff_UnknownDateInvalidatesEverything(t *testing.T) {
	repo := new(mockRepo)
	bus := new(mockEventBus)
	s := newTestService(repo, bus, nil, nil)

	repo.On("DeleteDayOff", mock.Anything, "d-bad").Return(time.Time{}, nil)
	bus.On("PublishJSON", events.CalendarChanged, mock.MatchedBy(func(p events.CalendarPayload) bool {
		return p.Date == ""
	})).Return(nil).Once()

	require.NoError(t, s.RemoveDayOff(context.Background(), "d-bad"))
	bus.AssertExpectations(t)
}

func TestAvailableSlots_SkipsStaleCacheWrite(t *testing.T) {
	repo := new(mockRepo)
	cache := &memoryCache{data: map[string][]availability.TimeSlot{}}
	s := newTestService(repo, nil, cache, nil)

	repo.On("GetService", mock.Anything, "svc-1").Return(haircut(), nil)
	repo.On("GetWeeklyHours", mock.Anything).Return(mondayHours(), nil)
	repo.On("ListDaysOff", mock.Anything, monday, monday).Return([]model.DayOff{}, nil)
	// A booking commits and invalidates the date while the calendar loads.
	repo.On("AppointmentsOnDate", mock.Anything, monday).Return([]model.Appointment{}, nil).
		Run(func(mock.Arguments) { cache.version++ })

	_, _, err := s.AvailableSlots(context.Background(), monday, "svc-1")
	require.NoError(t, err)
	assert.Empty(t, cache.data)
}
