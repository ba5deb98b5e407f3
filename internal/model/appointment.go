package model

import (
	"fmt"
	"time"
)

// AppointmentStatus represents appointment status.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Appointment struct {
	ID          string            `json:"id"`
	ServiceID   string            `json:"service_id"`
	ServiceName string            `json:"service_name,omitempty"`
	ClientName  string            `json:"client_name"`
	ClientEmail string            `json:"client_email"`
	ClientPhone string            `json:"client_phone,omitempty"`
	Date        time.Time         `json:"date"`
	StartTime   string            `json:"start_time"` // "10:00"
	EndTime     string            `json:"end_time"`   // "10:45"
	Status      AppointmentStatus `json:"status"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// OccupiesCalendar reports whether the appointment blocks its time range.
// Cancelled appointments stay for history but free their time.
func (a *Appointment) OccupiesCalendar() bool {
	return a.Status != StatusCancelled
}

// OnDate reports whether the appointment is on the calendar day of date.
func (a *Appointment) OnDate(date time.Time) bool {
	return SameDay(a.Date, date)
}

// Interval returns the parsed start and end clocks.
func (a *Appointment) Interval() (start, end Clock, err error) {
	start, err = ParseClock(a.StartTime)
	if err != nil {
		return 0, 0, fmt.Errorf("start_time: %w", err)
	}
	end, err = ParseClock(a.EndTime)
	if err != nil {
		return 0, 0, fmt.Errorf("end_time: %w", err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("end_time %s is not after start_time %s", end, start)
	}
	return start, end, nil
}

// Duration returns end - start, or 0 when the times are malformed.
func (a *Appointment) Duration() time.Duration {
	start, end, err := a.Interval()
	if err != nil {
		return 0
	}
	return time.Duration(end-start) * time.Minute
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (a *Appointment) CanTransitionTo(next AppointmentStatus) bool {
	for _, s := range transitions[a.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// OverlapsWith checks half-open interval overlap with another appointment on the same day.
func (a *Appointment) OverlapsWith(other *Appointment) bool {
	if !SameDay(a.Date, other.Date) {
		return false
	}
	as, ae, err := a.Interval()
	if err != nil {
		return false
	}
	bs, be, err := other.Interval()
	if err != nil {
		return false
	}
	return Overlaps(as, ae, bs, be)
}

// Overlaps is the general interval test for [start1,end1) and [start2,end2).
func Overlaps(start1, end1, start2, end2 Clock) bool {
	return start1 < end2 && end1 > start2
}
