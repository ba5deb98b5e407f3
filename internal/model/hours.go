package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday identifies a day of the week. 0=Sunday .. 6=Saturday, same as time.Weekday.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// AllWeekdays lists every weekday in storage order.
var AllWeekdays = []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

var weekdayNames = map[string]Weekday{
	"sunday": Sunday, "sun": Sunday,
	"monday": Monday, "mon": Monday,
	"tuesday": Tuesday, "tue": Tuesday,
	"wednesday": Wednesday, "wed": Wednesday,
	"thursday": Thursday, "thu": Thursday,
	"friday": Friday, "fri": Friday,
	"saturday": Saturday, "sat": Saturday,
}

// WeekdayOf returns the weekday of a calendar date. This is the only place
// dates are mapped to weekday keys.
func WeekdayOf(date time.Time) Weekday {
	return Weekday(date.Weekday())
}

// ParseWeekday accepts an English day name ("monday", "mon") or an ISO
// weekday number where 1=Monday and 7=Sunday.
func ParseWeekday(s string) (Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdayNames[key]; ok {
		return d, nil
	}
	n, err := strconv.Atoi(key)
	if err != nil || n < 1 || n > 7 {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return Weekday(n % 7), nil
}

// Valid reports whether d is within 0..6.
func (d Weekday) Valid() bool { return d >= Sunday && d <= Saturday }

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return time.Weekday(d).String()
}

// OperatingHours is the salon's schedule for one weekday.
type OperatingHours struct {
	Weekday   Weekday   `json:"weekday"`
	IsOpen    bool      `json:"is_open"`
	OpenTime  string    `json:"open_time"`  // "09:00"
	CloseTime string    `json:"close_time"` // "17:00"
	UpdatedAt time.Time `json:"updated_at"`
}

// Window returns the parsed open and close clocks.
func (h OperatingHours) Window() (open, closing Clock, err error) {
	open, err = ParseClock(h.OpenTime)
	if err != nil {
		return 0, 0, fmt.Errorf("open_time: %w", err)
	}
	closing, err = ParseClock(h.CloseTime)
	if err != nil {
		return 0, 0, fmt.Errorf("close_time: %w", err)
	}
	return open, closing, nil
}

// Validate is used on admin input. Stored rows are never rejected on read.
func (h OperatingHours) Validate() error {
	if !h.Weekday.Valid() {
		return fmt.Errorf("invalid weekday %d", h.Weekday)
	}
	if !h.IsOpen {
		return nil
	}
	open, closing, err := h.Window()
	if err != nil {
		return err
	}
	if open >= closing {
		return fmt.Errorf("close_time must be after open_time")
	}
	return nil
}

// WeeklyHours is the weekly operating-hours table keyed by weekday.
type WeeklyHours map[Weekday]OperatingHours

// NewWeeklyHours indexes rows by weekday; later rows win.
func NewWeeklyHours(rows []OperatingHours) WeeklyHours {
	w := make(WeeklyHours, len(rows))
	for _, r := range rows {
		w[r.Weekday] = r
	}
	return w
}

// For returns the entry governing date, if any.
func (w WeeklyHours) For(date time.Time) (OperatingHours, bool) {
	h, ok := w[WeekdayOf(date)]
	return h, ok
}

// Rows returns the entries ordered Sunday..Saturday, skipping missing days.
func (w WeeklyHours) Rows() []OperatingHours {
	rows := make([]OperatingHours, 0, len(w))
	for _, d := range AllWeekdays {
		if h, ok := w[d]; ok {
			rows = append(rows, h)
		}
	}
	return rows
}

// DayOff is a full-day closure overriding operating hours.
type DayOff struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
