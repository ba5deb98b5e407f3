package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"salon/internal/model"
)

// DayScheduleConfig is the opening window of one weekday.
type DayScheduleConfig struct {
	Open  string `yaml:"open"`  // "09:00"
	Close string `yaml:"close"` // "17:00"
}

// HolidayConfig represents a holiday configuration.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"` // "New Year"
}

// SalonConfig is the root configuration for salon.yaml. It seeds operating
// hours and holidays; the admin API owns them afterwards.
type SalonConfig struct {
	// Hours maps weekday names ("monday") or ISO numbers ("1".."7") to a schedule.
	Hours map[string]DayScheduleConfig `yaml:"hours"`
	// Closed lists weekdays that are not open at all.
	Closed   []string        `yaml:"closed"`
	Holidays []HolidayConfig `yaml:"holidays"`

	weekly model.WeeklyHours
}

// LoadSalonConfig loads and validates salon configuration from YAML file.
func LoadSalonConfig(path string) (*SalonConfig, error) {
	if path == "" {
		path = "configs/salon.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read salon config: %w", err)
	}

	return ParseSalonConfig(data)
}

// ParseSalonConfig decodes and validates salon.yaml content.
func ParseSalonConfig(data []byte) (*SalonConfig, error) {
	var cfg SalonConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse salon config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate salon config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors and builds the weekly table.
func (c *SalonConfig) Validate() error {
	if len(c.Hours) == 0 {
		return fmt.Errorf("no opening hours defined")
	}

	weekly := make(model.WeeklyHours, 7)
	for _, day := range model.AllWeekdays {
		weekly[day] = model.OperatingHours{Weekday: day, IsOpen: false}
	}

	// Sorted so duplicate errors are reported deterministically.
	keys := make([]string, 0, len(c.Hours))
	for k := range c.Hours {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[model.Weekday]string)
	for _, key := range keys {
		day, err := model.ParseWeekday(key)
		if err != nil {
			return fmt.Errorf("hours.%s: %w", key, err)
		}
		if prev, ok := seen[day]; ok {
			return fmt.Errorf("hours.%s: duplicates hours.%s", key, prev)
		}
		seen[day] = key

		s := c.Hours[key]
		h := model.OperatingHours{Weekday: day, IsOpen: true, OpenTime: s.Open, CloseTime: s.Close}
		if err := validateSchedule(h, "hours."+key); err != nil {
			return err
		}
		weekly[day] = h
	}

	for i, name := range c.Closed {
		day, err := model.ParseWeekday(name)
		if err != nil {
			return fmt.Errorf("closed[%d]: %w", i, err)
		}
		if key, ok := seen[day]; ok {
			return fmt.Errorf("closed[%d]: %s also has hours.%s", i, day, key)
		}
	}

	dates := make(map[string]bool)
	for i, h := range c.Holidays {
		if _, err := model.ParseDate(h.Date); err != nil {
			return fmt.Errorf("holidays[%d]: invalid date '%s', expected YYYY-MM-DD", i, h.Date)
		}
		if dates[h.Date] {
			return fmt.Errorf("holidays[%d]: duplicate date %s", i, h.Date)
		}
		dates[h.Date] = true
	}

	c.weekly = weekly
	return nil
}

// validateSchedule checks a schedule configuration for errors.
func validateSchedule(h model.OperatingHours, prefix string) error {
	if h.OpenTime == "" {
		return fmt.Errorf("%s.open is required", prefix)
	}
	if h.CloseTime == "" {
		return fmt.Errorf("%s.close is required", prefix)
	}
	if err := h.Validate(); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	return nil
}

// WeeklyHours returns all seven weekdays; unlisted days are closed.
func (c *SalonConfig) WeeklyHours() model.WeeklyHours {
	return c.weekly
}

// HolidayDaysOff converts configured holidays to day-off records.
func (c *SalonConfig) HolidayDaysOff() []model.DayOff {
	out := make([]model.DayOff, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		d, err := model.ParseDate(h.Date)
		if err != nil {
			continue
		}
		out = append(out, model.DayOff{Date: d, Reason: h.Name})
	}
	return out
}

// IsHoliday checks if a date is a holiday.
func (c *SalonConfig) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format(model.DateLayout)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// String returns a summary of the configuration.
func (c *SalonConfig) String() string {
	open := 0
	for _, h := range c.weekly {
		if h.IsOpen {
			open++
		}
	}
	return fmt.Sprintf("SalonConfig: %d open weekdays, %d holidays", open, len(c.Holidays))
}
