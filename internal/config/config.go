package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	HTTP struct {
		Address             string `yaml:"address"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
		// TrustProxy takes client addresses from X-Forwarded-For and
		// X-Real-IP. Enable only behind a proxy that overwrites them.
		TrustProxy bool `yaml:"trust_proxy"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"cache"`

	Admin struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"admin"`

	RateLimit struct {
		BookingsPerMinute int `yaml:"bookings_per_minute"`
		Burst             int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		MaxAdvanceDays     int  `yaml:"max_advance_days"`
		LockTimeoutSeconds int  `yaml:"lock_timeout_seconds"`
		AutoComplete       bool `yaml:"auto_complete"`
		AutoCompleteHour   int  `yaml:"auto_complete_hour"`
		AutoCompleteMinute int  `yaml:"auto_complete_minute"`
	} `yaml:"booking"`

	Salon struct {
		ConfigPath           string `yaml:"config_path"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"salon"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if _, err = time.LoadLocation(cfg.App.Timezone); err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}

	if cfg.Booking.AutoCompleteHour < 0 || cfg.Booking.AutoCompleteHour > 23 ||
		cfg.Booking.AutoCompleteMinute < 0 || cfg.Booking.AutoCompleteMinute > 59 {
		return nil, fmt.Errorf("booking.auto_complete time %02d:%02d is invalid",
			cfg.Booking.AutoCompleteHour, cfg.Booking.AutoCompleteMinute)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "salon"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/salon.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Salon.ConfigPath == "" {
		c.Salon.ConfigPath = "configs/salon.yaml"
	}
}

// Location returns the salon's timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ReadTimeout() time.Duration {
	if c.HTTP.ReadTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HTTP.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.HTTP.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HTTP.WriteTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 60 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) BookingLockTimeout() time.Duration {
	if c.Booking.LockTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Booking.LockTimeoutSeconds) * time.Second
}

func (c *Config) SalonWatchInterval() time.Duration {
	if c.Salon.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Salon.WatchIntervalSeconds) * time.Second
}

// BookingRate returns the per-client booking rate in events per second and the burst size.
func (c *Config) BookingRate() (perSecond float64, burst int) {
	perMinute := c.RateLimit.BookingsPerMinute
	if perMinute <= 0 {
		perMinute = 5
	}
	burst = c.RateLimit.Burst
	if burst <= 0 {
		burst = 3
	}
	return float64(perMinute) / 60, burst
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}
