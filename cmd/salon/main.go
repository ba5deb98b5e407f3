package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"salon/internal/api"
	"salon/internal/availability"
	"salon/internal/booking"
	"salon/internal/cache"
	"salon/internal/config"
	"salon/internal/database"
	"salon/internal/events"
	"salon/internal/lock"
	"salon/internal/metrics"
	"salon/internal/scheduler"
)

func main() {
	// Optional .env for local runs
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SALON_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.Check{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}

	var (
		rdb    *redis.Client
		locker lock.Locker = lock.NewLocalLock()
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis unavailable, using in-process lock and no cache")
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			locker = lock.NewRedisLock(rdb)
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	bus := events.NewEventBus(&logger)
	slotCache := cache.NewAvailabilityCache(rdb, cfg.CacheTTL(), logger)
	slotCache.Subscribe(bus)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		metrics.Subscribe(bus)
	}

	err = config.WatchSalon(ctx, cfg.Salon.ConfigPath, cfg.SalonWatchInterval(), &logger, func(sc *config.SalonConfig) {
		res, err := db.SyncSalonConfig(ctx, sc)
		if err != nil {
			logger.Error().Err(err).Msg("salon config sync failed")
			return
		}
		logger.Info().
			Int("hours_inserted", res.HoursInserted).
			Int("holidays_created", res.HolidaysCreated).
			Msg("salon config synced")
		if res.HoursInserted > 0 || res.HolidaysCreated > 0 {
			if err := bus.PublishJSON(events.CalendarChanged, events.CalendarPayload{Reason: "salon config"}); err != nil {
				logger.Error().Err(err).Msg("publish calendar change")
			}
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("salon config error")
	}

	var slots booking.SlotCache
	if rdb != nil {
		slots = slotCache
	}
	bookings := booking.NewService(
		db,
		availability.NewEngine(logger),
		slots,
		locker,
		bus,
		booking.Options{
			Location:   cfg.Location(),
			MaxAdvance: cfg.BookingMaxAdvance(),
			LockTTL:    cfg.BookingLockTimeout(),
		},
		logger,
	)

	if cfg.Booking.AutoComplete {
		completer := scheduler.NewCompleter(scheduler.Config{
			Location:    cfg.Location(),
			DailyHour:   cfg.Booking.AutoCompleteHour,
			DailyMinute: cfg.Booking.AutoCompleteMinute,
		}, db, bookings, locker, &logger)
		go completer.Start(ctx)
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup.Path, cfg.BackupInterval(), cfg.BackupRetention(), &logger)
		go backups.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Admin.APIKey == "" {
		logger.Warn().Msg("admin.api_key is empty, admin API is disabled")
	}

	perSecond, burst := cfg.BookingRate()
	server := api.NewHTTPServer(db, bookings, api.Options{
		Address:      cfg.HTTP.Address,
		APIKey:       cfg.Admin.APIKey,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		TrustProxy:   cfg.HTTP.TrustProxy,
		BookingRate:  perSecond,
		BookingBurst: burst,
		Checks:       checks,
	}, &logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("http shutdown error")
		}
	}()

	logger.Info().Str("name", cfg.App.Name).Str("timezone", cfg.App.Timezone).Msg("salon booking service started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}
	logger.Info().Msg("salon booking service stopped")
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
