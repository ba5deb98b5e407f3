package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchSalon reloads salon.yaml on change and calls onUpdate with the latest config.
// It performs an initial load before entering the watch loop.
func WatchSalon(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*SalonConfig)) error {
	if path == "" {
		path = "configs/salon.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadSalonConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadSalonConfig(path)
				if err != nil {
					if logger != nil {
						logger.Error().Err(err).Str("path", path).Msg("salon config reload failed")
					}
					continue
				}
				lastMod = info.ModTime()
				if logger != nil {
					logger.Info().Str("path", path).Str("config", cfg.String()).Msg("salon config reloaded")
				}
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
