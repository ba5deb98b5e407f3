package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"salon/internal/availability"
	"salon/internal/events"
	"salon/internal/model"
)

const (
	keyPrefix     = "availability:"
	versionPrefix = "availability-version:"
	globalVersion = versionPrefix + "all"
	versionTTL    = 24 * time.Hour
)

// setIfCurrent writes the slot list only while both version counters still
// match the version the caller read before loading the calendar.
var setIfCurrent = redis.NewScript(`
local day = redis.call('GET', KEYS[2]) or '0'
local all = redis.call('GET', KEYS[3]) or '0'
if day .. ':' .. all ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// AvailabilityCache stores computed slot lists per date and service duration.
// A nil client or non-positive TTL turns every call into a no-op.
type AvailabilityCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *AvailabilityCache {
	return &AvailabilityCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "availability_cache").Logger(),
	}
}

func (c *AvailabilityCache) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

func key(date time.Time, durationMinutes int) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, date.Format(model.DateLayout), durationMinutes)
}

func versionKey(date time.Time) string {
	return versionPrefix + date.Format(model.DateLayout)
}

// Get returns the cached slots for date and duration, if present.
func (c *AvailabilityCache) Get(ctx context.Context, date time.Time, durationMinutes int) ([]availability.TimeSlot, bool) {
	if !c.enabled() {
		return nil, false
	}
	val, err := c.redis.Get(ctx, key(date, durationMinutes)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("cache read failed")
		}
		return nil, false
	}
	var slots []availability.TimeSlot
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		return nil, false
	}
	return slots, true
}

// Version returns the invalidation counters for date. It is empty when the
// cache is disabled or unreachable, and Set ignores an empty version.
func (c *AvailabilityCache) Version(ctx context.Context, date time.Time) string {
	if !c.enabled() {
		return ""
	}
	vals, err := c.redis.MGet(ctx, versionKey(date), globalVersion).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache version read failed")
		return ""
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = "0"
		if str, ok := v.(string); ok {
			parts[i] = str
		}
	}
	return strings.Join(parts, ":")
}

// Set stores slots for date and duration unless date was invalidated after
// version was read.
func (c *AvailabilityCache) Set(ctx context.Context, date time.Time, durationMinutes int, version string, slots []availability.TimeSlot) {
	if !c.enabled() || version == "" {
		return
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	keys := []string{key(date, durationMinutes), versionKey(date), globalVersion}
	stored, err := setIfCurrent.Run(ctx, c.redis, keys, version, data, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache write failed")
		return
	}
	if stored == 0 {
		c.logger.Debug().Str("date", date.Format(model.DateLayout)).Msg("skipped stale cache write")
	}
}

// Invalidate drops every duration cached for date. The date's version is
// bumped first so in-flight computations cannot write their lists back.
func (c *AvailabilityCache) Invalidate(ctx context.Context, date time.Time) error {
	if !c.enabled() {
		return nil
	}
	vk := versionKey(date)
	pipe := c.redis.TxPipeline()
	pipe.Incr(ctx, vk)
	pipe.Expire(ctx, vk, versionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bump version %s: %w", vk, err)
	}
	return c.deleteMatching(ctx, fmt.Sprintf("%s%s:*", keyPrefix, date.Format(model.DateLayout)))
}

// InvalidateAll drops every cached slot list.
func (c *AvailabilityCache) InvalidateAll(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	if err := c.redis.Incr(ctx, globalVersion).Err(); err != nil {
		return fmt.Errorf("bump version %s: %w", globalVersion, err)
	}
	return c.deleteMatching(ctx, keyPrefix+"*")
}

func (c *AvailabilityCache) deleteMatching(ctx context.Context, pattern string) error {
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete %d keys: %w", len(keys), err)
	}
	return nil
}

// Subscribe invalidates cached dates whenever the calendar changes.
func (c *AvailabilityCache) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.AppointmentCreated, c.onAppointment)
	bus.Subscribe(events.AppointmentStatusChanged, c.onAppointment)
	bus.Subscribe(events.CalendarChanged, c.onCalendar)
}

func (c *AvailabilityCache) onAppointment(e events.Event) error {
	var p events.AppointmentPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	date, err := model.ParseDate(p.Date)
	if err != nil {
		return c.InvalidateAll(context.Background())
	}
	return c.Invalidate(context.Background(), date)
}

func (c *AvailabilityCache) onCalendar(e events.Event) error {
	var p events.CalendarPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if p.Date == "" {
		return c.InvalidateAll(context.Background())
	}
	date, err := model.ParseDate(p.Date)
	if err != nil {
		return c.InvalidateAll(context.Background())
	}
	return c.Invalidate(context.Background(), date)
}
