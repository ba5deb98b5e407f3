package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salon/internal/availability"
	"salon/internal/booking"
	"salon/internal/database"
	"salon/internal/model"
)

const testAPIKey = "valid-key"

type testServer struct {
	*httptest.Server
	db  *database.DB
	api *HTTPServer
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "salon.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, d := range model.AllWeekdays {
		require.NoError(t, db.UpsertHours(ctx, &model.OperatingHours{
			Weekday: d, IsOpen: true, OpenTime: "09:00", CloseTime: "17:00",
		}))
	}

	svc := booking.NewService(db, availability.NewEngine(logger), nil, nil, nil, booking.Options{Location: time.UTC}, logger)

	if opts.APIKey == "" {
		opts.APIKey = testAPIKey
	}
	if opts.BookingRate == 0 {
		opts.BookingRate = 1000
		opts.BookingBurst = 1000
	}
	server := NewHTTPServer(db, svc, opts, &logger)

	ts := &testServer{Server: httptest.NewServer(server.Handler()), db: db, api: server}
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) seedService(t *testing.T, name string, duration int) *model.Service {
	t.Helper()
	svc := &model.Service{
		Name:            name,
		DurationMinutes: duration,
		Price:           decimal.RequireFromString("40"),
		IsActive:        true,
	}
	require.NoError(t, ts.db.CreateService(context.Background(), svc))
	return svc
}

func (ts *testServer) do(t *testing.T, method, path string, body any, admin bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set(apiKeyHeader, testAPIKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e errorResponse
	decodeBody(t, resp, &e)
	return e.Error
}

// futureDate is a date safely inside the booking window.
func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format(model.DateLayout)
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReady(t *testing.T) {
	ts := setupTestServer(t, Options{Checks: map[string]Check{
		"database": func(ctx context.Context) error { return nil },
	}})

	resp := ts.do(t, http.MethodGet, "/readyz", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body readyResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
}

func TestReady_FailingCheck(t *testing.T) {
	ts := setupTestServer(t, Options{Checks: map[string]Check{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}})

	resp := ts.do(t, http.MethodGet, "/readyz", nil, false)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body readyResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "connection refused", body.Checks["redis"])
	assert.Equal(t, "ok", body.Checks["database"])
}

func TestAdminAuth(t *testing.T) {
	ts := setupTestServer(t, Options{})

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"valid key", testAPIKey, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/services", nil)
			require.NoError(t, err)
			if tt.key != "" {
				req.Header.Set(apiKeyHeader, tt.key)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestBookingRateLimit(t *testing.T) {
	ts := setupTestServer(t, Options{BookingRate: 0.001, BookingBurst: 2})

	// Invalid bodies still consume tokens; the limiter runs before decoding.
	for i := 0; i < 2; i++ {
		resp := ts.do(t, http.MethodPost, "/api/appointments", map[string]string{}, false)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	resp := ts.do(t, http.MethodPost, "/api/appointments", map[string]string{}, false)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// Availability lookups are not limited.
	resp = ts.do(t, http.MethodGet, "/api/availability?date="+futureDate(2)+"&service_id=x", nil, false)
	assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestBookingRateLimit_IgnoresForwardedHeaders(t *testing.T) {
	ts := setupTestServer(t, Options{BookingRate: 0.001, BookingBurst: 1})

	var codes []int
	for i := 0; i < 4; i++ {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/appointments", strings.NewReader("{}"))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		_ = resp.Body.Close()
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestBookingRateLimit_TrustedProxy(t *testing.T) {
	ts := setupTestServer(t, Options{BookingRate: 0.001, BookingBurst: 1, TrustProxy: true})

	post := func(ip string) int {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/appointments", strings.NewReader("{}"))
		require.NoError(t, err)
		req.Header.Set("X-Real-IP", ip)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, post("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.1"))
	assert.Equal(t, http.StatusBadRequest, post("203.0.113.2"))
}

func TestIPLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	now = now.Add(time.Hour)
	assert.True(t, l.allow("10.0.0.2"))
	_, kept := l.visitors["10.0.0.1"]
	assert.False(t, kept)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{database.ErrNotFound, http.StatusNotFound},
		{database.ErrConflict, http.StatusConflict},
		{booking.ErrSlotUnavailable, http.StatusConflict},
		{booking.ErrInvalidTransition, http.StatusConflict},
		{booking.ErrBusy, http.StatusLocked},
		{booking.ErrPastDate, http.StatusBadRequest},
		{booking.ErrDateTooFar, http.StatusBadRequest},
		{booking.ErrServiceInactive, http.StatusBadRequest},
		{booking.ErrInvalidInput, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
