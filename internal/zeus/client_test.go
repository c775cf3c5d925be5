package zeus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"weathertrader/internal/config"
	"weathertrader/pkg/types"
)

var testStation = types.Station{
	Code:      "KLGA",
	City:      "nyc",
	Latitude:  40.7769,
	Longitude: -73.8740,
	IANAZone:  "America/New_York",
	VenueTag:  "polymarket",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.ZeusConfig{
		BaseURL:    baseURL,
		Token:      "test-token",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, testLogger())
}

func hourlyTimes(start time.Time, hours int) []time.Time {
	out := make([]time.Time, hours)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func TestFetchRowShape(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("variable") != "2m_temperature" {
			t.Errorf("variable = %q", q.Get("variable"))
		}
		if q.Get("predict_hours") != "24" {
			t.Errorf("predict_hours = %q", q.Get("predict_hours"))
		}
		if q.Get("latitude") != "40.7769" {
			t.Errorf("latitude = %q", q.Get("latitude"))
		}

		var rows []map[string]any
		for i, ts := range hourlyTimes(start, 24) {
			rows = append(rows, map[string]any{
				"time":   ts.Format(time.RFC3339),
				"temp_K": 280.0 + float64(i)*0.5,
			})
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	fc, err := newTestClient(srv.URL).Fetch(context.Background(), testStation, "2026-08-24", start, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Points) != 24 {
		t.Fatalf("points = %d", len(fc.Points))
	}
	if !fc.Points[0].Time.Equal(start) || fc.Points[0].TempK != 280.0 {
		t.Errorf("first point = %+v", fc.Points[0])
	}
	if fc.StationCode != "KLGA" || fc.EventDay != "2026-08-24" || fc.Hours != 24 {
		t.Errorf("forecast metadata = %+v", fc)
	}
	if fc.FetchedAt.IsZero() {
		t.Error("FetchedAt not stamped")
	}
}

func TestFetchColumnarShape(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times := hourlyTimes(start, 24)
		payload := map[string]any{"times": times, "values": make([]float64, 24)}
		values := payload["values"].([]float64)
		for i := range values {
			values[i] = 285.0
		}
		json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	fc, err := newTestClient(srv.URL).Fetch(context.Background(), testStation, "2026-08-24", start, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Points) != 24 || fc.Points[23].TempK != 285.0 {
		t.Fatalf("columnar parse: %d points", len(fc.Points))
	}
}

func TestFetchRetriesTransient(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var rows []map[string]any
		for _, ts := range hourlyTimes(start, 24) {
			rows = append(rows, map[string]any{"time": ts.Format(time.RFC3339), "temp_K": 280.0})
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Fetch(context.Background(), testStation, "2026-08-24", start, 24); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetchClientErrorFailsFast(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad latitude", http.StatusBadRequest)
	}))
	defer srv.Close()

	start := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)
	_, err := newTestClient(srv.URL).Fetch(context.Background(), testStation, "2026-08-24", start, 24)
	if !types.IsKind(err, types.KindInvalidResponse) {
		t.Fatalf("kind = %q, err = %v", types.KindOf(err), err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx retried: %d calls", calls.Load())
	}
}

func TestFetchCoverageValidation(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		body func() any
		kind types.ErrorKind
	}{
		{"empty array", func() any { return []any{} }, types.KindEmptyForecast},
		{"missing hour", func() any {
			var rows []map[string]any
			for i, ts := range hourlyTimes(start, 24) {
				if i == 11 {
					continue
				}
				rows = append(rows, map[string]any{"time": ts.Format(time.RFC3339), "temp_K": 280.0})
			}
			return rows
		}, types.KindInvalidResponse},
		{"off-hour sample", func() any {
			var rows []map[string]any
			for i, ts := range hourlyTimes(start, 24) {
				if i == 3 {
					ts = ts.Add(17 * time.Minute)
				}
				rows = append(rows, map[string]any{"time": ts.Format(time.RFC3339), "temp_K": 280.0})
			}
			return rows
		}, types.KindInvalidResponse},
		{"length mismatch columnar", func() any {
			return map[string]any{"times": hourlyTimes(start, 24), "values": []float64{280}}
		}, types.KindInvalidResponse},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tc.body())
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Fetch(context.Background(), testStation, "2026-08-24", start, 24)
			if !types.IsKind(err, tc.kind) {
				t.Fatalf("kind = %q, want %q (err %v)", types.KindOf(err), tc.kind, err)
			}
		})
	}
}

func TestFetchSortsUnorderedPoints(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times := hourlyTimes(start, 24)
		var rows []map[string]any
		// Reverse order; the client sorts before validating coverage.
		for i := len(times) - 1; i >= 0; i-- {
			rows = append(rows, map[string]any{"time": times[i].Format(time.RFC3339), "temp_K": float64(i)})
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	fc, err := newTestClient(srv.URL).Fetch(context.Background(), testStation, "2026-08-24", start, 24)
	if err != nil {
		t.Fatal(err)
	}
	if fc.Points[0].TempK != 0 || fc.Points[23].TempK != 23 {
		t.Errorf("points not sorted: first=%v last=%v", fc.Points[0], fc.Points[23])
	}
}
