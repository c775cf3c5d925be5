package metar

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"weathertrader/internal/config"
	"weathertrader/pkg/types"
)

var testStation = types.Station{
	Code:     "KLGA",
	City:     "nyc",
	IANAZone: "America/New_York",
	VenueTag: "polymarket",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestMetar(baseURL string) *Client {
	return NewClient(config.MetarConfig{
		Enabled: true,
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, testLogger())
}

func record(t time.Time, tempC float64) map[string]any {
	return map[string]any{
		"icaoId":  "KLGA",
		"obsTime": t.Unix(),
		"temp":    tempC,
	}
}

func TestDayMax(t *testing.T) {
	t.Parallel()
	ny, _ := time.LoadLocation("America/New_York")
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, ny)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("ids") != "KLGA" || q.Get("format") != "json" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			record(day.Add(-2*time.Hour), 30.0), // previous local day, excluded
			record(day.Add(9*time.Hour), 20.0),
			record(day.Add(14*time.Hour), 25.0), // the daily max, 77F
			record(day.Add(18*time.Hour), 22.5),
		})
	}))
	defer srv.Close()

	obs, err := newTestMetar(srv.URL).DayMax(context.Background(), testStation, "2026-08-24")
	if err != nil {
		t.Fatal(err)
	}
	if obs == nil {
		t.Fatal("expected observations")
	}
	if len(obs.Observations) != 3 {
		t.Fatalf("observations = %d, want 3 (previous-day reading excluded)", len(obs.Observations))
	}
	if math.Abs(obs.MaxTempF-77.0) > 1e-9 {
		t.Errorf("max = %v, want 77", obs.MaxTempF)
	}
	if !obs.MaxTempTime.Equal(day.Add(14 * time.Hour)) {
		t.Errorf("max time = %v", obs.MaxTempTime)
	}
	if obs.StationCode != "KLGA" || obs.EventDay != "2026-08-24" {
		t.Errorf("metadata = %+v", obs)
	}
}

func TestDayMaxNoObservationsYet(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	obs, err := newTestMetar(srv.URL).DayMax(context.Background(), testStation, "2026-08-24")
	if err != nil {
		t.Fatal(err)
	}
	if obs != nil {
		t.Errorf("empty day should return nil, got %+v", obs)
	}
}

func TestDayMaxTransientFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestMetar(srv.URL).DayMax(context.Background(), testStation, "2026-08-24")
	if !types.IsKind(err, types.KindTransientFetch) {
		t.Fatalf("kind = %q, err = %v", types.KindOf(err), err)
	}
}
