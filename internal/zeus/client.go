// Package zeus implements the hourly temperature forecast client.
//
// The API takes (latitude, longitude, start_time, predict_hours) and returns
// an hourly 2m-temperature timeseries in Kelvin. Two response shapes exist in
// the wild and both are accepted:
//
//	[{"time": "...", "temp_K": 281.2}, ...]
//	{"times": ["...", ...], "values": [281.2, ...]}
//
// Transient failures (network errors, 5xx, 429) are retried with exponential
// backoff and jitter up to MaxRetries; 4xx responses fail immediately.
package zeus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"weathertrader/internal/config"
	"weathertrader/pkg/types"
)

const temperatureVariable = "2m_temperature"

// Client fetches hourly forecasts. Stateless apart from the HTTP client;
// safe for concurrent use.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a forecast client with retry and bearer auth.
func NewClient(cfg config.ZeusConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	return &Client{
		http:   httpClient,
		logger: logger.With("component", "zeus"),
	}
}

// hourlyPoint is the row-oriented response shape.
type hourlyPoint struct {
	Time  time.Time `json:"time"`
	TempK float64   `json:"temp_K"`
}

// columnarSeries is the column-oriented response shape.
type columnarSeries struct {
	Times  []time.Time `json:"times"`
	Values []float64   `json:"values"`
}

// Fetch retrieves the hourly forecast covering [startUTC, startUTC+hours) for
// a station. The returned forecast is stamped with the receive time.
func (c *Client) Fetch(ctx context.Context, station types.Station, eventDay string, startUTC time.Time, hours int) (*types.Forecast, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":      fmt.Sprintf("%.4f", station.Latitude),
			"longitude":     fmt.Sprintf("%.4f", station.Longitude),
			"variable":      temperatureVariable,
			"start_time":    startUTC.UTC().Format(time.RFC3339),
			"predict_hours": fmt.Sprintf("%d", hours),
		}).
		Get("/forecast")
	if err != nil {
		return nil, types.Errorf(types.KindTransientFetch, "fetch forecast %s/%s: %v", station.Code, eventDay, err)
	}
	fetchedAt := time.Now().UTC()

	switch {
	case resp.StatusCode() == http.StatusOK:
	case resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests:
		return nil, types.Errorf(types.KindTransientFetch, "fetch forecast %s/%s: status %d", station.Code, eventDay, resp.StatusCode())
	default:
		return nil, types.Errorf(types.KindInvalidResponse, "fetch forecast %s/%s: status %d: %s",
			station.Code, eventDay, resp.StatusCode(), resp.String())
	}

	points, err := parsePoints(resp.Body())
	if err != nil {
		return nil, types.Errorf(types.KindInvalidResponse, "parse forecast %s/%s: %v", station.Code, eventDay, err)
	}

	fc := &types.Forecast{
		StationCode: station.Code,
		EventDay:    eventDay,
		StartUTC:    startUTC.UTC(),
		Hours:       hours,
		FetchedAt:   fetchedAt,
		Points:      points,
	}
	if err := validateCoverage(fc); err != nil {
		return nil, err
	}

	c.logger.Debug("forecast fetched",
		"station", station.Code,
		"event_day", eventDay,
		"points", len(points),
	)
	return fc, nil
}

// parsePoints accepts either the row or column response shape.
func parsePoints(body []byte) ([]types.TemperaturePoint, error) {
	var rows []hourlyPoint
	if err := json.Unmarshal(body, &rows); err == nil {
		points := make([]types.TemperaturePoint, len(rows))
		for i, r := range rows {
			points[i] = types.TemperaturePoint{Time: r.Time.UTC(), TempK: r.TempK}
		}
		return points, nil
	}

	var cols columnarSeries
	if err := json.Unmarshal(body, &cols); err != nil {
		return nil, fmt.Errorf("body matches neither point-array nor columnar shape: %w", err)
	}
	if len(cols.Times) != len(cols.Values) {
		return nil, fmt.Errorf("columnar shape length mismatch: %d times, %d values", len(cols.Times), len(cols.Values))
	}
	points := make([]types.TemperaturePoint, len(cols.Times))
	for i := range cols.Times {
		points[i] = types.TemperaturePoint{Time: cols.Times[i].UTC(), TempK: cols.Values[i]}
	}
	return points, nil
}

// validateCoverage enforces one point per whole hour over [StartUTC, StartUTC+Hours).
func validateCoverage(fc *types.Forecast) error {
	if len(fc.Points) == 0 {
		return types.Errorf(types.KindEmptyForecast, "forecast %s/%s has no points", fc.StationCode, fc.EventDay)
	}
	sort.Slice(fc.Points, func(i, j int) bool { return fc.Points[i].Time.Before(fc.Points[j].Time) })

	if len(fc.Points) != fc.Hours {
		return types.Errorf(types.KindInvalidResponse, "forecast %s/%s has %d points, want %d",
			fc.StationCode, fc.EventDay, len(fc.Points), fc.Hours)
	}
	for i, p := range fc.Points {
		want := fc.StartUTC.Add(time.Duration(i) * time.Hour)
		if !p.Time.Equal(want) {
			return types.Errorf(types.KindInvalidResponse, "forecast %s/%s point %d at %s, want %s",
				fc.StationCode, fc.EventDay, i, p.Time.Format(time.RFC3339), want.Format(time.RFC3339))
		}
	}
	return nil
}
