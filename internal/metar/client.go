// Package metar fetches official airport temperature observations from the
// aviation weather API. Observations are ground truth for market resolution;
// inside the engine they only enrich decision snapshots with the running
// observed daily max, so a fetch failure never fails a cycle.
package metar

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"weathertrader/internal/config"
	"weathertrader/pkg/types"
	"weathertrader/pkg/units"
)

// Observation is one METAR temperature reading, converted to Fahrenheit.
type Observation struct {
	Time  time.Time `json:"time"`
	TempF float64   `json:"temp_f"`
}

// DayObservations is the set of readings seen so far for a station and
// event day, with the running max.
type DayObservations struct {
	StationCode  string        `json:"station_code"`
	EventDay     string        `json:"event_day"`
	Observations []Observation `json:"observations"`
	MaxTempF     float64       `json:"max_temp_f"`
	MaxTempTime  time.Time     `json:"max_temp_time"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// Client fetches METAR observations by ICAO id.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a METAR client.
func NewClient(cfg config.MetarConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Client{
		http:   httpClient,
		logger: logger.With("component", "metar"),
	}
}

// metarRecord is the JSON shape of the aviation weather API. Temp is Celsius.
type metarRecord struct {
	ICAOID   string  `json:"icaoId"`
	ObsTime  int64   `json:"obsTime"` // unix seconds
	Temp     float64 `json:"temp"`
	ReportAt string  `json:"reportTime"`
}

// DayMax fetches observations for station and keeps those falling on eventDay
// in the station's local zone. Returns nil (no error) when the day has no
// observations yet.
func (c *Client) DayMax(ctx context.Context, station types.Station, eventDay string) (*DayObservations, error) {
	loc, err := station.Location()
	if err != nil {
		return nil, err
	}

	var records []metarRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":    station.Code,
			"format": "json",
			"hours":  "36",
		}).
		SetResult(&records).
		Get("/metar")
	if err != nil {
		return nil, types.Errorf(types.KindTransientFetch, "fetch metar %s: %v", station.Code, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.Errorf(types.KindTransientFetch, "fetch metar %s: status %d", station.Code, resp.StatusCode())
	}

	day := &DayObservations{
		StationCode: station.Code,
		EventDay:    eventDay,
		FetchedAt:   time.Now().UTC(),
	}

	for _, r := range records {
		t := time.Unix(r.ObsTime, 0).UTC()
		if units.LocalDay(t, loc) != eventDay {
			continue
		}
		obs := Observation{Time: t, TempF: units.CelsiusToFahrenheit(r.Temp)}
		day.Observations = append(day.Observations, obs)
		if len(day.Observations) == 1 || obs.TempF > day.MaxTempF {
			day.MaxTempF = obs.TempF
			day.MaxTempTime = obs.Time
		}
	}

	if len(day.Observations) == 0 {
		return nil, nil
	}
	return day, nil
}
