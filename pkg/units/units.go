// Package units holds temperature conversions and local-day time windowing.
//
// Kelvin is the transport unit for forecast data; Fahrenheit is used for all
// probability and bracket work. Event days are local calendar days in a
// station's IANA zone, and the window helpers convert them to UTC hour ranges
// correctly across DST transitions (a "day" may be 23 or 25 hours long on the
// wall clock, but daily-high markets always consume 24 forecast hours from
// local midnight).
package units

import (
	"fmt"
	"math"
	"time"
)

// DayFormat is the canonical event-day layout used in paths and filenames.
const DayFormat = "2006-01-02"

// KelvinToCelsius converts an absolute temperature to Celsius.
func KelvinToCelsius(k float64) float64 {
	return k - 273.15
}

// KelvinToFahrenheit converts an absolute temperature to Fahrenheit.
func KelvinToFahrenheit(k float64) float64 {
	return (k-273.15)*9.0/5.0 + 32.0
}

// CelsiusToFahrenheit converts a Celsius reading (e.g. METAR temp) to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// RoundTenth rounds to one decimal place, half away from zero.
func RoundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}

// RoundHalfUpWhole rounds to the nearest whole degree with ties going up,
// matching the METAR whole-degree resolution rule (45.5 -> 46, -45.5 -> -45).
func RoundHalfUpWhole(f float64) float64 {
	return math.Floor(f + 0.5)
}

// ParseDay parses an event day in DayFormat.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event day %q: %w", s, err)
	}
	return t, nil
}

// DayWindow returns the UTC instant of local midnight for eventDay in zone.
// Daily-high forecasts cover [start, start+24h); callers pass the returned
// start as the forecast query origin.
func DayWindow(eventDay string, zone *time.Location) (time.Time, error) {
	d, err := ParseDay(eventDay)
	if err != nil {
		return time.Time{}, err
	}
	local := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, zone)
	return local.UTC(), nil
}

// LocalDay returns the event-day string for instant t in zone.
func LocalDay(t time.Time, zone *time.Location) string {
	return t.In(zone).Format(DayFormat)
}

// NextLocalMidnight returns the UTC instant of the next local midnight after t
// in zone. Used to schedule daily-bankroll resets.
func NextLocalMidnight(t time.Time, zone *time.Location) time.Time {
	lt := t.In(zone)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, zone).AddDate(0, 0, 1)
	return next.UTC()
}
