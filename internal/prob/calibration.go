package prob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"weathertrader/pkg/types"
)

// Calibration is a per-station bias correction: a 12x24 month-by-hour bias
// matrix plus a scalar elevation offset, both in Celsius. The correction is a
// pure additive transform on the hourly temperatures, applied before any
// mu/sigma work.
type Calibration struct {
	StationCode      string          `json:"station_code"`
	BiasC            [12][24]float64 `json:"bias_c"`
	ElevationOffsetC float64         `json:"elevation_offset_c"`
}

// Apply returns a corrected copy of points. Month and hour are taken in the
// station's local zone (the bias matrix is keyed by local climate hours). A
// Celsius delta is the same magnitude in Kelvin, so the correction adds
// directly to TempK.
func (c *Calibration) Apply(points []types.TemperaturePoint, zone *time.Location) []types.TemperaturePoint {
	if zone == nil {
		zone = time.UTC
	}
	out := make([]types.TemperaturePoint, len(points))
	for i, p := range points {
		lt := p.Time.In(zone)
		delta := c.BiasC[int(lt.Month())-1][lt.Hour()] + c.ElevationOffsetC
		out[i] = types.TemperaturePoint{Time: p.Time, TempK: p.TempK + delta}
	}
	return out
}

// CalibrationPath returns the on-disk location of a station's calibration table.
func CalibrationPath(dataDir, stationCode string) string {
	return filepath.Join(dataDir, "calibration", "station_calibration_"+stationCode+".json")
}

// LoadCalibration reads a station's calibration table. A missing file is not
// an error: the station simply runs uncalibrated.
func LoadCalibration(dataDir, stationCode string) (*Calibration, error) {
	data, err := os.ReadFile(CalibrationPath(dataDir, stationCode))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read calibration for %s: %w", stationCode, err)
	}
	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, types.Errorf(types.KindInvalidResponse, "parse calibration for %s: %v", stationCode, err)
	}
	if c.StationCode == "" {
		c.StationCode = stationCode
	}
	return &c, nil
}
