// Package registry loads the immutable station catalog from
// registry/stations.csv. Stations are read once at startup; every IANA zone
// is resolved eagerly so the engine never hits a bad zone mid-cycle.
package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"weathertrader/pkg/types"
)

// Registry is an immutable lookup of stations by ICAO code.
type Registry struct {
	byCode map[string]types.Station
	zones  map[string]*time.Location
	order  []string // codes in file order, for stable listings
}

// Load reads and validates stations.csv. Expected header:
// code,city,latitude,longitude,iana_zone,venue_tag
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station registry: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read registry header: %w", err)
	}
	if len(header) < 6 || !strings.EqualFold(header[0], "code") {
		return nil, fmt.Errorf("unexpected registry header: %v", header)
	}

	reg := &Registry{
		byCode: make(map[string]types.Station),
		zones:  make(map[string]*time.Location),
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read registry row: %w", err)
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("registry row too short: %v", rec)
		}

		lat, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("station %s: bad latitude %q: %w", rec[0], rec[2], err)
		}
		lon, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("station %s: bad longitude %q: %w", rec[0], rec[3], err)
		}

		st := types.Station{
			Code:      strings.ToUpper(strings.TrimSpace(rec[0])),
			City:      strings.ToLower(strings.TrimSpace(rec[1])),
			Latitude:  lat,
			Longitude: lon,
			IANAZone:  strings.TrimSpace(rec[4]),
			VenueTag:  strings.ToLower(strings.TrimSpace(rec[5])),
		}

		if st.Code == "" {
			return nil, fmt.Errorf("registry row with empty station code: %v", rec)
		}
		if _, dup := reg.byCode[st.Code]; dup {
			return nil, fmt.Errorf("duplicate station code %s", st.Code)
		}

		loc, err := time.LoadLocation(st.IANAZone)
		if err != nil {
			return nil, fmt.Errorf("station %s: invalid zone %q: %w", st.Code, st.IANAZone, err)
		}

		reg.byCode[st.Code] = st
		reg.zones[st.Code] = loc
		reg.order = append(reg.order, st.Code)
	}

	if len(reg.byCode) == 0 {
		return nil, fmt.Errorf("station registry is empty")
	}
	return reg, nil
}

// Get returns the station for code.
func (r *Registry) Get(code string) (types.Station, bool) {
	st, ok := r.byCode[strings.ToUpper(code)]
	return st, ok
}

// Zone returns the pre-resolved location for code.
func (r *Registry) Zone(code string) (*time.Location, bool) {
	loc, ok := r.zones[strings.ToUpper(code)]
	return loc, ok
}

// All returns every station in file order.
func (r *Registry) All() []types.Station {
	out := make([]types.Station, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.byCode[code])
	}
	return out
}

// Len returns the number of stations.
func (r *Registry) Len() int { return len(r.byCode) }
