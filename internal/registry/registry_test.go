package registry

import (
	"strings"
	"testing"
)

const testCSV = `code,city,latitude,longitude,iana_zone,venue_tag
KLGA,nyc,40.7769,-73.8740,America/New_York,polymarket
kden,Denver,39.8617,-104.6732,America/Denver,Polymarket
EGLC,london,51.5053,0.0553,Europe/London,polymarket
`

func TestParseRegistry(t *testing.T) {
	t.Parallel()
	reg, err := parse(strings.NewReader(testCSV))
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 3 {
		t.Fatalf("Len = %d", reg.Len())
	}

	st, ok := reg.Get("KLGA")
	if !ok {
		t.Fatal("KLGA missing")
	}
	if st.City != "nyc" || st.VenueTag != "polymarket" || st.IANAZone != "America/New_York" {
		t.Errorf("KLGA = %+v", st)
	}

	// Codes normalize to upper case, cities and venue tags to lower.
	st, ok = reg.Get("KDEN")
	if !ok {
		t.Fatal("KDEN missing")
	}
	if st.Code != "KDEN" || st.City != "denver" || st.VenueTag != "polymarket" {
		t.Errorf("KDEN = %+v", st)
	}
	if _, ok := reg.Get("kden"); !ok {
		t.Error("lookup should be case-insensitive")
	}

	zone, ok := reg.Zone("EGLC")
	if !ok || zone.String() != "Europe/London" {
		t.Errorf("EGLC zone = %v, %v", zone, ok)
	}

	all := reg.All()
	if len(all) != 3 || all[0].Code != "KLGA" || all[2].Code != "EGLC" {
		t.Errorf("All out of file order: %+v", all)
	}
}

func TestParseRegistryRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		csv  string
	}{
		{"bad header", "name,town\nKLGA,nyc\n"},
		{"empty body", "code,city,latitude,longitude,iana_zone,venue_tag\n"},
		{"bad zone", "code,city,latitude,longitude,iana_zone,venue_tag\nKLGA,nyc,40.7,-73.8,Mars/Olympus,polymarket\n"},
		{"bad latitude", "code,city,latitude,longitude,iana_zone,venue_tag\nKLGA,nyc,north,-73.8,America/New_York,polymarket\n"},
		{"duplicate code", testCSV + "KLGA,nyc,40.7769,-73.8740,America/New_York,polymarket\n"},
		{"short row", "code,city,latitude,longitude,iana_zone,venue_tag\nKLGA,nyc\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parse(strings.NewReader(tc.csv)); err == nil {
				t.Error("expected parse failure")
			}
		})
	}
}
