package polymarket

import (
	"regexp"
	"strconv"
	"strings"

	"weathertrader/pkg/types"
)

// Bracket titles come in three forms, with unicode and ASCII variants:
//
//	interior: "58-59°F", "58–59°F", "58 - 59"
//	under:    "< 40°F", "<40", "below 40°F"
//	over:     "≥ 90°F", ">=90", "90°F or above"
var (
	reInterior = regexp.MustCompile(`^\s*(-?\d+)\s*[-–]\s*(-?\d+)\s*°?F?\s*$`)
	reUnder    = regexp.MustCompile(`^\s*(?:<|below\s+)\s*(-?\d+)\s*°?F?\s*$`)
	reOver     = regexp.MustCompile(`^\s*(?:≥|>=|above\s+)\s*(-?\d+)\s*°?F?\s*$|^\s*(-?\d+)\s*°?F?\s+or\s+above\s*$`)
)

// parseBracketName parses a venue bracket title into bounds. Returns false
// when the title does not describe a temperature bracket.
func parseBracketName(marketID, name string) (types.Bracket, bool) {
	label := strings.TrimSpace(name)

	if m := reInterior.FindStringSubmatch(label); m != nil {
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || hi <= lo {
			return types.Bracket{}, false
		}
		// "58-59°F" is the half-open degree bracket [58, 59).
		return types.Bracket{
			MarketID: marketID,
			Name:     label,
			LowerF:   lo,
			UpperF:   hi,
		}, true
	}

	if m := reUnder.FindStringSubmatch(label); m != nil {
		bound, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return types.Bracket{}, false
		}
		return types.Bracket{
			MarketID: marketID,
			Name:     label,
			UpperF:   bound,
			IsUnder:  true,
		}, true
	}

	if m := reOver.FindStringSubmatch(label); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		bound, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Bracket{}, false
		}
		return types.Bracket{
			MarketID: marketID,
			Name:     label,
			LowerF:   bound,
			IsOver:   true,
		}, true
	}

	return types.Bracket{}, false
}
