// Package prob converts an hourly temperature forecast into a probability
// distribution over a market's bracket set.
//
// The daily high is modeled as Normal(mu, sigma) in Fahrenheit. mu is the
// maximum of the forecast's hourly values; for venues that settle against
// whole-degree METAR readings, mu follows the same two-step rounding chain as
// the resolution rule so our implied winning bracket cannot drift from the
// price-taker's by sub-degree noise. sigma comes from the configured spread
// model or the bands model, always clamped to [sigma_min, sigma_max].
package prob

import (
	"log/slog"
	"math"
	"time"

	"weathertrader/internal/config"
	"weathertrader/pkg/types"
	"weathertrader/pkg/units"
)

// Inputs carries everything one mapping needs. The mapper itself is
// stateless; calibration and toggles arrive per call so in-flight cycles keep
// the config snapshot they started with.
type Inputs struct {
	Forecast       *types.Forecast
	Brackets       []types.Bracket
	WholeDegrees   bool         // venue resolves on whole-degree METAR readings
	DoubleRounding bool         // polymarket_double_rounding feature toggle
	Calibration    *Calibration // nil when station calibration is disabled
	Zone           *time.Location
}

// Result is one mapping outcome: a probability per bracket summing to 1,
// plus the mu/sigma that produced it (recorded in snapshots and decisions).
type Result struct {
	Probs []types.BracketProb
	Mu    float64
	Sigma float64
}

// Mapper prices bracket sets from forecasts.
type Mapper struct {
	model  config.ModelConfig
	logger *slog.Logger
}

// NewMapper creates a mapper for the given model configuration.
func NewMapper(model config.ModelConfig, logger *slog.Logger) *Mapper {
	return &Mapper{
		model:  model,
		logger: logger.With("component", "prob"),
	}
}

// Map computes a BracketProb for every bracket in the set. Fails with
// EMPTY_FORECAST, INVALID_BRACKETS, or NUMERIC per the error taxonomy.
func (m *Mapper) Map(in Inputs) (*Result, error) {
	if in.Forecast == nil || len(in.Forecast.Points) == 0 {
		return nil, types.Errorf(types.KindEmptyForecast, "forecast has no points")
	}
	if err := types.ValidateBracketSet(in.Brackets); err != nil {
		return nil, err
	}

	points := in.Forecast.Points
	if in.Calibration != nil {
		points = in.Calibration.Apply(points, in.Zone)
	}

	mu := dailyHighMean(points, in.WholeDegrees && in.DoubleRounding)

	sigma, err := m.sigma()
	if err != nil {
		return nil, err
	}

	probs := make([]types.BracketProb, len(in.Brackets))
	sum := 0.0
	for i, b := range in.Brackets {
		var p float64
		switch {
		case b.IsUnder:
			p = normCDF((b.UpperF - mu) / sigma)
		case b.IsOver:
			p = 1 - normCDF((b.LowerF-mu)/sigma)
		default:
			p = normCDF((b.UpperF-mu)/sigma) - normCDF((b.LowerF-mu)/sigma)
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, types.Errorf(types.KindNumeric, "non-finite probability for bracket %s", b.MarketID)
		}
		probs[i] = types.BracketProb{Bracket: b, PZeus: p, SigmaUsed: sigma}
		sum += p
	}

	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, types.Errorf(types.KindNumeric, "degenerate probability mass %v", sum)
	}

	// Renormalize: the partition covers the whole line up to numerical error,
	// so this only removes float noise, never truncated mass.
	for i := range probs {
		probs[i].PZeus /= sum
	}

	return &Result{Probs: probs, Mu: mu, Sigma: sigma}, nil
}

// dailyHighMean computes mu in Fahrenheit. With doubleRound set it mirrors
// the whole-degree resolution rule: convert each hour precisely, round each
// hourly value to one decimal, take the max, then round half-up to a whole
// degree. Without it, mu is the precise hourly max.
func dailyHighMean(points []types.TemperaturePoint, doubleRound bool) float64 {
	max := math.Inf(-1)
	for _, p := range points {
		f := units.KelvinToFahrenheit(p.TempK)
		if doubleRound {
			f = units.RoundTenth(f)
		}
		if f > max {
			max = f
		}
	}
	if doubleRound {
		return units.RoundHalfUpWhole(max)
	}
	return max
}

// sigma derives the spread in Fahrenheit from the configured model, clamped
// to [SigmaMin, SigmaMax]. Under the strict policy a value outside the clamps
// is a NUMERIC error instead of being clamped.
func (m *Mapper) sigma() (float64, error) {
	var raw float64
	switch m.model.Mode {
	case config.ModelBands:
		raw = bandsSigma(m.model.ZeusLikelyPct, m.model.ZeusPossiblePct)
	default:
		raw = m.model.SigmaDefault
	}

	if raw < m.model.SigmaMin || raw > m.model.SigmaMax {
		if m.model.StrictSigma {
			return 0, types.Errorf(types.KindNumeric,
				"sigma %v outside clamps [%v, %v]", raw, m.model.SigmaMin, m.model.SigmaMax)
		}
		raw = math.Min(math.Max(raw, m.model.SigmaMin), m.model.SigmaMax)
	}
	return raw, nil
}

// bandsSigma picks sigma so the symmetric likely band around mu (width ±1°F,
// the immediate bracket neighborhood) holds likelyPct of the mass and the
// wider possible band (±2°F) holds possiblePct. The two implied sigmas are
// averaged.
func bandsSigma(likelyPct, possiblePct float64) float64 {
	zLikely := centralZ(likelyPct)
	zPossible := centralZ(possiblePct)
	if zLikely <= 0 || zPossible <= 0 {
		return math.NaN()
	}
	return (1.0/zLikely + 2.0/zPossible) / 2
}

// centralZ returns z such that the interval [-z, z] of a standard Normal
// holds probability p.
func centralZ(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(p)
}

// normCDF is the standard Normal CDF.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
