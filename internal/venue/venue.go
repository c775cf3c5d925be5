// Package venue defines the capability set a prediction-market venue must
// provide to the engine. Venue implementations are explicit tagged variants
// (see the polymarket subpackage); the engine never inspects a venue beyond
// this interface.
package venue

import (
	"context"
	"errors"

	"weathertrader/pkg/types"
)

// ErrNoMarkets is wrapped by ListBrackets when the venue exposes no bracket
// markets for a (city, eventDay). The engine treats it as an empty task, not
// a cycle failure: lookahead days often have no listing yet.
var ErrNoMarkets = errors.New("no bracket markets listed")

// Venue exposes daily temperature bracket markets for a city.
type Venue interface {
	// Name is the venue tag stations reference in the registry.
	Name() string

	// ListBrackets discovers the bracket set for (city, eventDay). The
	// returned set is validated as a partition; a non-partitioning set fails
	// with INVALID_BRACKETS.
	ListBrackets(ctx context.Context, city, eventDay string) ([]types.Bracket, error)

	// Prices fetches best bid/ask, mid probability, and top-of-book depth for
	// the given market ids. Missing ids are absent from the result map.
	Prices(ctx context.Context, marketIDs []string) (map[string]types.BracketPrice, error)

	// ResolvesOnWholeDegrees reports whether the venue settles against
	// whole-degree METAR readings, which switches the probability mapper to
	// the double-rounded daily-high mean.
	ResolvesOnWholeDegrees() bool
}
