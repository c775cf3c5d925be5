// Package broker records approved decisions as trades. Paper and (future)
// live execution share the same Broker contract: the engine hands over a
// Trade and the broker owns its persistence.
package broker

import (
	"context"

	"weathertrader/pkg/types"
)

// Broker places one trade per approved decision. Implementations are the
// sole writers of their trade log.
type Broker interface {
	// Place records the trade. The decision snapshot has already been
	// persisted when Place is called; a failure here surfaces as a cycle
	// failure but never rolls the snapshot back.
	Place(ctx context.Context, trade types.Trade) error

	// Venue is the tag written into the trade log's venue column.
	Venue() string
}
