package sizing

import (
	"sync"
)

// DailyLedger tracks committed trade dollars against the process-wide daily
// bankroll cap. Totals are keyed by the station's local event-budget day, so
// each station's spend resets at its own local midnight while the cap itself
// is shared across the whole process.
//
// Reserve is all-or-nothing: a candidate either fits fully under the cap or
// is rejected. The engine serializes Reserve calls inside each cycle, and the
// internal mutex keeps concurrent tasks from over-committing.
type DailyLedger struct {
	mu     sync.Mutex
	totals map[string]float64 // local day -> committed USD
}

// NewDailyLedger creates an empty ledger.
func NewDailyLedger() *DailyLedger {
	return &DailyLedger{totals: make(map[string]float64)}
}

// Reserve commits amountUSD against day's budget if the whole amount fits
// under cap. Returns false (committing nothing) otherwise.
func (l *DailyLedger) Reserve(day string, amountUSD, cap float64) bool {
	if amountUSD <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.totals[day]+amountUSD > cap {
		return false
	}
	l.totals[day] += amountUSD
	return true
}

// Committed returns the USD already committed for day.
func (l *DailyLedger) Committed(day string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[day]
}

// Prune drops budget days other than the ones in keep, bounding ledger growth
// across long uptimes.
func (l *DailyLedger) Prune(keep map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for day := range l.totals {
		if !keep[day] {
			delete(l.totals, day)
		}
	}
}
