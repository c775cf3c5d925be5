package broker

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"weathertrader/pkg/types"
)

// tradeHeader is the canonical trade CSV layout. Column order is stable;
// trailing resolution columns are left empty at write time and filled later
// by the out-of-process resolution job.
var tradeHeader = []string{
	"timestamp", "station_code", "bracket_name", "bracket_lower_f", "bracket_upper_f",
	"market_id", "edge", "edge_pct", "f_kelly", "size_usd", "p_zeus", "p_mkt",
	"sigma_z", "reason", "outcome", "realized_pnl", "venue", "resolved_at", "winner_bracket",
}

// Paper appends approved decisions to trades/{event_day}/paper_trades.csv.
// It is the sole writer of those files: appends hold an exclusive per-file
// lock and each row is flushed and fsynced before Place returns. The broker
// never reads the log back; resolution and reporting consume it.
type Paper struct {
	dataDir string
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-file append locks
}

var _ Broker = (*Paper)(nil)

// NewPaper creates a paper broker rooted at the data directory.
func NewPaper(dataDir string, logger *slog.Logger) *Paper {
	return &Paper{
		dataDir: dataDir,
		logger:  logger.With("component", "paper-broker"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Venue implements Broker.
func (p *Paper) Venue() string { return "paper" }

// Place implements Broker: appends one CSV row for the trade.
func (p *Paper) Place(ctx context.Context, trade types.Trade) error {
	if err := ctx.Err(); err != nil {
		return types.NewCycleError(types.KindCancelled, err)
	}

	path := p.logPath(trade.EventDay)
	lock := p.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trade dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat trade log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(tradeHeader); err != nil {
			return fmt.Errorf("write trade header: %w", err)
		}
	}
	if err := w.Write(tradeRow(trade)); err != nil {
		return fmt.Errorf("write trade row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush trade row: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync trade log: %w", err)
	}

	p.logger.Info("paper trade recorded",
		"station", trade.StationCode,
		"event_day", trade.EventDay,
		"bracket", trade.Bracket.Name,
		"size_usd", trade.SizeUSD,
	)
	return nil
}

func (p *Paper) logPath(eventDay string) string {
	return filepath.Join(p.dataDir, "trades", eventDay, "paper_trades.csv")
}

func (p *Paper) fileLock(path string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[path]
	if !ok {
		l = &sync.Mutex{}
		p.locks[path] = l
	}
	return l
}

func tradeRow(t types.Trade) []string {
	reasons := make([]string, len(t.Reasons))
	for i, r := range t.Reasons {
		reasons[i] = string(r)
	}

	resolvedAt := ""
	if t.ResolvedAt != nil {
		resolvedAt = t.ResolvedAt.UTC().Format(time.RFC3339)
	}

	return []string{
		t.DecisionTime.UTC().Format(time.RFC3339),
		t.StationCode,
		t.Bracket.Name,
		formatDegrees(t.Bracket.LowerF),
		formatDegrees(t.Bracket.UpperF),
		t.Bracket.MarketID,
		fmt.Sprintf("%.6f", t.Edge),
		fmt.Sprintf("%.2f", t.Edge*100),
		fmt.Sprintf("%.6f", t.FKelly),
		decimal.NewFromFloat(t.SizeUSD).StringFixed(2),
		fmt.Sprintf("%.6f", t.PZeus),
		fmt.Sprintf("%.6f", t.PMarket),
		fmt.Sprintf("%.4f", t.SigmaUsed),
		strings.Join(reasons, ","),
		string(t.Outcome),
		decimal.NewFromFloat(t.RealizedPnL).StringFixed(2),
		t.Venue,
		resolvedAt,
		t.WinnerBracket,
	}
}

func formatDegrees(f float64) string {
	return fmt.Sprintf("%.0f", f)
}
