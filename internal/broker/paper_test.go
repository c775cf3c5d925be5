package broker

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"weathertrader/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTrade() types.Trade {
	return types.Trade{
		Decision: types.Decision{
			Bracket: types.Bracket{
				MarketID: "m45",
				Name:     "45-46°F",
				LowerF:   45,
				UpperF:   46,
			},
			PZeus:        0.420,
			PMarket:      0.334,
			Edge:         0.078,
			FKelly:       0.10,
			SizeUSD:      300.00,
			SigmaUsed:    2.0,
			Reasons:      []types.Reason{types.ReasonStrongEdge, types.ReasonKellyCapped},
			DecisionTime: time.Date(2026, 8, 24, 14, 30, 5, 0, time.UTC),
			StationCode:  "KLGA",
			EventDay:     "2026-08-24",
		},
		Venue:   "paper",
		Outcome: types.OutcomePending,
	}
}

func readLog(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestPlaceWritesHeaderAndRow(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := NewPaper(dir, testLogger())

	if err := p.Place(context.Background(), testTrade()); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "trades", "2026-08-24", "paper_trades.csv")
	rows := readLog(t, path)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}

	header := rows[0]
	if len(header) != 19 || header[0] != "timestamp" || header[13] != "reason" || header[18] != "winner_bracket" {
		t.Errorf("header = %v", header)
	}

	row := rows[1]
	want := map[int]string{
		0:  "2026-08-24T14:30:05Z",
		1:  "KLGA",
		2:  "45-46°F",
		3:  "45",
		4:  "46",
		5:  "m45",
		6:  "0.078000",
		7:  "7.80",
		8:  "0.100000",
		9:  "300.00",
		10: "0.420000",
		11: "0.334000",
		12: "2.0000",
		13: "strong_edge,kelly_capped",
		14: "pending",
		15: "0.00",
		16: "paper",
		17: "",
		18: "",
	}
	for i, w := range want {
		if row[i] != w {
			t.Errorf("column %d (%s) = %q, want %q", i, header[i], row[i], w)
		}
	}
}

func TestPlaceAppendsWithoutDuplicateHeader(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := NewPaper(dir, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.Place(ctx, testTrade()); err != nil {
			t.Fatal(err)
		}
	}

	rows := readLog(t, filepath.Join(dir, "trades", "2026-08-24", "paper_trades.csv"))
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	for _, row := range rows[1:] {
		if row[0] == "timestamp" {
			t.Error("duplicate header in body")
		}
	}
}

func TestPlaceSplitsLogsByEventDay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := NewPaper(dir, testLogger())
	ctx := context.Background()

	tr := testTrade()
	if err := p.Place(ctx, tr); err != nil {
		t.Fatal(err)
	}
	tr.EventDay = "2026-08-25"
	if err := p.Place(ctx, tr); err != nil {
		t.Fatal(err)
	}

	for _, day := range []string{"2026-08-24", "2026-08-25"} {
		rows := readLog(t, filepath.Join(dir, "trades", day, "paper_trades.csv"))
		if len(rows) != 2 {
			t.Errorf("%s rows = %d", day, len(rows))
		}
	}
}

func TestPlaceConcurrentAppends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := NewPaper(dir, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Place(ctx, testTrade()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	rows := readLog(t, filepath.Join(dir, "trades", "2026-08-24", "paper_trades.csv"))
	if len(rows) != 21 {
		t.Fatalf("rows = %d, want header + 20", len(rows))
	}
	for _, row := range rows {
		if len(row) != 19 {
			t.Errorf("torn row with %d columns", len(row))
		}
	}
}

func TestPlaceCancelledContext(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := NewPaper(dir, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Place(ctx, testTrade())
	if !types.IsKind(err, types.KindCancelled) {
		t.Fatalf("kind = %q, err = %v", types.KindOf(err), err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "trades")); !os.IsNotExist(statErr) {
		t.Error("cancelled place touched the log")
	}
}
