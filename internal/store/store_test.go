package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"backtester/internal/domain"
	"backtester/internal/event"
	"backtester/internal/portfolio"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("aapl", "us", 2024)
	wantBarPath := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	cp := ps.curvePath("run-1")
	wantCurvePath := filepath.Join("/data", "runs", "run-1", "equity.parquet")
	if cp != wantCurvePath {
		t.Errorf("curvePath mismatch:\n  got  %s\n  want %s", cp, wantCurvePath)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      185.0,
			High:      186.5,
			Low:       184.0,
			Close:     185.5,
			AdjClose:  184.9,
			Volume:    50000000,
		},
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      185.5,
			High:      187.0,
			Low:       185.0,
			Close:     186.0,
			AdjClose:  185.4,
			Volume:    45000000,
		},
	}

	if err := ps.WriteBars(ctx, bars, "us"); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[0].AdjClose != 184.9 {
		t.Errorf("first bar AdjClose = %v, want 184.9", got[0].AdjClose)
	}
	if !got[1].Timestamp.Equal(bars[1].Timestamp) {
		t.Errorf("second bar Timestamp = %v, want %v", got[1].Timestamp, bars[1].Timestamp)
	}
}

func TestParquetStoreReadBarsRange(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	var bars []domain.Bar
	for _, d := range []time.Time{
		time.Date(2023, 12, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	} {
		bars = append(bars, domain.Bar{Symbol: "SPY", Timestamp: d, Close: 470})
	}
	if err := ps.WriteBars(ctx, bars, "us"); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Spans two year files.
	got, err := ps.ReadBars(ctx, "SPY", "us",
		time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}

	// Zero end reads to the last bar.
	got, err = ps.ReadBars(ctx, "SPY", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars open range: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("ReadBars open range returned %d bars, want 4", len(got))
	}

	got, err = ps.ReadBars(ctx, "QQQ", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars unknown symbol: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars unknown symbol returned %d bars, want 0", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars1 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      400.0, High: 405.0, Low: 399.0, Close: 403.0, AdjClose: 403.0,
			Volume: 30000000,
		},
	}
	if err := ps.WriteBars(ctx, bars1, "us"); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Another bar for the same symbol+year merges rather than overwrites, and
	// a repeated timestamp replaces the earlier record.
	bars2 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      400.0, High: 405.0, Low: 399.0, Close: 404.0, AdjClose: 404.0,
			Volume: 30000000,
		},
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Open:      403.0, High: 410.0, Low: 402.0, Close: 408.0, AdjClose: 408.0,
			Volume: 35000000,
		},
	}
	if err := ps.WriteBars(ctx, bars2, "us"); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404.0 {
		t.Errorf("merged bar Close = %v, want 404", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185.5, Volume: 50000000},
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 140.5, Volume: 20000000},
	}
	if err := ps.WriteBars(ctx, bars, "us"); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("ListSymbols returned %d symbols, want 2", len(symbols))
	}
	if symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}

	symbols, err = ps.ListSymbols(ctx, "cn")
	if err != nil || symbols != nil {
		t.Errorf("ListSymbols(cn) = %v, %v; want nil, nil", symbols, err)
	}
}

func TestParquetStoreCurve(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	curve := []portfolio.CurvePoint{
		{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Total: 1000, Return: 0, Growth: 1},
		{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Total: 1100, Return: 0.1, Growth: 1.1},
	}
	if err := ps.WriteCurve(ctx, "run-1", curve); err != nil {
		t.Fatalf("WriteCurve: %v", err)
	}

	got, err := ps.ReadCurve(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadCurve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadCurve returned %d points, want 2", len(got))
	}
	if !got[1].Timestamp.Equal(curve[1].Timestamp) || got[1].Total != 1100 || got[1].Return != 0.1 || got[1].Growth != 1.1 {
		t.Errorf("ReadCurve[1] = %+v, want %+v", got[1], curve[1])
	}

	if _, err := ps.ReadCurve(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ReadCurve(missing) error = %v, want ErrRunNotFound", err)
	}
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return s
}

func TestSQLiteStoreOpen(t *testing.T) {
	s := openSQLite(t)
	if err := s.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func TestSQLiteStoreSaveAndGetRun(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	run := &domain.Run{
		ID:               "run-1",
		Strategy:         "buy-and-hold",
		Symbols:          []string{"AAPL", "MSFT"},
		StartedAt:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		FirstBar:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		LastBar:          time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		InitialCapital:   100000,
		FinalEquity:      104500,
		TotalReturn:      0.045,
		SharpeRatio:      1.25,
		MaxDrawdown:      0.03,
		DrawdownDuration: 7,
		Ticks:            104,
		Fills:            2,
	}
	buy := event.NewOrder("AAPL", 10, domain.OrderSideBuy)
	sell := event.NewOrder("MSFT", 5, domain.OrderSideSell)
	fills := []event.Fill{
		event.NewFill(buy, run.FirstBar, "ARCA", 185.5, 0),
		event.NewFill(sell, run.FirstBar, "ARCA", 370.0, 1.5),
	}

	if err := s.SaveRun(ctx, run, fills); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != run.Strategy || got.FinalEquity != run.FinalEquity || got.DrawdownDuration != 7 {
		t.Errorf("GetRun = %+v, want %+v", got, run)
	}
	if len(got.Symbols) != 2 || got.Symbols[1] != "MSFT" {
		t.Errorf("GetRun Symbols = %v, want [AAPL MSFT]", got.Symbols)
	}
	if !got.LastBar.Equal(run.LastBar) {
		t.Errorf("GetRun LastBar = %v, want %v", got.LastBar, run.LastBar)
	}

	gotFills, err := s.ListFills(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListFills: %v", err)
	}
	if len(gotFills) != 2 {
		t.Fatalf("ListFills returned %d fills, want 2", len(gotFills))
	}
	if gotFills[0].OrderID != buy.ID || gotFills[1].Side != domain.OrderSideSell {
		t.Errorf("ListFills = %+v", gotFills)
	}
	if gotFills[1].Commission != 1.5 {
		t.Errorf("fill Commission = %v, want 1.5", gotFills[1].Commission)
	}

	// Duplicate IDs are rejected and leave no partial fills behind.
	if err := s.SaveRun(ctx, run, fills); err == nil {
		t.Error("SaveRun with duplicate ID returned nil error")
	}
	gotFills, _ = s.ListFills(ctx, "run-1")
	if len(gotFills) != 2 {
		t.Errorf("ListFills after failed save returned %d fills, want 2", len(gotFills))
	}
}

func TestSQLiteStoreGetRunNotFound(t *testing.T) {
	s := openSQLite(t)
	if _, err := s.GetRun(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := &domain.Run{ID: id, Strategy: "ma-cross", Symbols: []string{"SPY"}, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.SaveRun(ctx, run, nil); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("ListRuns order = [%s %s], want [c b]", runs[0].ID, runs[1].ID)
	}

	all, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns(0): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListRuns(0) returned %d runs, want 3", len(all))
	}
}
