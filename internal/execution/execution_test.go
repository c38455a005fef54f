package execution

import (
	"errors"
	"testing"
	"time"

	"backtester/internal/data"
	"backtester/internal/domain"
	"backtester/internal/event"
)

func newView(t *testing.T) *data.ReplaySource {
	t.Helper()
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	src, err := data.NewReplaySource(event.NewQueue(), []string{"AAPL"}, map[string][]domain.Bar{
		"AAPL": {{Symbol: "AAPL", Timestamp: ts, Close: 185.5, AdjClose: 185}},
	}, domain.PriceClose, domain.TimeTimestamp)
	if err != nil {
		t.Fatalf("NewReplaySource: %v", err)
	}
	src.AdvanceAndPublish()
	return src
}

func TestIdealizedName(t *testing.T) {
	s := NewIdealized(nil, "")
	if got := s.Name(); got != "idealized" {
		t.Errorf("Idealized.Name() = %q, want %q", got, "idealized")
	}
	if s.venue != DefaultVenue {
		t.Errorf("default venue = %q, want %q", s.venue, DefaultVenue)
	}
}

func TestIdealizedExecute(t *testing.T) {
	view := newView(t)
	s := NewIdealized(view, "TEST")

	order := event.NewOrder("AAPL", 7, domain.OrderSideSell)
	fill, err := s.Execute(order)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if fill.OrderID != order.ID {
		t.Error("fill does not reference the order")
	}
	if fill.Quantity != 7 || fill.Side != domain.OrderSideSell {
		t.Errorf("fill qty/side = %v/%s, want 7/SELL", fill.Quantity, fill.Side)
	}
	if fill.Price != 185.5 {
		t.Errorf("fill.Price = %v, want 185.5", fill.Price)
	}
	if fill.Commission != 0 {
		t.Errorf("fill.Commission = %v, want 0", fill.Commission)
	}
	if fill.Venue != "TEST" {
		t.Errorf("fill.Venue = %q, want %q", fill.Venue, "TEST")
	}
	if !fill.Timestamp.Equal(view.Now()) {
		t.Errorf("fill.Timestamp = %v, want %v", fill.Timestamp, view.Now())
	}
}

func TestIdealizedUnknownSymbol(t *testing.T) {
	s := NewIdealized(newView(t), "")
	_, err := s.Execute(event.NewOrder("MSFT", 1, domain.OrderSideBuy))
	if !errors.Is(err, data.ErrSymbolNotFound) {
		t.Fatalf("Execute error = %v, want ErrSymbolNotFound", err)
	}
}
