package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Fatal("expected buy's opposite to be sell")
	}
	if SideSell.Opposite() != SideBuy {
		t.Fatal("expected sell's opposite to be buy")
	}
}

func TestPositionSignedValue(t *testing.T) {
	long := Position{Side: SideBuy, Size: decimal.NewFromInt(2), MarkPrice: decimal.NewFromInt(100)}
	if !long.SignedValue().Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected long signed value 200, got %s", long.SignedValue())
	}

	short := Position{Side: SideSell, Size: decimal.NewFromInt(2), MarkPrice: decimal.NewFromInt(100)}
	if !short.SignedValue().Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("expected short signed value -200, got %s", short.SignedValue())
	}
}

func TestHedgeStateTerminal(t *testing.T) {
	terminal := []HedgeState{HedgeClosed, HedgeFailed, HedgeCloseFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}

	nonTerminal := []HedgeState{HedgeOpening, HedgeActive, HedgeClosing}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Fatalf("expected %s to not be terminal", s)
		}
	}
}

func TestHedgeKeyIsDeterministicAndOrderSensitive(t *testing.T) {
	a := HedgeKey("BTCUSDT", "venueA", "venueB")
	b := HedgeKey("BTCUSDT", "venueA", "venueB")
	if a != b {
		t.Fatal("expected HedgeKey to be deterministic for identical inputs")
	}

	reversed := HedgeKey("BTCUSDT", "venueB", "venueA")
	if a == reversed {
		t.Fatal("expected swapping long/short venues to change the key")
	}
}

func TestUpdateVolatilityAppliesEWMA(t *testing.T) {
	p := &RiskParams{Volatility: decimal.NewFromFloat(0.10)}
	p.UpdateVolatility(decimal.NewFromFloat(0.20))

	want := decimal.NewFromFloat(0.10).Mul(decimal.NewFromFloat(0.9)).
		Add(decimal.NewFromFloat(0.20).Mul(decimal.NewFromFloat(0.1)))
	if !p.Volatility.Equal(want) {
		t.Fatalf("expected volatility %s, got %s", want, p.Volatility)
	}
}

func TestAddRealizedAccumulatesDailyAndTotal(t *testing.T) {
	p := &Pnl{}
	p.AddRealized(decimal.NewFromInt(10))
	p.AddRealized(decimal.NewFromInt(-3))

	if !p.Daily.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected daily 7, got %s", p.Daily)
	}
	if !p.Total.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected total 7, got %s", p.Total)
	}
}

func TestMaybeResetDailyOnlyResetsOnceInWindow(t *testing.T) {
	p := &Pnl{Daily: decimal.NewFromInt(50)}
	day := time.Date(2026, 7, 31, 0, 5, 0, 0, time.UTC)

	p.MaybeResetDaily(day)
	if !p.Daily.IsZero() {
		t.Fatalf("expected daily reset to zero inside the reset window, got %s", p.Daily)
	}

	p.Daily = decimal.NewFromInt(5)
	p.MaybeResetDaily(day.Add(2 * time.Minute))
	if !p.Daily.Equal(decimal.NewFromInt(5)) {
		t.Fatal("expected a second reset within the same day's window to be skipped")
	}
}

func TestMaybeResetDailyOutsideWindowDoesNothing(t *testing.T) {
	p := &Pnl{Daily: decimal.NewFromInt(50)}
	outside := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	p.MaybeResetDaily(outside)
	if !p.Daily.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected no reset outside the window, got %s", p.Daily)
	}
}

func TestMaybeResetDailyResetsAgainOnNextDay(t *testing.T) {
	p := &Pnl{Daily: decimal.NewFromInt(50)}
	day1 := time.Date(2026, 7, 31, 0, 5, 0, 0, time.UTC)
	p.MaybeResetDaily(day1)

	p.Daily = decimal.NewFromInt(20)
	day2 := time.Date(2026, 8, 1, 0, 5, 0, 0, time.UTC)
	p.MaybeResetDaily(day2)

	if !p.Daily.IsZero() {
		t.Fatalf("expected reset to fire again on the next day, got %s", p.Daily)
	}
}
