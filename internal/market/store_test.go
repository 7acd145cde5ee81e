package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
)

func obsAt(venue, symbol string, rate float64, ts time.Time) domain.FundingObservation {
	return domain.FundingObservation{
		Venue:      venue,
		Symbol:     symbol,
		Rate:       decimal.NewFromFloat(rate),
		ObservedAt: ts,
	}
}

func TestIngestFundingTracksLatestAndHistory(t *testing.T) {
	s := NewStore(3)
	now := time.Now()

	_, ok := s.IngestFunding(obsAt("venueA", "BTCUSDT", 0.0001, now))
	if ok {
		t.Fatal("expected no previous observation on first ingest")
	}

	prev, ok := s.IngestFunding(obsAt("venueA", "BTCUSDT", 0.0002, now.Add(time.Second)))
	if !ok || !prev.Rate.Equal(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("expected previous rate 0.0001, got %+v ok=%v", prev, ok)
	}

	latest, ok := s.LatestFunding("venueA", "BTCUSDT")
	if !ok || !latest.Rate.Equal(decimal.NewFromFloat(0.0002)) {
		t.Fatalf("expected latest rate 0.0002, got %+v", latest)
	}
}

func TestIngestFundingCapsHistoryAtConfiguredSize(t *testing.T) {
	s := NewStore(2)
	now := time.Now()

	for i := 0; i < 5; i++ {
		s.IngestFunding(obsAt("venueA", "BTCUSDT", float64(i)*0.0001, now.Add(time.Duration(i)*time.Second)))
	}

	hist := s.History("venueA", "BTCUSDT")
	if len(hist) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(hist))
	}
	if !hist[len(hist)-1].Rate.Equal(decimal.NewFromFloat(0.0004)) {
		t.Fatalf("expected most recent entry preserved, got %+v", hist)
	}
}

func TestLatestFundingMissingRowReturnsFalse(t *testing.T) {
	s := NewStore(10)
	if _, ok := s.LatestFunding("nope", "BTCUSDT"); ok {
		t.Fatal("expected ok=false for unknown row")
	}
}

func TestIngestQuoteAndLatestQuote(t *testing.T) {
	s := NewStore(10)
	q := domain.MarketQuote{Venue: "venueA", Symbol: "BTCUSDT", MarkPrice: decimal.NewFromInt(50000), ObservedAt: time.Now()}
	s.IngestQuote(q)

	got, ok := s.LatestQuote("venueA", "BTCUSDT")
	if !ok || !got.MarkPrice.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("expected mark price 50000, got %+v ok=%v", got, ok)
	}
}

func TestLatestBySymbolReturnsEveryVenueWithObservation(t *testing.T) {
	s := NewStore(10)
	now := time.Now()
	s.IngestFunding(obsAt("venueA", "BTCUSDT", 0.0001, now))
	s.IngestFunding(obsAt("venueB", "BTCUSDT", 0.0003, now))
	s.IngestFunding(obsAt("venueA", "ETHUSDT", 0.0002, now))

	bySymbol := s.LatestBySymbol("BTCUSDT")
	if len(bySymbol) != 2 {
		t.Fatalf("expected 2 venues for BTCUSDT, got %d", len(bySymbol))
	}
	if _, ok := bySymbol["venueA"]; !ok {
		t.Fatal("expected venueA present")
	}
	if _, ok := bySymbol["venueB"]; !ok {
		t.Fatal("expected venueB present")
	}
}

func TestCommonSymbolsRequiresPresenceAcrossAllObservedVenues(t *testing.T) {
	s := NewStore(10)
	now := time.Now()
	s.IngestFunding(obsAt("venueA", "BTCUSDT", 0.0001, now))
	s.IngestFunding(obsAt("venueB", "BTCUSDT", 0.0003, now))
	s.IngestFunding(obsAt("venueA", "ETHUSDT", 0.0002, now))

	common, venueCount := s.CommonSymbols()
	if venueCount != 2 {
		t.Fatalf("expected 2 distinct venues, got %d", venueCount)
	}
	if len(common) != 1 || common[0] != "BTCUSDT" {
		t.Fatalf("expected only BTCUSDT common to both venues, got %v", common)
	}
}

func TestCommonSymbolsWithFewerThanTwoVenuesIsEmpty(t *testing.T) {
	s := NewStore(10)
	s.IngestFunding(obsAt("venueA", "BTCUSDT", 0.0001, time.Now()))

	common, venueCount := s.CommonSymbols()
	if venueCount != 1 || common != nil {
		t.Fatalf("expected no common symbols with a single venue, got %v count=%d", common, venueCount)
	}
}
