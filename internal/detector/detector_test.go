package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/internal/market"
)

type recordingHandler struct {
	ops []domain.FundingObservationPair
}

func (r *recordingHandler) OnOpportunity(op domain.FundingObservationPair) {
	r.ops = append(r.ops, op)
}

func testThresholds() Thresholds {
	return Thresholds{
		Warning:   decimal.NewFromFloat(0.0005),
		Critical:  decimal.NewFromFloat(0.001),
		Arbitrage: decimal.NewFromFloat(0.002),
	}
}

func TestObservePublishesWarningAlert(t *testing.T) {
	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventAlert, 1)
	defer unsub()

	d := New(testThresholds(), bus, nil)
	d.Observe(domain.FundingObservation{Venue: "venueA", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0006), ObservedAt: time.Now()})

	select {
	case v := <-alerts:
		alert := v.(events.Alert)
		if alert.Level != events.AlertWarning {
			t.Fatalf("expected warning level, got %s", alert.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a warning alert")
	}
}

func TestObservePublishesCriticalAlertAndIncrementsCounter(t *testing.T) {
	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventAlert, 2)
	defer unsub()

	d := New(testThresholds(), bus, nil)
	obs := domain.FundingObservation{Venue: "venueA", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0015), ObservedAt: time.Now()}
	d.Observe(obs)
	d.Observe(obs)

	if d.AlertCount("venueA", "BTCUSDT") != 2 {
		t.Fatalf("expected alert counter 2, got %d", d.AlertCount("venueA", "BTCUSDT"))
	}

	select {
	case v := <-alerts:
		alert := v.(events.Alert)
		if alert.Level != events.AlertCritical {
			t.Fatalf("expected critical level, got %s", alert.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a critical alert")
	}
}

func TestObserveResetsCounterBelowWarning(t *testing.T) {
	bus := events.NewBus()
	d := New(testThresholds(), bus, nil)

	d.Observe(domain.FundingObservation{Venue: "venueA", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0006), ObservedAt: time.Now()})
	if d.AlertCount("venueA", "BTCUSDT") != 1 {
		t.Fatalf("expected counter 1 after one warning reading, got %d", d.AlertCount("venueA", "BTCUSDT"))
	}

	d.Observe(domain.FundingObservation{Venue: "venueA", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0001), ObservedAt: time.Now()})
	if d.AlertCount("venueA", "BTCUSDT") != 0 {
		t.Fatalf("expected counter reset to 0 below warning, got %d", d.AlertCount("venueA", "BTCUSDT"))
	}
}

func TestAfterSnapshotCycleDetectsArbitrageAndNotifiesHandler(t *testing.T) {
	store := market.NewStore(10)
	now := time.Now()
	store.IngestFunding(domain.FundingObservation{Venue: "venueA", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0001), ObservedAt: now})
	store.IngestFunding(domain.FundingObservation{Venue: "venueB", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0035), ObservedAt: now})

	bus := events.NewBus()
	arb, unsub := bus.Subscribe(events.EventArbitrage, 1)
	defer unsub()

	handler := &recordingHandler{}
	d := New(testThresholds(), bus, handler)

	d.AfterSnapshotCycle(store)

	select {
	case v := <-arb:
		a := v.(events.Arbitrage)
		if a.Symbol != "BTCUSDT" || a.LongVenue != "venueA" || a.ShortVenue != "venueB" {
			t.Fatalf("unexpected arbitrage event: %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an arbitrage event")
	}

	if len(handler.ops) != 1 {
		t.Fatalf("expected exactly one opportunity dispatched to the handler, got %d", len(handler.ops))
	}
	if handler.ops[0].LongVenue != "venueA" || handler.ops[0].ShortVenue != "venueB" {
		t.Fatalf("unexpected opportunity: %+v", handler.ops[0])
	}
}

func TestAfterSnapshotCycleSkipsSpreadBelowArbitrageThreshold(t *testing.T) {
	store := market.NewStore(10)
	now := time.Now()
	store.IngestFunding(domain.FundingObservation{Venue: "venueA", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0001), ObservedAt: now})
	store.IngestFunding(domain.FundingObservation{Venue: "venueB", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.0005), ObservedAt: now})

	bus := events.NewBus()
	handler := &recordingHandler{}
	d := New(testThresholds(), bus, handler)

	d.AfterSnapshotCycle(store)

	if len(handler.ops) != 0 {
		t.Fatalf("expected no opportunity below arbitrage threshold, got %d", len(handler.ops))
	}
}

func TestAfterSnapshotCycleWithFewerThanTwoVenuesDoesNothing(t *testing.T) {
	store := market.NewStore(10)
	store.IngestFunding(domain.FundingObservation{Venue: "venueA", Symbol: "BTCUSDT", Rate: decimal.NewFromFloat(0.01), ObservedAt: time.Now()})

	bus := events.NewBus()
	handler := &recordingHandler{}
	d := New(testThresholds(), bus, handler)
	d.AfterSnapshotCycle(store)

	if len(handler.ops) != 0 {
		t.Fatal("expected no opportunity with a single venue observed")
	}
}
