package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/pkg/venue"
	"funding-hedge-core/pkg/venue/mock"
)

type fakeVenueSource struct {
	adapters []venue.Adapter
}

func (f *fakeVenueSource) All() []venue.Adapter { return f.adapters }

type fakeStopper struct {
	stopped bool
}

func (f *fakeStopper) SetEmergencyStop(v bool) { f.stopped = v }

func TestTickComputesExposureAndEmitsRiskExceeded(t *testing.T) {
	a := mock.New("venueA", decimal.NewFromInt(1000), mock.SimConfig{})
	a.SetMarkPrice("BTCUSDT", decimal.NewFromInt(100))
	ref, err := a.CreateMarketOrder(context.Background(), "BTCUSDT", domain.SideBuy, decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	_ = ref

	bus := events.NewBus()
	exceeded, unsub := bus.Subscribe(events.EventRiskExceeded, 1)
	defer unsub()

	cfg := DefaultConfig()
	e := New(cfg, &fakeVenueSource{adapters: []venue.Adapter{a}}, bus, &fakeStopper{})

	e.tick(context.Background())

	select {
	case <-exceeded:
	case <-time.After(time.Second):
		t.Fatal("expected risk_exceeded event: 500 notional long against 1000 balance exceeds 10% exposure")
	}

	snap := e.Snapshot()
	if !snap.Ratio.IsPositive() {
		t.Fatalf("expected positive net exposure ratio, got %s", snap.Ratio)
	}
}

func TestTickStaysQuietWithinExposureLimit(t *testing.T) {
	a := mock.New("venueA", decimal.NewFromInt(1_000_000), mock.SimConfig{})
	a.SetMarkPrice("BTCUSDT", decimal.NewFromInt(100))
	_, err := a.CreateMarketOrder(context.Background(), "BTCUSDT", domain.SideBuy, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("seed order failed: %v", err)
	}

	bus := events.NewBus()
	exceeded, unsub := bus.Subscribe(events.EventRiskExceeded, 1)
	defer unsub()

	e := New(DefaultConfig(), &fakeVenueSource{adapters: []venue.Adapter{a}}, bus, &fakeStopper{})
	e.tick(context.Background())

	select {
	case <-exceeded:
		t.Fatal("did not expect risk_exceeded for a tiny position against a large balance")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEmergencyShutdownClosesPositionsAndStopsHedging(t *testing.T) {
	a := mock.New("venueA", decimal.NewFromInt(10000), mock.SimConfig{})
	a.SetMarkPrice("BTCUSDT", decimal.NewFromInt(100))
	if _, err := a.CreateMarketOrder(context.Background(), "BTCUSDT", domain.SideBuy, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}

	bus := events.NewBus()
	shutdown, unsub := bus.Subscribe(events.EventEmergencyShutdown, 1)
	defer unsub()

	stopper := &fakeStopper{}
	e := New(DefaultConfig(), &fakeVenueSource{adapters: []venue.Adapter{a}}, bus, stopper)

	e.EmergencyShutdown(context.Background())

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("expected emergency_shutdown event")
	}

	if !stopper.stopped {
		t.Fatal("expected hedge manager's emergency stop to be set")
	}

	positions, err := a.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("get_positions failed: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected all positions closed, got %+v", positions)
	}
}

func TestExtremeLatchTracksRecentEventsBySymbol(t *testing.T) {
	bus := events.NewBus()
	e := New(DefaultConfig(), &fakeVenueSource{}, bus, &fakeStopper{})

	if e.ExtremeLatched("BTCUSDT") {
		t.Fatal("expected no latch before any extreme event")
	}

	bus.Publish(events.EventExtremeEvent, events.ExtremeEvent{Type: "price_crash", Symbol: "BTCUSDT"})

	deadline := time.After(time.Second)
	for !e.ExtremeLatched("BTCUSDT") {
		select {
		case <-deadline:
			t.Fatal("expected BTCUSDT to latch after an extreme event")
		default:
		}
	}

	if e.ExtremeLatched("ETHUSDT") {
		t.Fatal("expected a different symbol to remain unlatched")
	}
}
