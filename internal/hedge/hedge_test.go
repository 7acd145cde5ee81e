package hedge

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

type fakeLookup struct {
	adapters map[string]venue.Adapter
}

func (f *fakeLookup) Get(name string) (venue.Adapter, error) {
	a, ok := f.adapters[name]
	if !ok {
		return nil, venue.New(venue.KindNotFound, "no such venue: "+name)
	}
	return a, nil
}

func newTestManager(t *testing.T) (*Manager, *mock.Adapter, *mock.Adapter, *events.Bus) {
	t.Helper()
	long := mock.New("venueA", decimal.NewFromInt(10000), mock.SimConfig{})
	short := mock.New("venueB", decimal.NewFromInt(10000), mock.SimConfig{})
	long.SetMarkPrice("BTCUSDT", decimal.NewFromInt(50000))
	short.SetMarkPrice("BTCUSDT", decimal.NewFromInt(50000))

	bus := events.NewBus()
	lookup := &fakeLookup{adapters: map[string]venue.Adapter{"venueA": long, "venueB": short}}
	cfg := DefaultConfig()
	m := New(cfg, lookup, bus)
	return m, long, short, bus
}

func waitFor(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestOpenActivatesOnBothLegsFilled(t *testing.T) {
	m, _, _, bus := newTestManager(t)
	m.SetAutoHedge(true)

	opened, unsub := bus.Subscribe(events.EventHedgeOpened, 1)
	defer unsub()

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)

	waitFor(t, opened)

	key := domain.HedgeKey("BTCUSDT", "venueA", "venueB")
	h, ok := m.Get(key)
	if !ok {
		t.Fatal("expected hedge record to exist")
	}
	if h.State != domain.HedgeActive {
		t.Fatalf("expected state active, got %s", h.State)
	}
	if !h.Size.IsPositive() {
		t.Fatalf("expected positive size, got %s", h.Size)
	}
}

func TestOnOpportunityIsIdempotent(t *testing.T) {
	m, _, _, bus := newTestManager(t)
	m.SetAutoHedge(true)

	opened, unsub := bus.Subscribe(events.EventHedgeOpened, 4)
	defer unsub()

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)
	waitFor(t, opened)

	// Repeated notifications for the same pair must not open a second time.
	m.OnOpportunity(op)
	m.OnOpportunity(op)

	select {
	case <-opened:
		t.Fatal("expected no second hedge_opened event")
	case <-time.After(300 * time.Millisecond):
	}

	all := m.All()
	if len(all) != 1 {
		t.Fatalf("expected exactly one hedge record, got %d", len(all))
	}
}

func TestOnOpportunityDisabledWhenAutoHedgeOff(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	// AutoHedge left false (DefaultConfig).

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)

	time.Sleep(100 * time.Millisecond)
	if len(m.All()) != 0 {
		t.Fatal("expected no hedge record when auto_hedge is disabled")
	}
}

func TestOnOpportunityDisabledDuringEmergencyStop(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	m.SetAutoHedge(true)
	m.SetEmergencyStop(true)

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)

	time.Sleep(100 * time.Millisecond)
	if len(m.All()) != 0 {
		t.Fatal("expected no hedge record during emergency stop")
	}
}

type fakeExtremeGuard struct{ latched map[string]bool }

func (g *fakeExtremeGuard) ExtremeLatched(symbol string) bool { return g.latched[symbol] }

func TestOnOpportunitySkippedWhenExtremeLatched(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	m.SetAutoHedge(true)
	m.SetExtremeGuard(&fakeExtremeGuard{latched: map[string]bool{"BTCUSDT": true}})

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)

	time.Sleep(100 * time.Millisecond)
	if len(m.All()) != 0 {
		t.Fatal("expected no hedge record while the symbol's extreme-event latch is set")
	}
}

func TestOpenFailsBothLegsOnError(t *testing.T) {
	m, long, short, bus := newTestManager(t)
	m.SetAutoHedge(true)
	long.FailNext("BTCUSDT", venue.New(venue.KindNetwork, "simulated network error"))
	short.FailNext("BTCUSDT", venue.New(venue.KindNetwork, "simulated network error"))

	failed, unsub := bus.Subscribe(events.EventHedgeFailed, 1)
	defer unsub()

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)
	waitFor(t, failed)

	key := domain.HedgeKey("BTCUSDT", "venueA", "venueB")
	h, ok := m.Get(key)
	if !ok || h.State != domain.HedgeFailed {
		t.Fatalf("expected failed state, got %+v ok=%v", h, ok)
	}
}

func TestOpenReconcilesPartialFill(t *testing.T) {
	m, long, _, bus := newTestManager(t)
	m.SetAutoHedge(true)
	long.FailNext("BTCUSDT", venue.New(venue.KindNetwork, "simulated network error"))

	failed, unsub := bus.Subscribe(events.EventHedgeFailed, 1)
	defer unsub()

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)

	v := waitFor(t, failed)
	hf, ok := v.(events.HedgeFailed)
	if !ok || !hf.PartialFill {
		t.Fatalf("expected a partial-fill failure event, got %+v", v)
	}

	key := domain.HedgeKey("BTCUSDT", "venueA", "venueB")
	h, ok := m.Get(key)
	if !ok || h.State != domain.HedgeFailed || !h.PartialFill {
		t.Fatalf("expected failed+partial_fill state, got %+v ok=%v", h, ok)
	}
}

func TestCloseUnwindsBothLegsAndPublishesClosed(t *testing.T) {
	m, long, short, bus := newTestManager(t)
	m.SetAutoHedge(true)

	opened, unsub := bus.Subscribe(events.EventHedgeOpened, 1)
	defer unsub()
	closedCh, unsub2 := bus.Subscribe(events.EventHedgeClosed, 1)
	defer unsub2()

	op := domain.FundingObservationPair{Symbol: "BTCUSDT", LongVenue: "venueA", ShortVenue: "venueB"}
	m.OnOpportunity(op)
	waitFor(t, opened)

	key := domain.HedgeKey("BTCUSDT", "venueA", "venueB")
	m.Close(context.Background(), key, domain.CloseTakeProfit)
	waitFor(t, closedCh)

	h, ok := m.Get(key)
	if !ok || h.State != domain.HedgeClosed {
		t.Fatalf("expected closed state, got %+v ok=%v", h, ok)
	}

	longPos, _ := long.GetPositions(context.Background())
	shortPos, _ := short.GetPositions(context.Background())
	if _, ok := longPos["BTCUSDT"]; ok {
		t.Fatal("expected long leg position fully closed")
	}
	if _, ok := shortPos["BTCUSDT"]; ok {
		t.Fatal("expected short leg position fully closed")
	}
}
