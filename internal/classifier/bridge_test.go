package classifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
)

func TestDisabledBridgeObserveQuoteIsNoOp(t *testing.T) {
	bus := events.NewBus()
	b, err := New("", bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Enabled() {
		t.Fatal("expected an empty addr to leave the bridge disabled")
	}

	changed, unsub := bus.Subscribe(events.EventStateChange, 1)
	defer unsub()

	b.ObserveQuote(domain.MarketQuote{Symbol: "BTCUSDT", MarkPrice: decimal.NewFromInt(100)})

	select {
	case <-changed:
		t.Fatal("expected no state_change event from a disabled bridge")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishStateChangeDedupesRepeatedState(t *testing.T) {
	bus := events.NewBus()
	b := &Bridge{bus: bus, lastSeen: make(map[string]string)}

	ch, unsub := bus.Subscribe(events.EventStateChange, 4)
	defer unsub()

	b.publishStateChange("BTCUSDT", "trending")
	b.publishStateChange("BTCUSDT", "trending")
	b.publishStateChange("BTCUSDT", "ranging")

	var got []events.StateChange
	draining := true
	for draining {
		select {
		case v := <-ch:
			got = append(got, v.(events.StateChange))
		default:
			draining = false
		}
	}

	if len(got) != 2 {
		t.Fatalf("expected exactly 2 state_change events (repeat suppressed), got %d: %+v", len(got), got)
	}
	if got[0].To != "trending" || got[1].From != "trending" || got[1].To != "ranging" {
		t.Fatalf("unexpected transitions: %+v", got)
	}
}
