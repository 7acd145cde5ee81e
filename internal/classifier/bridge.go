package classifier

import (
	"context"
	"log"
	"sync"
	"time"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
)

// Bridge forwards every mark-price quote to the external worker and
// republishes its StateChange/ExtremeEvent replies on the bus. A zero-value
// Bridge (or one built with an empty addr) is a no-op ObserveQuote.
type Bridge struct {
	client *WorkerClient
	bus    *events.Bus

	mu       sync.Mutex
	lastSeen map[string]string // symbol -> last published state
}

// New builds a Bridge. addr == "" disables it: ObserveQuote becomes a
// no-op and no connection is attempted.
func New(addr string, bus *events.Bus) (*Bridge, error) {
	if addr == "" {
		return &Bridge{bus: bus, lastSeen: make(map[string]string)}, nil
	}
	client, err := NewWorkerClient(addr)
	if err != nil {
		return nil, err
	}
	return &Bridge{client: client, bus: bus, lastSeen: make(map[string]string)}, nil
}

// Enabled reports whether this bridge actually dials the worker.
func (b *Bridge) Enabled() bool { return b.client != nil }

// Close releases the underlying gRPC connection, if any.
func (b *Bridge) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// ObserveQuote implements market.QuoteObserver. A worker call failure is
// logged and swallowed: the classifier is an optional consumer and must
// never affect the engine's own market-data path.
func (b *Bridge) ObserveQuote(q domain.MarketQuote) {
	if b.client == nil {
		return
	}
	price, _ := q.MarkPrice.Float64()
	volume, _ := q.Volume.Float64()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := b.client.Classify(ctx, q.Symbol, price, volume)
	if err != nil {
		log.Printf("classifier: worker call failed for %s: %v", q.Symbol, err)
		return
	}

	b.publishStateChange(q.Symbol, resp.State)
	if resp.Extreme {
		b.bus.Publish(events.EventExtremeEvent, events.ExtremeEvent{
			Type:   resp.ExtremeOf,
			Symbol: q.Symbol,
			TS:     time.Now().Unix(),
			Data:   map[string]string{"source": "classifier"},
		})
	}
}

func (b *Bridge) publishStateChange(symbol, state string) {
	if state == "" {
		return
	}
	b.mu.Lock()
	prev, ok := b.lastSeen[symbol]
	changed := !ok || prev != state
	b.lastSeen[symbol] = state
	b.mu.Unlock()

	if !changed {
		return
	}
	b.bus.Publish(events.EventStateChange, events.StateChange{
		From: prev,
		To:   state,
		TS:   time.Now().Unix(),
	})
}
