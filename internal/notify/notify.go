// Package notify is the notification collaborator the event bus publishes
// user-visible activity to. Concrete delivery (webhook/chat) is out of
// scope for this engine; this package only defines the Sink contract and
// a best-effort dispatcher, adapted from the teacher's
// internal/monitor.AlertSink, so the bus always has somewhere to publish
// without the engine ever depending on delivery succeeding.
package notify

import (
	"context"
	"log"
	"time"

	"funding-hedge-core/internal/events"
)

// Sink delivers one formatted notification message. A Sink that returns an
// error is logged and otherwise ignored by the Dispatcher — a delivery
// failure never blocks or fails the engine.
type Sink interface {
	Send(message string) error
}

// topics lists every user-visible event the engine publishes: alerts,
// arbitrage opportunities, hedge open/close/failure transitions,
// risk-exceeded, daily PnL, and emergency shutdown.
var topics = []events.Event{
	events.EventAlert,
	events.EventArbitrage,
	events.EventHedgeOpened,
	events.EventHedgeClosed,
	events.EventHedgeFailed,
	events.EventHedgeCloseFailed,
	events.EventRiskExceeded,
	events.EventDailyPnl,
	events.EventEmergencyShutdown,
}

// Dispatcher forwards every user-visible bus event to every configured
// Sink, best-effort.
type Dispatcher struct {
	bus   *events.Bus
	sinks []Sink
}

// New builds a Dispatcher over bus. With no sinks, Start is a no-op.
func New(bus *events.Bus, sinks ...Sink) *Dispatcher {
	return &Dispatcher{bus: bus, sinks: sinks}
}

// Start subscribes to every topic in topics and forwards formatted
// messages to every sink until ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.bus == nil || len(d.sinks) == 0 {
		return
	}
	for _, topic := range topics {
		ch, unsub := d.bus.Subscribe(topic, 64)
		go d.forward(ctx, topic, ch, unsub)
	}
}

func (d *Dispatcher) forward(ctx context.Context, topic events.Event, ch <-chan any, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			d.deliver(format(topic, msg))
		}
	}
}

func (d *Dispatcher) deliver(message string) {
	for _, s := range d.sinks {
		if err := s.Send(message); err != nil {
			log.Printf("notify: sink delivery failed: %v", err)
		}
	}
}

func format(topic events.Event, msg any) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + string(topic) + ": " + summarize(msg)
}

func summarize(v any) string {
	switch t := v.(type) {
	case events.Alert:
		return string(t.Level) + " " + t.Symbol + "@" + t.Venue + " rate=" + t.Rate + ": " + t.Message
	case events.Arbitrage:
		return "opportunity " + t.Symbol + " long=" + t.LongVenue + " short=" + t.ShortVenue + " spread=" + t.Spread
	case events.HedgeOpened:
		return "opened " + t.Key + " size=" + t.Size
	case events.HedgeClosed:
		return "closed " + t.Key + " reason=" + t.Reason + " pnl=" + t.RealizedPnl
	case events.HedgeFailed:
		return "open failed " + t.Key + ": " + t.Reason
	case events.HedgeCloseFailed:
		return "close failed " + t.Key + ": " + t.Reason + " (operator intervention required)"
	case events.RiskExceeded:
		return "exposure ratio " + t.Exposure + " exceeded max_exposure"
	case events.DailyPnl:
		return "daily pnl " + t.Value
	case events.EmergencyShutdown:
		return "emergency shutdown complete"
	default:
		return "event"
	}
}
