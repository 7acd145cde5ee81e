package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventAlert, 1)
	defer unsub()

	bus.Publish(EventAlert, Alert{Level: AlertWarning, Message: "hot"})

	select {
	case v := <-ch:
		a := v.(Alert)
		if a.Message != "hot" {
			t.Fatalf("unexpected payload: %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("expected payload delivered")
	}
}

func TestPublishDropsOldestWhenSubscriberBufferIsFullForNonCriticalEvent(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventAlert, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		bus.Publish(EventAlert, Alert{Message: "1"})
		bus.Publish(EventAlert, Alert{Message: "2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Publish to never block for a non-critical event even with a full subscriber buffer")
	}

	v := <-ch
	if a := v.(Alert); a.Message != "2" {
		t.Fatalf("expected the oldest buffered message dropped and the newest kept, got %+v", a)
	}
}

func TestPublishBlocksForCriticalEventUntilDeliveredOrTimeout(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventHedgeOpened, 1)
	defer unsub()

	bus.Publish(EventHedgeOpened, HedgeOpened{Key: "1"}) // fills the buffer

	done := make(chan struct{})
	go func() {
		bus.Publish(EventHedgeOpened, HedgeOpened{Key: "2"})
		close(done)
	}()

	// The publisher should still be blocked shortly after, waiting for room.
	select {
	case <-done:
		t.Fatal("expected Publish to block on a full buffer for a critical event")
	case <-time.After(50 * time.Millisecond):
	}

	<-ch // drain the first message, making room

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the blocked Publish to complete once the buffer had room")
	}

	v := <-ch
	if h := v.(HedgeOpened); h.Key != "2" {
		t.Fatalf("expected the second hedge_opened payload delivered, got %+v", h)
	}
}

func TestPublishOnlyReachesSubscribersOfThatEvent(t *testing.T) {
	bus := NewBus()
	alertCh, unsubA := bus.Subscribe(EventAlert, 1)
	defer unsubA()
	arbCh, unsubB := bus.Subscribe(EventArbitrage, 1)
	defer unsubB()

	bus.Publish(EventAlert, Alert{Message: "only alert"})

	select {
	case <-arbCh:
		t.Fatal("did not expect a payload on the arbitrage channel")
	default:
	}

	select {
	case <-alertCh:
	case <-time.After(time.Second):
		t.Fatal("expected payload on the alert channel")
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventAlert, 1)
	unsub()

	bus.Publish(EventAlert, Alert{Message: "after unsubscribe"})

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestMultipleSubscribersEachReceivePublishedPayload(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(EventAlert, 1)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(EventAlert, 1)
	defer unsub2()

	bus.Publish(EventAlert, Alert{Message: "fanout"})

	for _, ch := range []<-chan any{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("expected every subscriber to receive the published payload")
		}
	}
}
