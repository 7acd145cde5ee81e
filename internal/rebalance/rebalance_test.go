package rebalance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/pkg/venue"
	"funding-hedge-core/pkg/venue/mock"
)

type fakeVenueSource struct {
	adapters []venue.Adapter
}

func (f *fakeVenueSource) All() []venue.Adapter { return f.adapters }

func TestTickTransfersFromDonorToRecipient(t *testing.T) {
	rich := mock.New("rich", decimal.NewFromInt(10000), mock.SimConfig{})
	poor := mock.New("poor", decimal.NewFromInt(0), mock.SimConfig{})

	cfg := DefaultConfig()
	cfg.Threshold = decimal.NewFromFloat(0.03)
	r := New(cfg, &fakeVenueSource{adapters: []venue.Adapter{rich, poor}})

	r.tick(context.Background())

	transfers, skipped := r.Stats()
	if transfers != 1 {
		t.Fatalf("expected exactly one transfer, got %d (skipped=%d)", transfers, skipped)
	}

	bal, err := rich.GetTotalBalance(context.Background())
	if err != nil {
		t.Fatalf("get_total_balance failed: %v", err)
	}
	if !bal.LessThan(decimal.NewFromInt(10000)) {
		t.Fatalf("expected donor balance to decrease from the transfer, got %s", bal)
	}
}

func TestTickStaysQuietWithinThreshold(t *testing.T) {
	a := mock.New("a", decimal.NewFromInt(1000), mock.SimConfig{})
	b := mock.New("b", decimal.NewFromInt(990), mock.SimConfig{})

	r := New(DefaultConfig(), &fakeVenueSource{adapters: []venue.Adapter{a, b}})
	r.tick(context.Background())

	transfers, _ := r.Stats()
	if transfers != 0 {
		t.Fatalf("expected no transfer for a balance gap within threshold, got %d", transfers)
	}
}

func TestTickSettlesOrSkipsSmallDonorPairWithoutAborting(t *testing.T) {
	a := mock.New("a", decimal.NewFromInt(100), mock.SimConfig{})
	b := mock.New("b", decimal.NewFromInt(0), mock.SimConfig{})

	r := New(DefaultConfig(), &fakeVenueSource{adapters: []venue.Adapter{a, b}})
	r.tick(context.Background())

	transfers, skipped := r.Stats()
	if transfers != 1 && skipped != 1 {
		t.Fatalf("expected the pair to either settle or be skipped, got transfers=%d skipped=%d", transfers, skipped)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := mock.New("a", decimal.NewFromInt(1000), mock.SimConfig{})
	b := mock.New("b", decimal.NewFromInt(1000), mock.SimConfig{})

	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	r := New(cfg, &fakeVenueSource{adapters: []venue.Adapter{a, b}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}
