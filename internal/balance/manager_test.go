package balance

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

func TestSyncPopulatesCacheFromAllVenues(t *testing.T) {
	a := mock.New("a", decimal.NewFromInt(1000), mock.SimConfig{})
	b := mock.New("b", decimal.NewFromInt(2000), mock.SimConfig{})

	m := NewManager(&fakeVenueSource{adapters: []venue.Adapter{a, b}}, time.Minute)
	m.Sync(context.Background())

	snaps := m.All()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 cached snapshots, got %d", len(snaps))
	}

	total := m.TotalAcrossVenues()
	if !total.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected combined total 3000, got %s", total)
	}
}

func TestGetReturnsFalseForUnknownVenue(t *testing.T) {
	m := NewManager(&fakeVenueSource{}, time.Minute)
	if _, ok := m.Get("nope"); ok {
		t.Fatal("expected no snapshot for a venue never synced")
	}
}
