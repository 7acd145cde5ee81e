// Package balance caches each venue's total/available balance so the
// operator status surface can report capital without blocking on a live
// round-trip to every venue on every request.
package balance

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/pkg/venue"
)

// Snapshot is a point-in-time balance reading for one venue.
type Snapshot struct {
	Venue     string
	Total     decimal.Decimal
	Available decimal.Decimal
	SyncedAt  time.Time
}

// VenueSource is the subset of the gateway registry the cache reads.
type VenueSource interface {
	All() []venue.Adapter
}

// Manager is the single writer of the per-venue balance cache.
type Manager struct {
	venues       VenueSource
	syncInterval time.Duration

	mu    sync.RWMutex
	cache map[string]Snapshot
}

// NewManager builds a balance cache synced from venues every syncInterval.
func NewManager(venues VenueSource, syncInterval time.Duration) *Manager {
	return &Manager{
		venues:       venues,
		syncInterval: syncInterval,
		cache:        make(map[string]Snapshot),
	}
}

// Start runs an initial sync then refreshes on syncInterval until ctx is
// canceled.
func (m *Manager) Start(ctx context.Context) {
	m.Sync(ctx)

	ticker := time.NewTicker(m.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sync(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sync refreshes every venue's balance concurrently, best-effort: a venue
// that errors keeps its last known snapshot rather than blocking the rest.
func (m *Manager) Sync(ctx context.Context) {
	venues := m.venues.All()
	var wg sync.WaitGroup
	for _, v := range venues {
		wg.Add(1)
		go func(v venue.Adapter) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			total, err := v.GetTotalBalance(cctx)
			if err != nil {
				log.Printf("💰 balance: get_total_balance %s failed: %v", v.Name(), err)
				return
			}
			avail, err := v.GetAvailableBalance(cctx)
			if err != nil {
				log.Printf("💰 balance: get_available_balance %s failed: %v", v.Name(), err)
				return
			}

			m.mu.Lock()
			m.cache[v.Name()] = Snapshot{
				Venue:     v.Name(),
				Total:     total,
				Available: avail,
				SyncedAt:  time.Now(),
			}
			m.mu.Unlock()
		}(v)
	}
	wg.Wait()
}

// Get returns the last synced snapshot for a venue.
func (m *Manager) Get(venueName string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.cache[venueName]
	return s, ok
}

// All returns a snapshot of every cached venue balance.
func (m *Manager) All() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.cache))
	for _, s := range m.cache {
		out = append(out, s)
	}
	return out
}

// TotalAcrossVenues sums the last synced total balance of every venue.
func (m *Manager) TotalAcrossVenues() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, s := range m.cache {
		total = total.Add(s.Total)
	}
	return total
}
