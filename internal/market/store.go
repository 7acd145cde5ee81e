// Package market holds the in-memory MarketStore and the Aggregator/Poller
// that is its single writer.
package market

import (
	"hash/fnv"
	"sync"

	"funding-hedge-core/internal/domain"
)

const numShards = 16

// defaultHistoryCap is the default per-(venue,symbol) history length cap.
const defaultHistoryCap = 200

func rowKey(venueName, symbol string) string { return venueName + "|" + symbol }

type row struct {
	mu      sync.RWMutex
	funding domain.FundingObservation
	quote   domain.MarketQuote
	history []domain.FundingObservation
}

type shard struct {
	mu   sync.RWMutex
	rows map[string]*row
}

// Store is the per-venue, per-symbol latest funding/quote view plus a
// bounded history of funding observations. Write-only through the
// Aggregator (the single writer); read-only everywhere else.
//
// Invariants: history timestamps are non-decreasing per (venue,symbol);
// the latest funding slot equals the most recently appended history
// entry; history never exceeds historyCap (oldest evicted).
type Store struct {
	shards     [numShards]*shard
	historyCap int
}

// NewStore builds a Store. historyCap <= 0 uses the spec default of 200.
func NewStore(historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	s := &Store{historyCap: historyCap}
	for i := range s.shards {
		s.shards[i] = &shard{rows: make(map[string]*row)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%numShards]
}

func (s *Store) getOrCreateRow(venueName, symbol string) *row {
	key := rowKey(venueName, symbol)
	sh := s.shardFor(key)

	sh.mu.RLock()
	r, ok := sh.rows[key]
	sh.mu.RUnlock()
	if ok {
		return r
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if r, ok := sh.rows[key]; ok {
		return r
	}
	r = &row{}
	sh.rows[key] = r
	return r
}

// IngestFunding overwrites the latest funding slot for (venue,symbol),
// appends to history (evicting the oldest entry past the cap), and
// returns the previous observation for deduplication by the caller.
// Returns ok=false if there was no previous observation.
func (s *Store) IngestFunding(obs domain.FundingObservation) (prev domain.FundingObservation, ok bool) {
	r := s.getOrCreateRow(obs.Venue, obs.Symbol)
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok = r.funding, !r.funding.ObservedAt.IsZero()
	r.funding = obs
	r.history = append(r.history, obs)
	if len(r.history) > s.historyCap {
		r.history = r.history[len(r.history)-s.historyCap:]
	}
	return prev, ok
}

// IngestQuote overwrites the latest mark-price quote for (venue,symbol).
func (s *Store) IngestQuote(q domain.MarketQuote) {
	r := s.getOrCreateRow(q.Venue, q.Symbol)
	r.mu.Lock()
	r.quote = q
	r.mu.Unlock()
}

// LatestFunding returns the latest funding observation for (venue,symbol).
func (s *Store) LatestFunding(venueName, symbol string) (domain.FundingObservation, bool) {
	key := rowKey(venueName, symbol)
	sh := s.shardFor(key)
	sh.mu.RLock()
	r, ok := sh.rows[key]
	sh.mu.RUnlock()
	if !ok {
		return domain.FundingObservation{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.funding.ObservedAt.IsZero() {
		return domain.FundingObservation{}, false
	}
	return r.funding, true
}

// LatestQuote returns the latest mark-price quote for (venue,symbol).
func (s *Store) LatestQuote(venueName, symbol string) (domain.MarketQuote, bool) {
	key := rowKey(venueName, symbol)
	sh := s.shardFor(key)
	sh.mu.RLock()
	r, ok := sh.rows[key]
	sh.mu.RUnlock()
	if !ok {
		return domain.MarketQuote{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.quote.ObservedAt.IsZero() {
		return domain.MarketQuote{}, false
	}
	return r.quote, true
}

// History returns a copy of the bounded funding history for (venue,symbol).
func (s *Store) History(venueName, symbol string) []domain.FundingObservation {
	key := rowKey(venueName, symbol)
	sh := s.shardFor(key)
	sh.mu.RLock()
	r, ok := sh.rows[key]
	sh.mu.RUnlock()
	if !ok {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.FundingObservation, len(r.history))
	copy(out, r.history)
	return out
}

// venueSymbolPairs returns the identity of every (venue, symbol) row that
// currently holds a latest funding observation.
func (s *Store) venueSymbolPairs() []rowIdentity {
	var out []rowIdentity
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key, r := range sh.rows {
			r.mu.RLock()
			hasFunding := !r.funding.ObservedAt.IsZero()
			r.mu.RUnlock()
			if hasFunding {
				out = append(out, rowIdentity{key: key, venue: r.funding.Venue, symbol: r.funding.Symbol})
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

type rowIdentity struct {
	key    string
	venue  string
	symbol string
}

// LatestBySymbol returns, for every venue currently holding a funding
// observation for symbol, that observation — used by the arbitrage scan.
func (s *Store) LatestBySymbol(symbol string) map[string]domain.FundingObservation {
	out := make(map[string]domain.FundingObservation)
	for _, id := range s.venueSymbolPairs() {
		if id.symbol != symbol {
			continue
		}
		if obs, ok := s.LatestFunding(id.venue, id.symbol); ok {
			out[id.venue] = obs
		}
	}
	return out
}

// CommonSymbols returns the intersection of symbol sets currently present
// across all venues that have at least one observation in the store, and
// the count of distinct venues observed.
func (s *Store) CommonSymbols() ([]string, int) {
	bySymbol := make(map[string]map[string]struct{})
	for _, id := range s.venueSymbolPairs() {
		set, ok := bySymbol[id.symbol]
		if !ok {
			set = make(map[string]struct{})
			bySymbol[id.symbol] = set
		}
		set[id.venue] = struct{}{}
	}

	venues := make(map[string]struct{})
	for _, set := range bySymbol {
		for v := range set {
			venues[v] = struct{}{}
		}
	}
	total := len(venues)
	if total < 2 {
		return nil, total
	}

	var common []string
	for symbol, set := range bySymbol {
		if len(set) == total {
			common = append(common, symbol)
		}
	}
	return common, total
}
