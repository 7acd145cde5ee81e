// Package gateway holds the VenueRegistry: the single place the rest of
// the engine asks "give me venue X's adapter", with per-venue circuit
// breaking so one sick venue doesn't keep getting hammered.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"funding-hedge-core/pkg/venue"
)

var (
	ErrVenueNotFound = errors.New("gateway: venue not registered")
	ErrVenueUnhealthy = errors.New("gateway: venue circuit open")
)

// Config controls circuit-breaking behavior.
type Config struct {
	FailureThreshold int           // consecutive failures before the circuit opens
	CircuitTimeout   time.Duration // time before a half-open retry is allowed
	HealthInterval   time.Duration // background health-check cadence
	MaxSize          int           // max cached venues before LRU eviction kicks in
}

// DefaultConfig mirrors the pool defaults used elsewhere in this codebase,
// scaled down from per-connection to per-venue cardinality.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		CircuitTimeout:   2 * time.Minute,
		HealthInterval:   time.Minute,
		MaxSize:          32,
	}
}

type entry struct {
	adapter   venue.Adapter
	failures  int
	healthyAt time.Time
	lastUsed  time.Time
}

// Registry is a pooled set of venue adapters, keyed by venue name, with a
// failure-count circuit breaker per venue and bounded LRU eviction so the
// pool can't grow without limit across repeated Register calls.
type Registry struct {
	mu       sync.RWMutex
	venues   map[string]*entry
	lruOrder []string // oldest-used first
	cfg      Config
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry builds an empty registry; venues are added with Register.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		venues: make(map[string]*entry),
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Register adds a venue adapter, evicting the least-recently-used venue
// first if the pool is already at cfg.MaxSize. Re-registering an existing
// name replaces its adapter without counting against MaxSize.
func (r *Registry) Register(a venue.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.venues[name]; !exists && r.cfg.MaxSize > 0 && len(r.venues) >= r.cfg.MaxSize {
		r.evictOldestLocked()
	}

	now := time.Now()
	r.venues[name] = &entry{adapter: a, healthyAt: now, lastUsed: now}
	r.touchLRULocked(name)
}

func (r *Registry) touchLRULocked(name string) {
	for i, n := range r.lruOrder {
		if n == name {
			r.lruOrder = append(r.lruOrder[:i], r.lruOrder[i+1:]...)
			break
		}
	}
	r.lruOrder = append(r.lruOrder, name)
}

// evictOldestLocked removes the least-recently-used venue. Caller must
// hold r.mu.
func (r *Registry) evictOldestLocked() bool {
	if len(r.lruOrder) == 0 {
		return false
	}
	oldest := r.lruOrder[0]
	delete(r.venues, oldest)
	r.lruOrder = r.lruOrder[1:]
	return true
}

// Names returns the registered venue names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.venues))
	for n := range r.venues {
		out = append(out, n)
	}
	return out
}

// Get returns the adapter for name, or ErrVenueUnhealthy if its circuit is
// currently open. A successful lookup marks name most-recently-used.
func (r *Registry) Get(name string) (venue.Adapter, error) {
	r.mu.RLock()
	e, ok := r.venues[name]
	if !ok {
		r.mu.RUnlock()
		return nil, ErrVenueNotFound
	}
	if e.failures >= r.cfg.FailureThreshold && time.Since(e.healthyAt) < r.cfg.CircuitTimeout {
		r.mu.RUnlock()
		return nil, ErrVenueUnhealthy
	}
	adapter := e.adapter
	r.mu.RUnlock()

	r.mu.Lock()
	if e, ok := r.venues[name]; ok {
		e.lastUsed = time.Now()
		r.touchLRULocked(name)
	}
	r.mu.Unlock()

	return adapter, nil
}

// All returns every adapter whose circuit is currently closed, marking each
// most-recently-used.
func (r *Registry) All() []venue.Adapter {
	r.mu.RLock()
	out := make([]venue.Adapter, 0, len(r.venues))
	var used []string
	for name, e := range r.venues {
		if e.failures >= r.cfg.FailureThreshold && time.Since(e.healthyAt) < r.cfg.CircuitTimeout {
			continue
		}
		out = append(out, e.adapter)
		used = append(used, name)
	}
	r.mu.RUnlock()

	now := time.Now()
	r.mu.Lock()
	for _, name := range used {
		if e, ok := r.venues[name]; ok {
			e.lastUsed = now
			r.touchLRULocked(name)
		}
	}
	r.mu.Unlock()

	return out
}

// RecordFailure increments the failure counter for name. Once it reaches
// the threshold, Get/All exclude the venue until CircuitTimeout elapses.
func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.venues[name]; ok {
		e.failures++
	}
}

// RecordSuccess resets the failure counter for name.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.venues[name]; ok {
		e.failures = 0
		e.healthyAt = time.Now()
	}
}

// Stop halts the background health-check loop, if running.
func (r *Registry) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.wg.Wait()
}

// StartHealthChecks periodically probes every registered venue's mark
// price fetch as a liveness check, recording success/failure against the
// circuit breaker.
func (r *Registry) StartHealthChecks(ctx context.Context, probeSymbol string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.probeAll(ctx, probeSymbol)
			}
		}
	}()
}

func (r *Registry) probeAll(ctx context.Context, symbol string) {
	r.mu.RLock()
	adapters := make([]venue.Adapter, 0, len(r.venues))
	for _, e := range r.venues {
		adapters = append(adapters, e.adapter)
	}
	r.mu.RUnlock()

	for _, a := range adapters {
		go func(a venue.Adapter) {
			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			_, err := a.GetMarkPrice(cctx, symbol)
			if err != nil {
				r.RecordFailure(a.Name())
				return
			}
			r.RecordSuccess(a.Name())
		}(a)
	}
}
