// Package rebalance periodically equalizes free capital across venues so
// no single venue runs dry while another sits idle.
package rebalance

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/pkg/decimalutil"
	"funding-hedge-core/pkg/venue"
)

// Config holds the rebalancer's tunables.
type Config struct {
	Interval  time.Duration   // default matches the poll cadence, e.g. 30s
	Threshold decimal.Decimal // default 0.03
	Asset     string          // quote asset moved between venues, default "USDT"
}

// DefaultConfig mirrors the spec defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Second,
		Threshold: decimal.NewFromFloat(0.03),
		Asset:     "USDT",
	}
}

// VenueSource is the subset of the gateway registry the rebalancer reads.
type VenueSource interface {
	All() []venue.Adapter
}

// Rebalancer runs the periodic cross-venue transfer loop.
type Rebalancer struct {
	cfg    Config
	venues VenueSource

	mu             sync.Mutex
	transfersTotal uint64
	skippedTotal   uint64
}

// New builds a Rebalancer.
func New(cfg Config, venues VenueSource) *Rebalancer {
	return &Rebalancer{cfg: cfg, venues: venues}
}

// Run starts the periodic rebalance loop. It blocks until ctx is canceled.
func (r *Rebalancer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

type venueBalance struct {
	adapter venue.Adapter
	balance decimal.Decimal
}

func (r *Rebalancer) tick(ctx context.Context) {
	venues := r.venues.All()
	if len(venues) < 2 {
		return
	}

	balances := r.collectBalances(ctx, venues)
	if len(balances) < 2 {
		return
	}

	total := decimal.Zero
	for _, vb := range balances {
		total = total.Add(vb.balance)
	}
	if total.IsZero() {
		return
	}
	avg := total.Div(decimal.NewFromInt(int64(len(balances))))

	donors, recipients := r.classify(balances, avg, total)
	r.settle(ctx, donors, recipients, avg)
}

func (r *Rebalancer) collectBalances(ctx context.Context, venues []venue.Adapter) []venueBalance {
	out := make([]venueBalance, 0, len(venues))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, v := range venues {
		wg.Add(1)
		go func(v venue.Adapter) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, r.cfg.Interval/2)
			defer cancel()
			bal, err := v.GetTotalBalance(cctx)
			if err != nil {
				log.Printf("rebalance: get_total_balance %s failed: %v", v.Name(), err)
				return
			}
			mu.Lock()
			out = append(out, venueBalance{adapter: v, balance: bal})
			mu.Unlock()
		}(v)
	}
	wg.Wait()
	return out
}

func (r *Rebalancer) classify(balances []venueBalance, avg, total decimal.Decimal) (donors, recipients []venueBalance) {
	for _, vb := range balances {
		deviation := decimalutil.SafeRatio(decimalutil.Abs(vb.balance.Sub(avg)), total)
		if deviation.LessThanOrEqual(r.cfg.Threshold) {
			continue
		}
		if vb.balance.GreaterThan(avg) {
			donors = append(donors, vb)
		} else {
			recipients = append(recipients, vb)
		}
	}

	sort.Slice(donors, func(i, j int) bool { return donors[i].balance.GreaterThan(donors[j].balance) })
	sort.Slice(recipients, func(i, j int) bool { return recipients[i].balance.LessThan(recipients[j].balance) })

	return donors, recipients
}

// settle pairs each donor with the neediest recipient still short of avg,
// transferring min(donor_excess, recipient_deficit) and continuing
// best-effort on any failure, per the spec's "Unsupported fails the pair,
// not the run" rule. avg is the portfolio-wide average balance classify
// used to pick donors and recipients.
func (r *Rebalancer) settle(ctx context.Context, donors, recipients []venueBalance, avg decimal.Decimal) {
	ri := 0
	for di := range donors {
		if ri >= len(recipients) {
			break
		}
		donorExcess := donors[di].balance.Sub(avg)

		for ri < len(recipients) && donorExcess.IsPositive() {
			recipientDeficit := avg.Sub(recipients[ri].balance)
			if !recipientDeficit.IsPositive() {
				ri++
				continue
			}

			amount := donorExcess
			if recipientDeficit.LessThan(amount) {
				amount = recipientDeficit
			}

			cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := donors[di].adapter.TransferTo(cctx, recipients[ri].adapter.Name(), amount, r.cfg.Asset)
			cancel()

			r.mu.Lock()
			if err != nil {
				r.skippedTotal++
				log.Printf("rebalance: transfer %s -> %s of %s failed: %v",
					donors[di].adapter.Name(), recipients[ri].adapter.Name(), amount.String(), err)
				ri++
			} else {
				r.transfersTotal++
				donorExcess = donorExcess.Sub(amount)
				recipients[ri].balance = recipients[ri].balance.Add(amount)
				if !avg.Sub(recipients[ri].balance).IsPositive() {
					ri++
				}
			}
			r.mu.Unlock()
		}
	}
}

// Stats returns the cumulative transfer counters.
func (r *Rebalancer) Stats() (transfers, skipped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transfersTotal, r.skippedTotal
}
