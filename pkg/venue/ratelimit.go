package venue

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token-bucket REST call limiter shared by one adapter's
// outbound calls. It logs a warning at 80% and a critical line at 95% of
// burst capacity, measured over a rolling one-second window.
type RateLimiter struct {
	limiter *rate.Limiter
	burst   int

	mu        sync.Mutex
	window    []time.Time
	lastWarn  time.Time
}

// NewRateLimiter creates a limiter allowing up to `rps` requests per
// second with a burst of `burst`.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		burst:   burst,
	}
}

// Wait blocks until a token is available or ctx is canceled, warning when
// the rolling one-second call volume is running close to burst capacity.
func (rl *RateLimiter) Wait(ctx context.Context, venueName string) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		return err
	}

	now := time.Now()
	rl.mu.Lock()
	cutoff := now.Add(-time.Second)
	kept := rl.window[:0]
	for _, t := range rl.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.window = append(kept, now)
	used := len(rl.window)
	pct := float64(used) / float64(rl.burst) * 100
	shouldWarn := pct >= 80 && time.Since(rl.lastWarn) > 5*time.Second
	if shouldWarn {
		rl.lastWarn = now
	}
	rl.mu.Unlock()

	if shouldWarn {
		level := "warning"
		if pct >= 95 {
			level = "critical"
		}
		log.Printf("rate limit %s: %s at %.0f%% of burst capacity", level, venueName, pct)
	}
	return nil
}
