package risk

import (
	"context"
	"log"
	"sync"
	"time"

	"funding-hedge-core/internal/events"
	"funding-hedge-core/pkg/venue"
)

// EmergencyShutdown disables new hedge opens, then closes every open
// position across every venue concurrently with best-effort error
// swallowing. Emits EmergencyShutdown once every venue has been attempted.
func (e *Engine) EmergencyShutdown(ctx context.Context) {
	e.stopper.SetEmergencyStop(true)

	venues := e.venues.All()
	var wg sync.WaitGroup
	for _, v := range venues {
		wg.Add(1)
		go func(v venue.Adapter) {
			defer wg.Done()
			e.closeAllPositions(ctx, v)
		}(v)
	}
	wg.Wait()

	e.mu.Lock()
	e.metrics.EmergencyShutdowns++
	e.mu.Unlock()

	e.bus.Publish(events.EventEmergencyShutdown, events.EmergencyShutdown{TS: time.Now().Unix()})
}

func (e *Engine) closeAllPositions(ctx context.Context, v venue.Adapter) {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	positions, err := v.GetPositions(cctx)
	cancel()
	if err != nil {
		log.Printf("risk: emergency_shutdown get_positions %s failed: %v", v.Name(), err)
		return
	}

	for symbol := range positions {
		cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		_, err := v.ClosePosition(cctx, symbol, nil, nil)
		cancel()
		if err != nil {
			log.Printf("risk: emergency_shutdown close %s %s failed: %v", v.Name(), symbol, err)
		}
	}
}
