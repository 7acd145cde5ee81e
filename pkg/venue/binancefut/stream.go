package binancefut

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/pkg/venue"
)

// reconnect bounds per the adapter contract: initial 5s, cap 60s.
const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
)

func backoff(attempt int) time.Duration {
	d := float64(initialBackoff)
	for i := 0; i < attempt; i++ {
		d *= backoffFactor
	}
	if time.Duration(d) > maxBackoff {
		return maxBackoff
	}
	return time.Duration(d)
}

// SubscribeStream opens the mark-price/funding combined stream and
// delivers updates to cb sequentially, reconnecting with bounded
// exponential backoff on a read error until ctx is canceled. A normal or
// going-away close from the server ends the stream without reconnecting.
func (a *Adapter) SubscribeStream(ctx context.Context, cb venue.StreamCallback) error {
	url := a.wsURL + "/!markPrice@arr@1s"

	conn, err := dial(ctx, url)
	if err != nil {
		return venue.Wrap(venue.KindNetwork, "dial stream", err)
	}

	go func() {
		defer conn.Close()
		attempt := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				log.Printf("⚠️ [%s] stream read error: %v", a.name, err)

				delay := backoff(attempt)
				attempt++
				log.Printf("🔄 [%s] stream reconnecting in %v (attempt %d)", a.name, delay, attempt)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}

				newConn, dialErr := dial(ctx, url)
				if dialErr != nil {
					log.Printf("❌ [%s] stream reconnect failed: %v", a.name, dialErr)
					continue
				}
				conn.Close()
				conn = newConn
				attempt = 0
				log.Printf("✅ [%s] stream reconnected", a.name)
				continue
			}

			attempt = 0
			for _, upd := range parseMarkPriceArray(a.name, msg) {
				cb(upd)
			}
		}
	}()
	return nil
}

func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

func parseMarkPriceArray(venueName string, msg []byte) []venue.StreamUpdate {
	var raw []struct {
		Symbol          string `json:"s"`
		MarkPrice       string `json:"p"`
		FundingRate     string `json:"r"`
		NextFundingTime int64  `json:"T"`
		EventTime       int64  `json:"E"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		if !strings.Contains(string(msg), "markPriceUpdate") {
			return nil
		}
	}

	now := time.Now()
	out := make([]venue.StreamUpdate, 0, len(raw)*2)
	for _, r := range raw {
		ts := observedAt(r.EventTime, now)
		quote := domain.MarketQuote{Venue: venueName, Symbol: r.Symbol, MarkPrice: decStr(r.MarkPrice), ObservedAt: ts}
		out = append(out, venue.StreamUpdate{Kind: venue.StreamTicker, Symbol: r.Symbol, Quote: &quote})

		funding := domain.FundingObservation{
			Venue:           venueName,
			Symbol:          r.Symbol,
			Rate:            decStr(r.FundingRate),
			NextFundingTime: time.UnixMilli(r.NextFundingTime),
			ObservedAt:      ts,
		}
		out = append(out, venue.StreamUpdate{Kind: venue.StreamFunding, Symbol: r.Symbol, Funding: &funding})
	}
	return out
}
