package detector

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
)

const defaultWindow = 20

// ExtremeConfig controls the extreme-event thresholds.
type ExtremeConfig struct {
	Window          int     // rolling window length for mean/volatility, default 20
	SurgeCrashRatio float64 // single-interval return magnitude that flags surge/crash, default 0.05
	LiquidityRatio  float64 // volume below this fraction of the window mean flags liquidity_drop, default 0.30
	VolSpikeRatio   float64 // instantaneous vol above this multiple of window-mean vol flags volatility_spike, default 3.0
}

// DefaultExtremeConfig mirrors the spec defaults.
func DefaultExtremeConfig() ExtremeConfig {
	return ExtremeConfig{
		Window:          defaultWindow,
		SurgeCrashRatio: 0.05,
		LiquidityRatio:  0.30,
		VolSpikeRatio:   3.0,
	}
}

type priceSeries struct {
	prices  []float64
	volumes []float64
	logRets []float64
}

// ExtremeDetector watches per-symbol price/volume series for surge,
// crash, liquidity-drop and volatility-spike conditions. It is an
// auxiliary signal the Risk Engine may latch on, never a hedge trigger by
// itself.
type ExtremeDetector struct {
	cfg ExtremeConfig
	bus *events.Bus

	mu     sync.Mutex
	series map[string]*priceSeries
}

// NewExtremeDetector builds an ExtremeDetector.
func NewExtremeDetector(cfg ExtremeConfig, bus *events.Bus) *ExtremeDetector {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	return &ExtremeDetector{cfg: cfg, bus: bus, series: make(map[string]*priceSeries)}
}

// ObserveQuote implements market.QuoteObserver: it feeds every ingested
// mark-price quote into the per-symbol rolling window (pooling venues,
// since the spec's "price series per symbol" does not distinguish origin).
func (e *ExtremeDetector) ObserveQuote(q domain.MarketQuote) {
	e.Observe(q.Symbol, q.MarkPrice, q.Volume)
}

// Observe folds in one (price, volume) sample for symbol and evaluates
// the extreme-event rules against the rolling window.
func (e *ExtremeDetector) Observe(symbol string, price, volume decimal.Decimal) {
	p, _ := price.Float64()
	v, _ := volume.Float64()

	e.mu.Lock()
	s, ok := e.series[symbol]
	if !ok {
		s = &priceSeries{}
		e.series[symbol] = s
	}

	var instantReturn float64
	if len(s.prices) > 0 {
		prev := s.prices[len(s.prices)-1]
		if prev > 0 {
			instantReturn = (p - prev) / prev
			s.logRets = append(s.logRets, math.Log(p/prev))
			if len(s.logRets) > e.cfg.Window {
				s.logRets = s.logRets[len(s.logRets)-e.cfg.Window:]
			}
		}
	}

	s.prices = append(s.prices, p)
	if len(s.prices) > e.cfg.Window {
		s.prices = s.prices[len(s.prices)-e.cfg.Window:]
	}
	s.volumes = append(s.volumes, v)
	if len(s.volumes) > e.cfg.Window {
		s.volumes = s.volumes[len(s.volumes)-e.cfg.Window:]
	}

	meanVolume := mean(s.volumes)
	windowVol := stdev(s.logRets)
	instantVol := math.Abs(instantReturn)
	logRetsCopy := append([]float64(nil), s.logRets...)
	e.mu.Unlock()

	now := time.Now().Unix()

	switch {
	case instantReturn > e.cfg.SurgeCrashRatio:
		e.publish("price_surge", symbol, instantReturn, now)
	case instantReturn < -e.cfg.SurgeCrashRatio:
		e.publish("price_crash", symbol, instantReturn, now)
	}

	if meanVolume > 0 && v < e.cfg.LiquidityRatio*meanVolume {
		e.publish("liquidity_drop", symbol, v/meanVolume, now)
	}

	if len(logRetsCopy) >= 2 && windowVol > 0 && instantVol > e.cfg.VolSpikeRatio*windowVol {
		e.publish("volatility_spike", symbol, instantVol/windowVol, now)
	}
}

func (e *ExtremeDetector) publish(kind, symbol string, value float64, ts int64) {
	e.bus.Publish(events.EventExtremeEvent, events.ExtremeEvent{
		Type:   kind,
		Symbol: symbol,
		Value:  decimal.NewFromFloat(value).String(),
		TS:     ts,
	})
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// stdev returns the standard deviation of log returns over the window,
// the basis of the instantaneous-vs-window-mean volatility comparison.
func stdev(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	m := mean(vs)
	sumSq := 0.0
	for _, v := range vs {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vs)-1))
}
