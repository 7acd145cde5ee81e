// Package engine wires the market/detector/hedge/risk/rebalance
// components into the operator surface named in spec §6: start_hedging,
// stop_hedging, emergency_shutdown, status.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/balance"
	"funding-hedge-core/internal/classifier"
	"funding-hedge-core/internal/detector"
	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/internal/gateway"
	"funding-hedge-core/internal/hedge"
	"funding-hedge-core/internal/market"
	"funding-hedge-core/internal/rebalance"
	"funding-hedge-core/internal/risk"
	"funding-hedge-core/pkg/config"
)

// Engine composes every component into one process and exposes the
// operator verbs. It is the only place that wires cross-package
// collaborators together (detector -> hedge, hedge -> risk).
type Engine struct {
	cfg *config.Config

	Registry   *gateway.Registry
	Store      *market.Store
	Aggregator *market.Aggregator
	Detector   *detector.Detector
	Classifier *classifier.Bridge
	HedgeMgr   *hedge.Manager
	RiskEngine *risk.Engine
	Rebalancer *rebalance.Rebalancer
	BalanceMgr *balance.Manager
	Bus        *events.Bus

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds and wires every component from cfg. Venues must already be
// registered on registry (credential/adapter construction is the caller's
// job, since it varies per venue implementation).
func New(cfg *config.Config, registry *gateway.Registry) *Engine {
	bus := events.NewBus()
	store := market.NewStore(cfg.HistoryCap)

	hedgeCfg := hedge.DefaultConfig()
	hedgeCfg.AutoHedge = cfg.AutoHedge
	hedgeCfg.TakeProfit = decimal.NewFromFloat(cfg.Risk.TakeProfit)
	hedgeCfg.StopLoss = decimal.NewFromFloat(cfg.Risk.StopLoss)
	hedgeCfg.WarningThreshold = decimal.NewFromFloat(cfg.Thresholds.Warning)
	hedgeCfg.MonitorInterval = cfg.MonitorInterval
	hedgeMgr := hedge.New(hedgeCfg, registry, bus)

	det := detector.New(detector.Thresholds{
		Warning:   decimal.NewFromFloat(cfg.Thresholds.Warning),
		Critical:  decimal.NewFromFloat(cfg.Thresholds.Critical),
		Arbitrage: decimal.NewFromFloat(cfg.Thresholds.Arbitrage),
	}, bus, hedgeMgr)
	det.SetStore(store)

	extremeDet := detector.NewExtremeDetector(detector.DefaultExtremeConfig(), bus)

	classifierBridge, err := classifier.New(cfg.ClassifierAddr, bus)
	if err != nil {
		log.Printf("classifier bridge disabled: %v", err)
		classifierBridge, _ = classifier.New("", bus)
	}

	agg := market.NewAggregator(store, registry, bus, det, nil, cfg.PollingInterval)
	agg.SetQuoteObserver(market.FanOutObservers(extremeDet, classifierBridge))

	riskCfg := risk.DefaultConfig()
	riskCfg.MaxExposure = decimal.NewFromFloat(cfg.Risk.MaxExposure)
	riskCfg.DeriskFloor = decimal.NewFromFloat(cfg.Risk.MaxExposure * 0.8)
	riskCfg.Interval = cfg.MonitorInterval
	riskEngine := risk.New(riskCfg, registry, bus, hedgeMgr)
	hedgeMgr.SetPnlRecorder(riskEngine)
	hedgeMgr.SetExtremeGuard(riskEngine)

	rebalCfg := rebalance.DefaultConfig()
	rebalCfg.Threshold = decimal.NewFromFloat(cfg.Risk.RebalanceThreshold)
	rebalCfg.Interval = cfg.PollingInterval
	if cfg.TradeAsset != "" {
		rebalCfg.Asset = cfg.TradeAsset
	}
	rebalancer := rebalance.New(rebalCfg, registry)

	balanceMgr := balance.NewManager(registry, cfg.PollingInterval)

	return &Engine{
		cfg:        cfg,
		Registry:   registry,
		Store:      store,
		Aggregator: agg,
		Detector:   det,
		Classifier: classifierBridge,
		HedgeMgr:   hedgeMgr,
		RiskEngine: riskEngine,
		Rebalancer: rebalancer,
		BalanceMgr: balanceMgr,
		Bus:        bus,
	}
}

// StartHedging enables new hedge opens and brings up every background
// loop if this is the first call. Safe to call repeatedly; only the
// first call starts the loops.
func (e *Engine) StartHedging(ctx context.Context) error {
	e.HedgeMgr.SetAutoHedge(true)

	if e.running.Swap(true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.Aggregator.Start(runCtx)
	e.BalanceMgr.Start(runCtx)

	e.wg.Add(3)
	go func() { defer e.wg.Done(); e.HedgeMgr.Run(runCtx) }()
	go func() { defer e.wg.Done(); e.RiskEngine.Run(runCtx) }()
	go func() { defer e.wg.Done(); e.Rebalancer.Run(runCtx) }()

	return nil
}

// StopHedging disables new hedge opens. Existing Active hedges keep
// being monitored and can still close normally; only new opens stop.
func (e *Engine) StopHedging(ctx context.Context) error {
	e.HedgeMgr.SetAutoHedge(false)
	return nil
}

// EmergencyShutdown disables opens and unwinds every open position across
// every venue, per spec §4.F.
func (e *Engine) EmergencyShutdown(ctx context.Context) error {
	e.HedgeMgr.SetAutoHedge(false)
	e.RiskEngine.EmergencyShutdown(ctx)
	return nil
}

// Status is the read-only snapshot returned by the operator surface's
// status() verb.
type Status struct {
	Running       bool
	AutoHedge     bool
	EmergencyStop bool
	ActiveHedges  int
	Exposure      domain.ExposureSnapshot
	RiskMetrics   risk.Metrics
	Pnl           domain.Pnl
	VenueNames    []string
}

// Status reports the current process state for the operator surface.
func (e *Engine) Status() Status {
	return Status{
		Running:       e.running.Load(),
		AutoHedge:     e.HedgeMgr.AutoHedge(),
		EmergencyStop: e.HedgeMgr.EmergencyStop(),
		ActiveHedges:  len(e.HedgeMgr.ActiveHedges()),
		Exposure:      e.RiskEngine.Snapshot(),
		RiskMetrics:   e.RiskEngine.Metrics(),
		Pnl:           e.RiskEngine.Pnl(),
		VenueNames:    e.Registry.Names(),
	}
}

// Stop cancels every background loop. Intended for process shutdown, not
// part of the spec's operator surface.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	if e.Classifier != nil {
		_ = e.Classifier.Close()
	}
}
