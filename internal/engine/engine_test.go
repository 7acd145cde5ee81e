package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/gateway"
	"funding-hedge-core/pkg/config"
	"funding-hedge-core/pkg/venue/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Symbols:         []string{"BTCUSDT"},
		PollingInterval: 20 * time.Millisecond,
		MonitorInterval: 10 * time.Millisecond,
		Thresholds:      config.Thresholds{Warning: 0.0005, Critical: 0.001, Arbitrage: 0.002},
		Risk:            config.RiskParams{MaxExposure: 0.10, RebalanceThreshold: 0.03, StopLoss: 0.05, TakeProfit: 0.10},
		AutoHedge:       false,
	}
}

func TestStartHedgingBringsUpLoopsAndStopHedgingDisablesOpens(t *testing.T) {
	registry := gateway.NewRegistry(gateway.DefaultConfig())
	a := mock.New("venueA", decimal.NewFromInt(10000), mock.SimConfig{})
	b := mock.New("venueB", decimal.NewFromInt(10000), mock.SimConfig{})
	registry.Register(a)
	registry.Register(b)

	e := New(testConfig(), registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.StartHedging(ctx); err != nil {
		t.Fatalf("StartHedging failed: %v", err)
	}
	defer e.Stop()

	st := e.Status()
	if !st.Running || !st.AutoHedge {
		t.Fatalf("expected running+auto_hedge after StartHedging, got %+v", st)
	}

	if err := e.StopHedging(ctx); err != nil {
		t.Fatalf("StopHedging failed: %v", err)
	}
	st = e.Status()
	if st.AutoHedge {
		t.Fatal("expected auto_hedge disabled after StopHedging")
	}
	if !st.Running {
		t.Fatal("expected the engine to keep running (loops stay up) after StopHedging")
	}
}

func TestEmergencyShutdownStopsOpensAndUnwindsPositions(t *testing.T) {
	registry := gateway.NewRegistry(gateway.DefaultConfig())
	a := mock.New("venueA", decimal.NewFromInt(10000), mock.SimConfig{})
	a.SetMarkPrice("BTCUSDT", decimal.NewFromInt(100))
	registry.Register(a)

	e := New(testConfig(), registry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.StartHedging(ctx); err != nil {
		t.Fatalf("StartHedging failed: %v", err)
	}
	defer e.Stop()

	if err := e.EmergencyShutdown(ctx); err != nil {
		t.Fatalf("EmergencyShutdown failed: %v", err)
	}

	st := e.Status()
	if st.AutoHedge {
		t.Fatal("expected auto_hedge disabled after emergency_shutdown")
	}
	if !st.EmergencyStop {
		t.Fatal("expected emergency_stop set after emergency_shutdown")
	}
}
