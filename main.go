package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/api"
	"funding-hedge-core/internal/engine"
	"funding-hedge-core/internal/gateway"
	"funding-hedge-core/internal/monitor"
	"funding-hedge-core/internal/notify"
	"funding-hedge-core/pkg/config"
	"funding-hedge-core/pkg/crypto"
	"funding-hedge-core/pkg/i18n"
	"funding-hedge-core/pkg/venue/binancefut"
	"funding-hedge-core/pkg/venue/mock"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port)

	if cfg.DryRun {
		log.Println(i18n.Get("DryRunMode"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := gateway.NewRegistry(gateway.DefaultConfig())
	registerVenues(registry, cfg)
	registry.StartHealthChecks(ctx, firstSymbol(cfg.Symbols))

	eng := engine.New(cfg, registry)
	log.Println(i18n.Get("EngineServiceInit"))

	dispatcher := notify.New(eng.Bus, notify.LogSink{})
	dispatcher.Start(ctx)

	sysMetrics := monitor.NewSystemMetrics()

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	server := api.NewServer(
		eng.Bus,
		eng,
		sysMetrics,
		api.SystemMeta{
			DryRun:  cfg.DryRun,
			Symbols: cfg.Symbols,
			Venues:  registry.Names(),
			Version: buildVersion,
		},
		cfg.JWTSecret,
		cfg.OperatorPassword,
	)

	if cfg.AutoHedge {
		if err := eng.StartHedging(ctx); err != nil {
			log.Printf(i18n.Get("APIServerError"), err)
		}
	}

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println(i18n.Get("ShuttingDown"))

	eng.Stop()
	registry.Stop()
}

// registerVenues builds a venue.Adapter for every entry in cfg.Venues. When
// MASTER_ENCRYPTION_KEY is set, stored secrets are treated as ciphertext and
// decrypted before use; otherwise they're used as plaintext. With no venues
// configured (or in dry-run), two deterministic mock venues stand in so the
// detector/hedge/risk loops have something to observe.
func registerVenues(registry *gateway.Registry, cfg *config.Config) {
	var keyMgr *crypto.KeyManager
	if os.Getenv("MASTER_ENCRYPTION_KEY") != "" {
		km, err := crypto.NewKeyManager()
		if err != nil {
			log.Printf("key manager init failed: %v (venue secrets used as plaintext)", err)
		} else {
			keyMgr = km
			log.Printf("key manager initialized (version %d)", keyMgr.CurrentVersion())
		}
	}

	if cfg.DryRun || len(cfg.Venues) == 0 {
		registerMockVenues(registry)
		return
	}

	names := make([]string, 0, len(cfg.Venues))
	for name := range cfg.Venues {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		creds := cfg.Venues[name]
		apiKey, apiSecret := creds.APIKey, creds.APISecret
		if keyMgr != nil {
			plainKey, err := keyMgr.Decrypt(apiKey)
			if err != nil {
				log.Printf(i18n.Get("VenueRegisterFailed"), name, err)
				continue
			}
			apiKey = plainKey
			if plain, err := keyMgr.Decrypt(apiSecret); err == nil {
				apiSecret = plain
			} else {
				log.Printf(i18n.Get("VenueRegisterFailed"), name, err)
				continue
			}
		}

		adapter := binancefut.New(binancefut.Config{
			VenueName:  name,
			APIKey:     apiKey,
			APISecret:  apiSecret,
			QuoteAsset: cfg.TradeAsset,
		})
		registry.Register(adapter)
		log.Printf(i18n.Get("VenueRegistered"), name)
	}
}

func registerMockVenues(registry *gateway.Registry) {
	a := mock.New("mock-a", decimal.NewFromInt(10000), mock.DefaultSimConfig())
	b := mock.New("mock-b", decimal.NewFromInt(10000), mock.DefaultSimConfig())
	registry.Register(a)
	registry.Register(b)
	log.Printf(i18n.Get("VenueRegistered"), "mock-a")
	log.Printf(i18n.Get("VenueRegistered"), "mock-b")
}

func firstSymbol(symbols []string) string {
	if len(symbols) == 0 {
		return "BTCUSDT"
	}
	return symbols[0]
}
