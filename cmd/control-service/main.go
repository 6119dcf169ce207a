package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"scalping-core/internal/api"
	"scalping-core/internal/events"
	"scalping-core/internal/exec"
	"scalping-core/internal/handoff"
	"scalping-core/internal/journal"
	"scalping-core/internal/ledger"
	"scalping-core/pkg/broker"
	"scalping-core/pkg/broker/mt5"
	"scalping-core/pkg/cache"
	"scalping-core/pkg/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("control-service starting on port %s", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broker gateway: one serialized channel to the terminal bridge.
	var raw broker.Gateway
	if cfg.UseMockGateway {
		log.Printf("using mock gateway (USE_MOCK_GATEWAY=true)")
		raw = broker.NewMock("EURUSD", 1.10000)
	} else {
		raw = mt5.New(cfg.BridgeURL)
	}
	gw := cache.WrapGateway(broker.Serialize(raw), 5*time.Minute)

	bus := events.NewBus()

	executor := exec.NewOrderExecutor(gw)
	executor.MaxAttempts = cfg.MaxRetries
	executor.BaseDeviation = cfg.BaseDeviation
	executor.Magic = cfg.MagicNumber
	closer := exec.NewPositionCloser(gw)
	closer.Magic = cfg.MagicNumber

	led := ledger.New(gw, executor, closer, bus)

	var jrnl *journal.Journal
	if cfg.EnableJournal {
		jrnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			// The journal is audit-only; trading proceeds without it.
			log.Printf("journal unavailable: %v", err)
		} else {
			defer jrnl.Close()
			led.SetRecorder(jrnl)
		}
	}

	trades := handoff.NewTradeFile(filepath.Join(cfg.HandoffDir, "bot_trades.json"))
	commands := handoff.NewCommandFile(filepath.Join(cfg.HandoffDir, "bot_command.json"))
	emergency := handoff.NewEmergencyStop(filepath.Join(cfg.HandoffDir, "emergency_stop"))

	server, err := api.NewServer(bus, led, jrnl, gw, trades, commands, emergency,
		exec.NewPool(cfg.PoolSize), api.Options{
			JWTSecret:        cfg.JWTSecret,
			OperatorPassword: cfg.OperatorPassword,
			RateLimitRPS:     cfg.RateLimitRPS,
			RateLimitBurst:   cfg.RateLimitBurst,
		})
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}
	server.StartDrainLoop(ctx, 10*time.Second)

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("control-service shutting down")
	cancel()
}
