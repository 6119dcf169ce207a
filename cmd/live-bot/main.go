package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"scalping-core/internal/bot"
	"scalping-core/internal/exec"
	"scalping-core/internal/handoff"
	"scalping-core/internal/predict"
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
	loopCfg, err := bot.LoadConfig(cfg.BotConfigPath)
	if err != nil {
		log.Fatalf("bot config load failed: %v", err)
	}
	log.Printf("live-bot starting, config %s", cfg.BotConfigPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var raw broker.Gateway
	if cfg.UseMockGateway {
		log.Printf("using mock gateway (USE_MOCK_GATEWAY=true)")
		raw = broker.NewMock("EURUSD", 1.10000)
	} else {
		raw = mt5.New(cfg.BridgeURL)
	}
	gw := cache.WrapGateway(broker.Serialize(raw), 5*time.Minute)

	guard := exec.NewSlippageGuard(gw, loopCfg.MaxSlippagePips)
	guard.MaxCycles = cfg.MaxRetries
	guard.Inner.Magic = cfg.MagicNumber
	guard.Closer.Magic = cfg.MagicNumber
	// Deviation stays at the guard's wide default: the budget is enforced
	// on the realized fill, not on the request.

	var predictor predict.Predictor
	if cfg.EnablePredictWorker {
		worker, err := predict.NewWorkerClient(cfg.PredictWorkerAddr)
		if err != nil {
			log.Fatalf("predict worker dial failed: %v", err)
		}
		defer worker.Close()
		// A dead model must stop the process here, not degrade to
		// holding forever inside the loop.
		verifyCtx, verifyCancel := context.WithTimeout(ctx, 5*time.Second)
		err = worker.Verify(verifyCtx)
		verifyCancel()
		if err != nil {
			log.Fatalf("predict worker at %s is not answering: %v", cfg.PredictWorkerAddr, err)
		}
		predictor = worker
		log.Printf("using gRPC model worker at %s", cfg.PredictWorkerAddr)
	} else {
		predictor = predict.NewThreshold()
		log.Printf("using built-in threshold model")
	}

	trades := handoff.NewTradeFile(filepath.Join(cfg.HandoffDir, "bot_trades.json"))
	commands := handoff.NewCommandFile(filepath.Join(cfg.HandoffDir, "bot_command.json"))
	emergency := handoff.NewEmergencyStop(filepath.Join(cfg.HandoffDir, "emergency_stop"))

	loop := bot.New(loopCfg, gw, guard, predictor, trades, commands, emergency)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Printf("live-bot shutting down")
		cancel()
	}()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("loop failed: %v", err)
	}
}
