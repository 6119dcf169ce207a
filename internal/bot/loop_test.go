package bot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"scalping-core/internal/exec"
	"scalping-core/internal/handoff"
	"scalping-core/internal/predict"
	"scalping-core/pkg/broker"
)

type stubPredictor struct {
	sig *predict.Signal
	err error
}

func (s *stubPredictor) Predict(ctx context.Context, symbol string, bars []broker.Bar) (*predict.Signal, error) {
	return s.sig, s.err
}

type countingExecutor struct {
	calls int
	res   *exec.Result
	err   error
}

func (c *countingExecutor) Execute(ctx context.Context, req exec.Request) (*exec.Result, error) {
	c.calls++
	return c.res, c.err
}

func testConfig() *Config {
	cfg := &Config{
		Symbols:      []SymbolConfig{{Symbol: "EURUSD", Lots: 0.10, SLPips: 10, TPPips: 20}},
		MaxPerSymbol: 1,
		MaxTotal:     3,
	}
	cfg.applyDefaults()
	return cfg
}

func newTestLoop(t *testing.T, m *broker.Mock, ex executor, pred predict.Predictor) (*Loop, *handoff.TradeFile) {
	t.Helper()
	dir := t.TempDir()
	trades := handoff.NewTradeFile(filepath.Join(dir, "bot_trades.json"))
	commands := handoff.NewCommandFile(filepath.Join(dir, "bot_command.json"))
	emergency := handoff.NewEmergencyStop(filepath.Join(dir, "emergency_stop"))
	return New(testConfig(), m, ex, pred, trades, commands, emergency), trades
}

func buySignal() *predict.Signal {
	return &predict.Signal{Action: predict.ActionBuy, Symbol: "EURUSD", Confidence: 0.9}
}

func executedResult() *exec.Result {
	return &exec.Result{Retcode: broker.RetcodeDone, Price: 1.10010, RequestedPrice: 1.10010, Ticket: 1234, Attempts: 1}
}

func TestEntryPublishedToHandoff(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	loop, trades := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})

	loop.cycle(context.Background())

	if ex.calls != 1 {
		t.Fatalf("expected 1 execution, got %d", ex.calls)
	}
	published := trades.Drain()
	if len(published) != 1 {
		t.Fatalf("expected 1 handoff trade, got %d", len(published))
	}
	trade := published[0]
	if trade.Status != "EXECUTED" || trade.BrokerTicket != 1234 {
		t.Fatalf("unexpected handoff trade: %+v", trade)
	}
	if trade.SLPrice != 1.09910 {
		t.Fatalf("expected SL 1.09910, got %.5f", trade.SLPrice)
	}
}

func TestPerSymbolCapBlocksEntry(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.AddPosition(broker.Position{
		Symbol: "EURUSD", Side: broker.SideBuy, Volume: 0.10, Comment: "BOT_ab12cd34",
	})
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})

	loop.cycle(context.Background())

	if ex.calls != 0 {
		t.Fatalf("admission must block before execution, got %d calls", ex.calls)
	}
	if m.OrderSendCalls != 0 {
		t.Fatalf("no order may reach the broker at the cap, got %d", m.OrderSendCalls)
	}
}

func TestTotalCapBlocksEntry(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	for i, sym := range []string{"GBPUSD", "USDJPY", "AUDUSD"} {
		m.AddPosition(broker.Position{
			Ticket: int64(100 + i), Symbol: sym, Side: broker.SideBuy,
			Volume: 0.10, Comment: "BOT_deadbee" + string(rune('0'+i)),
		})
	}
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})

	loop.cycle(context.Background())

	if ex.calls != 0 {
		t.Fatalf("total cap must block entry, got %d calls", ex.calls)
	}
	if m.OrderSendCalls != 0 {
		t.Fatalf("no order may reach the broker at the cap, got %d", m.OrderSendCalls)
	}
}

func TestForeignPositionsDoNotCount(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	for i := 0; i < 3; i++ {
		m.AddPosition(broker.Position{
			Ticket: int64(200 + i), Symbol: "GBPUSD", Side: broker.SideBuy,
			Volume: 0.10, Comment: "manual hedge",
		})
	}
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})

	loop.cycle(context.Background())

	if ex.calls != 1 {
		t.Fatalf("foreign positions must not count toward the caps, got %d calls", ex.calls)
	}
}

func TestHoldSignalSkipsEntry(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	hold := &predict.Signal{Action: predict.ActionHold, Symbol: "EURUSD"}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: hold})

	loop.cycle(context.Background())

	if ex.calls != 0 {
		t.Fatalf("hold must not execute, got %d calls", ex.calls)
	}
}

func TestPredictorErrorMeansHold(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{err: context.DeadlineExceeded})

	loop.cycle(context.Background())

	if ex.calls != 0 {
		t.Fatalf("a dead model must not translate into an entry, got %d calls", ex.calls)
	}
}

func TestConfidenceFloor(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	weak := &predict.Signal{Action: predict.ActionBuy, Symbol: "EURUSD", Confidence: 0.1}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: weak})
	loop.cfg.Symbols[0].MinConfidence = 0.5

	loop.cycle(context.Background())

	if ex.calls != 0 {
		t.Fatalf("signal below the confidence floor must not execute, got %d calls", ex.calls)
	}
}

func TestStopCommandEndsRun(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})
	if err := loop.commands.Issue(handoff.CommandStop, 0); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not honor the stop command")
	}
	if loop.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", loop.State())
	}
	if ex.calls != 0 {
		t.Fatalf("stop must take effect before the first cycle, got %d calls", ex.calls)
	}
}

func TestPauseInterruptedByEmergency(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})
	if err := loop.emergency.Trip("test"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	interrupted, err := loop.pauseFor(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("pauseFor returned error: %v", err)
	}
	if !interrupted {
		t.Fatal("emergency marker must interrupt the pause")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("pause must end within one slice of the marker tripping")
	}
}

func TestPauseInterruptedByStopCommand(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})
	if err := loop.commands.Issue(handoff.CommandStop, 0); err != nil {
		t.Fatal(err)
	}

	interrupted, err := loop.pauseFor(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("pauseFor returned error: %v", err)
	}
	if !interrupted {
		t.Fatal("stop command must interrupt the pause")
	}
}

func TestEmergencyStopRefusesToTrade(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	ex := &countingExecutor{res: executedResult()}
	loop, _ := newTestLoop(t, m, ex, &stubPredictor{sig: buySignal()})
	if err := loop.emergency.Trip("test"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not honor the emergency stop")
	}
	if ex.calls != 0 {
		t.Fatalf("emergency stop must block all trading, got %d calls", ex.calls)
	}
}
