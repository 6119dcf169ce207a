package handoff

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scalping-core/internal/ledger"
	"scalping-core/pkg/broker"
)

func tradeFixture(id string) ledger.Trade {
	return ledger.Trade{
		TradeID:       id,
		Symbol:        "EURUSD",
		Side:          broker.SideBuy,
		Lots:          0.10,
		ExecutedPrice: 1.10010,
		Status:        ledger.StatusExecuted,
		Source:        ledger.SourceBot,
		CreatedAt:     time.Now(),
	}
}

func TestTradeFilePublishAndDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_trades.json")
	f := NewTradeFile(path)

	if err := f.Publish(tradeFixture("bot00001")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := f.Publish(tradeFixture("bot00002")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if f.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", f.Pending())
	}

	trades := f.Drain()
	if len(trades) != 2 {
		t.Fatalf("expected 2 drained trades, got %d", len(trades))
	}
	if trades[0].TradeID != "bot00001" || trades[1].TradeID != "bot00002" {
		t.Fatalf("order not preserved: %s, %s", trades[0].TradeID, trades[1].TradeID)
	}
	if trades[0].Producer == "" {
		t.Fatal("producer stamp missing")
	}

	// Drained file is gone; a second drain yields nothing.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file must be removed after drain")
	}
	if again := f.Drain(); len(again) != 0 {
		t.Fatalf("second drain must be empty, got %d", len(again))
	}
}

func TestTradeFileDropsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_trades.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewTradeFile(path)

	if trades := f.Drain(); len(trades) != 0 {
		t.Fatalf("corrupt file must drain to nothing, got %d", len(trades))
	}
	// The handoff keeps working afterwards.
	if err := f.Publish(tradeFixture("bot00003")); err != nil {
		t.Fatalf("Publish after corruption failed: %v", err)
	}
	if f.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", f.Pending())
	}
}

func TestCommandFileConsumeOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_command.json")
	c := NewCommandFile(path)

	if sig := c.Consume(); sig != nil {
		t.Fatalf("expected no pending command, got %+v", sig)
	}

	if err := c.Issue(CommandPause, 15); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	sig := c.Consume()
	if sig == nil || sig.Command != CommandPause || sig.Minutes != 15 {
		t.Fatalf("unexpected signal: %+v", sig)
	}
	if again := c.Consume(); again != nil {
		t.Fatalf("command must be consumed exactly once, got %+v", again)
	}
}

func TestCommandFileOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_command.json")
	c := NewCommandFile(path)

	if err := c.Issue(CommandPause, 5); err != nil {
		t.Fatal(err)
	}
	if err := c.Issue(CommandStop, 0); err != nil {
		t.Fatal(err)
	}
	sig := c.Consume()
	if sig == nil || sig.Command != CommandStop {
		t.Fatalf("latest command must win, got %+v", sig)
	}
}

func TestEmergencyStopLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emergency_stop")
	e := NewEmergencyStop(path)

	if e.Active() {
		t.Fatal("marker must start clear")
	}
	if err := e.Trip("test"); err != nil {
		t.Fatalf("Trip failed: %v", err)
	}
	if !e.Active() {
		t.Fatal("marker must be active after trip")
	}
	// Unlike commands, reading does not consume the marker.
	if !e.Active() {
		t.Fatal("marker must persist across checks")
	}
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if e.Active() {
		t.Fatal("marker must be gone after clear")
	}
	if err := e.Clear(); err != nil {
		t.Fatalf("clearing a clear marker must not fail: %v", err)
	}
}
