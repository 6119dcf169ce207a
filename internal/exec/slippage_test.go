package exec

import (
	"context"
	"errors"
	"testing"

	"scalping-core/pkg/broker"
)

func newTestGuard(m *broker.Mock, maxPips float64) *SlippageGuard {
	g := NewSlippageGuard(m, maxPips)
	g.DisableDelay = true
	return g
}

func TestGuardAcceptsFillWithinBudget(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	g := newTestGuard(m, 5)

	res, err := g.Execute(context.Background(), Request{
		Symbol: "EURUSD", Side: broker.SideBuy, Lots: 0.10,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Price != 1.10010 {
		t.Fatalf("expected fill at quoted ask, got %.5f", res.Price)
	}
	if m.OrderSendCalls != 1 {
		t.Fatalf("clean fill must not trigger a compensating close: %d order calls", m.OrderSendCalls)
	}
}

func TestGuardUnwindsExcessiveSlippageOnce(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	// First open fills 9 pips above the quoted ask; budget is 5.
	m.Script(&broker.OrderResult{Retcode: broker.RetcodeDone, Price: 1.10100})
	g := newTestGuard(m, 5)

	res, err := g.Execute(context.Background(), Request{
		Symbol: "EURUSD", Side: broker.SideBuy, Lots: 0.10,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Price != 1.10010 {
		t.Fatalf("retry cycle should fill at the quoted ask, got %.5f", res.Price)
	}

	// Exactly three order calls: slipped open, one compensating close, retry open.
	if m.OrderSendCalls != 3 {
		t.Fatalf("expected 3 order calls (open, unwind, reopen), got %d", m.OrderSendCalls)
	}
	positions, _ := m.Positions(context.Background(), "")
	if len(positions) != 1 {
		t.Fatalf("exactly one position must remain, got %d", len(positions))
	}
}

func TestGuardHonorsExecutorTuning(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	g := newTestGuard(m, 5)
	g.Inner.Magic = 777

	if _, err := g.Execute(context.Background(), Request{
		Symbol: "EURUSD", Side: broker.SideBuy, Lots: 0.10,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if m.LastOrder == nil || m.LastOrder.Magic != 777 {
		t.Fatalf("tuned magic did not reach the broker: %+v", m.LastOrder)
	}
}

func TestGuardCompensationFailureAborts(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.Script(&broker.OrderResult{Retcode: broker.RetcodeDone, Price: 1.10100}) // slipped open
	m.ScriptRetcodes("EURUSD", broker.RetcodeFrozen)                           // close refused
	g := newTestGuard(m, 5)

	_, err := g.Execute(context.Background(), Request{
		Symbol: "EURUSD", Side: broker.SideBuy, Lots: 0.10,
	})
	if !errors.Is(err, ErrCompensationFailed) {
		t.Fatalf("expected ErrCompensationFailed, got %v", err)
	}
}

func TestGuardExhaustsCycles(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	tick, _ := m.Tick(context.Background(), "EURUSD")
	for i := 0; i < 2; i++ {
		m.Script(&broker.OrderResult{Retcode: broker.RetcodeDone, Price: 1.10100}) // slipped open
		m.Script(&broker.OrderResult{Retcode: broker.RetcodeDone, Price: tick.Bid}) // unwind succeeds
	}
	g := newTestGuard(m, 5)
	g.MaxCycles = 2

	_, err := g.Execute(context.Background(), Request{
		Symbol: "EURUSD", Side: broker.SideBuy, Lots: 0.10,
	})
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	positions, _ := m.Positions(context.Background(), "")
	if len(positions) != 0 {
		t.Fatalf("every slipped fill must be unwound, %d positions left", len(positions))
	}
}
