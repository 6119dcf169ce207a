package exec

import (
	"context"
	"errors"
	"testing"

	"scalping-core/pkg/broker"
)

func seedPosition(m *broker.Mock, side broker.Side) broker.Position {
	pos := broker.Position{
		Ticket:    5001,
		Symbol:    "EURUSD",
		Side:      side,
		Volume:    0.10,
		OpenPrice: 1.10000,
		Comment:   "API_TRADE_ab12cd34",
	}
	m.AddPosition(pos)
	return pos
}

func TestCloseBuyAtBid(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.SetQuote("EURUSD", 1.09990, 1.10000)
	pos := seedPosition(m, broker.SideBuy)

	c := NewPositionCloser(m)
	c.DisableDelay = true

	res, err := c.Close(context.Background(), pos, "CLOSE_ab12cd34")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if res.Price != 1.09990 {
		t.Fatalf("BUY must close at bid 1.09990, got %.5f", res.Price)
	}
	remaining, _ := m.Positions(context.Background(), "")
	if len(remaining) != 0 {
		t.Fatalf("position not removed after close: %d left", len(remaining))
	}
}

func TestCloseSellAtAsk(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.SetQuote("EURUSD", 1.09990, 1.10000)
	pos := seedPosition(m, broker.SideSell)

	c := NewPositionCloser(m)
	c.DisableDelay = true

	res, err := c.Close(context.Background(), pos, "CLOSE_ab12cd34")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if res.Price != 1.10000 {
		t.Fatalf("SELL must close at ask 1.10000, got %.5f", res.Price)
	}
}

func TestCloseRetriesRequote(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.ScriptRetcodes("EURUSD", broker.RetcodeRequote)
	pos := seedPosition(m, broker.SideBuy)

	c := NewPositionCloser(m)
	c.DisableDelay = true

	res, err := c.Close(context.Background(), pos, "CLOSE_ab12cd34")
	if err != nil {
		t.Fatalf("Close failed after requote: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestCloseTerminalRejection(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.ScriptRetcodes("EURUSD", broker.RetcodeFrozen)
	pos := seedPosition(m, broker.SideBuy)

	c := NewPositionCloser(m)
	c.DisableDelay = true

	_, err := c.Close(context.Background(), pos, "CLOSE_ab12cd34")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if m.OrderSendCalls != 1 {
		t.Fatalf("terminal rejection must not retry: %d order calls", m.OrderSendCalls)
	}
}
