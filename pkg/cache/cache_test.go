package cache

import (
	"context"
	"testing"
	"time"

	"scalping-core/pkg/broker"
)

type countingGateway struct {
	broker.Gateway
	symbolInfoCalls int
}

func (g *countingGateway) SymbolInfo(ctx context.Context, symbol string) (*broker.SymbolInfo, error) {
	g.symbolInfoCalls++
	return g.Gateway.SymbolInfo(ctx, symbol)
}

func TestSymbolCacheTTL(t *testing.T) {
	c := NewSymbolCache(50 * time.Millisecond)
	info := broker.SymbolInfo{Name: "EURUSD", Digits: 5}

	if _, ok := c.Get("EURUSD"); ok {
		t.Fatal("empty cache must miss")
	}
	c.Set("EURUSD", info)
	got, ok := c.Get("EURUSD")
	if !ok || got.Digits != 5 {
		t.Fatalf("expected cached entry, got %+v ok=%v", got, ok)
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("EURUSD"); ok {
		t.Fatal("expired entry must miss")
	}
	if removed := c.Cleanup(); removed != 1 {
		t.Fatalf("expected 1 expired entry removed, got %d", removed)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after cleanup, got %d", c.Len())
	}
}

func TestGatewayCachesSymbolInfo(t *testing.T) {
	inner := &countingGateway{Gateway: broker.NewMock("EURUSD", 1.10000)}
	gw := WrapGateway(inner, time.Minute)

	for i := 0; i < 3; i++ {
		info, err := gw.SymbolInfo(context.Background(), "EURUSD")
		if err != nil {
			t.Fatalf("SymbolInfo failed: %v", err)
		}
		if info.Digits != 5 {
			t.Fatalf("unexpected info: %+v", info)
		}
	}
	if inner.symbolInfoCalls != 1 {
		t.Fatalf("expected 1 underlying call, got %d", inner.symbolInfoCalls)
	}

	// Errors pass through uncached.
	if _, err := gw.SymbolInfo(context.Background(), "UNKNOWN"); err == nil {
		t.Fatal("unknown symbol must error")
	}
}
