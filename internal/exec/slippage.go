package exec

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"scalping-core/internal/monitor"
	"scalping-core/pkg/broker"
)

// SlippageGuard wraps order placement with a realized-slippage budget.
// Each cycle snapshots the quote, runs a single-attempt inner execute with a
// wide deviation, and measures the fill against the snapshot. Fills beyond
// MaxSlippagePips are unwound with a compensating close; the broker has
// already accepted real risk by then, so the unwind is best effort, not a
// transactional rollback.
type SlippageGuard struct {
	Gateway         broker.Gateway
	MaxSlippagePips float64
	MaxCycles       int
	DisableDelay    bool

	// Inner places the orders and Closer unwinds rejected fills. Both are
	// exported so callers can tune magic, deviation and attempt budgets;
	// Inner.MaxAttempts stays 1 so inner and outer retries cannot stack.
	Inner  *OrderExecutor
	Closer *PositionCloser
}

// NewSlippageGuard builds a guard around gw. The inner executor runs exactly
// one attempt per cycle with a deliberately wide deviation: the guard
// enforces the budget on the realized fill, not on the request.
func NewSlippageGuard(gw broker.Gateway, maxSlippagePips float64) *SlippageGuard {
	inner := NewOrderExecutor(gw)
	inner.MaxAttempts = 1
	inner.BaseDeviation = 100
	return &SlippageGuard{
		Gateway:         gw,
		MaxSlippagePips: maxSlippagePips,
		MaxCycles:       5,
		Inner:           inner,
		Closer:          NewPositionCloser(gw),
	}
}

func (g *SlippageGuard) cycles() int {
	if g.MaxCycles <= 0 {
		return 5
	}
	return g.MaxCycles
}

func (g *SlippageGuard) pause(ctx context.Context, d time.Duration) {
	if g.DisableDelay {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Execute places the order, rejecting any cycle whose realized slippage
// exceeds the budget. A failed compensating close aborts immediately with
// ErrCompensationFailed: the caller must know a position may be open outside
// the budget.
func (g *SlippageGuard) Execute(ctx context.Context, req Request) (*Result, error) {
	si, err := g.Gateway.SymbolInfo(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol info for %s: %w", req.Symbol, err)
	}
	pip := broker.PipSize(si.Digits)

	g.Inner.DisableDelay = g.DisableDelay
	g.Closer.DisableDelay = g.DisableDelay

	var last *Result
	var lastErr error

	for cycle := 0; cycle < g.cycles(); cycle++ {
		if ctx.Err() != nil {
			break
		}

		tick, err := g.Gateway.Tick(ctx, req.Symbol)
		if err != nil {
			log.Printf("slippage guard: tick fetch failed on cycle %d: %v", cycle+1, err)
			g.pause(ctx, 100*time.Millisecond)
			continue
		}
		quoted := tick.Ask
		if req.Side == broker.SideSell {
			quoted = tick.Bid
		}

		res, err := g.Inner.Execute(ctx, req)
		last, lastErr = res, err
		if err != nil {
			g.pause(ctx, 300*time.Millisecond)
			continue
		}

		slippage := math.Abs(res.Price-quoted) / pip
		if slippage <= g.MaxSlippagePips {
			log.Printf("slippage guard: fill within budget: %.2f pips (max %.2f)",
				slippage, g.MaxSlippagePips)
			return res, nil
		}

		log.Printf("slippage guard: fill slipped %.2f pips (max %.2f): quoted=%.5f filled=%.5f, unwinding",
			slippage, g.MaxSlippagePips, quoted, res.Price)
		monitor.SlippageRejections.Inc()

		if err := g.unwind(ctx, req.Symbol, res.Ticket); err != nil {
			return res, fmt.Errorf("%w: %v", ErrCompensationFailed, err)
		}
		g.pause(ctx, 500*time.Millisecond)
	}

	if lastErr != nil {
		return last, lastErr
	}
	return last, fmt.Errorf("%w after %d cycles", ErrSlippageExceeded, g.cycles())
}

// unwind closes the just-opened position identified by ticket.
func (g *SlippageGuard) unwind(ctx context.Context, symbol string, ticket int64) error {
	positions, err := g.Gateway.Positions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("enumerate positions: %w", err)
	}
	for _, pos := range positions {
		if pos.Ticket == ticket {
			if _, err := g.Closer.Close(ctx, pos, "SLIPPAGE_UNWIND"); err != nil {
				return err
			}
			log.Printf("slippage guard: position %d closed after excessive slippage", ticket)
			return nil
		}
	}
	// Position already gone (stopped out or closed externally); nothing to unwind.
	log.Printf("slippage guard: position %d not found during unwind, assuming closed", ticket)
	return nil
}
