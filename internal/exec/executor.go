package exec

import (
	"context"
	"fmt"
	"log"
	"time"

	"scalping-core/internal/monitor"
	"scalping-core/pkg/broker"
)

// Request is an order-placement intent. Stop distances are expressed in
// instrument-native pips and converted per attempt from the fresh quote.
type Request struct {
	Symbol  string
	Side    broker.Side
	Lots    float64
	SLPips  float64
	TPPips  float64
	Comment string
}

// Result is the outcome of an execute or close protocol run.
type Result struct {
	Retcode        int
	Price          float64
	RequestedPrice float64
	Volume         float64
	Ticket         int64
	Profit         float64
	Attempts       int
	Comment        string
}

// Message returns the human-readable retcode description.
func (r *Result) Message() string {
	if r == nil {
		return "no response"
	}
	return broker.RetcodeMessage(r.Retcode)
}

// OrderExecutor runs the retrying market-order placement protocol. Each
// attempt re-fetches the tradable price (quotes are only valid momentarily)
// and escalates the deviation budget; the fill discipline starts strict and
// relaxes after two attempts because rejects can be a pure fill-mode mismatch.
type OrderExecutor struct {
	Gateway       broker.Gateway
	MaxAttempts   int
	BaseDeviation int
	DeviationStep int
	Magic         int
	// RetryDelay scales the short inter-attempt pauses. Zero keeps the
	// defaults; tests set Disable to skip sleeping entirely.
	RetryDelay   time.Duration
	DisableDelay bool
}

// NewOrderExecutor returns an executor with the protocol defaults.
func NewOrderExecutor(gw broker.Gateway) *OrderExecutor {
	return &OrderExecutor{
		Gateway:       gw,
		MaxAttempts:   5,
		BaseDeviation: 50,
		DeviationStep: 10,
		Magic:         123456,
	}
}

func (e *OrderExecutor) attempts() int {
	if e.MaxAttempts <= 0 {
		return 5
	}
	return e.MaxAttempts
}

func (e *OrderExecutor) pause(ctx context.Context, d time.Duration) {
	if e.DisableDelay {
		return
	}
	if e.RetryDelay > 0 {
		d = e.RetryDelay
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (e *OrderExecutor) filling(attempt int) broker.Filling {
	if attempt < 2 {
		return broker.FillingFOK
	}
	return broker.FillingReturn
}

// Execute places a market order, retrying through transient broker failures.
// On a terminal rejection the last structured result is returned together
// with ErrRejected; exhausted retries return the last result (or a
// synthesized transport failure) with ErrRetriesExhausted. No outcome is
// silently swallowed.
func (e *OrderExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	si, err := e.Gateway.SymbolInfo(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol info for %s: %w", req.Symbol, err)
	}
	if req.Lots < si.VolumeMin || req.Lots > si.VolumeMax {
		return nil, fmt.Errorf("%w: %.2f not in [%.2f, %.2f]",
			ErrInvalidVolume, req.Lots, si.VolumeMin, si.VolumeMax)
	}

	pip := broker.PipSize(si.Digits)
	var last *Result

	for attempt := 0; attempt < e.attempts(); attempt++ {
		if ctx.Err() != nil {
			break
		}

		tick, err := e.Gateway.Tick(ctx, req.Symbol)
		if err != nil {
			log.Printf("executor: tick fetch failed on attempt %d: %v", attempt+1, err)
			last = &Result{Attempts: attempt + 1}
			e.pause(ctx, 100*time.Millisecond)
			continue
		}

		var price, sl, tp float64
		if req.Side == broker.SideBuy {
			price = tick.Ask
			if req.SLPips > 0 {
				sl = broker.RoundPrice(price-req.SLPips*pip, si.Digits)
			}
			if req.TPPips > 0 {
				tp = broker.RoundPrice(price+req.TPPips*pip, si.Digits)
			}
		} else {
			price = tick.Bid
			if req.SLPips > 0 {
				sl = broker.RoundPrice(price+req.SLPips*pip, si.Digits)
			}
			if req.TPPips > 0 {
				tp = broker.RoundPrice(price-req.TPPips*pip, si.Digits)
			}
		}

		order := broker.OrderRequest{
			Action:    broker.ActionDeal,
			Symbol:    req.Symbol,
			Volume:    req.Lots,
			Side:      req.Side,
			Price:     price,
			SL:        sl,
			TP:        tp,
			Deviation: e.BaseDeviation + attempt*e.DeviationStep,
			Magic:     e.Magic,
			Comment:   req.Comment,
			Filling:   e.filling(attempt),
		}

		res, err := e.Gateway.OrderSend(ctx, order)
		if err != nil {
			log.Printf("executor: order_send transport failure on attempt %d/%d: %v",
				attempt+1, e.attempts(), err)
			monitor.OrderRetries.WithLabelValues("transport").Inc()
			last = &Result{RequestedPrice: price, Attempts: attempt + 1}
			e.pause(ctx, 200*time.Millisecond)
			continue
		}

		last = &Result{
			Retcode:        res.Retcode,
			Price:          res.Price,
			RequestedPrice: price,
			Volume:         res.Volume,
			Ticket:         res.Order,
			Comment:        res.Comment,
			Attempts:       attempt + 1,
		}

		switch broker.Classify(res.Retcode) {
		case broker.ClassSuccess:
			log.Printf("executor: order executed on attempt %d: requested=%.5f filled=%.5f volume=%.2f",
				attempt+1, price, res.Price, res.Volume)
			monitor.Orders.WithLabelValues("executed").Inc()
			return last, nil

		case broker.ClassRetryable:
			log.Printf("executor: %s on attempt %d/%d, retrying (deviation=%d)",
				broker.RetcodeMessage(res.Retcode), attempt+1, e.attempts(), order.Deviation)
			monitor.OrderRetries.WithLabelValues("transient").Inc()
			e.pause(ctx, retryDelay(res.Retcode))
			continue

		case broker.ClassTerminal:
			log.Printf("executor: terminal rejection %d (%s): %s",
				res.Retcode, broker.RetcodeMessage(res.Retcode), res.Comment)
			monitor.Orders.WithLabelValues("rejected").Inc()
			return last, fmt.Errorf("%w: %s", ErrRejected, broker.RetcodeMessage(res.Retcode))

		default:
			log.Printf("executor: unrecognized retcode %d on attempt %d/%d: %s",
				res.Retcode, attempt+1, e.attempts(), res.Comment)
			monitor.OrderRetries.WithLabelValues("unknown").Inc()
			e.pause(ctx, 200*time.Millisecond)
			continue
		}
	}

	monitor.Orders.WithLabelValues("exhausted").Inc()
	if last == nil || last.Retcode == 0 {
		if last == nil {
			last = &Result{Attempts: e.attempts()}
		}
		return last, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, last.Attempts, ErrTransport)
	}
	return last, fmt.Errorf("%w after %d attempts: %s", ErrRetriesExhausted, last.Attempts, broker.RetcodeMessage(last.Retcode))
}

// retryDelay picks the short pause appropriate to a transient condition.
func retryDelay(retcode int) time.Duration {
	switch retcode {
	case broker.RetcodeRequote:
		return 300 * time.Millisecond
	case broker.RetcodeInvalidFill:
		return 100 * time.Millisecond
	default:
		return 200 * time.Millisecond
	}
}
