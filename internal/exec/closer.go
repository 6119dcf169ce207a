package exec

import (
	"context"
	"fmt"
	"log"
	"time"

	"scalping-core/internal/monitor"
	"scalping-core/pkg/broker"
)

// PositionCloser runs the retrying close protocol: the mirror of order
// placement with the side inverted and the current market price, never the
// original entry. Closes always use permissive filling; a partial close of a
// partial fill is better than holding the full position.
type PositionCloser struct {
	Gateway       broker.Gateway
	MaxAttempts   int
	BaseDeviation int
	DeviationStep int
	Magic         int
	DisableDelay  bool
}

// NewPositionCloser returns a closer with the protocol defaults.
func NewPositionCloser(gw broker.Gateway) *PositionCloser {
	return &PositionCloser{
		Gateway:       gw,
		MaxAttempts:   3,
		BaseDeviation: 50,
		DeviationStep: 10,
		Magic:         123456,
	}
}

func (c *PositionCloser) attempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

func (c *PositionCloser) pause(ctx context.Context, d time.Duration) {
	if c.DisableDelay {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Close closes pos at the current market, retrying transient failures with
// the same classification table as placement. The comment is written to the
// closing deal so it stays correlatable at the terminal.
func (c *PositionCloser) Close(ctx context.Context, pos broker.Position, comment string) (*Result, error) {
	var last *Result

	for attempt := 0; attempt < c.attempts(); attempt++ {
		if ctx.Err() != nil {
			break
		}

		tick, err := c.Gateway.Tick(ctx, pos.Symbol)
		if err != nil {
			log.Printf("closer: tick fetch failed on attempt %d: %v", attempt+1, err)
			last = &Result{Attempts: attempt + 1}
			c.pause(ctx, 100*time.Millisecond)
			continue
		}

		// Closing a BUY sells at the bid; closing a SELL buys at the ask.
		var price float64
		if pos.Side == broker.SideBuy {
			price = tick.Bid
		} else {
			price = tick.Ask
		}

		req := broker.OrderRequest{
			Action:    broker.ActionDeal,
			Symbol:    pos.Symbol,
			Volume:    pos.Volume,
			Side:      pos.Side.Opposite(),
			Price:     price,
			Position:  pos.Ticket,
			Deviation: c.BaseDeviation + attempt*c.DeviationStep,
			Magic:     c.Magic,
			Comment:   comment,
			Filling:   broker.FillingReturn,
		}

		res, err := c.Gateway.OrderSend(ctx, req)
		if err != nil {
			log.Printf("closer: order_send transport failure on attempt %d/%d: %v",
				attempt+1, c.attempts(), err)
			last = &Result{RequestedPrice: price, Attempts: attempt + 1}
			c.pause(ctx, 200*time.Millisecond)
			continue
		}

		last = &Result{
			Retcode:        res.Retcode,
			Price:          res.Price,
			RequestedPrice: price,
			Volume:         res.Volume,
			Ticket:         pos.Ticket,
			Profit:         res.Profit,
			Comment:        res.Comment,
			Attempts:       attempt + 1,
		}

		switch broker.Classify(res.Retcode) {
		case broker.ClassSuccess:
			log.Printf("closer: position %d closed on attempt %d at %.5f profit=%.2f",
				pos.Ticket, attempt+1, res.Price, res.Profit)
			monitor.Closes.WithLabelValues("closed").Inc()
			return last, nil

		case broker.ClassTerminal:
			log.Printf("closer: terminal rejection %d (%s) closing position %d",
				res.Retcode, broker.RetcodeMessage(res.Retcode), pos.Ticket)
			monitor.Closes.WithLabelValues("rejected").Inc()
			return last, fmt.Errorf("%w: %s", ErrRejected, broker.RetcodeMessage(res.Retcode))

		default:
			log.Printf("closer: %s on attempt %d/%d closing position %d",
				broker.RetcodeMessage(res.Retcode), attempt+1, c.attempts(), pos.Ticket)
			c.pause(ctx, 200*time.Millisecond)
			continue
		}
	}

	monitor.Closes.WithLabelValues("exhausted").Inc()
	if last == nil || last.Retcode == 0 {
		if last == nil {
			last = &Result{Attempts: c.attempts()}
		}
		return last, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, last.Attempts, ErrTransport)
	}
	return last, fmt.Errorf("%w after %d attempts: %s", ErrRetriesExhausted, last.Attempts, broker.RetcodeMessage(last.Retcode))
}
