package bot

import (
	"context"
	"log"
	"strings"
	"time"

	"scalping-core/internal/exec"
	"scalping-core/internal/handoff"
	"scalping-core/internal/ledger"
	"scalping-core/internal/predict"
	"scalping-core/pkg/broker"
)

// State is the loop lifecycle.
type State string

const (
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
)

type executor interface {
	Execute(ctx context.Context, req exec.Request) (*exec.Result, error)
}

// Loop is the autonomous trading process: one cycle per interval, admission
// control before every entry, slippage-guarded execution, and executed
// trades published to the handoff for the control service to adopt.
type Loop struct {
	cfg        *Config
	gw         broker.Gateway
	executor   executor
	predictor  predict.Predictor
	trades     *handoff.TradeFile
	commands   *handoff.CommandFile
	emergency  *handoff.EmergencyStop
	correlator *ledger.CommentCorrelator

	state State
}

// New wires a loop. The executor is expected to be slippage-guarded; the
// loop itself only decides whether an entry is admissible.
func New(cfg *Config, gw broker.Gateway, ex executor, pred predict.Predictor,
	trades *handoff.TradeFile, commands *handoff.CommandFile, emergency *handoff.EmergencyStop) *Loop {
	return &Loop{
		cfg:        cfg,
		gw:         gw,
		executor:   ex,
		predictor:  pred,
		trades:     trades,
		commands:   commands,
		emergency:  emergency,
		correlator: ledger.NewCommentCorrelator(),
		state:      StateRunning,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State { return l.state }

// Run drives cycles until the context is cancelled, a stop command arrives,
// or the emergency marker trips. It always returns in state STOPPED.
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("bot: loop started, %d symbols, interval %s", len(l.cfg.Symbols), l.cfg.Interval())
	defer func() {
		l.state = StateStopped
		log.Printf("bot: loop stopped")
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.emergency.Active() {
			log.Printf("bot: emergency stop marker present, refusing to trade")
			return nil
		}
		if sig := l.commands.Consume(); sig != nil {
			switch sig.Command {
			case handoff.CommandStop:
				log.Printf("bot: stop command received")
				return nil
			case handoff.CommandPause:
				minutes := sig.Minutes
				if minutes <= 0 {
					minutes = 5
				}
				log.Printf("bot: pause command received, sleeping %d minutes", minutes)
				l.state = StatePaused
				interrupted, err := l.pauseFor(ctx, time.Duration(minutes)*time.Minute)
				if err != nil {
					return err
				}
				l.state = StateRunning
				if interrupted {
					return nil
				}
				continue
			}
		}

		l.cycle(ctx)

		if err := sleep(ctx, l.cfg.Interval()); err != nil {
			return err
		}
	}
}

// cycle runs one pass over every configured symbol. Per-symbol failures are
// logged and never abort the cycle.
func (l *Loop) cycle(ctx context.Context) {
	for _, sc := range l.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := l.trySymbol(ctx, sc); err != nil {
			log.Printf("bot: %s: %v", sc.Symbol, err)
		}
	}
}

// trySymbol checks preconditions, asks the model, and enters at most one
// position. Admission is checked before any order is sent: if either cap is
// already reached, no order call happens at all.
func (l *Loop) trySymbol(ctx context.Context, sc SymbolConfig) error {
	si, err := l.gw.SymbolInfo(ctx, sc.Symbol)
	if err != nil {
		return err
	}
	if !si.Visible || si.TradeMode != broker.TradeModeFull {
		log.Printf("bot: %s not tradable, skipping", sc.Symbol)
		return nil
	}

	ok, err := l.admit(ctx, sc.Symbol)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	bars, err := l.gw.Rates(ctx, sc.Symbol, l.cfg.BarsHistory)
	if err != nil {
		return err
	}
	sig, err := l.predictor.Predict(ctx, sc.Symbol, bars)
	if err != nil {
		// A dead model means hold, never a blind entry.
		log.Printf("bot: %s predictor unavailable: %v", sc.Symbol, err)
		return nil
	}
	if sig.Action == predict.ActionHold {
		return nil
	}
	if sc.MinConfidence > 0 && sig.Confidence < sc.MinConfidence {
		log.Printf("bot: %s signal %s below confidence floor (%.3f < %.3f)",
			sc.Symbol, sig.Action, sig.Confidence, sc.MinConfidence)
		return nil
	}

	side := broker.SideBuy
	if sig.Action == predict.ActionSell {
		side = broker.SideSell
	}

	tradeID := ledger.NewTradeID()
	res, err := l.executor.Execute(ctx, exec.Request{
		Symbol:  sc.Symbol,
		Side:    side,
		Lots:    sc.Lots,
		SLPips:  sc.SLPips,
		TPPips:  sc.TPPips,
		Comment: l.correlator.Comment(ledger.SourceBot, tradeID),
	})
	if err != nil {
		return err
	}

	now := time.Now()
	trade := ledger.Trade{
		TradeID:       tradeID,
		Symbol:        sc.Symbol,
		Side:          side,
		Lots:          sc.Lots,
		EntryPrice:    res.RequestedPrice,
		ExecutedPrice: res.Price,
		SLPips:        sc.SLPips,
		TPPips:        sc.TPPips,
		Status:        ledger.StatusExecuted,
		BrokerTicket:  res.Ticket,
		Source:        ledger.SourceBot,
		CreatedAt:     now,
		ExecutedAt:    &now,
	}
	pip := broker.PipSize(si.Digits)
	if sc.SLPips > 0 {
		if side == broker.SideBuy {
			trade.SLPrice = broker.RoundPrice(res.Price-sc.SLPips*pip, si.Digits)
		} else {
			trade.SLPrice = broker.RoundPrice(res.Price+sc.SLPips*pip, si.Digits)
		}
	}
	if sc.TPPips > 0 {
		if side == broker.SideBuy {
			trade.TPPrice = broker.RoundPrice(res.Price+sc.TPPips*pip, si.Digits)
		} else {
			trade.TPPrice = broker.RoundPrice(res.Price-sc.TPPips*pip, si.Digits)
		}
	}

	if err := l.trades.Publish(trade); err != nil {
		// The position is open either way; the next drain pass will not see
		// it, so make the loss of handoff visible.
		log.Printf("bot: %s trade %s opened but handoff publish failed: %v", sc.Symbol, tradeID, err)
	}
	log.Printf("bot: %s %s %.2f lots entered at %.5f (trade %s, attempts %d)",
		sc.Symbol, side, sc.Lots, res.Price, tradeID, res.Attempts)
	return nil
}

// admit enforces the per-symbol and total position caps against the live
// broker position set. Only bot-owned positions count toward the caps.
func (l *Loop) admit(ctx context.Context, symbol string) (bool, error) {
	positions, err := l.gw.Positions(ctx, "")
	if err != nil {
		return false, err
	}

	total, onSymbol := 0, 0
	for _, p := range positions {
		if !strings.HasPrefix(p.Comment, l.correlator.BotPrefix) {
			continue
		}
		total++
		if p.Symbol == symbol {
			onSymbol++
		}
	}
	if onSymbol >= l.cfg.MaxPerSymbol {
		return false, nil
	}
	if total >= l.cfg.MaxTotal {
		log.Printf("bot: total position cap reached (%d), holding", total)
		return false, nil
	}
	return true, nil
}

// pauseFor waits out a pause in one-second slices, re-checking the stop
// command and the emergency marker between slices so neither waits out a
// long pause. A fresh pause command restarts the clock.
func (l *Loop) pauseFor(ctx context.Context, d time.Duration) (bool, error) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if l.emergency.Active() {
			log.Printf("bot: emergency stop tripped during pause")
			return true, nil
		}
		if sig := l.commands.Consume(); sig != nil {
			switch sig.Command {
			case handoff.CommandStop:
				log.Printf("bot: stop command received during pause")
				return true, nil
			case handoff.CommandPause:
				minutes := sig.Minutes
				if minutes <= 0 {
					minutes = 5
				}
				deadline = time.Now().Add(time.Duration(minutes) * time.Minute)
			}
		}

		remaining := time.Until(deadline)
		slice := time.Second
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(slice):
		}
	}
	return false, nil
}

// sleep waits in one-second slices so a cancelled context never wedges
// shutdown between cycles.
func sleep(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		slice := time.Second
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(slice):
		}
	}
	return nil
}
