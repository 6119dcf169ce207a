package predict

import (
	"context"

	"scalping-core/internal/indicators"
	"scalping-core/pkg/broker"
)

// Threshold is the deterministic fallback model: short-over-long moving
// average crossover on closes, with an RSI veto against entering into an
// already stretched move. It exists so the bot stays testable and operable
// when no worker is deployed.
type Threshold struct {
	ShortWindow int
	LongWindow  int
	RSIPeriod   int
	RSIHigh     float64
	RSILow      float64
}

func NewThreshold() *Threshold {
	return &Threshold{
		ShortWindow: 5,
		LongWindow:  20,
		RSIPeriod:   14,
		RSIHigh:     70,
		RSILow:      30,
	}
}

func (t *Threshold) Predict(_ context.Context, symbol string, bars []broker.Bar) (*Signal, error) {
	if len(bars) < t.LongWindow || len(bars) < t.RSIPeriod+1 {
		return &Signal{Action: ActionHold, Symbol: symbol, Note: "insufficient history"}, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	shortMA := indicators.SMA(closes, t.ShortWindow)
	longMA := indicators.SMA(closes, t.LongWindow)
	rsi := indicators.RSI(closes, t.RSIPeriod)

	sig := &Signal{Action: ActionHold, Symbol: symbol}
	switch {
	case shortMA > longMA && rsi < t.RSIHigh:
		sig.Action = ActionBuy
	case shortMA < longMA && rsi > t.RSILow:
		sig.Action = ActionSell
	case shortMA > longMA || shortMA < longMA:
		sig.Note = "rsi veto"
	}
	if longMA != 0 {
		spread := shortMA - longMA
		if spread < 0 {
			spread = -spread
		}
		sig.Confidence = spread / longMA * 1000
		if sig.Confidence > 1 {
			sig.Confidence = 1
		}
	}
	return sig, nil
}
