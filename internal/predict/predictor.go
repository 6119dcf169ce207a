package predict

import (
	"context"

	"scalping-core/pkg/broker"
)

// Signal is a trading decision for one symbol. Action is "buy", "sell" or
// "hold"; Confidence is the model's own estimate in [0,1].
type Signal struct {
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// Predictor turns recent bars into a Signal. The bot loop treats any error
// as "hold": a dead model must never translate into an open position.
type Predictor interface {
	Predict(ctx context.Context, symbol string, bars []broker.Bar) (*Signal, error)
}
