package ledger

import (
	"time"

	"github.com/google/uuid"

	"scalping-core/pkg/broker"
)

// Status is the trade lifecycle state. PENDING upgrades synchronously to
// EXECUTED or FAILED on the broker's reply; EXECUTED moves to CLOSED only
// through the closing protocol. FAILED and CLOSED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusExecuted Status = "EXECUTED"
	StatusFailed   Status = "FAILED"
	StatusClosed   Status = "CLOSED"
)

// Source records which process created a trade. Both write into the same
// ledger, so provenance must travel with the record.
type Source string

const (
	SourceManual Source = "manual"
	SourceBot    Source = "autonomous-loop"
)

// Trade is the application's unit of tracked risk. The JSON shape doubles as
// the cross-process handoff wire format.
type Trade struct {
	TradeID       string      `json:"trade_id"`
	Symbol        string      `json:"symbol"`
	Side          broker.Side `json:"side"`
	Lots          float64     `json:"lots"`
	EntryPrice    float64     `json:"entry_price"`
	ExecutedPrice float64     `json:"executed_price,omitempty"`
	SLPrice       float64     `json:"sl_price"`
	TPPrice       float64     `json:"tp_price"`
	SLPips        float64     `json:"sl_points"`
	TPPips        float64     `json:"tp_points"`
	Status        Status      `json:"status"`
	BrokerTicket  int64       `json:"broker_ticket,omitempty"`
	Source        Source      `json:"source"`
	Producer      string      `json:"producer,omitempty"`
	Error         string      `json:"error,omitempty"`
	ClosePrice    float64     `json:"close_price,omitempty"`
	Profit        float64     `json:"profit,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
	ClosedAt      *time.Time  `json:"closed_at,omitempty"`
}

// NewTradeID generates a short trade identifier. Ids are fixed-length
// (8 hex chars) so the comment-correlation heuristic stays uniform.
func NewTradeID() string {
	return uuid.NewString()[:8]
}

// View is a Trade enriched with the live profit projection returned by the
// list/get operations.
type View struct {
	Trade
	CurrentProfit   float64 `json:"current_profit"`
	PotentialProfit float64 `json:"potential_profit"`
	PotentialLoss   float64 `json:"potential_loss"`
	ProfitStatus    string  `json:"profit_status,omitempty"`
}

// HistoryFilter narrows ListHistory results. Zero values match everything.
type HistoryFilter struct {
	Symbol string
	Side   broker.Side
	Status Status
	From   time.Time
	To     time.Time
}

func (f HistoryFilter) matches(t *Trade) bool {
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	if f.Side != "" && t.Side != f.Side {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func profitStatus(profit float64) string {
	switch {
	case profit > 0:
		return "profit"
	case profit < 0:
		return "loss"
	default:
		return "breakeven"
	}
}
