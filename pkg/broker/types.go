package broker

import (
	"math"
	"time"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Action selects what an order request does at the terminal.
type Action string

const (
	ActionDeal Action = "DEAL" // immediate market execution
	ActionSLTP Action = "SLTP" // modify stops on an existing position
)

// Filling captures the terminal's fill-discipline policy.
type Filling int

const (
	FillingFOK    Filling = 0 // all-or-nothing
	FillingIOC    Filling = 1
	FillingReturn Filling = 2 // allow partial fills
)

// TradeMode values for SymbolInfo.TradeMode.
const (
	TradeModeDisabled  = 0
	TradeModeLongOnly  = 1
	TradeModeShortOnly = 2
	TradeModeCloseOnly = 3
	TradeModeFull      = 4
)

// Tick is a momentary quote snapshot.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// SymbolInfo describes an instrument's trading constraints.
type SymbolInfo struct {
	Name         string  `json:"name"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeMax    float64 `json:"volume_max"`
	VolumeStep   float64 `json:"volume_step"`
	ContractSize float64 `json:"contract_size"`
	TradeMode    int     `json:"trade_mode"`
	Visible      bool    `json:"visible"`
}

// Position is a broker-side open position. Read-only to this application;
// profit and existence are confirmed live, never cached.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	SL           float64   `json:"sl"`
	TP           float64   `json:"tp"`
	Profit       float64   `json:"profit"`
	Comment      string    `json:"comment"`
	OpenTime     time.Time `json:"open_time"`
}

// Deal is a historical executed deal.
type Deal struct {
	Ticket  int64     `json:"ticket"`
	Symbol  string    `json:"symbol"`
	Side    Side      `json:"side"`
	Volume  float64   `json:"volume"`
	Price   float64   `json:"price"`
	Profit  float64   `json:"profit"`
	Entry   int       `json:"entry"` // 0=in, 1=out, 2=out (position close)
	Comment string    `json:"comment"`
	Time    time.Time `json:"time"`
}

// DealEntryOut marks deals that close a position in HistoryDeals results.
const DealEntryOut = 2

// Bar is a single OHLCV minute bar.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// OrderRequest captures an order intent sent to the terminal.
type OrderRequest struct {
	Action    Action  `json:"action"`
	Symbol    string  `json:"symbol"`
	Volume    float64 `json:"volume"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Deviation int     `json:"deviation"`
	Position  int64   `json:"position,omitempty"` // ticket for close/modify requests
	Magic     int     `json:"magic"`
	Comment   string  `json:"comment"`
	Filling   Filling `json:"filling"`
}

// OrderResult is the terminal's structured reply to OrderSend. A nil result
// (with a non-nil error) signals transport failure, which callers must treat
// differently from a structured rejection.
type OrderResult struct {
	Retcode int     `json:"retcode"`
	Deal    int64   `json:"deal"`
	Order   int64   `json:"order"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	Profit  float64 `json:"profit"` // populated on closing deals
	Comment string  `json:"comment"`
}

// OK reports whether the terminal fully accepted the request.
func (r *OrderResult) OK() bool {
	return r != nil && (r.Retcode == RetcodeDone || r.Retcode == RetcodeDonePartial)
}

// AccountInfo is an account snapshot used by the monitor and health surface.
type AccountInfo struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	MarginFree float64 `json:"margin_free"`
	Profit     float64 `json:"profit"`
	Leverage   int     `json:"leverage"`
	Currency   string  `json:"currency"`
	Server     string  `json:"server"`
}

// PipSize returns the instrument-native price increment for a quoted decimal
// precision. 5-digit FX symbols move in 0.0001 pips, 3-digit (JPY style) in
// 0.01; everything else uses 0.001.
func PipSize(digits int) float64 {
	switch digits {
	case 5:
		return 0.0001
	case 3:
		return 0.01
	default:
		return 0.001
	}
}

// RoundPrice rounds a computed price to the instrument's quoted precision.
func RoundPrice(price float64, digits int) float64 {
	scale := 1.0
	for i := 0; i < digits; i++ {
		scale *= 10
	}
	return math.Round(price*scale) / scale
}
