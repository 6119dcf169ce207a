package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is a scriptable in-memory Gateway used by tests and dry-run mode.
// OrderSend replies are consumed from a script queue; once the script is
// exhausted every request succeeds at the current quote. When Track is set,
// successful deals materialize and remove positions so admission checks and
// comment correlation behave like a real terminal.
type Mock struct {
	mu sync.Mutex

	Ticks   map[string]*Tick
	Symbols map[string]*SymbolInfo
	Account AccountInfo
	Deals   []Deal
	Bars    map[string][]Bar
	Track   bool // maintain the position set from successful deals

	script     []scriptedReply
	positions  []Position
	nextTicket int64

	// Call counters and the last order request, readable by tests.
	TickCalls      int
	OrderSendCalls int
	PositionCalls  int
	LastOrder      *OrderRequest
}

type scriptedReply struct {
	res *OrderResult
	err error
}

// NewMock creates a mock gateway with a single 5-digit symbol quoted
// bid/ask around price.
func NewMock(symbol string, price float64) *Mock {
	return &Mock{
		Ticks: map[string]*Tick{
			symbol: {Symbol: symbol, Bid: price, Ask: price + 0.00010, Time: time.Now()},
		},
		Symbols: map[string]*SymbolInfo{
			symbol: {
				Name:         symbol,
				Digits:       5,
				Point:        0.00001,
				VolumeMin:    0.01,
				VolumeMax:    100,
				VolumeStep:   0.01,
				ContractSize: 100000,
				TradeMode:    TradeModeFull,
				Visible:      true,
			},
		},
		Track:      true,
		nextTicket: 1000,
	}
}

// Script queues a structured reply for the next OrderSend call.
func (m *Mock) Script(res *OrderResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedReply{res: res})
}

// ScriptErr queues a transport failure for the next OrderSend call.
func (m *Mock) ScriptErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedReply{err: err})
}

// ScriptRetcodes queues one plain reply per retcode, filled at the ask price.
func (m *Mock) ScriptRetcodes(symbol string, codes ...int) {
	m.mu.Lock()
	tick := m.Ticks[symbol]
	m.mu.Unlock()
	for _, code := range codes {
		res := &OrderResult{Retcode: code, Comment: RetcodeMessage(code)}
		if code == RetcodeDone && tick != nil {
			res.Price = tick.Ask
		}
		m.Script(res)
	}
}

// SetQuote updates the current quote for a symbol.
func (m *Mock) SetQuote(symbol string, bid, ask float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ticks[symbol] = &Tick{Symbol: symbol, Bid: bid, Ask: ask, Time: time.Now()}
}

// AddPosition seeds an open position.
func (m *Mock) AddPosition(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Ticket == 0 {
		m.nextTicket++
		p.Ticket = m.nextTicket
	}
	m.positions = append(m.positions, p)
}

func (m *Mock) Tick(ctx context.Context, symbol string) (*Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TickCalls++
	t, ok := m.Ticks[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no tick for %s", symbol)
	}
	cp := *t
	cp.Time = time.Now()
	return &cp, nil
}

func (m *Mock) SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	si, ok := m.Symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: unknown symbol %s", symbol)
	}
	cp := *si
	return &cp, nil
}

func (m *Mock) Rates(ctx context.Context, symbol string, count int) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.Bars[symbol]
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (m *Mock) Positions(ctx context.Context, symbol string) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PositionCalls++
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		if symbol == "" || p.Symbol == symbol {
			if t, ok := m.Ticks[p.Symbol]; ok {
				if p.Side == SideBuy {
					p.CurrentPrice = t.Bid
				} else {
					p.CurrentPrice = t.Ask
				}
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Mock) OrderSend(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrderSendCalls++
	cp := req
	m.LastOrder = &cp

	if len(m.script) > 0 {
		reply := m.script[0]
		m.script = m.script[1:]
		if reply.err != nil {
			return nil, reply.err
		}
		res := *reply.res
		m.applyLocked(req, &res)
		return &res, nil
	}

	res := OrderResult{Retcode: RetcodeDone, Price: req.Price, Volume: req.Volume}
	if t, ok := m.Ticks[req.Symbol]; ok && req.Action == ActionDeal {
		if req.Side == SideBuy {
			res.Price = t.Ask
		} else {
			res.Price = t.Bid
		}
	}
	m.applyLocked(req, &res)
	return &res, nil
}

// applyLocked keeps the tracked position set in sync with successful deals.
func (m *Mock) applyLocked(req OrderRequest, res *OrderResult) {
	if !m.Track || !res.OK() || req.Action != ActionDeal {
		return
	}
	if req.Position != 0 {
		for i, p := range m.positions {
			if p.Ticket == req.Position {
				m.positions = append(m.positions[:i], m.positions[i+1:]...)
				break
			}
		}
		return
	}
	m.nextTicket++
	if res.Order == 0 {
		res.Order = m.nextTicket
	}
	if res.Volume == 0 {
		res.Volume = req.Volume
	}
	m.positions = append(m.positions, Position{
		Ticket:    res.Order,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Volume:    req.Volume,
		OpenPrice: res.Price,
		SL:        req.SL,
		TP:        req.TP,
		Comment:   req.Comment,
		OpenTime:  time.Now(),
	})
}

func (m *Mock) HistoryDeals(ctx context.Context, from, to time.Time) ([]Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Deal, 0, len(m.Deals))
	for _, d := range m.Deals {
		if !d.Time.Before(from) && !d.Time.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Mock) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.Account
	return &cp, nil
}
