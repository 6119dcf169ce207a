package ledger

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"scalping-core/internal/events"
	"scalping-core/internal/exec"
	"scalping-core/internal/monitor"
	"scalping-core/pkg/broker"
)

// orderExecutor and positionCloser are the slices of internal/exec the
// ledger needs; tests substitute their own.
type orderExecutor interface {
	Execute(ctx context.Context, req exec.Request) (*exec.Result, error)
}

type positionCloser interface {
	Close(ctx context.Context, pos broker.Position, comment string) (*exec.Result, error)
}

// Recorder receives best-effort audit copies of ledger transitions. Failures
// are the recorder's problem; the ledger never blocks trading on it.
type Recorder interface {
	RecordExecuted(t Trade)
	RecordClosed(t Trade)
}

// Ledger tracks active trades and trade history, keyed by application trade
// ids. It owns the ledger lock; broker-call sequencing is the gateway's own
// lock domain (broker.Serialized). Methods suffixed "Locked" run with the
// ledger lock already held and must never reacquire it.
type Ledger struct {
	mu      sync.Mutex
	active  map[string]*Trade
	history []*Trade
	known   map[string]struct{} // every trade id ever seen

	gw         broker.Gateway
	executor   orderExecutor
	closer     positionCloser
	correlator PositionCorrelator
	bus        *events.Bus
	recorder   Recorder
}

// New creates a ledger on top of a (serialized) gateway.
func New(gw broker.Gateway, executor orderExecutor, closer positionCloser, bus *events.Bus) *Ledger {
	return &Ledger{
		active:     make(map[string]*Trade),
		history:    make([]*Trade, 0, 64),
		known:      make(map[string]struct{}),
		gw:         gw,
		executor:   executor,
		closer:     closer,
		correlator: NewCommentCorrelator(),
		bus:        bus,
	}
}

// SetRecorder attaches an audit recorder.
func (l *Ledger) SetRecorder(r Recorder) { l.recorder = r }

// SetCorrelator swaps the position correlation scheme.
func (l *Ledger) SetCorrelator(c PositionCorrelator) { l.correlator = c }

// PlaceResult is the structured outcome of Place. Expected broker failures
// arrive here, not as errors.
type PlaceResult struct {
	Success bool   `json:"success"`
	TradeID string `json:"trade_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Trade   *Trade `json:"data,omitempty"`
}

// CloseResult is the structured outcome of Close / one CloseAll entry.
type CloseResult struct {
	Success    bool    `json:"success"`
	TradeID    string  `json:"trade_id"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
	ClosePrice float64 `json:"close_price,omitempty"`
	Profit     float64 `json:"profit,omitempty"`
}

// UpdateSLResult is the structured outcome of UpdateStopLoss.
type UpdateSLResult struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
	NewSLPrice float64 `json:"new_sl_price,omitempty"`
}

func placeFailure(tradeID, msg string) PlaceResult {
	return PlaceResult{Success: false, TradeID: tradeID, Error: msg}
}

// Place validates the symbol, generates a trade id, runs the placement
// protocol and records the outcome. The trade id is embedded in the order
// comment because the broker has no application-identity field.
func (l *Ledger) Place(ctx context.Context, symbol string, side broker.Side, lots, slPips, tpPips float64, source Source) PlaceResult {
	si, err := l.gw.SymbolInfo(ctx, symbol)
	if err != nil {
		return placeFailure("", fmt.Sprintf("symbol %s not found: %v", symbol, err))
	}
	if !si.Visible {
		return placeFailure("", fmt.Sprintf("symbol %s is not visible", symbol))
	}
	if si.TradeMode != broker.TradeModeFull {
		return placeFailure("", fmt.Sprintf("symbol %s has restricted trading mode", symbol))
	}
	if lots < si.VolumeMin {
		return placeFailure("", fmt.Sprintf("lot size too small, minimum: %.2f", si.VolumeMin))
	}
	if lots > si.VolumeMax {
		return placeFailure("", fmt.Sprintf("lot size too large, maximum: %.2f", si.VolumeMax))
	}

	tradeID := NewTradeID()
	now := time.Now()
	trade := &Trade{
		TradeID:   tradeID,
		Symbol:    symbol,
		Side:      side,
		Lots:      lots,
		SLPips:    slPips,
		TPPips:    tpPips,
		Status:    StatusPending,
		Source:    source,
		CreatedAt: now,
	}

	log.Printf("ledger: placing %s %s %.2f lots (trade %s)", symbol, side, lots, tradeID)

	res, execErr := l.executor.Execute(ctx, exec.Request{
		Symbol:  symbol,
		Side:    side,
		Lots:    lots,
		SLPips:  slPips,
		TPPips:  tpPips,
		Comment: l.correlator.Comment(source, tradeID),
	})

	if execErr != nil || res == nil {
		msg := "order failed"
		if res != nil && res.Retcode != 0 {
			msg = fmt.Sprintf("order failed: %s", broker.RetcodeMessage(res.Retcode))
		} else if execErr != nil {
			msg = fmt.Sprintf("order failed: %v", execErr)
		}
		trade.Status = StatusFailed
		trade.Error = msg

		l.mu.Lock()
		l.appendLocked(trade)
		l.mu.Unlock()

		l.publish(events.EventTradeFailed, *trade)
		return placeFailure(tradeID, msg)
	}

	pip := broker.PipSize(si.Digits)
	execTime := time.Now()
	trade.Status = StatusExecuted
	trade.BrokerTicket = res.Ticket
	trade.EntryPrice = res.RequestedPrice
	trade.ExecutedPrice = res.Price
	trade.ExecutedAt = &execTime
	if slPips > 0 {
		if side == broker.SideBuy {
			trade.SLPrice = broker.RoundPrice(res.Price-slPips*pip, si.Digits)
		} else {
			trade.SLPrice = broker.RoundPrice(res.Price+slPips*pip, si.Digits)
		}
	}
	if tpPips > 0 {
		if side == broker.SideBuy {
			trade.TPPrice = broker.RoundPrice(res.Price+tpPips*pip, si.Digits)
		} else {
			trade.TPPrice = broker.RoundPrice(res.Price-tpPips*pip, si.Digits)
		}
	}

	l.mu.Lock()
	l.active[tradeID] = trade
	l.appendLocked(trade)
	monitor.ActiveTrades.Set(float64(len(l.active)))
	l.mu.Unlock()

	if l.recorder != nil {
		l.recorder.RecordExecuted(*trade)
	}
	l.publish(events.EventTradeExecuted, *trade)

	cp := *trade
	return PlaceResult{
		Success: true,
		TradeID: tradeID,
		Message: fmt.Sprintf("trade executed at %.5f", res.Price),
		Trade:   &cp,
	}
}

// appendLocked registers a trade in history. Caller holds the ledger lock.
func (l *Ledger) appendLocked(t *Trade) {
	l.history = append(l.history, t)
	l.known[t.TradeID] = struct{}{}
}

// Close closes one active trade. On failure the trade stays active and a
// later call may retry.
func (l *Ledger) Close(ctx context.Context, tradeID string) CloseResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, ok := l.active[tradeID]
	if !ok {
		return CloseResult{Success: false, TradeID: tradeID, Error: fmt.Sprintf("trade %s not found", tradeID)}
	}

	res := l.closeLocked(ctx, trade)
	if res.Success {
		delete(l.active, tradeID)
		monitor.ActiveTrades.Set(float64(len(l.active)))
	}
	return res
}

// closeLocked runs the closing protocol for an active trade. The ledger lock
// is held by the caller and must not be reacquired here; the broker-call
// lock lives inside the gateway.
func (l *Ledger) closeLocked(ctx context.Context, trade *Trade) CloseResult {
	fail := func(msg string) CloseResult {
		return CloseResult{Success: false, TradeID: trade.TradeID, Error: msg}
	}

	positions, err := l.gw.Positions(ctx, trade.Symbol)
	if err != nil {
		return fail(fmt.Sprintf("position lookup failed: %v", err))
	}

	var target *broker.Position
	for i := range positions {
		if trade.BrokerTicket != 0 && positions[i].Ticket == trade.BrokerTicket {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		if c, ok := l.correlator.(*CommentCorrelator); ok {
			target = c.FindIn(positions, trade.TradeID)
		} else {
			for i := range positions {
				if l.correlator.Match(positions[i], trade.TradeID) {
					target = &positions[i]
					break
				}
			}
		}
	}
	if target == nil {
		return fail(fmt.Sprintf("position for trade %s not found", trade.TradeID))
	}

	res, closeErr := l.closer.Close(ctx, *target, "CLOSE_"+trade.TradeID)
	if closeErr != nil || res == nil {
		msg := "close failed"
		if res != nil && res.Retcode != 0 {
			msg = fmt.Sprintf("close failed: %s", broker.RetcodeMessage(res.Retcode))
		} else if closeErr != nil {
			msg = fmt.Sprintf("close failed: %v", closeErr)
		}
		return fail(msg)
	}

	now := time.Now()
	trade.Status = StatusClosed
	trade.ClosePrice = res.Price
	trade.Profit = res.Profit
	trade.ClosedAt = &now

	if l.recorder != nil {
		l.recorder.RecordClosed(*trade)
	}
	l.publish(events.EventTradeClosed, *trade)

	log.Printf("ledger: trade %s closed at %.5f profit=%.2f", trade.TradeID, res.Price, res.Profit)
	return CloseResult{
		Success:    true,
		TradeID:    trade.TradeID,
		Message:    fmt.Sprintf("trade %s closed", trade.TradeID),
		ClosePrice: res.Price,
		Profit:     res.Profit,
	}
}

// CloseAll snapshots the active set and closes each trade independently.
// This is a partial-failure batch: the ledger lock is released between
// iterations, failed trades stay active, and the caller always receives one
// result per snapshotted trade.
func (l *Ledger) CloseAll(ctx context.Context) []CloseResult {
	l.mu.Lock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	sort.Strings(ids)

	results := make([]CloseResult, 0, len(ids))
	for _, id := range ids {
		l.mu.Lock()
		trade, ok := l.active[id]
		if !ok {
			l.mu.Unlock()
			results = append(results, CloseResult{Success: false, TradeID: id, Error: "trade no longer active"})
			continue
		}
		res := l.closeLocked(ctx, trade)
		if res.Success {
			delete(l.active, id)
			monitor.ActiveTrades.Set(float64(len(l.active)))
		}
		l.mu.Unlock()
		results = append(results, res)
	}
	return results
}

// UpdateStopLoss recomputes an absolute stop from the live position's open
// price and issues a stop modification, preserving the current take-profit.
func (l *Ledger) UpdateStopLoss(ctx context.Context, tradeID string, slPips float64) UpdateSLResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, ok := l.active[tradeID]
	if !ok {
		return UpdateSLResult{Success: false, Error: fmt.Sprintf("trade %s not found", tradeID)}
	}

	positions, err := l.gw.Positions(ctx, trade.Symbol)
	if err != nil {
		return UpdateSLResult{Success: false, Error: fmt.Sprintf("position lookup failed: %v", err)}
	}
	var target *broker.Position
	for i := range positions {
		if (trade.BrokerTicket != 0 && positions[i].Ticket == trade.BrokerTicket) ||
			l.correlator.Match(positions[i], tradeID) {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return UpdateSLResult{Success: false, Error: fmt.Sprintf("position for trade %s not found", tradeID)}
	}

	si, err := l.gw.SymbolInfo(ctx, trade.Symbol)
	if err != nil {
		return UpdateSLResult{Success: false, Error: fmt.Sprintf("symbol info failed: %v", err)}
	}
	pip := broker.PipSize(si.Digits)

	var newSL float64
	if trade.Side == broker.SideBuy {
		newSL = broker.RoundPrice(target.OpenPrice-slPips*pip, si.Digits)
	} else {
		newSL = broker.RoundPrice(target.OpenPrice+slPips*pip, si.Digits)
	}

	res, err := l.gw.OrderSend(ctx, broker.OrderRequest{
		Action:   broker.ActionSLTP,
		Symbol:   trade.Symbol,
		SL:       newSL,
		TP:       target.TP, // keep the existing take-profit
		Position: target.Ticket,
	})
	if err != nil {
		return UpdateSLResult{Success: false, Error: fmt.Sprintf("stop update failed: %v", err)}
	}
	if !res.OK() {
		return UpdateSLResult{Success: false,
			Error: fmt.Sprintf("stop update failed: %s", broker.RetcodeMessage(res.Retcode))}
	}

	trade.SLPips = slPips
	trade.SLPrice = newSL
	l.publish(events.EventStopUpdated, *trade)

	return UpdateSLResult{
		Success:    true,
		Message:    fmt.Sprintf("stop loss updated to %.1f points", slPips),
		NewSLPrice: newSL,
	}
}

// Merge folds handoff trades into the ledger, idempotent on trade id: the
// at-least-once handoff may deliver duplicates and applying the same batch
// twice must leave the ledger unchanged.
func (l *Ledger) Merge(trades []Trade) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := 0
	for i := range trades {
		t := trades[i]
		if t.TradeID == "" {
			continue
		}
		if _, seen := l.known[t.TradeID]; seen {
			continue
		}
		if t.Status != StatusExecuted {
			continue
		}
		cp := t
		l.active[cp.TradeID] = &cp
		l.appendLocked(&cp)
		merged++
		monitor.HandoffMerged.Inc()
		if l.recorder != nil {
			l.recorder.RecordExecuted(cp)
		}
	}
	if merged > 0 {
		monitor.ActiveTrades.Set(float64(len(l.active)))
		log.Printf("ledger: merged %d bot trades from handoff", merged)
	}
	return merged
}

// Get returns one trade by id, searching active first, then history.
func (l *Ledger) Get(ctx context.Context, tradeID string) (View, bool) {
	l.mu.Lock()
	var found *Trade
	if t, ok := l.active[tradeID]; ok {
		found = t
	} else {
		for _, t := range l.history {
			if t.TradeID == tradeID {
				found = t
				break
			}
		}
	}
	var cp Trade
	if found != nil {
		cp = *found
	}
	l.mu.Unlock()

	if found == nil {
		return View{}, false
	}
	return l.enrich(ctx, cp), true
}

// ListActive returns all active trades with live profit projections.
func (l *Ledger) ListActive(ctx context.Context) []View {
	l.mu.Lock()
	copies := make([]Trade, 0, len(l.active))
	for _, t := range l.active {
		copies = append(copies, *t)
	}
	l.mu.Unlock()

	sort.Slice(copies, func(i, j int) bool { return copies[i].CreatedAt.After(copies[j].CreatedAt) })

	views := make([]View, 0, len(copies))
	for _, t := range copies {
		views = append(views, l.enrich(ctx, t))
	}
	return views
}

// ListHistory returns filtered history, newest first, with profit data.
func (l *Ledger) ListHistory(ctx context.Context, filter HistoryFilter) []View {
	l.mu.Lock()
	copies := make([]Trade, 0, len(l.history))
	for _, t := range l.history {
		if filter.matches(t) {
			copies = append(copies, *t)
		}
	}
	l.mu.Unlock()

	sort.Slice(copies, func(i, j int) bool { return copies[i].CreatedAt.After(copies[j].CreatedAt) })

	views := make([]View, 0, len(copies))
	for _, t := range copies {
		views = append(views, l.enrich(ctx, t))
	}
	return views
}

// ActiveCount returns the current active set size.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// HistoryCount returns the total number of trades ever recorded.
func (l *Ledger) HistoryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// enrich attaches the current-profit projection. EXECUTED trades read the
// live broker position when correlation finds one and fall back to an
// analytic projection otherwise; CLOSED trades report stored realized profit.
// Runs without the ledger lock: it talks to the broker.
func (l *Ledger) enrich(ctx context.Context, t Trade) View {
	v := View{Trade: t}

	switch t.Status {
	case StatusExecuted:
		v.CurrentProfit = l.currentProfit(ctx, &t)
		v.PotentialProfit, v.PotentialLoss = l.potential(ctx, &t)
		v.ProfitStatus = profitStatus(v.CurrentProfit)
	case StatusClosed:
		v.CurrentProfit = t.Profit
		v.ProfitStatus = profitStatus(t.Profit)
	}
	return v
}

func (l *Ledger) currentProfit(ctx context.Context, t *Trade) float64 {
	positions, err := l.gw.Positions(ctx, t.Symbol)
	if err == nil {
		for i := range positions {
			if (t.BrokerTicket != 0 && positions[i].Ticket == t.BrokerTicket) ||
				l.correlator.Match(positions[i], t.TradeID) {
				return positions[i].Profit
			}
		}
	}

	// Analytic fallback when the position is not discoverable.
	tick, err := l.gw.Tick(ctx, t.Symbol)
	if err != nil {
		return 0
	}
	si, err := l.gw.SymbolInfo(ctx, t.Symbol)
	if err != nil {
		return 0
	}
	entry := t.ExecutedPrice
	if entry == 0 {
		entry = t.EntryPrice
	}
	if t.Side == broker.SideBuy {
		return round2((tick.Bid - entry) * t.Lots * si.ContractSize)
	}
	return round2((entry - tick.Ask) * t.Lots * si.ContractSize)
}

func (l *Ledger) potential(ctx context.Context, t *Trade) (profit, loss float64) {
	si, err := l.gw.SymbolInfo(ctx, t.Symbol)
	if err != nil {
		return 0, 0
	}
	entry := t.ExecutedPrice
	if entry == 0 {
		entry = t.EntryPrice
	}
	if t.Side == broker.SideBuy {
		if t.TPPrice > 0 {
			profit = round2((t.TPPrice - entry) * t.Lots * si.ContractSize)
		}
		if t.SLPrice > 0 {
			loss = round2((t.SLPrice - entry) * t.Lots * si.ContractSize)
		}
	} else {
		if t.TPPrice > 0 {
			profit = round2((entry - t.TPPrice) * t.Lots * si.ContractSize)
		}
		if t.SLPrice > 0 {
			loss = round2((entry - t.SLPrice) * t.Lots * si.ContractSize)
		}
	}
	return profit, loss
}

func (l *Ledger) publish(e events.Event, t Trade) {
	if l.bus != nil {
		l.bus.Publish(e, t)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
