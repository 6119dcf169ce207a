package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"scalping-core/internal/exec"
	"scalping-core/pkg/broker"
)

func newTestLedger(m *broker.Mock) *Ledger {
	executor := exec.NewOrderExecutor(m)
	executor.DisableDelay = true
	closer := exec.NewPositionCloser(m)
	closer.DisableDelay = true
	return New(m, executor, closer, nil)
}

func executedTrade(id string, ticket int64) Trade {
	return Trade{
		TradeID:       id,
		Symbol:        "EURUSD",
		Side:          broker.SideBuy,
		Lots:          0.10,
		ExecutedPrice: 1.10000,
		Status:        StatusExecuted,
		BrokerTicket:  ticket,
		Source:        SourceBot,
		CreatedAt:     time.Now(),
	}
}

func TestPlaceExecutes(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	l := newTestLedger(m)

	res := l.Place(context.Background(), "EURUSD", broker.SideBuy, 0.10, 10, 20, SourceManual)
	if !res.Success {
		t.Fatalf("Place failed: %s", res.Error)
	}
	if res.Trade.Status != StatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", res.Trade.Status)
	}
	// Stops anchored at the 1.10010 fill, pip = 0.0001.
	if res.Trade.SLPrice != 1.09910 {
		t.Fatalf("expected SL 1.09910, got %.5f", res.Trade.SLPrice)
	}
	if res.Trade.TPPrice != 1.10210 {
		t.Fatalf("expected TP 1.10210, got %.5f", res.Trade.TPPrice)
	}
	if l.ActiveCount() != 1 {
		t.Fatalf("expected 1 active trade, got %d", l.ActiveCount())
	}
}

func TestPlaceValidatesBeforeOrdering(t *testing.T) {
	cases := []struct {
		name string
		prep func(m *broker.Mock)
		lots float64
	}{
		{"lot below minimum", func(m *broker.Mock) {}, 0.001},
		{"lot above maximum", func(m *broker.Mock) {}, 500},
		{"symbol not visible", func(m *broker.Mock) {
			m.Symbols["EURUSD"].Visible = false
		}, 0.10},
		{"trading restricted", func(m *broker.Mock) {
			m.Symbols["EURUSD"].TradeMode = broker.TradeModeCloseOnly
		}, 0.10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := broker.NewMock("EURUSD", 1.10000)
			tc.prep(m)
			l := newTestLedger(m)

			res := l.Place(context.Background(), "EURUSD", broker.SideBuy, tc.lots, 0, 0, SourceManual)
			if res.Success {
				t.Fatal("expected validation failure")
			}
			if m.OrderSendCalls != 0 {
				t.Fatalf("validation must happen before any order call, got %d", m.OrderSendCalls)
			}
			if l.HistoryCount() != 0 {
				t.Fatalf("refused placements must not enter history, got %d", l.HistoryCount())
			}
		})
	}
}

func TestPlaceRecordsBrokerRejection(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.ScriptRetcodes("EURUSD", broker.RetcodeNoMoney)
	l := newTestLedger(m)

	res := l.Place(context.Background(), "EURUSD", broker.SideBuy, 0.10, 0, 0, SourceManual)
	if res.Success {
		t.Fatal("expected placement to fail")
	}
	if l.ActiveCount() != 0 {
		t.Fatalf("failed trade must not be active, got %d", l.ActiveCount())
	}
	views := l.ListHistory(context.Background(), HistoryFilter{Status: StatusFailed})
	if len(views) != 1 {
		t.Fatalf("failed trade must enter history, got %d entries", len(views))
	}
	if views[0].Error == "" {
		t.Fatal("failure reason must be recorded")
	}
}

func TestCloseRemovesActiveTrade(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	l := newTestLedger(m)

	placed := l.Place(context.Background(), "EURUSD", broker.SideBuy, 0.10, 0, 0, SourceManual)
	if !placed.Success {
		t.Fatalf("Place failed: %s", placed.Error)
	}

	res := l.Close(context.Background(), placed.TradeID)
	if !res.Success {
		t.Fatalf("Close failed: %s", res.Error)
	}
	if l.ActiveCount() != 0 {
		t.Fatalf("closed trade still active, count %d", l.ActiveCount())
	}
	view, ok := l.Get(context.Background(), placed.TradeID)
	if !ok || view.Status != StatusClosed {
		t.Fatalf("trade not recorded as closed: %+v", view.Trade)
	}
}

func TestCloseUnknownTrade(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	l := newTestLedger(m)

	res := l.Close(context.Background(), "missing1")
	if res.Success {
		t.Fatal("expected close of unknown trade to fail")
	}
}

// stubCloser refuses to close specific tickets; everything else succeeds at
// the position's current price.
type stubCloser struct {
	fail map[int64]bool
}

func (s *stubCloser) Close(ctx context.Context, pos broker.Position, comment string) (*exec.Result, error) {
	if s.fail[pos.Ticket] {
		return nil, errors.New("close refused")
	}
	return &exec.Result{
		Retcode: broker.RetcodeDone,
		Price:   pos.CurrentPrice,
		Ticket:  pos.Ticket,
		Profit:  1.0,
	}, nil
}

func TestCloseAllSurvivesPartialFailure(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.Track = false

	var batch []Trade
	for i := 1; i <= 5; i++ {
		ticket := int64(7000 + i)
		batch = append(batch, executedTrade(fmt.Sprintf("trade00%d", i), ticket))
		m.AddPosition(broker.Position{
			Ticket: ticket, Symbol: "EURUSD", Side: broker.SideBuy,
			Volume: 0.10, OpenPrice: 1.10000,
		})
	}

	l := New(m, nil, &stubCloser{fail: map[int64]bool{7003: true}}, nil)
	if merged := l.Merge(batch); merged != 5 {
		t.Fatalf("expected 5 merged trades, got %d", merged)
	}

	results := l.CloseAll(context.Background())
	if len(results) != 5 {
		t.Fatalf("expected one result per trade, got %d", len(results))
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else if r.TradeID != "trade003" {
			t.Fatalf("unexpected failure for %s: %s", r.TradeID, r.Error)
		}
	}
	if succeeded != 4 {
		t.Fatalf("expected 4 closes to succeed, got %d", succeeded)
	}
	if l.ActiveCount() != 1 {
		t.Fatalf("failed trade must stay active, count %d", l.ActiveCount())
	}
}

func TestUpdateStopLossAnchorsAtOpenPrice(t *testing.T) {
	cases := []struct {
		name   string
		side   broker.Side
		wantSL float64
	}{
		{"buy stop below open", broker.SideBuy, 1.09900},
		{"sell stop above open", broker.SideSell, 1.10100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := broker.NewMock("EURUSD", 1.10000)
			m.Track = false
			m.AddPosition(broker.Position{
				Ticket: 9001, Symbol: "EURUSD", Side: tc.side,
				Volume: 0.10, OpenPrice: 1.10000, TP: 1.20000,
			})

			trade := executedTrade("sltrade1", 9001)
			trade.Side = tc.side
			l := New(m, nil, &stubCloser{}, nil)
			l.Merge([]Trade{trade})

			res := l.UpdateStopLoss(context.Background(), "sltrade1", 10)
			if !res.Success {
				t.Fatalf("UpdateStopLoss failed: %s", res.Error)
			}
			if res.NewSLPrice != tc.wantSL {
				t.Fatalf("expected SL %.5f, got %.5f", tc.wantSL, res.NewSLPrice)
			}
		})
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	l := New(m, nil, &stubCloser{}, nil)

	batch := []Trade{
		executedTrade("bot00001", 8001),
		executedTrade("bot00002", 8002),
	}
	if merged := l.Merge(batch); merged != 2 {
		t.Fatalf("first merge: expected 2, got %d", merged)
	}
	if merged := l.Merge(batch); merged != 0 {
		t.Fatalf("second merge must be a no-op, got %d", merged)
	}
	if l.ActiveCount() != 2 {
		t.Fatalf("expected 2 active trades, got %d", l.ActiveCount())
	}
	if l.HistoryCount() != 2 {
		t.Fatalf("expected 2 history entries, got %d", l.HistoryCount())
	}
}

func TestMergeSkipsNonExecuted(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	l := New(m, nil, &stubCloser{}, nil)

	failed := executedTrade("bot00009", 0)
	failed.Status = StatusFailed
	if merged := l.Merge([]Trade{failed}); merged != 0 {
		t.Fatalf("failed trades must not merge, got %d", merged)
	}
}

func TestAnalyticProfitFallback(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	m.SetQuote("EURUSD", 1.10050, 1.10060)
	l := New(m, nil, &stubCloser{}, nil)

	// No broker position exists for this trade, so profit comes from the
	// quote projection: (1.10050 - 1.10000) * 0.10 * 100000 = 5.00.
	l.Merge([]Trade{executedTrade("ghost001", 0)})

	view, ok := l.Get(context.Background(), "ghost001")
	if !ok {
		t.Fatal("trade not found")
	}
	if view.CurrentProfit != 5.00 {
		t.Fatalf("expected projected profit 5.00, got %.2f", view.CurrentProfit)
	}
	if view.ProfitStatus != "profit" {
		t.Fatalf("expected profit status, got %q", view.ProfitStatus)
	}
}

func TestHistoryFilter(t *testing.T) {
	m := broker.NewMock("EURUSD", 1.10000)
	l := New(m, nil, &stubCloser{}, nil)

	a := executedTrade("hist0001", 0)
	b := executedTrade("hist0002", 0)
	b.Symbol = "USDJPY"
	b.Side = broker.SideSell
	l.Merge([]Trade{a, b})

	if got := len(l.ListHistory(context.Background(), HistoryFilter{Symbol: "USDJPY"})); got != 1 {
		t.Fatalf("symbol filter: expected 1, got %d", got)
	}
	if got := len(l.ListHistory(context.Background(), HistoryFilter{Side: broker.SideBuy})); got != 1 {
		t.Fatalf("side filter: expected 1, got %d", got)
	}
	if got := len(l.ListHistory(context.Background(), HistoryFilter{})); got != 2 {
		t.Fatalf("no filter: expected 2, got %d", got)
	}
}
