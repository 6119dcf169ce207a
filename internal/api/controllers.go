package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scalping-core/internal/events"
	"scalping-core/internal/handoff"
	"scalping-core/internal/ledger"
	"scalping-core/pkg/broker"
)

// placeTrade executes a manual market order through the retry protocol.
// Expected broker refusals come back as success=false with HTTP 400; only
// infrastructure faults produce 5xx.
func (s *Server) placeTrade(c *gin.Context) {
	var req struct {
		Symbol string  `json:"symbol"`
		Side   string  `json:"side"`
		Lots   float64 `json:"lots"`
		SLPips float64 `json:"sl_points"`
		TPPips float64 `json:"tp_points"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request payload"})
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "symbol is required"})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "side must be BUY or SELL"})
		return
	}
	if req.Lots <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "lots must be positive"})
		return
	}

	var result ledger.PlaceResult
	err := s.Pool.Do(c.Request.Context(), func() {
		result = s.Ledger.Place(c.Request.Context(), req.Symbol, side, req.Lots, req.SLPips, req.TPPips, ledger.SourceManual)
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "execution capacity exhausted"})
		return
	}

	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// closeTrade closes one active trade by application id.
func (s *Server) closeTrade(c *gin.Context) {
	tradeID := c.Param("trade_id")
	s.drainHandoff()

	var result ledger.CloseResult
	err := s.Pool.Do(c.Request.Context(), func() {
		result = s.Ledger.Close(c.Request.Context(), tradeID)
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "execution capacity exhausted"})
		return
	}

	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// updateStopLoss moves the stop of an active trade, anchored at the live
// position's open price.
func (s *Server) updateStopLoss(c *gin.Context) {
	tradeID := c.Param("trade_id")
	var req struct {
		SLPips float64 `json:"sl_points"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request payload"})
		return
	}
	if req.SLPips <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "sl_points must be positive"})
		return
	}
	s.drainHandoff()

	var result ledger.UpdateSLResult
	err := s.Pool.Do(c.Request.Context(), func() {
		result = s.Ledger.UpdateStopLoss(c.Request.Context(), tradeID, req.SLPips)
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "execution capacity exhausted"})
		return
	}

	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// stopAll flattens every active trade and trips the emergency stop so the
// bot does not immediately rebuild the book.
func (s *Server) stopAll(c *gin.Context) {
	s.drainHandoff()

	if s.Emergency != nil {
		if err := s.Emergency.Trip("stop_all requested"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
	}

	var results []ledger.CloseResult
	err := s.Pool.Do(c.Request.Context(), func() {
		results = s.Ledger.CloseAll(c.Request.Context())
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "execution capacity exhausted"})
		return
	}

	closed := 0
	for _, r := range results {
		if r.Success {
			closed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   closed == len(results),
		"attempted": len(results),
		"closed":    closed,
		"results":   results,
	})
}

// getActiveTrades lists active trades with live profit projections.
func (s *Server) getActiveTrades(c *gin.Context) {
	s.drainHandoff()
	views := s.Ledger.ListActive(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(views), "trades": views})
}

// getTradeHistory lists filtered trade history, newest first.
func (s *Server) getTradeHistory(c *gin.Context) {
	s.drainHandoff()

	filter := ledger.HistoryFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Status: ledger.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	}
	if side, ok := parseSide(c.Query("side")); ok {
		filter.Side = side
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "from must be RFC3339"})
			return
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "to must be RFC3339"})
			return
		}
		filter.To = t
	}

	views := s.Ledger.ListHistory(c.Request.Context(), filter)
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(views), "trades": views})
}

// getTrade returns a single trade by id.
func (s *Server) getTrade(c *gin.Context) {
	s.drainHandoff()
	view, ok := s.Ledger.Get(c.Request.Context(), c.Param("trade_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "trade not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "trade": view})
}

// getUnprotectedPositions lists open positions carrying no stop loss.
// Positions opened manually at the terminal arrive without one and sit
// exposed until an operator notices.
func (s *Server) getUnprotectedPositions(c *gin.Context) {
	positions, err := s.Gateway.Positions(c.Request.Context(), "")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	naked := make([]broker.Position, 0)
	for _, p := range positions {
		if p.SL == 0 {
			naked = append(naked, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(naked), "positions": naked})
}

// protectPositions applies a stop to every open position that has none,
// anchored at the position's open price. Positions already carrying a stop
// are left untouched.
func (s *Server) protectPositions(c *gin.Context) {
	var req struct {
		SLPips float64 `json:"sl_points"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request payload"})
		return
	}
	if req.SLPips <= 0 {
		req.SLPips = 20
	}

	var attempted, fixed int
	var failures []string
	err := s.Pool.Do(c.Request.Context(), func() {
		ctx := c.Request.Context()
		positions, perr := s.Gateway.Positions(ctx, "")
		if perr != nil {
			failures = append(failures, perr.Error())
			return
		}
		for _, p := range positions {
			if p.SL != 0 {
				continue
			}
			attempted++
			si, serr := s.Gateway.SymbolInfo(ctx, p.Symbol)
			if serr != nil {
				failures = append(failures, fmt.Sprintf("%d: %v", p.Ticket, serr))
				continue
			}
			pip := broker.PipSize(si.Digits)
			var sl float64
			if p.Side == broker.SideBuy {
				sl = broker.RoundPrice(p.OpenPrice-req.SLPips*pip, si.Digits)
			} else {
				sl = broker.RoundPrice(p.OpenPrice+req.SLPips*pip, si.Digits)
			}
			res, oerr := s.Gateway.OrderSend(ctx, broker.OrderRequest{
				Action:   broker.ActionSLTP,
				Symbol:   p.Symbol,
				SL:       sl,
				TP:       p.TP, // keep the existing take-profit
				Position: p.Ticket,
			})
			if oerr != nil || !res.OK() {
				msg := "stop update refused"
				if oerr != nil {
					msg = oerr.Error()
				} else if res != nil {
					msg = broker.RetcodeMessage(res.Retcode)
				}
				failures = append(failures, fmt.Sprintf("%d: %s", p.Ticket, msg))
				continue
			}
			fixed++
		}
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "execution capacity exhausted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   len(failures) == 0,
		"attempted": attempted,
		"fixed":     fixed,
		"failures":  failures,
	})
}

// pauseBot tells the bot process to pause for a number of minutes.
func (s *Server) pauseBot(c *gin.Context) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request payload"})
		return
	}
	if req.Minutes <= 0 {
		req.Minutes = 5
	}
	if err := s.Commands.Issue(handoff.CommandPause, req.Minutes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if s.Bus != nil {
		s.Bus.Publish(events.EventCommandIssued, gin.H{"command": "pause", "minutes": req.Minutes})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "pause command issued"})
}

// stopBot tells the bot to exit and trips the emergency stop marker so a
// restarted bot stays down until an operator resumes.
func (s *Server) stopBot(c *gin.Context) {
	if err := s.Commands.Issue(handoff.CommandStop, 0); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if s.Emergency != nil {
		if err := s.Emergency.Trip("bot stop requested"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	if s.Bus != nil {
		s.Bus.Publish(events.EventCommandIssued, gin.H{"command": "stop"})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "stop command issued"})
}

// resumeBot clears the emergency stop marker.
func (s *Server) resumeBot(c *gin.Context) {
	if s.Emergency != nil {
		if err := s.Emergency.Clear(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "emergency stop cleared"})
}

// getBotStatus reports the handoff-visible bot state.
func (s *Server) getBotStatus(c *gin.Context) {
	pending := 0
	if s.Trades != nil {
		pending = s.Trades.Pending()
	}
	emergency := false
	if s.Emergency != nil {
		emergency = s.Emergency.Active()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"emergency_stop":   emergency,
		"pending_handoffs": pending,
		"active_trades":    s.Ledger.ActiveCount(),
	})
}

// getAccount proxies the broker account snapshot.
func (s *Server) getAccount(c *gin.Context) {
	info, err := s.Gateway.AccountInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "account": info})
}

// getJournalRecent returns recently closed trades from the audit journal.
func (s *Server) getJournalRecent(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "entries": []struct{}{}})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.Journal.RecentClosed(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": entries})
}

func parseSide(v string) (broker.Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY":
		return broker.SideBuy, true
	case "SELL":
		return broker.SideSell, true
	}
	return "", false
}
