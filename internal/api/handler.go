package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scalping-core/internal/events"
	"scalping-core/internal/exec"
	"scalping-core/internal/handoff"
	"scalping-core/internal/journal"
	"scalping-core/internal/ledger"
	"scalping-core/internal/monitor"
	"scalping-core/pkg/broker"
)

// Server wires the control HTTP API around the ledger and the handoff.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Ledger    *ledger.Ledger
	Journal   *journal.Journal
	Gateway   broker.Gateway
	Trades    *handoff.TradeFile
	Commands  *handoff.CommandFile
	Emergency *handoff.EmergencyStop
	Pool      *exec.Pool
	JWTSecret string

	operatorHash string
}

// Options carries the non-service wiring for NewServer.
type Options struct {
	JWTSecret        string
	OperatorPassword string
	RateLimitRPS     float64
	RateLimitBurst   int
}

func NewServer(bus *events.Bus, led *ledger.Ledger, jrnl *journal.Journal, gw broker.Gateway,
	trades *handoff.TradeFile, commands *handoff.CommandFile, emergency *handoff.EmergencyStop,
	pool *exec.Pool, opts Options) (*Server, error) {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger())       // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst))
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	hash, err := operatorHash(opts.OperatorPassword)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Router:       r,
		Bus:          bus,
		Ledger:       led,
		Journal:      jrnl,
		Gateway:      gw,
		Trades:       trades,
		Commands:     commands,
		Emergency:    emergency,
		Pool:         pool,
		JWTSecret:    opts.JWTSecret,
		operatorHash: hash,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(monitor.Handler()))
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.login)
		}

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/trade/place", s.placeTrade)
			protected.POST("/trade/close/:trade_id", s.closeTrade)
			protected.POST("/trade/update_sl/:trade_id", s.updateStopLoss)
			protected.POST("/trade/stop_all", s.stopAll)
			protected.GET("/trades/active", s.getActiveTrades)
			protected.GET("/trades/history", s.getTradeHistory)
			protected.GET("/trade/:trade_id", s.getTrade)

			protected.GET("/positions/unprotected", s.getUnprotectedPositions)
			protected.POST("/positions/protect", s.protectPositions)

			protected.POST("/bot/pause", s.pauseBot)
			protected.POST("/bot/stop", s.stopBot)
			protected.POST("/bot/resume", s.resumeBot)
			protected.GET("/bot/status", s.getBotStatus)

			protected.GET("/account", s.getAccount)
			protected.GET("/journal/recent", s.getJournalRecent)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StartDrainLoop merges handoff trades into the ledger on an interval so bot
// trades appear even when nobody reads the API. Reads also drain on demand.
func (s *Server) StartDrainLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.drainHandoff()
			}
		}
	}()
}

func (s *Server) drainHandoff() {
	if s.Trades == nil || s.Ledger == nil {
		return
	}
	if trades := s.Trades.Drain(); len(trades) > 0 {
		s.Ledger.Merge(trades)
	}
}

func (s *Server) Start(addr string) error {
	log.Printf("api: listening on %s", addr)
	return s.Router.Run(addr)
}
