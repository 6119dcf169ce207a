package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"scalping-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// tradeStreamEvents are the topics fanned out to websocket clients.
var tradeStreamEvents = []events.Event{
	events.EventTradeExecuted,
	events.EventTradeFailed,
	events.EventTradeClosed,
	events.EventStopUpdated,
	events.EventCommandIssued,
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Fan the per-topic subscriptions into one stream for the socket.
	merged := make(chan map[string]any, 100)
	done := make(chan struct{})
	defer close(done)

	for _, e := range tradeStreamEvents {
		stream, unsub := s.Bus.Subscribe(e, 100)
		defer unsub()
		go func(e events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- map[string]any{"event": string(e), "data": msg}:
				case <-done:
					return
				}
			}
		}(e, stream)
	}

	for msg := range merged {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
