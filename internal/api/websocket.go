package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"funding-hedge-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are the event names forwarded to WebSocket clients; this is
// everything an operator dashboard needs live, not the whole event taxonomy.
var streamedEvents = []events.Event{
	events.EventAlert,
	events.EventArbitrage,
	events.EventExtremeEvent,
	events.EventHedgeOpened,
	events.EventHedgeClosed,
	events.EventHedgeFailed,
	events.EventHedgeCloseFailed,
	events.EventRiskExceeded,
	events.EventStateChange,
	events.EventDailyPnl,
	events.EventEmergencyShutdown,
}

type wsEnvelope struct {
	Type    events.Event `json:"type"`
	Payload any          `json:"payload"`
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

	out := make(chan wsEnvelope, 256)
	var unsubs []func()
	for _, evt := range streamedEvents {
		stream, unsub := s.Bus.Subscribe(evt, 64)
		unsubs = append(unsubs, unsub)
		go func(evt events.Event, stream <-chan any) {
			for payload := range stream {
				select {
				case out <- wsEnvelope{Type: evt, Payload: payload}:
				default:
				}
			}
		}(evt, stream)
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	for msg := range out {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
