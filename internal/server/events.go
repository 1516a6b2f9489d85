// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/rigrun-launcher/internal/bridge"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
)

const (
	// sseKeepAlive is the interval of comment lines on idle event streams.
	sseKeepAlive = 15 * time.Second

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ============================================================================
// SERVER-SENT EVENTS
// ============================================================================

// handleEvents handles GET /api/events, streaming ollama-stream events as
// Server-Sent Events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := make(chan relay.Event, eventBuffer)
	unsubscribe := s.bridge.OnOllamaStream(func(ev relay.Event) {
		deliver(s, r.Context(), events, ev, ev, "sse")
	})
	defer unsubscribe()

	atomic.AddInt64(&s.stats.Clients, 1)
	defer atomic.AddInt64(&s.stats.Clients, -1)

	// Subscribed before the first byte, so nothing sent after the client
	// sees the stream open is missed.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", bridge.EventChannel, data); err != nil {
				return
			}
			flusher.Flush()
			atomic.AddInt64(&s.stats.EventsSent, 1)
		}
	}
}

// deliver queues msg for one event client. A chunk is dropped when the
// client is behind; a terminal event waits for room until ctx ends.
func deliver[T any](s *Server, ctx context.Context, out chan<- T, msg T, ev relay.Event, transport string) {
	select {
	case out <- msg:
		return
	default:
	}

	if ev.Terminal() {
		select {
		case out <- msg:
			return
		case <-ctx.Done():
		}
	}
	atomic.AddInt64(&s.stats.EventsDropped, 1)
	s.logger.Warn("event client too slow, dropping event", "transport", transport, "id", ev.ID, "type", ev.Type)
}

// ============================================================================
// WEBSOCKET
// ============================================================================

// WSRequest is a client invocation sent over the WebSocket.
type WSRequest struct {
	ID      string          `json:"id"`
	Channel string          `json:"channel"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// WSMessage is a server frame: an invocation result, an invocation error,
// or a stream event.
type WSMessage struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Channel string       `json:"channel,omitempty"`
	Result  any          `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
	Event   *relay.Event `json:"event,omitempty"`
}

// Frame types.
const (
	WSTypeResult = "result"
	WSTypeError  = "error"
	WSTypeEvent  = "event"
)

// handleWebSocket handles GET /api/ws. Clients send WSRequest frames and
// receive WSMessage frames; stream events are pushed as they happen.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Hijacked connections are not tied to the request context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	out := make(chan WSMessage, eventBuffer)
	sendResult := func(m WSMessage) {
		select {
		case out <- m:
		case <-ctx.Done():
		}
	}

	unsubscribe := s.bridge.OnOllamaStream(func(ev relay.Event) {
		deliver(s, ctx, out, WSMessage{Type: WSTypeEvent, Channel: bridge.EventChannel, Event: &ev}, ev, "ws")
	})
	defer unsubscribe()

	atomic.AddInt64(&s.stats.Clients, 1)
	defer atomic.AddInt64(&s.stats.Clients, -1)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx, conn, out)
		cancel()
	}()

	s.readPump(ctx, conn, sendResult)
	cancel()
	<-writerDone
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, send func(WSMessage)) {
	conn.SetReadLimit(MaxRequestBodySize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		var req WSRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Channel == "" {
			send(WSMessage{Type: WSTypeError, ID: req.ID, Error: "malformed request"})
			continue
		}

		go func(req WSRequest) {
			result, err := s.bridge.Invoke(ctx, req.Channel, req.Args)
			s.stats.RecordInvoke(req.Channel, err != nil)
			if err != nil {
				send(WSMessage{Type: WSTypeError, ID: req.ID, Channel: req.Channel, Error: err.Error()})
				return
			}
			send(WSMessage{Type: WSTypeResult, ID: req.ID, Channel: req.Channel, Result: result})
		}(req)
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, out <-chan WSMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case m := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
			if m.Type == WSTypeEvent {
				atomic.AddInt64(&s.stats.EventsSent, 1)
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
