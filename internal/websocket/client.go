package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSClient carries a Session over a websocket connection: one goroutine
// reads client frames, one writes the session's outbound queue.
type WSClient struct {
	Conn    *websocket.Conn
	session *Session
	limit   int64
}

func newWSClient(conn *websocket.Conn, session *Session, limit int64) *WSClient {
	return &WSClient{Conn: conn, session: session, limit: limit}
}

func (cl *WSClient) start() {
	go cl.writeMessage()
	go cl.readMessage()
}

func (cl *WSClient) readMessage() {
	defer func() {
		cl.session.Close()
		slog.Info("websocket closed", "connectionId", cl.session.ID())
	}()

	cl.Conn.SetReadLimit(cl.limit)
	cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.Conn.SetPongHandler(func(string) error {
		cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		msgType, message, err := cl.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Warn("websocket read error", "connectionId", cl.session.ID(), "error", err)
			}
			return
		}
		cl.Conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			slog.Warn("dropping connection", "connectionId", cl.session.ID(), "error", ErrMalformedFrame, "reason", "binary frame")
			return
		}

		if err := cl.session.Receive(ctx, message); err != nil {
			if errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrRateLimited) {
				slog.Warn("dropping connection", "connectionId", cl.session.ID(), "error", err)
			}
			return
		}
	}
}

func (cl *WSClient) writeMessage() {
	ticker := time.NewTicker(pingPeriod)
	var idle <-chan time.Time
	if cl.session.cfg.IdleTimeout > 0 {
		idleTicker := time.NewTicker(idleCheckInterval(cl.session.cfg.IdleTimeout))
		defer idleTicker.Stop()
		idle = idleTicker.C
	}
	defer func() {
		ticker.Stop()
		cl.Conn.Close()
	}()

	outbound := cl.session.Outbound()
	for {
		select {
		case message, ok := <-outbound:
			cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("websocket write error", "connectionId", cl.session.ID(), "error", err)
				return
			}

		case <-ticker.C:
			cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case now := <-idle:
			if cl.session.Idle(now) {
				slog.Info("closing idle connection", "connectionId", cl.session.ID())
				cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				cl.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "idle timeout"))
				return
			}
		}
	}
}

func idleCheckInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	return interval
}
