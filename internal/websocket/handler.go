package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type HandlerConfig struct {
	Session         SessionConfig
	MaxMessageBytes int64
	PollTimeout     time.Duration
	PollIdleTimeout time.Duration
}

func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Session:         DefaultSessionConfig(),
		MaxMessageBytes: 1024 * 1024,
		PollTimeout:     25 * time.Second,
		PollIdleTimeout: 60 * time.Second,
	}
}

// Handler accepts client connections on either transport and hands them to
// the hub.
type Handler struct {
	hub   *Hub
	cfg   HandlerConfig
	polls *PollTransport
}

func NewHandler(h *Hub, cfg HandlerConfig) *Handler {
	return &Handler{
		hub:   h,
		cfg:   cfg,
		polls: NewPollTransport(h, cfg.Session, cfg.PollTimeout, cfg.PollIdleTimeout),
	}
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

func (h *Handler) Polls() *PollTransport {
	return h.polls
}

func (h *Handler) MaxMessageBytes() int64 {
	return h.cfg.MaxMessageBytes
}

// ServeWS upgrades the request and starts a session. A "room" query
// parameter joins that room straight away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	session := NewSession(h.hub, h.cfg.Session)
	if err := session.Open(r.Context()); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "relay unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return err
	}

	if roomID := r.URL.Query().Get("room"); roomID != "" {
		if err := h.joinOnConnect(r.Context(), session, roomID); err != nil {
			slog.Warn("join on connect failed", "connectionId", session.ID(), "room", roomID, "error", err)
		}
	}

	newWSClient(conn, session, h.cfg.MaxMessageBytes).start()
	return nil
}

func (h *Handler) joinOnConnect(ctx context.Context, session *Session, roomID string) error {
	data, err := json.Marshal(roomID)
	if err != nil {
		return err
	}
	return h.hub.Dispatch(ctx, session.ID(), Event{Name: EventJoinRoom, Data: data})
}

// Run drives background work for the transports until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	h.polls.Run(ctx)
}
