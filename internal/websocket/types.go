package websocket

import (
	"encoding/json"
	"errors"
)

// ConnectionID identifies one live session. It is never reused.
type ConnectionID string

// Peer is anything the hub can deliver frames to.
type Peer interface {
	Send(frame []byte) error
}

type EventName string

const (
	EventJoinRoom   EventName = "join-room"
	EventLeaveRoom  EventName = "leave-room"
	EventCodeChange EventName = "code-change"
	EventCodeUpdate EventName = "code-update"
)

// Event is the envelope every frame travels in, on both transports.
type Event struct {
	Name EventName       `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

type CodeChange struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

type StatsRes struct {
	Rooms       []RoomRes `json:"rooms"`
	Connections int       `json:"connections"`
}

var (
	ErrHubClosed      = errors.New("websocket: hub closed")
	ErrSessionClosed  = errors.New("websocket: session closed")
	ErrSendQueueFull  = errors.New("websocket: send queue full")
	ErrMalformedFrame = errors.New("websocket: malformed frame")
	ErrUnknownSession = errors.New("websocket: unknown session")
)
