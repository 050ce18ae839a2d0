package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// EncodeEvent builds a wire frame for name carrying data.
func EncodeEvent(name EventName, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return json.Marshal(Event{Name: name, Data: raw})
}

// DecodeEvent parses a client frame. Anything that is not an envelope with
// an event name is ErrMalformedFrame.
func DecodeEvent(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if ev.Name == "" {
		return Event{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return ev, nil
}

type eventHandler func(h *Hub, origin ConnectionID, data json.RawMessage) error

// handlers is the complete set of client events. It is consulted only on
// the hub loop.
var handlers = map[EventName]eventHandler{
	EventJoinRoom:   handleJoinRoom,
	EventLeaveRoom:  handleLeaveRoom,
	EventCodeChange: handleCodeChange,
}

func (h *Hub) dispatch(origin ConnectionID, ev Event) {
	handle, ok := handlers[ev.Name]
	if !ok {
		slog.Debug("ignoring unknown event", "connectionId", origin, "event", ev.Name)
		incFrames("unknown")
		return
	}
	incFrames(ev.Name)

	if _, ok := h.registry.Lookup(origin); !ok {
		slog.Debug("dropping event from unregistered connection", "connectionId", origin, "event", ev.Name)
		return
	}
	if err := handle(h, origin, ev.Data); err != nil {
		slog.Warn("invalid event payload", "connectionId", origin, "event", ev.Name, "error", err)
	}
}

func decodeRoomID(data json.RawMessage) (string, error) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		return "", fmt.Errorf("room id: %w", err)
	}
	return roomID, nil
}

func handleJoinRoom(h *Hub, origin ConnectionID, data json.RawMessage) error {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return err
	}
	h.rooms.Join(origin, roomID)
	setRooms(h.rooms.RoomCount())
	slog.Info("joined room", "connectionId", origin, "room", roomID)
	return nil
}

func handleLeaveRoom(h *Hub, origin ConnectionID, data json.RawMessage) error {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return err
	}
	h.rooms.Leave(origin, roomID)
	setRooms(h.rooms.RoomCount())
	slog.Info("left room", "connectionId", origin, "room", roomID)
	return nil
}

func handleCodeChange(h *Hub, origin ConnectionID, data json.RawMessage) error {
	var change CodeChange
	if err := json.Unmarshal(data, &change); err != nil {
		return fmt.Errorf("code change: %w", err)
	}

	frame, err := EncodeEvent(EventCodeUpdate, change.Code)
	if err != nil {
		return err
	}
	h.router.Broadcast(origin, change.RoomID, frame)

	if h.bridge != nil {
		h.bridge.Publish(change)
	}
	return nil
}
