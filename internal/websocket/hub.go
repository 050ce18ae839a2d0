package websocket

import (
	"context"
	"log/slog"
)

// Hub serializes every connection event through one goroutine. The registry
// and room table are only ever touched from Run, which is what keeps them
// lock free.
type Hub struct {
	rooms    Membership
	registry *Registry
	router   *Router
	bridge   *Bridge

	register chan registration
	inbound  chan inbound
	remote   chan CodeChange
	done     chan struct{}
}

type registration struct {
	peer  Peer
	reply chan ConnectionID
}

// inbound carries a client event, a connection's unregistration (left) or a
// read-only query (run). They share one queue so a disconnect or snapshot is
// never processed ahead of events queued before it.
type inbound struct {
	origin ConnectionID
	event  Event
	left   chan struct{}
	run    func()
}

type HubOption func(*Hub)

// WithMembership swaps the in-memory room table for another implementation.
func WithMembership(m Membership) HubOption {
	return func(h *Hub) { h.rooms = m }
}

// WithBridge publishes local edits through b. The bridge still has to be
// started with Bridge.Run.
func WithBridge(b *Bridge) HubOption {
	return func(h *Hub) { h.bridge = b }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:    NewRoomTable(),
		register: make(chan registration),
		inbound:  make(chan inbound, 1024),
		remote:   make(chan CodeChange, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registry = NewRegistry(h.rooms)
	h.router = NewRouter(h.registry, h.rooms)
	return h
}

// Run processes events until ctx is cancelled, then shuts down every peer
// still registered.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case reg := <-h.register:
			id := h.registry.Register(reg.peer)
			slog.Info("client connected", "connectionId", id, "clients", h.registry.Len())
			reg.reply <- id

		case msg := <-h.inbound:
			switch {
			case msg.run != nil:
				msg.run()
			case msg.left != nil:
				h.leave(msg.origin)
				close(msg.left)
			default:
				h.dispatch(msg.origin, msg.event)
			}

		case change := <-h.remote:
			frame, err := EncodeEvent(EventCodeUpdate, change.Code)
			if err != nil {
				slog.Warn("dropping remote edit", "room", change.RoomID, "error", err)
				continue
			}
			h.router.Broadcast("", change.RoomID, frame)
		}
	}
}

func (h *Hub) leave(id ConnectionID) {
	left, ok := h.registry.Unregister(id)
	if !ok {
		return
	}
	setRooms(h.rooms.RoomCount())
	slog.Info("client disconnected", "connectionId", id, "rooms", left, "clients", h.registry.Len())
}

type shutdowner interface {
	Shutdown()
}

func (h *Hub) shutdown() {
	close(h.done)
	for _, id := range h.registry.IDs() {
		peer, _ := h.registry.Lookup(id)
		if s, ok := peer.(shutdowner); ok {
			s.Shutdown()
		}
	}
	slog.Info("hub stopped", "clients", h.registry.Len())
}

// Register adds p to the registry and returns its new identifier.
func (h *Hub) Register(ctx context.Context, p Peer) (ConnectionID, error) {
	reply := make(chan ConnectionID, 1)
	select {
	case h.register <- registration{peer: p, reply: reply}:
	case <-h.done:
		return "", ErrHubClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return <-reply, nil
}

// Unregister removes id from the registry and every room. It returns once the
// membership footprint is gone. Unknown ids are a no-op.
func (h *Hub) Unregister(ctx context.Context, id ConnectionID) error {
	left := make(chan struct{})
	select {
	case h.inbound <- inbound{origin: id, left: left}:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-left:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Dispatch queues a client event. Events from one caller are handled in the
// order they were queued.
func (h *Hub) Dispatch(ctx context.Context, origin ConnectionID, ev Event) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.inbound <- inbound{origin: origin, event: ev}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeliverRemote broadcasts an edit that originated on another node to every
// local member of its room.
func (h *Hub) DeliverRemote(ctx context.Context, change CodeChange) error {
	select {
	case h.remote <- change:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) query(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case h.inbound <- inbound{run: func() { fn(); close(ran) }}:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Stats(ctx context.Context) (StatsRes, error) {
	var res StatsRes
	err := h.query(ctx, func() {
		res = StatsRes{Rooms: h.rooms.Rooms(), Connections: h.registry.Len()}
	})
	return res, err
}

func (h *Hub) MembersOf(ctx context.Context, roomID string) ([]ConnectionID, error) {
	var members []ConnectionID
	err := h.query(ctx, func() {
		members = h.rooms.MembersOf(roomID)
	})
	return members, err
}

// Done is closed once Run stops processing events.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
