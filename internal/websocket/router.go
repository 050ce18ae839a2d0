package websocket

import (
	"errors"
	"log/slog"
)

// Router fans a frame out to a room. A failing member is logged and skipped,
// never retried. A member whose send queue is full is evicted: it would
// otherwise keep a stale document with no way to notice.
type Router struct {
	registry *Registry
	rooms    Membership
}

func NewRouter(registry *Registry, rooms Membership) *Router {
	return &Router{registry: registry, rooms: rooms}
}

// Broadcast delivers frame to every member of roomID except origin and
// returns how many members accepted it. An empty origin excludes no one.
func (r *Router) Broadcast(origin ConnectionID, roomID string, frame []byte) int {
	delivered := 0
	for _, id := range r.rooms.MembersOf(roomID) {
		if id == origin {
			continue
		}
		peer, ok := r.registry.Lookup(id)
		if !ok {
			slog.Warn("room member not registered", "room", roomID, "connectionId", id)
			incDeliveryFailures()
			continue
		}
		if err := peer.Send(frame); err != nil {
			slog.Warn("delivery failed", "room", roomID, "connectionId", id, "error", err)
			incDeliveryFailures()
			if errors.Is(err, ErrSendQueueFull) {
				r.evict(id, peer)
			}
			continue
		}
		delivered++
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
	return delivered
}

// evict drops a slow consumer from the registry and every room, then asks
// its transport to disconnect. Must run on the hub loop.
func (r *Router) evict(id ConnectionID, peer Peer) {
	left, _ := r.registry.Unregister(id)
	setRooms(r.rooms.RoomCount())
	incEvictions()
	slog.Warn("evicted slow client", "connectionId", id, "rooms", left)
	if s, ok := peer.(shutdowner); ok {
		s.Shutdown()
	}
}
