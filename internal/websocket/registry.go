package websocket

import "github.com/google/uuid"

// Registry owns the set of live peers. Unregistering a peer also removes it
// from every room, so the two never drift apart.
type Registry struct {
	peers map[ConnectionID]Peer
	rooms Membership
	newID func() ConnectionID
}

func NewRegistry(rooms Membership) *Registry {
	return &Registry{
		peers: make(map[ConnectionID]Peer),
		rooms: rooms,
		newID: func() ConnectionID { return ConnectionID(uuid.NewString()) },
	}
}

func (r *Registry) Register(p Peer) ConnectionID {
	id := r.newID()
	for _, taken := r.peers[id]; taken; _, taken = r.peers[id] {
		id = r.newID()
	}
	r.peers[id] = p
	incConnections()
	return id
}

// Unregister is idempotent. It reports the rooms the peer was removed from
// and whether the peer was registered at all.
func (r *Registry) Unregister(id ConnectionID) ([]string, bool) {
	if _, ok := r.peers[id]; !ok {
		return nil, false
	}
	left := r.rooms.LeaveAll(id)
	delete(r.peers, id)
	decConnections()
	return left, true
}

func (r *Registry) Lookup(id ConnectionID) (Peer, bool) {
	p, ok := r.peers[id]
	return p, ok
}

func (r *Registry) Len() int {
	return len(r.peers)
}

func (r *Registry) IDs() []ConnectionID {
	out := make([]ConnectionID, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}
