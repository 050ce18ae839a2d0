package websocket

import "sort"

// Membership is the room table the hub broadcasts through. Implementations
// keep room->members and member->rooms symmetric. The hub only calls it from
// its own loop goroutine, so implementations need no locking of their own.
type Membership interface {
	Join(id ConnectionID, roomID string)
	Leave(id ConnectionID, roomID string)
	LeaveAll(id ConnectionID) []string
	MembersOf(roomID string) []ConnectionID
	RoomsOf(id ConnectionID) []string
	Rooms() []RoomRes
	RoomCount() int
}

type RoomTable struct {
	rooms  map[string]map[ConnectionID]struct{}
	joined map[ConnectionID]map[string]struct{}
}

func NewRoomTable() *RoomTable {
	return &RoomTable{
		rooms:  make(map[string]map[ConnectionID]struct{}),
		joined: make(map[ConnectionID]map[string]struct{}),
	}
}

func (t *RoomTable) Join(id ConnectionID, roomID string) {
	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[ConnectionID]struct{})
		t.rooms[roomID] = members
	}
	members[id] = struct{}{}

	rooms, ok := t.joined[id]
	if !ok {
		rooms = make(map[string]struct{})
		t.joined[id] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (t *RoomTable) Leave(id ConnectionID, roomID string) {
	if members, ok := t.rooms[roomID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(t.rooms, roomID)
		}
	}
	if rooms, ok := t.joined[id]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(t.joined, id)
		}
	}
}

// LeaveAll drops id from every room and returns the rooms it was in.
func (t *RoomTable) LeaveAll(id ConnectionID) []string {
	left := t.RoomsOf(id)
	for _, roomID := range left {
		t.Leave(id, roomID)
	}
	return left
}

// MembersOf returns a snapshot; an unknown room yields an empty slice.
func (t *RoomTable) MembersOf(roomID string) []ConnectionID {
	members := t.rooms[roomID]
	out := make([]ConnectionID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (t *RoomTable) RoomsOf(id ConnectionID) []string {
	rooms := t.joined[id]
	out := make([]string, 0, len(rooms))
	for roomID := range rooms {
		out = append(out, roomID)
	}
	sort.Strings(out)
	return out
}

func (t *RoomTable) RoomCount() int {
	return len(t.rooms)
}

func (t *RoomTable) Rooms() []RoomRes {
	out := make([]RoomRes, 0, len(t.rooms))
	for roomID, members := range t.rooms {
		out = append(out, RoomRes{ID: roomID, Members: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
