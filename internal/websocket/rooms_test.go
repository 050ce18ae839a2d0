package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertSymmetric(t *testing.T, table *RoomTable) {
	t.Helper()
	for roomID, members := range table.rooms {
		assert.NotEmpty(t, members, "room %s kept with no members", roomID)
		for id := range members {
			_, ok := table.joined[id][roomID]
			assert.True(t, ok, "%s in %s but room missing from its joined set", id, roomID)
		}
	}
	for id, rooms := range table.joined {
		assert.NotEmpty(t, rooms, "connection %s kept with no rooms", id)
		for roomID := range rooms {
			_, ok := table.rooms[roomID][id]
			assert.True(t, ok, "%s lists %s but is not a member", id, roomID)
		}
	}
}

func TestRoomTable_Join(t *testing.T) {
	tests := []struct {
		name        string
		joins       [][2]string
		room        string
		wantMembers []ConnectionID
	}{
		{
			name:        "creates room on first join",
			joins:       [][2]string{{"a", "room-x"}},
			room:        "room-x",
			wantMembers: []ConnectionID{"a"},
		},
		{
			name:        "duplicate join is a no-op",
			joins:       [][2]string{{"a", "room-x"}, {"a", "room-x"}},
			room:        "room-x",
			wantMembers: []ConnectionID{"a"},
		},
		{
			name:        "several members",
			joins:       [][2]string{{"a", "room-x"}, {"b", "room-x"}, {"c", "room-y"}},
			room:        "room-x",
			wantMembers: []ConnectionID{"a", "b"},
		},
		{
			name:        "unknown room is empty",
			joins:       [][2]string{{"a", "room-x"}},
			room:        "nowhere",
			wantMembers: []ConnectionID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewRoomTable()
			for _, j := range tt.joins {
				table.Join(ConnectionID(j[0]), j[1])
			}

			members := table.MembersOf(tt.room)
			assert.NotNil(t, members)
			assert.ElementsMatch(t, tt.wantMembers, members)
			assertSymmetric(t, table)
		})
	}
}

func TestRoomTable_LeaveRemovesEmptyRoom(t *testing.T) {
	table := NewRoomTable()
	table.Join("a", "room-x")
	table.Join("b", "room-x")

	table.Leave("a", "room-x")
	assert.Equal(t, []ConnectionID{"b"}, table.MembersOf("room-x"))
	assert.Equal(t, 1, table.RoomCount())

	table.Leave("b", "room-x")
	assert.Equal(t, 0, table.RoomCount())
	assert.Empty(t, table.RoomsOf("b"))
	assertSymmetric(t, table)
}

func TestRoomTable_LeaveUnknown(t *testing.T) {
	table := NewRoomTable()
	table.Join("a", "room-x")

	table.Leave("a", "room-y")
	table.Leave("ghost", "room-x")

	assert.Equal(t, []ConnectionID{"a"}, table.MembersOf("room-x"))
	assertSymmetric(t, table)
}

func TestRoomTable_LeaveAll(t *testing.T) {
	table := NewRoomTable()
	table.Join("a", "room-x")
	table.Join("a", "room-y")
	table.Join("b", "room-y")

	left := table.LeaveAll("a")

	assert.Equal(t, []string{"room-x", "room-y"}, left)
	assert.Empty(t, table.MembersOf("room-x"))
	assert.Equal(t, []ConnectionID{"b"}, table.MembersOf("room-y"))
	assert.Equal(t, []RoomRes{{ID: "room-y", Members: 1}}, table.Rooms())
	assert.Empty(t, table.LeaveAll("a"))
	assertSymmetric(t, table)
}

func TestRoomTable_MembersOfIsSnapshot(t *testing.T) {
	table := NewRoomTable()
	table.Join("a", "room-x")

	members := table.MembersOf("room-x")
	table.Join("b", "room-x")

	assert.Len(t, members, 1)
}
