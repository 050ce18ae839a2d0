package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func (f *fakePeer) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakePeer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// last returns the newest code-update payload, or "" if none arrived.
func (f *fakePeer) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return ""
	}
	ev, err := DecodeEvent(f.frames[len(f.frames)-1])
	if err != nil {
		return ""
	}
	var code string
	if err := json.Unmarshal(ev.Data, &code); err != nil {
		return ""
	}
	return code
}

// updates decodes every code-update received so far.
func (f *fakePeer) updates(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.frames))
	for _, frame := range f.frames {
		ev, err := DecodeEvent(frame)
		require.NoError(t, err)
		require.Equal(t, EventCodeUpdate, ev.Name)

		var code string
		require.NoError(t, json.Unmarshal(ev.Data, &code))
		out = append(out, code)
	}
	return out
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	rooms := NewRoomTable()
	registry := NewRegistry(rooms)

	id := registry.Register(&fakePeer{})
	rooms.Join(id, "room-x")

	left, ok := registry.Unregister(id)
	assert.True(t, ok)
	assert.Equal(t, []string{"room-x"}, left)
	assert.Empty(t, rooms.MembersOf("room-x"))

	left, ok = registry.Unregister(id)
	assert.False(t, ok)
	assert.Empty(t, left)

	_, ok = registry.Unregister("never-registered")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_IDsAreUnique(t *testing.T) {
	registry := NewRegistry(NewRoomTable())
	ids := []ConnectionID{"dup", "dup", "fresh"}
	registry.newID = func() ConnectionID {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first := registry.Register(&fakePeer{})
	second := registry.Register(&fakePeer{})

	assert.Equal(t, ConnectionID("dup"), first)
	assert.Equal(t, ConnectionID("fresh"), second)
}

func TestRouter_Broadcast(t *testing.T) {
	tests := []struct {
		name          string
		failing       bool
		room          string
		wantDelivered int
		wantB         int
		wantC         int
	}{
		{name: "everyone but the sender", room: "room-x", wantDelivered: 2, wantB: 1, wantC: 1},
		{name: "failing member is skipped", failing: true, room: "room-x", wantDelivered: 1, wantB: 0, wantC: 1},
		{name: "unknown room is a no-op", room: "nowhere", wantDelivered: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := NewRoomTable()
			registry := NewRegistry(rooms)
			router := NewRouter(registry, rooms)

			a, b, c := &fakePeer{}, &fakePeer{}, &fakePeer{}
			if tt.failing {
				b.sendErr = ErrSessionClosed
			}
			idA, idB, idC := registry.Register(a), registry.Register(b), registry.Register(c)
			for _, id := range []ConnectionID{idA, idB, idC} {
				rooms.Join(id, "room-x")
			}

			frame, err := EncodeEvent(EventCodeUpdate, "print(1)")
			require.NoError(t, err)

			delivered := router.Broadcast(idA, tt.room, frame)

			assert.Equal(t, tt.wantDelivered, delivered)
			assert.Empty(t, a.updates(t), "sender must not receive its own edit")
			assert.Len(t, b.updates(t), tt.wantB)
			assert.Len(t, c.updates(t), tt.wantC)
		})
	}
}

type closingPeer struct {
	fakePeer
	shut chan struct{}
}

func (c *closingPeer) Shutdown() { close(c.shut) }

func TestRouter_EvictsSlowMember(t *testing.T) {
	rooms := NewRoomTable()
	registry := NewRegistry(rooms)
	router := NewRouter(registry, rooms)

	slow := &closingPeer{fakePeer: fakePeer{sendErr: ErrSendQueueFull}, shut: make(chan struct{})}
	fast := &fakePeer{}
	idSlow, idFast := registry.Register(slow), registry.Register(fast)
	for _, room := range []string{"room-x", "room-y"} {
		rooms.Join(idSlow, room)
		rooms.Join(idFast, room)
	}

	frame, err := EncodeEvent(EventCodeUpdate, "v2")
	require.NoError(t, err)

	assert.Equal(t, 1, router.Broadcast("", "room-x", frame))
	assert.Equal(t, []ConnectionID{idFast}, rooms.MembersOf("room-x"))
	assert.Equal(t, []ConnectionID{idFast}, rooms.MembersOf("room-y"))
	_, ok := registry.Lookup(idSlow)
	assert.False(t, ok)

	select {
	case <-slow.shut:
	default:
		t.Fatal("slow member was not shut down")
	}
}

func TestRouter_SoleMemberIsNoop(t *testing.T) {
	rooms := NewRoomTable()
	registry := NewRegistry(rooms)
	router := NewRouter(registry, rooms)

	a := &fakePeer{}
	idA := registry.Register(a)
	rooms.Join(idA, "room-x")

	assert.Equal(t, 0, router.Broadcast(idA, "room-x", []byte(`{}`)))
	assert.Empty(t, a.updates(t))
}

func TestRouter_StaleMembershipIsSkipped(t *testing.T) {
	rooms := NewRoomTable()
	registry := NewRegistry(rooms)
	router := NewRouter(registry, rooms)

	b := &fakePeer{}
	idB := registry.Register(b)
	rooms.Join(idB, "room-x")
	rooms.Join("stale", "room-x")

	frame, err := EncodeEvent(EventCodeUpdate, "x")
	require.NoError(t, err)

	assert.Equal(t, 1, router.Broadcast("", "room-x", frame))
	assert.Equal(t, []string{"x"}, b.updates(t))
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    EventName
		wantErr bool
	}{
		{name: "join", frame: `{"event":"join-room","data":"room-x"}`, want: EventJoinRoom},
		{name: "change", frame: `{"event":"code-change","data":{"roomId":"r","code":"c"}}`, want: EventCodeChange},
		{name: "unknown name still decodes", frame: `{"event":"cursor"}`, want: "cursor"},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "no event name", frame: `{"data":"room-x"}`, wantErr: true},
		{name: "array", frame: `["join-room","room-x"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.frame))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedFrame))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Name)
		})
	}
}
