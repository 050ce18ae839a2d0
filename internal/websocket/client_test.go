package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T, cfg HandlerConfig) (*Hub, string) {
	t.Helper()
	hub := startHub(t)
	handler := NewHandler(hub, cfg)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := handler.ServeWS(w, r); err != nil {
			t.Logf("serve ws: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, name EventName, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Event{Name: name, Data: raw}))
}

func readUpdate(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, EventCodeUpdate, ev.Name)

	var code string
	require.NoError(t, json.Unmarshal(ev.Data, &code))
	return code
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, msg, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame %s", msg)
}

func waitMembers(t *testing.T, hub *Hub, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := hub.MembersOf(context.Background(), roomID)
		return err == nil && len(got) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func waitConnections(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		stats, err := hub.Stats(context.Background())
		return err == nil && stats.Connections == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_TwoClientsSyncCode(t *testing.T) {
	hub, url := startRelay(t, DefaultHandlerConfig())
	a, b := dial(t, url), dial(t, url)

	emit(t, a, EventJoinRoom, "room-x")
	emit(t, b, EventJoinRoom, "room-x")
	waitMembers(t, hub, "room-x", 2)

	emit(t, a, EventCodeChange, CodeChange{RoomID: "room-x", Code: "print(1)"})

	assert.Equal(t, "print(1)", readUpdate(t, b))
	assertSilent(t, b)
	assertSilent(t, a)
}

func TestRelay_OrderPreserved(t *testing.T) {
	hub, url := startRelay(t, DefaultHandlerConfig())
	a, b := dial(t, url), dial(t, url)

	emit(t, a, EventJoinRoom, "room-x")
	emit(t, b, EventJoinRoom, "room-x")
	waitMembers(t, hub, "room-x", 2)

	want := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"}
	for _, code := range want {
		emit(t, a, EventCodeChange, CodeChange{RoomID: "room-x", Code: code})
	}

	got := make([]string, 0, len(want))
	for range want {
		got = append(got, readUpdate(t, b))
	}
	assert.Equal(t, want, got)
}

func TestRelay_DisconnectCleansUp(t *testing.T) {
	hub, url := startRelay(t, DefaultHandlerConfig())
	a, b := dial(t, url), dial(t, url)

	emit(t, a, EventJoinRoom, "room-x")
	emit(t, b, EventJoinRoom, "room-x")
	waitMembers(t, hub, "room-x", 2)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	a.Close()

	waitMembers(t, hub, "room-x", 1)
	waitConnections(t, hub, 1)

	again := dial(t, url)
	emit(t, again, EventJoinRoom, "room-x")
	waitMembers(t, hub, "room-x", 2)

	emit(t, b, EventCodeChange, CodeChange{RoomID: "room-x", Code: "after"})
	assert.Equal(t, "after", readUpdate(t, again))
}

func TestRelay_BinaryFrameDisconnects(t *testing.T) {
	hub, url := startRelay(t, DefaultHandlerConfig())
	a := dial(t, url)
	emit(t, a, EventJoinRoom, "room-x")
	waitMembers(t, hub, "room-x", 1)

	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2}))

	waitConnections(t, hub, 0)
	waitMembers(t, hub, "room-x", 0)
}

func TestRelay_MalformedJSONDisconnects(t *testing.T) {
	hub, url := startRelay(t, DefaultHandlerConfig())
	a := dial(t, url)
	waitConnections(t, hub, 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("join-room room-x")))

	waitConnections(t, hub, 0)
}

func TestRelay_RoomQueryJoins(t *testing.T) {
	hub, url := startRelay(t, DefaultHandlerConfig())
	dial(t, url+"?room=room-q")

	waitMembers(t, hub, "room-q", 1)
}

func TestRelay_IdleTimeout(t *testing.T) {
	cfg := DefaultHandlerConfig()
	cfg.Session.IdleTimeout = 200 * time.Millisecond
	hub, url := startRelay(t, cfg)

	a := dial(t, url)
	waitConnections(t, hub, 1)

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := a.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)

	waitConnections(t, hub, 0)
}
