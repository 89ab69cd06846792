package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/arena/snapshot"
)

func dial(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) *snapshot.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var snap snapshot.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	return &snap
}

func TestStreamSendsCurrentStateOnConnect(t *testing.T) {
	_, ts := newTestServer(t)
	addTank(t, ts.URL, "A")

	conn := dial(t, ts.URL)
	snap := readSnapshot(t, conn)
	assert.Equal(t, entity.PhaseIdle, snap.Phase)
	require.Len(t, snap.Tanks, 1)
	assert.Equal(t, "A", snap.Tanks[0].Name)
}

func TestStreamBroadcastsTicks(t *testing.T) {
	s, ts := newTestServer(t)
	addTank(t, ts.URL, "A")
	addTank(t, ts.URL, "B")

	conn := dial(t, ts.URL)
	readSnapshot(t, conn)
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, time.Second, time.Millisecond)

	code, _ := do(t, http.MethodPost, ts.URL+"/api/start-game", startGameRequest{})
	require.Equal(t, http.StatusOK, code)

	var last uint64
	for i := 0; i < 5; i++ {
		snap := readSnapshot(t, conn)
		assert.True(t, snap.Running())
		assert.Greater(t, snap.Tick, last, "frames arrive in tick order")
		last = snap.Tick
	}
}

func TestStreamDisconnects(t *testing.T) {
	s, ts := newTestServer(t)

	conn := dial(t, ts.URL)
	readSnapshot(t, conn)
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.hub.Clients() == 0 }, 5*time.Second, time.Millisecond)

	conn = dial(t, ts.URL)
	readSnapshot(t, conn)
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, time.Second, time.Millisecond)

	s.hub.Close()
	assert.Equal(t, 0, s.hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
