package transport

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/heroarena/game-server/internal/v1/auth"
	"github.com/heroarena/game-server/internal/v1/game"
	"github.com/heroarena/game-server/internal/v1/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(conn wsConnection, reg *game.Registry) *Client {
	return newClient(conn, reg, "conn-1", auth.Identity{UserID: "conn-1", DisplayName: "Tester"})
}

func TestClientSendEvent(t *testing.T) {
	client := newTestClient(&MockConnection{}, nil)

	client.SendEvent("boss_room_state", map[string]any{"roomId": "boss-1"})

	select {
	case data := <-client.send:
		env, err := wire.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "boss_room_state", env.Type)
		assert.Contains(t, string(env.Payload), "boss-1")
	case <-time.After(time.Second):
		t.Fatal("event was not queued")
	}
}

func TestClientSendRaw_ClosedClient(t *testing.T) {
	client := newTestClient(&MockConnection{}, nil)

	client.mu.Lock()
	client.closed = true
	client.mu.Unlock()

	// Must not panic or block.
	client.SendRaw([]byte(`{"type":"x"}`))

	select {
	case <-client.send:
		t.Fatal("frame should not reach a closed client")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientSendRaw_ChannelFull(t *testing.T) {
	client := &Client{
		connID: "conn-1",
		send:   make(chan []byte, 1),
	}

	client.SendRaw([]byte("one"))

	done := make(chan struct{})
	go func() {
		// Overflow frames are dropped, never blocked on.
		client.SendRaw([]byte("two"))
		client.SendRaw([]byte("three"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendRaw blocked on a full channel")
	}
	assert.Len(t, client.send, 1)
}

func TestClientDisconnect_Idempotent(t *testing.T) {
	client := newTestClient(&MockConnection{}, nil)

	client.Disconnect()
	client.Disconnect()

	_, ok := <-client.send
	assert.False(t, ok, "send channel closes exactly once")
}

func TestClientReadPump_DispatchesFrames(t *testing.T) {
	reg := newTestRegistry(t)

	gate := make(chan struct{})
	frames := [][]byte{[]byte(`{"type":"boss_join_room","payload":{}}`)}
	conn := &MockConnection{}
	conn.ReadMessageFunc = func() (int, []byte, error) {
		if len(frames) > 0 {
			f := frames[0]
			frames = frames[1:]
			return websocket.TextMessage, f, nil
		}
		<-gate
		return 0, nil, assert.AnError
	}

	client := newTestClient(conn, reg)
	go client.readPump()

	assert.Eventually(t, func() bool {
		return reg.ModeStatus(game.ModeBoss)["totalPlayers"] == 1
	}, time.Second, 10*time.Millisecond, "join frame should reach the registry")

	// Dropping the connection tears the player down.
	close(gate)
	assert.Eventually(t, func() bool {
		return reg.ModeStatus(game.ModeBoss)["totalPlayers"] == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClientReadPump_SkipsGarbage(t *testing.T) {
	reg := newTestRegistry(t)

	type frame struct {
		messageType int
		data        []byte
	}
	frames := []frame{
		{websocket.BinaryMessage, []byte(`{"type":"boss_join_room","payload":{}}`)},
		{websocket.TextMessage, []byte("not json")},
		{websocket.TextMessage, []byte(`{"payload":{}}`)},
	}
	conn := &MockConnection{}
	conn.ReadMessageFunc = func() (int, []byte, error) {
		if len(frames) > 0 {
			f := frames[0]
			frames = frames[1:]
			return f.messageType, f.data, nil
		}
		return 0, nil, assert.AnError
	}

	client := newTestClient(conn, reg)
	go client.readPump()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, reg.ModeStatus(game.ModeBoss)["totalPlayers"],
		"binary, malformed, and untyped frames never dispatch")
}

func TestClientWritePump(t *testing.T) {
	type written struct {
		messageType int
		data        []byte
	}
	writes := make(chan written, 4)
	conn := &MockConnection{
		WriteMessageFunc: func(mt int, data []byte) error {
			writes <- written{mt, data}
			return nil
		},
	}

	client := newTestClient(conn, nil)
	go client.writePump()

	payload := []byte(`{"type":"boss_health_update","payload":{"health":950}}`)
	client.send <- payload

	select {
	case w := <-writes:
		assert.Equal(t, websocket.TextMessage, w.messageType)
		assert.Equal(t, payload, w.data)
	case <-time.After(time.Second):
		t.Fatal("frame was not written")
	}

	// Disconnect closes the channel; the pump answers with a close frame.
	client.Disconnect()
	select {
	case w := <-writes:
		assert.Equal(t, websocket.CloseMessage, w.messageType)
	case <-time.After(time.Second):
		t.Fatal("close frame was not written")
	}
}

func TestClientIdentity(t *testing.T) {
	client := newTestClient(&MockConnection{}, nil)
	assert.Equal(t, game.ConnID("conn-1"), client.ConnID())
	assert.Equal(t, "Tester", client.Identity().DisplayName)
}
