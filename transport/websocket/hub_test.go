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

	"github.com/qiaoqiao/match3-server/game/config"
	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
	"github.com/qiaoqiao/match3-server/game/session"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.sessions == nil || hub.clients == nil {
		t.Error("Hub maps are nil")
	}
	if hub.events == nil || hub.register == nil || hub.unregister == nil || hub.rebind == nil || hub.direct == nil {
		t.Error("Hub channels are nil")
	}
}

func newTestClient(hub *Hub, sessionID string, buffer int) *Client {
	return &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, buffer),
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "test-session", 8)

	hub.registerClient(client)

	if !hub.sessions["test-session"][client] {
		t.Error("Client was not registered in session")
	}
	if len(hub.sessions["test-session"]) != 1 {
		t.Errorf("Expected 1 client in session, got %d", len(hub.sessions["test-session"]))
	}

	// Unbound clients are tracked but belong to no session
	unbound := newTestClient(hub, "", 8)
	hub.registerClient(unbound)
	if !hub.clients[unbound] {
		t.Error("Unbound client should be tracked")
	}
	if _, exists := hub.sessions[""]; exists {
		t.Error("Unbound client should not create a session entry")
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "test-session", 8)

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["test-session"]; exists {
		t.Error("Empty session should be removed")
	}
	if !client.closed {
		t.Error("Client should be marked closed")
	}
	if _, ok := <-client.send; ok {
		t.Error("Client send channel should be closed")
	}

	// A second unregister is a no-op
	hub.unregisterClient(client)
}

func TestHubRebindClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "", 8)
	hub.registerClient(client)

	hub.rebindClient(client, "game-a")
	assert.True(t, hub.sessions["game-a"][client])

	hub.rebindClient(client, "game-b")
	assert.NotContains(t, hub.sessions, "game-a")
	assert.True(t, hub.sessions["game-b"][client])
	assert.Equal(t, "game-b", client.sessionID)
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := NewHub()
	a1 := newTestClient(hub, "game-a", 8)
	a2 := newTestClient(hub, "game-a", 8)
	b := newTestClient(hub, "game-b", 8)
	for _, c := range []*Client{a1, a2, b} {
		hub.registerClient(c)
	}

	hub.broadcastEvent(service.Event{Type: service.EventGameState, SessionID: "game-a", Score: 40})

	for _, c := range []*Client{a1, a2} {
		select {
		case data := <-c.send:
			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, "gameState", got["type"])
			assert.Equal(t, "game-a", got["game_id"])
			assert.Equal(t, float64(40), got["score"])
			assert.Nil(t, got["user_id"])
		default:
			t.Error("Client in session did not receive the event")
		}
	}

	select {
	case <-b.send:
		t.Error("Client in another session received the event")
	default:
	}
}

func TestHubSlowClientIsDropped(t *testing.T) {
	hub := NewHub()
	slow := newTestClient(hub, "game-a", 1)
	hub.registerClient(slow)

	hub.broadcastEvent(service.Event{Type: service.EventGameState, SessionID: "game-a"})
	hub.broadcastEvent(service.Event{Type: service.EventGameState, SessionID: "game-a"})

	assert.True(t, slow.closed)
	assert.NotContains(t, hub.sessions, "game-a")
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < eventBuffer+50; i++ {
			hub.Publish(service.Event{Type: service.EventNotification, SessionID: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
	assert.Len(t, hub.events, eventBuffer)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "game session not found", errorMessage(service.ErrSessionNotFound))
	assert.True(t, strings.HasPrefix(errorMessage(service.ErrIllegalState), "action not allowed"))
	assert.True(t, strings.HasPrefix(errorMessage(service.ErrInvalidMove), "invalid move"))
}

// wsFixture is a hub wired to a real game service behind an httptest server
type wsFixture struct {
	games  service.GameService
	server *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	return newWSFixtureAs(t, service.Guest(), false)
}

// newWSFixtureAs connects every client as owner, as if the upgrade request
// carried a token when verified is set
func newWSFixtureAs(t *testing.T, owner service.Owner, verified bool) *wsFixture {
	t.Helper()

	configs, err := config.NewManager(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewManager(session.WithBoardOptions(func(string) []engine.Option {
		return []engine.Option{engine.WithSeed(3)}
	}))

	hub := NewHub()
	games := service.NewGameService(sessions, configs, service.WithNotifier(hub))
	hub.SetGameService(games)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"), owner, verified)
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &wsFixture{games: games, server: server}
}

func (f *wsFixture) dial(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads events until one of the wanted type arrives
func next(t *testing.T, conn *websocket.Conn, want service.EventType) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == string(want) {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg InboundMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestWebSocket_NewGameAndMove(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "")

	send(t, conn, InboundMessage{Type: TypeNewGame, UserID: "guest"})
	state := next(t, conn, service.EventGameState)
	gameID, _ := state["game_id"].(string)
	require.NotEmpty(t, gameID)
	assert.Equal(t, float64(engine.DefaultMoves), state["moves_left"])
	assert.Equal(t, "ready", state["state"])

	hint, err := f.games.Hint(context.Background(), gameID)
	require.NoError(t, err)
	require.True(t, hint.Available)

	send(t, conn, InboundMessage{
		Type: TypeMove,
		Row1: hint.Move.FromRow, Col1: hint.Move.FromCol,
		Row2: hint.Move.ToRow, Col2: hint.Move.ToCol,
	})
	moved := next(t, conn, service.EventGameState)
	assert.Equal(t, gameID, moved["game_id"])
	assert.Equal(t, float64(engine.DefaultMoves-1), moved["moves_left"])
	assert.Equal(t, "playing", moved["state"])
	assert.Equal(t, true, moved["success"])
}

func TestWebSocket_Errors(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "")

	send(t, conn, InboundMessage{Type: "teleport"})
	msg := next(t, conn, service.EventError)
	assert.Contains(t, msg["message"], "unknown message type")

	send(t, conn, InboundMessage{Type: TypeMove, Row1: 0, Col1: 0, Row2: 0, Col2: 1})
	msg = next(t, conn, service.EventError)
	assert.Equal(t, "no game joined", msg["message"])

	send(t, conn, InboundMessage{Type: TypeJoin, GameID: "missing"})
	msg = next(t, conn, service.EventError)
	assert.Equal(t, "game session not found", msg["message"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = next(t, conn, service.EventError)
	assert.Contains(t, msg["message"], "malformed message")
}

func TestWebSocket_JoinExistingSession(t *testing.T) {
	f := newWSFixture(t)
	info, err := f.games.CreateSession(context.Background(), service.CreateSessionRequest{Owner: service.Account(8)})
	require.NoError(t, err)

	// Connecting with a session id sends the board right away
	conn := f.dial(t, info.ID)
	state := next(t, conn, service.EventGameState)
	assert.Equal(t, info.ID, state["game_id"])
	assert.Equal(t, float64(8), state["user_id"])

	// Out of bounds coordinates are rejected without changing state
	send(t, conn, InboundMessage{Type: TypeMove, Row1: 0, Col1: 0, Row2: 0, Col2: -1})
	msg := next(t, conn, service.EventError)
	assert.Contains(t, msg["message"], "invalid move")

	// Pause from ready is not allowed
	send(t, conn, InboundMessage{Type: TypePause})
	msg = next(t, conn, service.EventError)
	assert.Contains(t, msg["message"], "action not allowed")

	// Another client joining the same game sees its events
	other := f.dial(t, "")
	send(t, other, InboundMessage{Type: TypeJoin, GameID: info.ID})
	next(t, other, service.EventGameState)

	hint, err := f.games.Hint(context.Background(), info.ID)
	require.NoError(t, err)
	_, err = f.games.ApplyMove(context.Background(), info.ID, *hint.Move)
	require.NoError(t, err)

	for _, c := range []*websocket.Conn{conn, other} {
		event := next(t, c, service.EventGameState)
		assert.Equal(t, "playing", event["state"])
	}
}

func TestWebSocket_TokenOwnerWinsOverUserID(t *testing.T) {
	f := newWSFixtureAs(t, service.Account(1), true)
	conn := f.dial(t, "")

	send(t, conn, InboundMessage{Type: TypeNewGame, UserID: "7"})
	state := next(t, conn, service.EventGameState)
	assert.Equal(t, float64(1), state["user_id"])

	gameID, _ := state["game_id"].(string)
	info, err := f.games.GetSession(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, service.Account(1), info.Owner)
}

func TestWebSocket_UserIDNamesUnverifiedOwner(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "")

	send(t, conn, InboundMessage{Type: TypeNewGame, UserID: "7"})
	state := next(t, conn, service.EventGameState)
	assert.Equal(t, float64(7), state["user_id"])
}
