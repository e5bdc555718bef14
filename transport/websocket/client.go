package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
)

// Inbound message types
const (
	TypeJoin    = "join"
	TypeMove    = "move"
	TypeNewGame = "newGame"
	TypePause   = "pause"
	TypeResume  = "resume"
)

// requestTimeout bounds a single inbound message
const requestTimeout = 10 * time.Second

// InboundMessage is what clients send
type InboundMessage struct {
	Type   string `json:"type"`
	GameID string `json:"game_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Row1   int    `json:"row1"`
	Col1   int    `json:"col1"`
	Row2   int    `json:"row2"`
	Col2   int    `json:"col2"`
	Config string `json:"config,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// owned by the hub loop
	sessionID string
	closed    bool

	// owned by readPump
	current string
	owner   service.Owner
	// verified owners come from a token and are never replaced by user_id
	verified bool
}

// readPump pumps messages from the WebSocket connection to the game service
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.current = c.sessionID
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if c.current != "" && c.hub.games != nil {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		c.sendState(ctx, c.current)
		cancel()
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("websocket closed")
			}
			break
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError(c.current, "malformed message: "+err.Error())
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		c.handle(ctx, msg)
		cancel()
	}
}

// handle dispatches one inbound message
func (c *Client) handle(ctx context.Context, msg InboundMessage) {
	if c.hub.games == nil {
		c.replyError(msg.GameID, "game service unavailable")
		return
	}
	if msg.UserID != "" && !c.verified {
		c.owner = service.ParseOwner(msg.UserID)
	}

	switch msg.Type {
	case TypeJoin:
		c.join(ctx, msg)
	case TypeNewGame:
		c.newGame(ctx, msg.Config)
	case TypeMove:
		id := c.target(msg)
		if id == "" {
			c.replyError("", "no game joined")
			return
		}
		c.bind(id)
		move := engine.NewMove(msg.Row1, msg.Col1, msg.Row2, msg.Col2)
		if _, err := c.hub.games.ApplyMove(ctx, id, move); err != nil {
			c.replyError(id, errorMessage(err))
		}
	case TypePause, TypeResume:
		id := c.target(msg)
		var err error
		if msg.Type == TypePause {
			_, err = c.hub.games.Pause(ctx, id)
		} else {
			_, err = c.hub.games.Resume(ctx, id)
		}
		if err != nil {
			c.replyError(id, errorMessage(err))
		}
	default:
		c.replyError(msg.GameID, "unknown message type: "+msg.Type)
	}
}

// join attaches to an existing game, or starts one when no id is given
func (c *Client) join(ctx context.Context, msg InboundMessage) {
	if msg.GameID == "" {
		c.newGame(ctx, msg.Config)
		return
	}
	if _, err := c.hub.games.GetSession(ctx, msg.GameID); err != nil {
		c.replyError(msg.GameID, errorMessage(err))
		return
	}
	c.bind(msg.GameID)
	c.sendState(ctx, msg.GameID)
}

func (c *Client) newGame(ctx context.Context, config string) {
	info, err := c.hub.games.CreateSession(ctx, service.CreateSessionRequest{ConfigName: config, Owner: c.owner})
	if err != nil {
		c.replyError("", errorMessage(err))
		return
	}
	c.bind(info.ID)
	c.reply(stateEvent(info))
}

// sendState replies with the session's current board
func (c *Client) sendState(ctx context.Context, sessionID string) {
	info, err := c.hub.games.GetSession(ctx, sessionID)
	if err != nil {
		c.replyError(sessionID, errorMessage(err))
		return
	}
	c.reply(stateEvent(info))
}

func (c *Client) target(msg InboundMessage) string {
	if msg.GameID != "" {
		return msg.GameID
	}
	return c.current
}

// bind moves the client to sessionID through the hub loop
func (c *Client) bind(sessionID string) {
	if c.current == sessionID {
		return
	}
	c.current = sessionID
	select {
	case c.hub.rebind <- rebind{client: c, sessionID: sessionID}:
	case <-c.hub.done:
	}
}

func (c *Client) reply(event service.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply")
		return
	}
	select {
	case c.hub.direct <- direct{client: c, data: data}:
	case <-c.hub.done:
	}
}

func (c *Client) replyError(sessionID, message string) {
	c.reply(service.Event{
		Type:      service.EventError,
		SessionID: sessionID,
		Owner:     c.owner,
		Message:   message,
	})
}

func stateEvent(info *service.SessionInfo) service.Event {
	event := service.Event{
		Type:      service.EventGameState,
		SessionID: info.ID,
		Owner:     info.Owner,
		Board:     info.Board,
		State:     info.State,
		Success:   true,
		GameOver:  info.State == service.StateGameOver,
	}
	if info.Board != nil {
		event.Score = info.Board.Score
		event.MovesLeft = info.Board.MovesLeft
	}
	return event
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return "game session not found"
	case errors.Is(err, service.ErrIllegalState):
		return "action not allowed: " + err.Error()
	case errors.Is(err, service.ErrInvalidMove):
		return "invalid move: " + err.Error()
	default:
		return err.Error()
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
