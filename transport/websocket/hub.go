package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/qiaoqiao/match3-server/game/service"
	"github.com/qiaoqiao/match3-server/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// Events buffered between Publish and the hub loop.
	eventBuffer = 256

	// Messages buffered per client.
	clientBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; the API sits behind the same host
		return true
	},
}

// rebind moves a client to another session
type rebind struct {
	client    *Client
	sessionID string
}

// direct is a reply for a single client
type direct struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active clients and delivers events to them.
// Only the Run goroutine touches the session map and client send channels.
type Hub struct {
	// Registered clients by session ID
	sessions map[string]map[*Client]bool

	// Every open client, bound or not
	clients map[*Client]bool

	// Events published by the game service
	events chan service.Event

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Session changes from join/newGame
	rebind chan rebind

	// Replies addressed to one client
	direct chan direct

	// Closed when Run returns
	done chan struct{}

	games service.GameService
}

var _ service.Notifier = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		events:     make(chan service.Event, eventBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rebind:     make(chan rebind),
		direct:     make(chan direct),
		done:       make(chan struct{}),
	}
}

// SetGameService sets the service inbound messages are dispatched to.
// Call it before Run.
func (h *Hub) SetGameService(games service.GameService) {
	h.games = games
}

// Publish queues an event for the session's clients. It never blocks; when the
// buffer is full the event is dropped.
func (h *Hub) Publish(event service.Event) {
	select {
	case h.events <- event:
	default:
		metrics.EventsDropped.Inc()
		log.Warn().Str("session", event.SessionID).Str("type", string(event.Type)).Msg("event buffer full, dropping event")
	}
}

// Run starts the hub's event loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.rebind:
			h.rebindClient(req.client, req.sessionID)

		case msg := <-h.direct:
			h.sendTo(msg.client, msg.data)

		case event := <-h.events:
			h.broadcastEvent(event)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ServeWS upgrades the request and attaches the client to sessionID, which may be
// empty until the client sends join or newGame. A verified owner came from a token;
// otherwise the client may name its account with user_id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string, owner service.Owner, verified bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, clientBuffer),
		sessionID: sessionID,
		owner:     owner,
		verified:  verified,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// registerClient adds a client to its session
func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true
	metrics.WebSocketClients.Inc()
	h.attach(client)
}

// unregisterClient removes a client and closes its send channel
func (h *Hub) unregisterClient(client *Client) {
	if client.closed {
		return
	}
	h.detach(client)
	delete(h.clients, client)
	client.closed = true
	close(client.send)
	metrics.WebSocketClients.Dec()
}

func (h *Hub) rebindClient(client *Client, sessionID string) {
	if client.closed || client.sessionID == sessionID {
		return
	}
	h.detach(client)
	client.sessionID = sessionID
	h.attach(client)
}

func (h *Hub) attach(client *Client) {
	if client.sessionID == "" {
		return
	}
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true

	log.Debug().
		Str("session", client.sessionID).
		Int("clients", len(h.sessions[client.sessionID])).
		Msg("client attached")
}

func (h *Hub) detach(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return
	}
	delete(clients, client)

	// Clean up empty sessions
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}
}

// broadcastEvent sends an event to all clients in its session
func (h *Hub) broadcastEvent(event service.Event) {
	clients, ok := h.sessions[event.SessionID]
	if !ok {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	for client := range clients {
		h.sendTo(client, data)
	}
}

// sendTo queues data for one client. A client that cannot keep up is dropped.
func (h *Hub) sendTo(client *Client, data []byte) {
	if client.closed {
		return
	}
	select {
	case client.send <- data:
	default:
		metrics.EventsDropped.Inc()
		h.unregisterClient(client)
	}
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		h.unregisterClient(client)
	}
}
