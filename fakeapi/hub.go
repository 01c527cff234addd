package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/remycare-client/token"
	"github.com/jrsteele09/remycare-client/users"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10
	hubSendBuffer = 64

	eventJoinRooms = "join_rooms"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinRooms struct {
	ProfileID int64 `json:"profile_id"`
}

// RoomName is the room a CHW or nurse profile joins, e.g. "chw:3".
func RoomName(role users.Role, profileID int64) string {
	return fmt.Sprintf("%s:%d", role, profileID)
}

// Hub fans server events out to websocket connections grouped into rooms.
type Hub struct {
	logger zerolog.Logger

	lock    sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	hub     *Hub
	conn    *websocket.Conn
	account *users.Account
	send    chan []byte
	done    chan struct{}
	once    sync.Once

	roomLock sync.Mutex
	rooms    map[string]struct{}
}

func newHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "hub").Logger(),
		clients: make(map[*hubClient]struct{}),
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Members returns the number of connections in room.
func (h *Hub) Members(room string) int {
	h.lock.Lock()
	defer h.lock.Unlock()
	n := 0
	for c := range h.clients {
		if c.inAny([]string{room}) {
			n++
		}
	}
	return n
}

// Broadcast queues event for every client in any of rooms, or for every
// client when rooms is empty. A client whose buffer is full is dropped.
func (h *Hub) Broadcast(event string, payload any, rooms ...string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("[Hub Broadcast] marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("[Hub Broadcast] marshal %s frame: %w", event, err)
	}

	h.lock.Lock()
	targets := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		if len(rooms) == 0 || c.inAny(rooms) {
			targets = append(targets, c)
		}
	}
	h.lock.Unlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		case <-c.done:
		default:
			h.logger.Warn().Int64("user_id", c.account.ID).Msg("Client send buffer full, dropping connection")
			c.close()
		}
	}
	h.logger.Debug().Str("event", event).Strs("rooms", rooms).Int("delivered", len(targets)).Msg("Broadcast")
	return nil
}

// Close drops every connection and refuses new ones.
func (h *Hub) Close() {
	h.lock.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.lock.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *hubClient) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
}

// serve runs the pumps of a freshly upgraded connection and returns when it
// closes.
func (h *Hub) serve(conn *websocket.Conn, account *users.Account) {
	c := &hubClient{
		hub:     h,
		conn:    conn,
		account: account,
		send:    make(chan []byte, hubSendBuffer),
		done:    make(chan struct{}),
		rooms:   make(map[string]struct{}),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(hubWriteWait))
		_ = conn.Close()
		return
	}
	h.logger.Info().Int64("user_id", account.ID).Str("role", string(account.Role)).Msg("Client connected")

	go c.writePump()
	c.readPump()

	h.unregister(c)
	h.logger.Info().Int64("user_id", account.ID).Msg("Client disconnected")
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *hubClient) inAny(rooms []string) bool {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	for _, room := range rooms {
		if _, ok := c.rooms[room]; ok {
			return true
		}
	}
	return false
}

func (c *hubClient) join(room string) {
	c.roomLock.Lock()
	c.rooms[room] = struct{}{}
	c.roomLock.Unlock()
}

func (c *hubClient) readPump() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
		c.handle(data)
	}
}

// handle processes one client frame. Only join_rooms is understood, and a
// connection may only join the room of its own profile.
func (c *hubClient) handle(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.hub.logger.Debug().Err(err).Msg("Ignoring malformed client frame")
		return
	}
	if f.Event != eventJoinRooms {
		c.hub.logger.Debug().Str("event", f.Event).Msg("Ignoring client event")
		return
	}

	var req joinRooms
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return
	}
	if c.account.Role == users.RoleMother || req.ProfileID != c.account.ProfileID {
		c.hub.logger.Warn().
			Int64("user_id", c.account.ID).
			Int64("profile_id", req.ProfileID).
			Msg("Refusing join_rooms for foreign profile")
		return
	}
	room := RoomName(c.account.Role, req.ProfileID)
	c.join(room)
	c.hub.logger.Debug().Int64("user_id", c.account.ID).Str("room", room).Msg("Joined room")
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteWait)); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketHandler upgrades a connection authenticated by the access token
// in the "token" query parameter.
func (s *Server) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("token")
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Missing token")
			return
		}
		account, _, err := s.authenticate(raw, token.TypeAccess)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Rejected realtime connection")
			writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		s.hub.serve(conn, account)
	}
}
