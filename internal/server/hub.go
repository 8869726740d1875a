package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// Frame is the wire envelope for every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Hub tracks which connections belong to which room and fans events out to
// room members. A connection is in at most one room at a time.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	log   *logger.Logger
}

func NewHub() *Hub {
	return &Hub{
		rooms: map[string]map[*client]struct{}{},
		log:   logger.MustNamed("hub"),
	}
}

// ToRoom broadcasts an event to every connection currently in the room.
func (h *Hub) ToRoom(roomID, event string, data any) {
	raw, err := encodeFrame(event, data)
	if err != nil {
		h.log.Errorw("encode broadcast frame failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		c.enqueue(raw)
	}
}

// move switches a connection's membership from one room to another. Empty
// from means the connection was not in any room yet.
func (h *Hub) move(c *client, from, to string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if from != "" {
		h.detachLocked(c, from)
	}
	members, ok := h.rooms[to]
	if !ok {
		members = map[*client]struct{}{}
		h.rooms[to] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) drop(c *client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c, roomID)
}

func (h *Hub) detachLocked(c *client, roomID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// client wraps one websocket connection with a buffered outbound queue so a
// slow reader can never block a room broadcast.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *logger.Logger
}

func newClient(conn *websocket.Conn, log *logger.Logger) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
		log:  log,
	}
}

func (c *client) enqueue(raw []byte) {
	select {
	case <-c.done:
	case c.send <- raw:
	default:
		c.log.Warnw("client send queue full, dropping frame")
	}
}

// sendEvent unicasts an event to this connection only.
func (c *client) sendEvent(event string, data any) {
	raw, err := encodeFrame(event, data)
	if err != nil {
		c.log.Errorw("encode unicast frame failed", "event", event, "error", err)
		return
	}
	c.enqueue(raw)
}

// writePump owns all writes to the connection, interleaving queued frames
// with keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case raw := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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

// readPump reads frames until the connection drops, handing each one to the
// session. It never writes to the connection.
func (c *client) readPump(handle func(raw []byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warnw("websocket read failed", "error", err)
			}
			return
		}
		handle(raw)
	}
}
