package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"golddesk/internal/snapshot"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 8
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes every fresh snapshot to connected display clients. A client
// that cannot keep up with the poll rate is dropped; the display surface
// reconnects and resumes from the next snapshot, so nothing is queued.
type Hub struct {
	log      *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 4096,
			// the widget serves its own display surface; no cross-origin policy
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendQueueSize)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.WithField("client", c.id).Info("display client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast serializes the snapshot once and fans it out to every client.
func (h *Hub) Broadcast(snap *snapshot.Snapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		h.log.WithError(err).Warn("snapshot marshal failed")
		return
	}
	h.mu.Lock()
	for id, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.WithField("client", id).Warn("slow display client dropped")
			delete(h.clients, id)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// ClientCount reports the number of connected display clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		// the display surface never sends anything meaningful; reads only
		// detect disconnects
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
