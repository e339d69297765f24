package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/behaviour/internal/core/events/bus"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/pkg/generic"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Envelope is the JSON frame sent for every bus event.
type Envelope struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	prefix string
}

// Hub fans bus events out to websocket clients. A client may narrow the feed
// with ?type=<prefix>, e.g. "runner." or "bt.tree.". Clients that fall behind
// are disconnected rather than slowing down the publisher.
type Hub struct {
	maxClients int
	logger     log.Log
	events     bus.EventBus
	sub        bus.Subscription

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub subscribes to every event on events. A nil bus yields a hub whose
// clients connect but receive nothing.
func NewHub(events bus.EventBus, maxClients int, logger log.Log) (*Hub, error) {
	h := &Hub{
		maxClients: maxClients,
		logger:     logger,
		events:     events,
		clients:    make(map[string]*client),
	}
	if events != nil {
		sub, err := events.Subscribe(bus.Wildcard, h.broadcast)
		if err != nil {
			return nil, err
		}
		h.sub = sub
	}
	return h, nil
}

// Clients is the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := h.closed || (h.maxClients > 0 && len(h.clients) >= h.maxClients)
	h.mu.RUnlock()
	if full {
		http.Error(w, ErrMaxClientsReached.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		prefix: r.URL.Query().Get("type"),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client connected",
		log.String("client_id", c.id),
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int("total_clients", total))

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) broadcast(e bus.Event) error {
	buf := generic.Buffers.Get()
	defer generic.Buffers.Put(buf)
	if err := json.NewEncoder(buf).Encode(Envelope{Type: e.Type(), Source: e.Source(), Timestamp: e.Timestamp(), Data: e.Data()}); err != nil {
		return err
	}
	// clients keep the frame after the buffer is recycled
	frame := bytes.Clone(buf.Bytes())

	var slow []string
	h.mu.RLock()
	for id, c := range h.clients {
		if c.prefix != "" && !strings.HasPrefix(e.Type(), c.prefix) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.logger.Warn("Dropping slow client", log.String("client_id", id))
		h.remove(id)
	}
	return nil
}

// readLoop discards inbound frames and unregisters on the first read error.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c.id)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info("Client disconnected", log.String("client_id", id), log.Int("total_clients", total))
	}
}

// Close unsubscribes from the bus and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	if h.events != nil {
		if err := h.events.Unsubscribe(h.sub); err != nil {
			h.logger.Warn("Unsubscribe failed", log.Error(err))
		}
	}
	for _, id := range ids {
		h.remove(id)
	}
}
