package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parimutuel/internal/app"
)

const wsWriteTimeout = 2 * time.Second

type clientConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *clientConn) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub pushes state snapshots to every connected page.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	metrics  *Metrics

	mu      sync.RWMutex
	clients map[string]*clientConn
}

func NewHub(log *zap.Logger, metrics *Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: sameOrigin},
		log:      log,
		metrics:  metrics,
		clients:  make(map[string]*clientConn),
	}
}

// sameOrigin accepts requests whose Origin, or Referer when Origin is absent,
// names the host the request was sent to. Requests carrying neither header
// come from non-browser clients and are accepted.
func sameOrigin(r *http.Request) bool {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return true
	}
	u, err := url.Parse(referer)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host == r.Host
}

func (h *Hub) add(c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.metrics.setClients(len(h.clients))
	h.log.Debug("ws client connected", zap.String("client_id", c.id))
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.metrics.setClients(len(h.clients))
		h.log.Debug("ws client disconnected", zap.String("client_id", id))
	}
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast writes v to every client. Clients that fail the write are dropped.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("ws marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*clientConn, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(msg); err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", c.id), zap.Error(err))
			_ = c.conn.Close()
			h.remove(c.id)
			continue
		}
		h.metrics.incMessages()
	}
}

type clientMsg struct {
	Type string `json:"type"`
}

// Serve upgrades the request, registers the client, sends the snapshot and
// keeps the socket until the page goes away. snapshot is taken only after the
// client is registered. The only client message understood is ping.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, snapshot func() any) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &clientConn{id: uuid.NewString(), conn: conn}
	defer func() {
		h.remove(c.id)
		_ = conn.Close()
	}()

	h.add(c)
	if msg, err := json.Marshal(snapshot()); err == nil {
		if err := c.write(msg); err != nil {
			return
		}
	}

	for {
		var msg clientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			if err := c.write([]byte(`{"type":"pong"}`)); err != nil {
				return
			}
		}
	}
}

// Stream forwards snapshots to the hub until ctx is done or updates closes.
func (h *Hub) Stream(ctx context.Context, updates <-chan app.State) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			h.Broadcast(newStateView(st))
		}
	}
}
