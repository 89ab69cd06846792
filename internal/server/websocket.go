package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/arena/internal/arena/match"
	"github.com/zeusync/arena/internal/arena/snapshot"
	"github.com/zeusync/arena/internal/core/events/bus"
	"github.com/zeusync/arena/internal/core/observability/log"
	"github.com/zeusync/arena/pkg/concurrent"
	"github.com/zeusync/arena/pkg/generic"
)

const clientBuffer = 16

var framePool = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// encodeFrame returns the snapshot's JSON in a slice owned by the caller.
func encodeFrame(snap *snapshot.Snapshot) ([]byte, error) {
	buf := framePool.Get()
	defer framePool.Put(buf)
	if err := json.NewEncoder(buf).Encode(snap); err != nil {
		return nil, err
	}
	return bytes.Clone(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans state broadcasts out to websocket clients. Each frame is the JSON
// snapshot; consecutive identical snapshots are sent once.
type Hub struct {
	match        *match.Controller
	sub          bus.Subscription
	writeTimeout time.Duration
	logger       log.Log

	mu         sync.Mutex
	clients    map[*client]struct{}
	lastDigest uint64
	closed     bool
	closeOnce  sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub subscribes a hub to the controller's state broadcasts.
func NewHub(controller *match.Controller, writeTimeout time.Duration, logger log.Log) (*Hub, error) {
	h := &Hub{
		match:        controller,
		writeTimeout: writeTimeout,
		logger:       logger,
		clients:      make(map[*client]struct{}),
	}
	sub, err := controller.Bus().Subscribe(match.EventStateBroadcast, h.onBroadcast)
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) onBroadcast(e bus.Event) error {
	snap, ok := e.Data().(*snapshot.Snapshot)
	if !ok || snap == nil {
		return nil
	}
	digest := snap.Digest()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || digest == h.lastDigest {
		return nil
	}
	h.lastDigest = digest
	if len(h.clients) == 0 {
		return nil
	}

	frame, err := encodeFrame(snap)
	if err != nil {
		return err
	}
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// slow reader, it catches up on the next frame
			h.logger.Debug("Dropped state frame", log.String("remote", c.conn.RemoteAddr().String()))
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams snapshots until the client
// leaves or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}

	initial, err := encodeFrame(h.match.Snapshot())
	if err != nil {
		_ = conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	c.send <- initial

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Stream client connected", log.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer func() { _ = c.conn.Close() }()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

// readPump only watches for the peer going away.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("Stream client disconnected", log.String("remote", c.conn.RemoteAddr().String()))
	}
	c.close()
}

// Close detaches from the bus and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		if h.sub != nil {
			_ = h.sub.Cancel()
		}

		h.mu.Lock()
		h.closed = true
		clients := make([]*client, 0, len(h.clients))
		for c := range h.clients {
			clients = append(clients, c)
		}
		clear(h.clients)
		h.mu.Unlock()

		concurrent.ParallelMute(clients, func(c *client) error {
			c.close()
			return nil
		})
	})
}
