package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/usdbridge/bridge/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// countsEvent is one live-tail snapshot broadcast to every connected viewer.
type countsEvent struct {
	QuarantinedS int `json:"quarantined_s"`
	QuarantinedN int `json:"quarantined_n"`
	PendingS     int `json:"pending_s"`
	PendingN     int `json:"pending_n"`
}

// countsHub fans a stream of countsEvent snapshots out to every connected
// client. Single broadcast channel, no subscriptions: unlike teacher's
// rpc.WSHub there is only ever one event kind, so the subscription-filter
// layer would have nothing to filter on.
type countsHub struct {
	clients    map[*countsClient]bool
	broadcastC chan countsEvent
	register   chan *countsClient
	unregister chan *countsClient
	log        *logging.Logger
	mu         sync.RWMutex
}

type countsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newCountsHub(log *logging.Logger) *countsHub {
	return &countsHub{
		clients:    make(map[*countsClient]bool),
		broadcastC: make(chan countsEvent, 16),
		register:   make(chan *countsClient),
		unregister: make(chan *countsClient),
		log:        log.Component("quarantine_viewer_ws"),
	}
}

func (h *countsHub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Debug("viewer connected", "clients", len(h.clients))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case ev := <-h.broadcastC:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("marshal counts event failed", "error", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *countsHub) broadcast(ev countsEvent) {
	select {
	case h.broadcastC <- ev:
	default:
		h.log.Warn("broadcast channel full, dropping snapshot")
	}
}

func (h *countsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &countsClient{conn: conn, send: make(chan []byte, 16)}
	h.register <- c
	go c.writePump(h)
	go c.readPump(h)
}

func (c *countsClient) readPump(h *countsHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *countsClient) writePump(h *countsHub) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
