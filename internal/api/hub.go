package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

const (
	clientSendBuf = 64
	writeDeadline = 5 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// DropSummary is what the live feed publishes for each accepted drop.
type DropSummary struct {
	Type         string      `json:"type"`
	DropID       string      `json:"drop_id"`
	EventID      string      `json:"event_id"`
	Kind         models.Kind `json:"kind"`
	MarginPct    float64     `json:"margin_pct"`
	Match        string      `json:"match"`
	League       string      `json:"league,omitempty"`
	Sport        string      `json:"sport,omitempty"`
	Market       string      `json:"market,omitempty"`
	Books        []string    `json:"books"`
	CommenceTime *time.Time  `json:"commence_time,omitempty"`
	ReceivedAt   time.Time   `json:"received_at"`
}

func summarize(d *models.Drop) DropSummary {
	return DropSummary{
		Type:         "drop",
		DropID:       d.ID,
		EventID:      d.EventID,
		Kind:         d.Kind,
		MarginPct:    d.MarginPct,
		Match:        d.Match,
		League:       d.League,
		Sport:        d.Sport,
		Market:       d.Market,
		Books:        d.Books(),
		CommenceTime: d.CommenceTime,
		ReceivedAt:   d.ReceivedAt.UTC(),
	}
}

type feedClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *feedClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub broadcasts accepted drops to websocket clients. A client whose buffer
// is full is disconnected; Broadcast never blocks.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

// NewHub accepts connections from origins; an empty list or "*" allows any.
func NewHub(origins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		log:     logger.With("component", "ws_hub"),
		clients: make(map[*feedClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(origins)}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(allowed) == 0 || origin == "" || allowed[origin]
	}
}

// Broadcast publishes d to every connected client.
func (h *Hub) Broadcast(d *models.Drop) {
	data, err := json.Marshal(summarize(d))
	if err != nil {
		h.log.Warn("Failed to marshal drop summary", "drop_id", d.ID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("Dropping slow feed client", "client_id", c.id)
			delete(h.clients, c)
			c.close()
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuf),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("Feed client connected", "client_id", c.id, "remote", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// writePump owns the connection: it removes the client and closes the
// socket on exit.
func (h *Hub) writePump(c *feedClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
		h.log.Info("Feed client disconnected", "client_id", c.id)
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only consumes pongs and close frames.
func (h *Hub) readPump(c *feedClient) {
	defer c.close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
