package pilot

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Envelope types.
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeEvent    = "event"
	TypeResponse = "response"

	// sendBufferSize is the per-client outbound message buffer size.
	sendBufferSize = 256
)

// Envelope is a message sent to or from a browser.
type Envelope struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// HubConfig tunes browser connections.
type HubConfig struct {
	MaxMessageSize int64
	PingInterval   time.Duration
	PongTimeout    time.Duration

	// RateLimit is the sustained number of messages per second a browser may
	// send. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// hub tracks connected browsers.
type hub struct {
	cfg     HubConfig
	logger  Logger
	clients map[*client]struct{}
	mu      sync.RWMutex

	// onMessage handles every non-ping message read from a client.
	onMessage func(c *client, msg inbound)
}

type client struct {
	id      string
	subject string
	hub     *hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

func newHub(cfg HubConfig) *hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10 * time.Second
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = int(cfg.RateLimit) + 1
	}
	return &hub{
		cfg:     cfg,
		logger:  noopLogger{},
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request, subject string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		id:      uuid.NewString(),
		subject: subject,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
	}
	if h.cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateBurst)
	}

	h.register(c)
	go c.writePump()
	go c.readPump()
	return nil
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("browser connected", "client_id", c.id, "subject", c.subject, "clients", h.count())
}

// unregister removes a client. Only the goroutine that removes it from the
// map closes its send channel.
func (h *hub) unregister(c *client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Debug("browser disconnected", "client_id", c.id, "clients", h.count())
}

// broadcast sends an already encoded message to every client.
func (h *hub) broadcast(data []byte) int {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
	return len(clients)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client so their pumps exit.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout))
		c.handleMessage(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handleMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.respond("", Fail(CodeWrongParameters, "invalid JSON message"))
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.respond(msg.ID, Fail(CodeRateLimited, "too many messages"))
		return
	}

	if msg.Type == TypePing {
		c.sendEnvelope(Envelope{Type: TypePong, ID: msg.ID})
		return
	}
	c.hub.onMessage(c, msg)
}

// respond sends the reply to request id.
func (c *client) respond(id string, resp Response) {
	c.sendEnvelope(Envelope{Type: TypeResponse, ID: id, Payload: resp})
}

func (c *client) sendEnvelope(env Envelope) {
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("failed to marshal browser message", "type", env.Type, "error", err)
		return
	}
	c.trySend(data)
}

// trySend queues data for the client. A closed channel (client gone during a
// broadcast) or a full buffer (slow client) drops the message.
func (c *client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}
