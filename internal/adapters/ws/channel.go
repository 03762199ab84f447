package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type MessageType string

const (
	TypeChat        MessageType = "chat"
	TypeProfile     MessageType = "profile"
	TypeFinalReport MessageType = "final_report"
)

// frame tolerates both observed payload keys: the SPA-era "payload" and the
// generator's "data".
type frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Data    json.RawMessage `json:"data"`
}

type Listener func(payload json.RawMessage)

// Channel is a persistent socket subscription for one company's profile
// stream. Inbound frames fan out to every listener registered for their
// type. A dropped connection schedules exactly one reconnect attempt after
// a fixed delay; once a final_report frame has been dispatched the channel
// goes quiet for good.
type Channel struct {
	url            string
	dialer         *websocket.Dialer
	log            *slog.Logger
	reconnectDelay time.Duration

	mu        sync.Mutex
	listeners map[MessageType]map[int]Listener
	nextID    int
	conn      *websocket.Conn
	reconnect *time.Timer
	closed    bool
	terminal  bool
}

type Option func(*Channel)

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) { c.reconnectDelay = d }
}

func New(wsBaseURL string, companyID int64, opts ...Option) *Channel {
	c := &Channel{
		url:            fmt.Sprintf("%s/ws/profile/%d", wsBaseURL, companyID),
		dialer:         websocket.DefaultDialer,
		log:            slog.Default(),
		reconnectDelay: 2 * time.Second,
		listeners:      make(map[MessageType]map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the socket and starts the read loop. A failed dial behaves
// like an immediate disconnect: the reconnect timer is scheduled and the
// error returned for logging.
func (c *Channel) Connect() error {
	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		c.log.Warn("websocket dial failed", "url", c.url, "error", err)
		c.scheduleReconnect()
		return err
	}
	c.mu.Lock()
	if c.closed || c.terminal {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("websocket connected", "url", c.url)

	go c.readLoop(conn)
	return nil
}

// Subscribe registers a listener for one frame type and returns a token for
// Unsubscribe. Both are safe to call from inside a listener callback.
func (c *Channel) Subscribe(t MessageType, fn Listener) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	if c.listeners[t] == nil {
		c.listeners[t] = make(map[int]Listener)
	}
	c.listeners[t][c.nextID] = fn
	return c.nextID
}

func (c *Channel) Unsubscribe(t MessageType, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners[t], id)
}

// Close tears the channel down: no further frames, no pending reconnect.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		payload := f.Payload
		if payload == nil {
			payload = f.Data
		}
		if f.Type == "" || payload == nil {
			c.log.Warn("dropping frame without type or payload")
			continue
		}
		c.dispatch(f.Type, payload)
	}
}

func (c *Channel) dispatch(t MessageType, payload json.RawMessage) {
	c.mu.Lock()
	if c.closed || c.terminal {
		c.mu.Unlock()
		return
	}
	if t == TypeFinalReport {
		// Terminal for this connection's profile stream: dispatch once,
		// then stop producing events and forget any pending reconnect.
		c.terminal = true
		if c.reconnect != nil {
			c.reconnect.Stop()
			c.reconnect = nil
		}
	}
	targets := make([]Listener, 0, len(c.listeners[t]))
	for _, fn := range c.listeners[t] {
		targets = append(targets, fn)
	}
	c.mu.Unlock()

	// Invoke without the lock so listeners can subscribe or unsubscribe
	// from within their own callback.
	for _, fn := range targets {
		fn(payload)
	}
}

func (c *Channel) handleDisconnect(cause error) {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	c.log.Warn("websocket disconnected", "url", c.url, "error", cause)
	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer. A second disconnect
// before the timer fires must not stack another one.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.terminal || c.reconnect != nil {
		return
	}
	c.reconnect = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnect = nil
		stop := c.closed || c.terminal
		c.mu.Unlock()
		if stop {
			return
		}
		_ = c.Connect()
	})
}
