package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/quote-graph/internal/model"
	"github.com/rickgao/quote-graph/internal/sink"
)

// ErrClosed is returned by engine calls after the hub is closed.
var ErrClosed = errors.New("viewer: hub closed")

// MessageType identifies a viewer message.
type MessageType string

const (
	MsgLoad      MessageType = "load"
	MsgConfigure MessageType = "configure"
	MsgUpdate    MessageType = "update"
	MsgDelete    MessageType = "delete"
)

// Message is the JSON frame sent to viewers.
type Message struct {
	Type       MessageType       `json:"type"`
	TableID    uuid.UUID         `json:"table_id"`
	Schema     map[string]string `json:"schema,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Data       *model.Dataset    `json:"data,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// DefaultSendBuffer is the per-client queue length.
	DefaultSendBuffer = 256
)

// Hub fans engine calls out to connected viewers.
type Hub struct {
	logger     *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	tables   map[uuid.UUID]*Table
	attached *Table
	// replay state for the attached table
	load      []byte
	configure []byte
	last      []byte

	dropped atomic.Int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSendBuffer sets how many messages may queue per client before drops.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// NewHub creates a hub with no clients and no attached table.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		logger:     slog.Default(),
		sendBuffer: DefaultSendBuffer,
		clients:    make(map[*client]struct{}),
		tables:     make(map[uuid.UUID]*Table),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ready reports ErrClosed once the hub is closed.
func (h *Hub) Ready(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

// CreateTable returns a table whose updates are streamed once attached.
func (h *Hub) CreateTable(ctx context.Context, schema model.Schema) (sink.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	t := &Table{id: uuid.New(), hub: h, schema: schema}
	h.tables[t.id] = t
	return t, nil
}

// Attach makes t the table shown to viewers and sends its schema.
func (h *Hub) Attach(ctx context.Context, st sink.Table) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	t, ok := h.tables[st.ID()]
	if !ok {
		return fmt.Errorf("attach: table %s not created by this hub", st.ID())
	}
	msg, err := json.Marshal(Message{Type: MsgLoad, TableID: t.id, Schema: t.schema.Map()})
	if err != nil {
		return fmt.Errorf("encode load: %w", err)
	}

	h.attached = t
	h.load, h.configure, h.last = msg, nil, nil
	h.broadcastLocked(msg)
	return nil
}

// ConfigureView sends the view attributes for the attached table.
func (h *Hub) ConfigureView(ctx context.Context, cfg sink.ViewConfig) error {
	attrs, err := cfg.Attributes()
	if err != nil {
		return fmt.Errorf("configure view: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.attached == nil {
		return errors.New("configure view: no table attached")
	}
	msg, err := json.Marshal(Message{Type: MsgConfigure, TableID: h.attached.id, Attributes: attrs})
	if err != nil {
		return fmt.Errorf("encode configure: %w", err)
	}
	h.configure = msg
	h.broadcastLocked(msg)
	return nil
}

// ServeHTTP upgrades the request and registers a viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	h.logger.Debug("viewer connected", "remote", r.RemoteAddr)
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow viewers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every viewer. Later engine calls return ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	clear(h.tables)
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.attached = nil
	h.load, h.configure, h.last = nil, nil, nil
}

// register adds c and queues the replay for the current table.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, msg := range [][]byte{h.load, h.configure, h.last} {
		if msg != nil {
			c.enqueue(msg)
		}
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcastLocked queues msg on every client. Must be called with mu held.
func (h *Hub) broadcastLocked(msg []byte) {
	for c := range h.clients {
		c.enqueue(msg)
	}
}

func (h *Hub) publish(t *Table, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if msg.Type == MsgDelete {
		delete(h.tables, t.id)
	}
	if h.attached != t {
		return nil
	}
	switch msg.Type {
	case MsgUpdate:
		h.last = data
	case MsgDelete:
		h.attached = nil
		h.load, h.configure, h.last = nil, nil, nil
	}
	h.broadcastLocked(data)
	return nil
}

// Table streams its updates to the hub's viewers while attached.
type Table struct {
	id     uuid.UUID
	hub    *Hub
	schema model.Schema

	mu     sync.Mutex
	closed bool
}

// ID returns the table handle ID.
func (t *Table) ID() uuid.UUID {
	return t.id
}

// Update sends ds as the table's full contents.
func (t *Table) Update(ctx context.Context, ds model.Dataset) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	return t.hub.publish(t, Message{Type: MsgUpdate, TableID: t.id, Data: &ds})
}

// Close tells viewers the table is gone.
func (t *Table) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.hub.publish(t, Message{Type: MsgDelete, TableID: t.id})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// client is a single viewer connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// enqueue drops msg if the client is not keeping up. Caller holds hub.mu.
func (c *client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.hub.dropped.Add(1)
	}
}

// readPump discards viewer input and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("viewer read error", "error", err)
			}
			return
		}
	}
}

// writePump sends queued messages and heartbeats.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
