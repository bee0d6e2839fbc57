// Package gateway owns the websocket connections. It hands every
// connection an opaque id, runs the write pump, and exposes
// fire-and-forget delivery to the rest of the server. Nothing here
// knows about rooms or games.
package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quizparty/quizparty/logger"
	"github.com/quizparty/quizparty/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 8 << 10

	sendBuffer = 64
)

// Client is one live websocket connection. Outbound messages go
// through the buffered send channel; a client that cannot drain it
// loses messages rather than stalling the sender.
type Client struct {
	ID   string
	conn *websocket.Conn

	send chan protocol.Message
	once sync.Once
	done chan struct{}
}

// ReadEnvelope blocks for the next inbound message. It returns an
// error once the connection is gone.
func (c *Client) ReadEnvelope() (protocol.Envelope, error) {
	var env protocol.Envelope
	err := c.conn.ReadJSON(&env)
	return env, err
}

// Push queues a message for delivery, dropping it if the client's
// buffer is full.
func (c *Client) Push(msg protocol.Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		logger.Log.Warnw("Dropping message for slow client", "conn", c.ID, "type", msg.Type)
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Gateway tracks every connected client.
type Gateway struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func New() *Gateway {
	return &Gateway{
		clients: make(map[string]*Client),
	}
}

// Add registers a fresh connection, assigns its id and starts the
// write pump.
func (g *Gateway) Add(conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan protocol.Message, sendBuffer),
		done: make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	g.mu.Lock()
	g.clients[c.ID] = c
	g.mu.Unlock()

	go c.writePump()
	return c
}

// Remove closes a connection and forgets it. Safe to call for ids that
// are already gone.
func (g *Gateway) Remove(connID string) {
	g.mu.Lock()
	c, ok := g.clients[connID]
	if ok {
		delete(g.clients, connID)
	}
	g.mu.Unlock()
	if ok {
		c.close()
	}
}

// Send delivers a message to one connection, if it is still around.
func (g *Gateway) Send(connID string, msg protocol.Message) {
	g.mu.RLock()
	c, ok := g.clients[connID]
	g.mu.RUnlock()
	if ok {
		c.Push(msg)
	}
}

// Len reports the number of live connections.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Close shuts every connection down.
func (g *Gateway) Close() {
	g.mu.Lock()
	clients := g.clients
	g.clients = make(map[string]*Client)
	g.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
