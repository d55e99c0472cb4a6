package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// HandshakeParams is everything a connection supplies up front, before it is
// attached to a room.
type HandshakeParams struct {
	Pin            string
	Name           string
	Password       string
	AuthToken      string
	ReconnectToken string
	HostToken      string
}

// Gateway accepts websocket connections, runs the join handshake and shuttles
// messages between sockets and room actors. It is the only component that
// touches transport handles; rooms know connections by opaque id alone.
type Gateway struct {
	mu       sync.RWMutex
	clients  map[string]*wsClient
	registry *Registry
	verifier IdentityVerifier
}

type wsClient struct {
	id      string
	socket  *websocket.Conn
	send    chan []byte
	room    *Room
	limiter *rate.Limiter

	// mu orders queueing against closeSend so a broadcast racing a drop can
	// never hit a closed channel.
	mu     sync.Mutex
	closed bool
}

// trySend queues one frame. Returns false only when the buffer is full; a
// frame for an already-closed client is discarded as delivered.
func (c *wsClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) closeSend() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func NewGateway(verifier IdentityVerifier) *Gateway {
	return &Gateway{
		clients:  make(map[string]*wsClient),
		verifier: verifier,
	}
}

// SetRegistry wires the registry after construction; the registry needs the
// gateway as its outbound sender first.
func (g *Gateway) SetRegistry(registry *Registry) {
	g.registry = registry
}

// Send implements OutboundSender. Delivery is fire-and-forget: a viewer with
// a full buffer is dropped rather than allowed to stall the room.
func (g *Gateway) Send(connID string, data []byte) {
	g.mu.RLock()
	client, ok := g.clients[connID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	if !client.trySend(data) {
		log.Printf("Connection %s send buffer full, dropping connection", connID)
		go g.drop(client)
	}
}

// HandleConnection runs the handshake and, on success, pumps the connection
// until it drops. Blocks for the lifetime of the socket.
func (g *Gateway) HandleConnection(conn *websocket.Conn, hs HandshakeParams) {
	accountID := uint(0)
	if hs.AuthToken != "" {
		id, err := g.verifier.Verify(hs.AuthToken)
		if err != nil {
			g.reject(conn, ErrBadAuthToken)
			return
		}
		accountID = id
	}

	room, ok := g.registry.Get(hs.Pin)
	if !ok {
		g.reject(conn, ErrRoomNotFound)
		return
	}

	client := &wsClient{
		id:      uuid.NewString(),
		socket:  conn,
		send:    make(chan []byte, 256),
		room:    room,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	g.mu.Lock()
	g.clients[client.id] = client
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	result, hsErr := room.Join(ctx, JoinParams{
		ConnID:         client.id,
		Name:           hs.Name,
		Password:       hs.Password,
		AccountID:      accountID,
		ReconnectToken: hs.ReconnectToken,
		HostToken:      hs.HostToken,
	})
	cancel()
	if hsErr != nil {
		g.mu.Lock()
		delete(g.clients, client.id)
		g.mu.Unlock()
		g.reject(conn, hsErr)
		return
	}

	log.Printf("Room %s: connection %s attached as %s (host=%v)", hs.Pin, client.id, result.ParticipantID, result.Host)

	go client.writePump()
	client.readPump(g)
}

func (g *Gateway) reject(conn *websocket.Conn, hsErr *HandshakeError) {
	if data := errorMessage(hsErr.Code, hsErr.Message); data != nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}
	conn.Close()
}

// drop severs a connection; the room hears about it through the normal
// disconnect path.
func (g *Gateway) drop(client *wsClient) {
	g.mu.Lock()
	_, present := g.clients[client.id]
	delete(g.clients, client.id)
	g.mu.Unlock()

	client.closeSend()
	client.socket.Close()
	if present {
		client.room.Disconnected(client.id)
	}
}

func (c *wsClient) readPump(g *Gateway) {
	defer g.drop(c)

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			continue // command flood, shed silently
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		c.room.HandleClientMessage(c.id, msg)
	}
}

func (c *wsClient) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}
