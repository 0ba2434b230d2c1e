package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"family-organizer/internal/coordinator"
	"family-organizer/internal/items"
	"family-organizer/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message types pushed to clients
const (
	MessageTypeView  = "view"
	MessageTypePong  = "pong"
	MessageTypeError = "error"
)

// Message is the envelope of every server-to-client frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time int64       `json:"time"`
}

// Sources are the subscriptions a client's coordinator is built from.
type Sources struct {
	Profiles coordinator.ProfileSource
	Families coordinator.FamilySource
	Items    coordinator.ItemSource
}

// Hub tracks connected clients by user.
type Hub struct {
	sources Sources
	metrics *metrics.Metrics

	// Registered clients by user ID
	clients map[string]map[*Client]bool
	mutex   sync.RWMutex

	register   chan *Client
	unregister chan *Client

	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}
}

func NewHub(sources Sources, m *metrics.Metrics) *Hub {
	ctx, stop := context.WithCancel(context.Background())
	return &Hub{
		sources:    sources,
		metrics:    m,
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		stop:       stop,
		done:       make(chan struct{}),
	}
}

// Run processes registrations until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-h.ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Shutdown disconnects every client and waits for Run to return.
func (h *Hub) Shutdown() {
	h.stop()
	<-h.done
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true
	h.metrics.ClientConnected()

	log.Printf("Client %s registered for user %s. Total clients for user: %d",
		client.ID, client.UserID, len(h.clients[client.UserID]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients, ok := h.clients[client.UserID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.UserID)
	}
	client.close()
	h.metrics.ClientDisconnected()

	log.Printf("Client %s unregistered for user %s. Remaining clients for user: %d",
		client.ID, client.UserID, len(clients))
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for userID, clients := range h.clients {
		for client := range clients {
			client.close()
			h.metrics.ClientDisconnected()
		}
		delete(h.clients, userID)
	}
}

// ClientCount returns the number of connected clients for userID.
func (h *Hub) ClientCount(userID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[userID])
}

// leave hands the client back to Run, unless the hub is already gone.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and starts following userID's view.
func (h *Hub) ServeWS(c *gin.Context, userID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(h, conn, userID)
	client.coord = coordinator.New(h.ctx, h.sources.Profiles, h.sources.Families, h.sources.Items, h.metrics, client.setView)

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.close()
		return
	}

	go client.writePump()
	go client.readPump()
	client.coord.SetUser(userID)
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:     "client_" + uuid.NewString(),
		UserID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan Message, 16),
		dirty:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		tab:    items.TabDashboard,
	}
}
