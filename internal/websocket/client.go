package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"family-organizer/internal/coordinator"
	"family-organizer/internal/items"
	"family-organizer/internal/models"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// ClientMessage is a frame sent by the browser.
type ClientMessage struct {
	Type string `json:"type"`
	Tab  string `json:"tab,omitempty"`
}

// Client message types
const (
	ClientMessageSelectTab = "select_tab"
	ClientMessagePing      = "ping"
)

// ViewData is the payload of a view message: the coordinator's view with
// items narrowed to the selected tab.
type ViewData struct {
	State  coordinator.State `json:"state"`
	UserID string            `json:"user_id,omitempty"`
	Family *models.Family    `json:"family,omitempty"`
	Tab    items.Tab         `json:"tab"`
	Items  []models.Item     `json:"items"`
	Error  string            `json:"error,omitempty"`
}

// Client is one websocket connection and the coordinator that feeds it.
type Client struct {
	ID     string
	UserID string

	hub   *Hub
	conn  *websocket.Conn
	coord *coordinator.Coordinator

	// send carries control replies; views go through dirty so a slow
	// connection only ever receives the latest one.
	send      chan Message
	dirty     chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mutex    sync.Mutex
	view     coordinator.View
	haveView bool
	tab      items.Tab
}

// setView is the coordinator's change callback.
func (c *Client) setView(v coordinator.View) {
	c.mutex.Lock()
	c.view = v
	c.haveView = true
	c.mutex.Unlock()
	c.markDirty()
}

func (c *Client) selectTab(tab items.Tab) error {
	if _, err := items.ForTab(nil, tab); err != nil {
		return err
	}
	if tab == "" {
		tab = items.TabDashboard
	}
	c.mutex.Lock()
	c.tab = tab
	c.mutex.Unlock()
	c.markDirty()
	return nil
}

func (c *Client) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// render builds the view message for the current tab.
func (c *Client) render() (Message, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.haveView {
		return Message{}, false
	}
	list, err := items.ForTab(c.view.Items, c.tab)
	if err != nil {
		list = c.view.Items
	}
	return Message{
		Type: MessageTypeView,
		Data: ViewData{
			State:  c.view.State,
			UserID: c.view.UserID,
			Family: c.view.Family,
			Tab:    c.tab,
			Items:  list,
			Error:  c.view.Error,
		},
	}, true
}

func (c *Client) reply(m Message) {
	select {
	case c.send <- m:
	case <-c.done:
	default:
		log.Printf("Client %s send buffer full, dropping %s", c.ID, m.Type)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.coord != nil {
			c.coord.Close()
		}
		c.conn.Close()
	})
}

// readPump handles client frames until the connection fails.
func (c *Client) readPump() {
	defer c.hub.leave(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Failed to unmarshal client message: %v", err)
			continue
		}
		c.handleClientMessage(msg)
	}
}

// writePump writes views, replies and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-c.dirty:
			msg, ok := c.render()
			if !ok {
				continue
			}
			if err := c.write(msg); err != nil {
				return
			}

		case msg := <-c.send:
			if err := c.write(msg); err != nil {
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

func (c *Client) write(msg Message) error {
	msg.Time = time.Now().Unix()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("Failed to write to client %s: %v", c.ID, err)
		return err
	}
	return nil
}

func (c *Client) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case ClientMessageSelectTab:
		if err := c.selectTab(items.Tab(msg.Tab)); err != nil {
			c.reply(Message{Type: MessageTypeError, Data: map[string]interface{}{"error": err.Error(), "tab": msg.Tab}})
		}

	case ClientMessagePing:
		c.reply(Message{
			Type: MessageTypePong,
			Data: map[string]interface{}{"timestamp": time.Now().Unix()},
		})

	default:
		log.Printf("Unknown client message type: %s", msg.Type)
	}
}
