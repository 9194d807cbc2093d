package websockets

import (
	"time"

	"petintake/internal/events"
	"petintake/internal/sessions"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	MESSAGE_TYPE_SNAPSHOT = "session.snapshot"
	PING_INTERVAL         = 30 * time.Second
	PONG_TIMEOUT          = 60 * time.Second
	WRITE_TIMEOUT         = 10 * time.Second
	MAX_MESSAGE_SIZE      = 64 * 1024
	SEND_CHANNEL_SIZE     = 64
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionViews resolves the current state of an intake session.
type SessionViews interface {
	View(id string) (sessions.View, error)
}

// Client is one websocket connection bound to a single intake session.
type Client struct {
	ID         string
	SessionID  string
	Connection *websocket.Conn
	Manager    *Manager
	send       chan Message
}

type Manager struct {
	hub      *Hub
	log      logger.Logger
	eventBus *events.EventBus
	views    SessionViews
	done     chan struct{}
}

func New(eventBus *events.EventBus, views SessionViews) (*Manager, error) {
	log := logger.New("websockets")

	manager := &Manager{
		hub: &Hub{
			register:   make(chan *Client),
			unregister: make(chan *Client),
			clients:    make(map[string]*Client),
		},
		log:      log,
		eventBus: eventBus,
		views:    views,
		done:     make(chan struct{}),
	}

	log.Function("New").Info("Starting websocket hub")
	go manager.hub.run(manager)

	if err := manager.subscribeToIntakeEvents(); err != nil {
		manager.Close()
		return nil, err
	}

	return manager, nil
}

// HandleWebSocket serves one connection until it closes. The caller has already checked that
// sessionID names a live session.
func (m *Manager) HandleWebSocket(c *websocket.Conn, sessionID string) {
	log := m.log.Function("HandleWebSocket")

	client := m.newClient(sessionID)
	client.Connection = c

	if !m.register(client) {
		_ = c.Close()
		return
	}
	client.sendSnapshot()

	log.Info("Client connected", "clientID", client.ID, "sessionID", sessionID)
	defer func() {
		log.Info("Client disconnected", "clientID", client.ID, "sessionID", sessionID)
		m.unregister(client)
		if err := c.Close(); err != nil {
			log.Er("failed to close connection", err)
		}
	}()

	go client.readPump()
	client.writePump()
}

// Close stops the hub and disconnects every client.
func (m *Manager) Close() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)

	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()
	for id, client := range m.hub.clients {
		close(client.send)
		delete(m.hub.clients, id)
	}
}

func (m *Manager) newClient(sessionID string) *Client {
	return &Client{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Manager:   m,
		send:      make(chan Message, SEND_CHANNEL_SIZE),
	}
}

func (m *Manager) register(client *Client) bool {
	select {
	case m.hub.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.hub.unregister <- client:
	case <-m.done:
	}
}

func (c *Client) readPump() {
	log := c.Manager.log.Function("readPump")
	defer func() {
		c.Manager.unregister(c)
		_ = c.Connection.Close()
	}()

	c.Connection.SetReadLimit(MAX_MESSAGE_SIZE)
	if err := c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT)); err != nil {
		log.Er("failed to set read deadline", err, "clientID", c.ID)
	}
	c.Connection.SetPongHandler(func(string) error {
		if err := c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT)); err != nil {
			log.Er("failed to set read deadline in pong handler", err, "clientID", c.ID)
		}
		return nil
	})

	for {
		var message Message
		if err := c.Connection.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				log.Er("Unexpected close error", err, "clientID", c.ID)
			}
			break
		}

		c.routeMessage(message)
	}
}

func (c *Client) routeMessage(message Message) {
	log := c.Manager.log.Function("routeMessage")

	switch events.MessageType(message.Type) {
	case events.PING:
		c.enqueue(Message{
			ID:        uuid.New().String(),
			Type:      string(events.PONG),
			SessionID: c.SessionID,
			Timestamp: time.Now(),
		})
	case MESSAGE_TYPE_SNAPSHOT:
		c.sendSnapshot()
	default:
		log.Warn("Unknown message type", "clientID", c.ID, "type", message.Type)
		c.enqueue(Message{
			ID:        uuid.New().String(),
			Type:      string(events.ERROR),
			SessionID: c.SessionID,
			Data:      map[string]any{"reason": "unsupported message type"},
			Timestamp: time.Now(),
		})
	}
}

func (c *Client) sendSnapshot() {
	view, err := c.Manager.views.View(c.SessionID)
	if err != nil {
		c.enqueue(Message{
			ID:        uuid.New().String(),
			Type:      string(events.ERROR),
			SessionID: c.SessionID,
			Data:      map[string]any{"reason": err.Error()},
			Timestamp: time.Now(),
		})
		return
	}

	c.enqueue(Message{
		ID:        uuid.New().String(),
		Type:      MESSAGE_TYPE_SNAPSHOT,
		Channel:   events.INTAKE_CHANNEL.String(),
		SessionID: c.SessionID,
		Data:      map[string]any{"session": view},
		Timestamp: time.Now(),
	})
}

// enqueue never blocks. A client whose buffer is full is disconnected.
func (c *Client) enqueue(message Message) bool {
	c.Manager.hub.mutex.RLock()
	defer c.Manager.hub.mutex.RUnlock()

	if _, ok := c.Manager.hub.clients[c.ID]; !ok {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		c.Manager.log.Function("enqueue").Warn("Client too slow, disconnecting", "clientID", c.ID)
		go c.Manager.unregister(c)
		return false
	}
}

func (c *Client) writePump() {
	log := c.Manager.log.Function("writePump")

	ticker := time.NewTicker(PING_INTERVAL)
	defer func() {
		ticker.Stop()
		_ = c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline", err, "clientID", c.ID)
			}
			if !ok {
				_ = c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Connection.WriteJSON(message); err != nil {
				log.Er("WebSocket write error", err, "clientID", c.ID, "type", message.Type)
				return
			}

		case <-ticker.C:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline for ping", err, "clientID", c.ID)
			}
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) subscribeToIntakeEvents() error {
	log := m.log.Function("subscribeToIntakeEvents")

	err := m.eventBus.Subscribe(events.INTAKE_CHANNEL, func(event events.Event) error {
		if event.SessionID == "" {
			return nil
		}

		m.sendToSession(event.SessionID, messageFromEvent(event))

		if event.Type == events.SESSION_CLOSED {
			m.disconnectSession(event.SessionID)
		}
		return nil
	})
	if err != nil {
		return log.Err("Failed to subscribe to intake events", err)
	}
	return nil
}

func messageFromEvent(event events.Event) Message {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return Message{
		ID:        event.ID,
		Type:      string(event.Type),
		Channel:   event.Channel.String(),
		SessionID: event.SessionID,
		Data:      event.Data,
		Timestamp: timestamp,
	}
}
