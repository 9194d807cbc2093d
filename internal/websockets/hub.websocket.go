package websockets

import (
	"sync"
)

type Hub struct {
	register   chan *Client
	unregister chan *Client
	clients    map[string]*Client
	mutex      sync.RWMutex
}

func (h *Hub) run(m *Manager) {
	for {
		select {
		case client := <-h.register:
			m.registerClient(client)

		case client := <-h.unregister:
			m.unregisterClient(client)

		case <-m.done:
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	log := m.log.Function("registerClient")

	m.hub.mutex.Lock()
	m.hub.clients[client.ID] = client
	count := len(m.hub.clients)
	m.hub.mutex.Unlock()

	log.Info("Client registered", "clientID", client.ID, "sessionID", client.SessionID, "clients", count)
}

// unregisterClient removes the client and closes its send channel. Repeated calls are no-ops.
func (m *Manager) unregisterClient(client *Client) {
	log := m.log.Function("unregisterClient")

	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()

	if _, ok := m.hub.clients[client.ID]; !ok {
		return
	}
	delete(m.hub.clients, client.ID)
	close(client.send)

	log.Info("Client unregistered", "clientID", client.ID, "sessionID", client.SessionID)
}

// sendToSession delivers message to every connection watching sessionID.
func (m *Manager) sendToSession(sessionID string, message Message) int {
	log := m.log.Function("sendToSession")

	m.hub.mutex.RLock()
	defer m.hub.mutex.RUnlock()

	sent := 0
	for _, client := range m.hub.clients {
		if client.SessionID != sessionID {
			continue
		}

		select {
		case client.send <- message:
			sent++
		default:
			log.Warn("Client too slow, disconnecting", "clientID", client.ID, "sessionID", sessionID)
			go m.unregister(client)
		}
	}

	log.Debug("Session message delivered", "sessionID", sessionID, "type", message.Type, "sentTo", sent)
	return sent
}

// disconnectSession closes every connection of a torn down session.
func (m *Manager) disconnectSession(sessionID string) {
	m.hub.mutex.RLock()
	var watching []*Client
	for _, client := range m.hub.clients {
		if client.SessionID == sessionID {
			watching = append(watching, client)
		}
	}
	m.hub.mutex.RUnlock()

	for _, client := range watching {
		go m.unregister(client)
	}
}

func (m *Manager) ClientCount() int {
	m.hub.mutex.RLock()
	defer m.hub.mutex.RUnlock()
	return len(m.hub.clients)
}
