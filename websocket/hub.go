package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"deadstock/models"
)

// Message is the envelope every frame pushed to a browser uses.
type Message struct {
	Type      string      `json:"type"` // audit_log, notification, welcome
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// outbound is a frame plus its audience. An empty UserID with no Roles reaches nobody.
type outbound struct {
	UserID  string
	Roles   []string
	Payload []byte
}

type Hub struct {
	clients    map[string]map[*Client]bool // userID -> connections
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

var hub = NewHub()

func GetHub() *Hub {
	return hub
}

func (h *Hub) Run() {
	log.Println("WebSocket hub started")
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			if _, ok := h.clients[client.userID]; !ok {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mutex.Unlock()

		case client := <-h.unregister:
			h.mutex.Lock()
			h.remove(client)
			h.mutex.Unlock()

		case msg := <-h.broadcast:
			h.mutex.Lock()
			h.deliver(msg)
			h.mutex.Unlock()
		}
	}
}

// remove must be called with the mutex held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

// deliver must be called with the mutex held. Slow clients are dropped.
func (h *Hub) deliver(msg outbound) {
	for userID, clients := range h.clients {
		for client := range clients {
			if !msg.reaches(userID, client.userRole) {
				continue
			}
			select {
			case client.send <- msg.Payload:
			default:
				h.remove(client)
			}
		}
	}
}

func (m outbound) reaches(userID, role string) bool {
	if m.UserID != "" {
		return m.UserID == userID
	}
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ConnectedUsers returns the number of distinct users with an open socket.
func (h *Hub) ConnectedUsers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("websocket: broadcast queue full, dropping %d bytes", len(msg.Payload))
	}
}

func encode(kind string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: kind, Data: data, Timestamp: time.Now().UTC()})
}

// BroadcastAuditLog streams a freshly written audit log to admins and auditors.
func BroadcastAuditLog(entry *models.AuditLog) {
	payload, err := encode("audit_log", entry)
	if err != nil {
		log.Printf("Failed to marshal audit for WS: %v", err)
		return
	}
	hub.enqueue(outbound{Roles: []string{models.RoleAdmin, models.RoleAuditor}, Payload: payload})
}

// SendNotification pushes a notification to its recipient's open sockets.
func SendNotification(n *models.Notification) {
	payload, err := encode("notification", n)
	if err != nil {
		log.Printf("Failed to marshal notification for WS: %v", err)
		return
	}
	hub.enqueue(outbound{UserID: n.UserID.Hex(), Payload: payload})
}
