package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types pushed to attendance dashboards.
const (
	EventAttendanceMarked      = "attendance_marked"
	EventBatchAttendanceMarked = "batch_attendance_marked"
	EventAttendanceCorrected   = "attendance_corrected"
	EventAttendanceDeleted     = "attendance_deleted"
)

// Event represents a message sent to websocket clients subscribed to a
// class topic.
type Event struct {
	Type      string      `json:"type"`
	ClassID   string      `json:"class_id"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	classID string
	conn    *websocket.Conn
	send    chan []byte
}

type envelope struct {
	classID string
	data    []byte
}

// Hub fans attendance events out to websocket clients. Clients
// subscribe to a single class; an empty class ID receives everything.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewHub constructs a hub. Call Run in a goroutine before serving.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 256),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.classID != "" && c.classID != msg.classID {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for delivery. Slow delivery never blocks the
// caller; the event is dropped when the queue is full.
func (h *Hub) Publish(eventType, classID string, payload interface{}) {
	event := Event{
		Type:      eventType,
		ClassID:   classID,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal realtime event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{classID: classID, data: encoded}:
	default:
		h.logger.Warn("realtime queue full, dropping event",
			zap.String("type", eventType),
			zap.String("class_id", classID))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and registers a client. The class_id
// query parameter scopes the subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		classID: r.URL.Query().Get("class_id"),
		conn:    conn,
		send:    make(chan []byte, 64),
	}
	h.register <- c

	go func() {
		for msg := range c.send {
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister <- c
}
