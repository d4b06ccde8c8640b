package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"pulse/internal/observability"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Dashboard message types
const (
	MsgLiveSnapshot  MessageType = "live_snapshot"
	MsgStatusChanged MessageType = "status_changed"
	MsgError         MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages dashboard WebSocket connections per survey
type Hub struct {
	// survey -> subscribed dashboards
	conns map[string]map[*Connection]struct{}

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	metrics *observability.Metrics
	logger  *slog.Logger
}

// Connection represents one dashboard subscription
type Connection struct {
	SurveyID string
	UserID   string
	Send     chan []byte
}

// BroadcastMessage is a message to broadcast to every dashboard of a survey. Close
// disconnects them instead, after every frame queued before it.
type BroadcastMessage struct {
	SurveyID string
	Message  *Message
	Close    bool
}

// NewHub creates a new WebSocket hub and starts its loop. metrics may be nil.
func NewHub(metrics *observability.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.SurveyID] == nil {
				h.conns[conn.SurveyID] = make(map[*Connection]struct{})
			}
			h.conns[conn.SurveyID][conn] = struct{}{}
			h.mu.Unlock()
			h.metrics.SubscriberConnected()
			h.logger.Debug("dashboard connected", "survey_id", conn.SurveyID, "user_id", conn.UserID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if subs, ok := h.conns[conn.SurveyID]; ok {
				if _, ok := subs[conn]; ok {
					h.remove(conn)
					h.logger.Debug("dashboard disconnected", "survey_id", conn.SurveyID, "user_id", conn.UserID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			if msg.Close {
				h.mu.Lock()
				for conn := range h.conns[msg.SurveyID] {
					h.remove(conn)
				}
				h.mu.Unlock()
				continue
			}
			data, err := json.Marshal(msg.Message)
			if err != nil {
				h.logger.Error("encode ws message", "type", msg.Message.Type, "error", err)
				continue
			}
			h.mu.RLock()
			for conn := range h.conns[msg.SurveyID] {
				select {
				case conn.Send <- data:
				default:
					// Drop frame for slow dashboards
				}
			}
			h.mu.RUnlock()
		}
	}
}

// remove drops conn and closes its send channel. Caller holds h.mu.
func (h *Hub) remove(conn *Connection) {
	subs := h.conns[conn.SurveyID]
	delete(subs, conn)
	if len(subs) == 0 {
		delete(h.conns, conn.SurveyID)
	}
	h.metrics.SubscriberDisconnected()
	close(conn.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.conns {
		for conn := range subs {
			h.remove(conn)
		}
	}
}

// Stop closes every connection and ends the hub loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BroadcastToSurvey sends a message to every dashboard of a survey (implements service.Broadcaster)
func (h *Hub) BroadcastToSurvey(surveyID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode ws payload", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{
		SurveyID: surveyID,
		Message:  &Message{Type: MessageType(msgType), Payload: data},
	}:
	case <-h.done:
	}
}

// DisconnectSurvey closes every dashboard of a survey (implements service.Broadcaster)
func (h *Hub) DisconnectSurvey(surveyID string) {
	select {
	case h.broadcast <- &BroadcastMessage{SurveyID: surveyID, Close: true}:
	case <-h.done:
	}
}

// Subscribers returns the number of dashboards watching a survey (implements service.Broadcaster)
func (h *Hub) Subscribers(surveyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[surveyID])
}
