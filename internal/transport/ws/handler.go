package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"pulse/internal/model"
	"pulse/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// TokenValidator turns a query-string token into an approved caller
type TokenValidator interface {
	ValidateToken(token string) (*model.Caller, error)
}

// LiveReader returns the projection sent when a dashboard connects
type LiveReader interface {
	Live(ctx context.Context, caller *model.Caller, surveyID string, top int) (*model.LiveSnapshot, error)
}

// Handler handles WebSocket connections
type Handler struct {
	hub    *Hub
	auth   TokenValidator
	live   LiveReader
	logger *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, auth TokenValidator, live LiveReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		auth:   auth,
		live:   live,
		logger: logger,
	}
}

// LiveWS handles GET /v1/ws/microsurveys/{id}/live?token=
func (h *Handler) LiveWS(w http.ResponseWriter, r *http.Request) {
	surveyID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	caller, err := h.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Tenant and existence are checked before the upgrade
	snap, err := h.live.Live(r.Context(), caller, surveyID, 0)
	if err != nil {
		switch service.KindOf(err) {
		case service.KindNotFound:
			http.Error(w, "survey not found", http.StatusNotFound)
		case service.KindAuthorization:
			http.Error(w, "survey belongs to another tenant", http.StatusForbidden)
		default:
			w.Header().Set("Retry-After", "1")
			http.Error(w, "temporarily unavailable, try again", http.StatusServiceUnavailable)
		}
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "survey_id", surveyID, "error", err)
		return
	}

	conn := &Connection{
		SurveyID: surveyID,
		UserID:   caller.UserID,
		Send:     make(chan []byte, sendBuffer),
	}
	if first, err := encode(MsgLiveSnapshot, snap); err == nil {
		conn.Send <- first
	}

	h.hub.Register(conn)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func encode(msgType MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{Type: msgType, Payload: data})
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", "survey_id", conn.SurveyID, "error", err)
			}
			return
		}
		// Dashboards are receive-only
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "survey closed"))
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
