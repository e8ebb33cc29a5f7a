package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"crm-backend/internal/middleware"
	"crm-backend/internal/model"
	"crm-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer for HTTP; sockets authenticate by token.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope pushed to subscribers.
type Message struct {
	Type      string      `json:"type"`
	CompanyID string      `json:"company_id"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type envelope struct {
	companyID uuid.UUID
	payload   []byte
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	CompanyID uuid.UUID
}

// Hub maintains the set of active clients and fans finance events out to the
// clients of the tenant that produced them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	mu         sync.RWMutex
}

// NewHub initializes a new WS Hub instance
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// Run starts the dispatch loop. It returns when stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	log := logger.GetLogger().Named("ws")
	for {
		select {
		case <-stop:
			close(h.quit)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debug("WebSocket client connected", zap.String("company_id", client.CompanyID.String()))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Debug("WebSocket client disconnected", zap.String("company_id", client.CompanyID.String()))
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.CompanyID != msg.companyID {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for the tenant's subscribers. It never blocks the caller:
// when the queue is full the event is dropped and logged.
func (h *Hub) Publish(companyID uuid.UUID, event string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      event,
		CompanyID: companyID.String(),
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logger.GetLogger().Error("Failed to encode websocket event", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- envelope{companyID: companyID, payload: payload}:
	default:
		logger.GetLogger().Warn("WebSocket broadcast queue full, dropping event", zap.String("event", event))
	}
}

// ClientCount returns the number of connected clients of a tenant.
func (h *Hub) ClientCount(companyID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.CompanyID == companyID {
			n++
		}
	}
	return n
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains the connection so close frames are observed.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.quit:
		}
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.GetLogger().Warn("WebSocket read error", zap.Error(err))
			}
			break
		}
	}
}

// ServeWs authenticates the token query parameter and subscribes the connection to
// its tenant's events. Client-role principals are refused.
func ServeWs(hub *Hub, c *gin.Context, auth *middleware.Authenticator) {
	log := logger.FromContext(c.Request.Context())

	tokenString := c.Query("token")
	if tokenString == "" {
		log.Info("WebSocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	principal, err := auth.ParseToken(tokenString)
	if err != nil {
		log.Info("WebSocket connection rejected: invalid token", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	if principal.Role == model.RoleClient || !principal.Permissions.Has(model.PermInvoicesRead) {
		log.Info("WebSocket connection rejected: inadequate permissions", zap.String("role", principal.Role))
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256), CompanyID: principal.CompanyID}
	select {
	case hub.register <- client:
	case <-hub.quit:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
