package websocket

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nivtax/balanca-backend/internal/permission"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dev simplicity
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// roomKey identifies one case chat room within a tenant.
type roomKey struct {
	Tenant string
	CaseID string
}

// Client represents a single connected WebSocket client subscribed to one
// case room.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	room roomKey
}

// Hub maintains the set of active clients per case room and fans newly
// inserted chat messages out to the room's subscribers.
type Hub struct {
	rooms      map[roomKey]map[*Client]bool
	publish    chan publication
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex // lock just in case if doing manual iter
}

type publication struct {
	room    roomKey
	payload []byte
}

// NewHub initializes a new WS Hub instance
func NewHub() *Hub {
	return &Hub{
		publish:    make(chan publication),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[roomKey]map[*Client]bool),
	}
}

// Publish fans payload out to every client subscribed to the given case room.
// Safe to call from any goroutine; never blocks the caller on slow readers.
func (h *Hub) Publish(tenant, caseID string, payload []byte) {
	h.publish <- publication{room: roomKey{Tenant: tenant, CaseID: caseID}, payload: payload}
}

// Run starts the core dispatch loop for WebSocket events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"tenant": client.room.Tenant,
				"case":   client.room.CaseID,
			}).Info("chat subscriber connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.room]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.rooms, client.room)
					}
					logrus.WithFields(logrus.Fields{
						"tenant": client.room.Tenant,
						"case":   client.room.CaseID,
					}).Info("chat subscriber disconnected")
				}
			}
			h.mu.Unlock()
		case pub := <-h.publish:
			h.mu.Lock()
			for client := range h.rooms[pub.room] {
				select {
				case client.Send <- pub.payload:
				default:
					close(client.Send)
					delete(h.rooms[pub.room], client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		// Fast track writing queued messages
		n := len(c.Send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		_ = c.Conn.Close()
	}()
	for {
		// Clients only listen on this channel; reads just detect disconnects
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("websocket read error")
			}
			break
		}
	}
}

// ChatAccessChecker resolves whether the authenticated user may read the
// case's chat. The hub checks it once at subscribe time; the chat service
// re-checks on every fetch.
type ChatAccessChecker func(tenant, caseID, userID string, role permission.Role) bool

// ServeWs authenticates the peer via the token query param, verifies chat
// access for the requested case, and subscribes the connection to its room.
func ServeWs(hub *Hub, c *gin.Context, secret []byte, canAccess ChatAccessChecker) {
	tokenString := c.Query("token")
	if tokenString == "" {
		logrus.Warn("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})

	if err != nil || !token.Valid {
		logrus.WithError(err).Warn("websocket connection rejected: invalid token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		logrus.Warn("websocket connection rejected: invalid claims")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	rawRole, _ := claims["role"].(string)
	role, ok := permission.ParseRole(rawRole)
	if !ok || !permission.Has(role, permission.ActionViewChat) {
		logrus.Warn("websocket connection rejected: inadequate permissions")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	tenant, _ := claims["tenant"].(string)
	userID, _ := claims["sub"].(string)
	caseID := c.Query("case_id")
	if caseID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if canAccess != nil && !canAccess(tenant, caseID, userID, role) {
		logrus.WithFields(logrus.Fields{"case": caseID, "user": userID}).
			Warn("websocket connection rejected: no chat access for case")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("websocket upgrade failed")
		return
	}
	client := &Client{
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		room: roomKey{Tenant: tenant, CaseID: caseID},
	}
	client.Hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}
