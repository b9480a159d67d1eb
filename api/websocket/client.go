package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/pkg/validation"
)

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	mu       sync.RWMutex
	dataType string
}

type IncomingMessage struct {
	Type     string `json:"type"`
	DataType string `json:"data_type,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, dataType string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.settings.ClientBuffer),
		dataType: dataType,
	}
}

// wants reports whether a message for dataType should reach this client.
func (c *Client) wants(dataType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataType == "" || dataType == "" || c.dataType == dataType
}

func (c *Client) filter() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataType
}

func (c *Client) setFilter(dataType string) {
	c.mu.Lock()
	c.dataType = dataType
	c.mu.Unlock()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	settings := c.hub.settings
	c.conn.SetReadLimit(settings.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(settings.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(settings.PongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		if err := validation.ValidateDataType(msg.DataType); err != nil {
			c.enqueue(NewMessage(MessageTypeError, msg.DataType, gin.H{"error": err.Error()}).JSON())
			return
		}
		c.setFilter(msg.DataType)
		logger.WithConfiguration(msg.DataType).Debug("WebSocket client subscribed")
		c.sendConfirmation("subscribed", msg.DataType)
	case "unsubscribe":
		old := c.filter()
		c.setFilter("")
		c.sendConfirmation("unsubscribed", old)
	}
}

func (c *Client) sendConfirmation(action, dataType string) {
	c.enqueue(NewMessage(MessageTypeSubscription, dataType, SubscriptionData{Action: action}).JSON())
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		logger.Warn("Client send channel full, dropping message")
	}
}

// ServeWebSocket upgrades the request; the optional data_type query
// parameter sets the initial subscription.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  hub.settings.ReadBufferSize,
		WriteBufferSize: hub.settings.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(c *gin.Context) {
		dataType := c.Query("data_type")
		if dataType != "" {
			if err := validation.ValidateDataType(dataType); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if hub.Full() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many websocket connections"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(hub, conn, dataType)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
