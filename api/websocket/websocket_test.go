package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/droplet-predictor/internal/events"
	"github.com/OldStager01/droplet-predictor/pkg/config"
)

func startHub(t *testing.T, cfg *config.WebSocketConfig) *Hub {
	t.Helper()
	hub := NewHub(cfg)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func receive(t *testing.T, ch <-chan []byte) *OutgoingMessage {
	t.Helper()
	select {
	case data := <-ch:
		var msg OutgoingMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_BroadcastFiltersByDataType(t *testing.T) {
	hub := startHub(t, nil)

	all := NewClient(hub, nil, "")
	type1 := NewClient(hub, nil, "type1")
	hub.Register(all)
	hub.Register(type1)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast("type2", NewMessage(MessageTypePredictionCompleted, "type2", nil).JSON())
	hub.Broadcast("type1", NewMessage(MessageTypePredictionCompleted, "type1", nil).JSON())

	assert.Equal(t, "type2", receive(t, all.send).DataType)
	assert.Equal(t, "type1", receive(t, all.send).DataType)
	assert.Equal(t, "type1", receive(t, type1.send).DataType)
	assert.Empty(t, type1.send)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t, nil)
	client := NewClient(hub, nil, "")
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, ok := <-client.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Zero(t, hub.ClientCount())
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := startHub(t, &config.WebSocketConfig{ClientBuffer: 1})
	client := NewClient(hub, nil, "")
	hub.Register(client)

	hub.Broadcast("", []byte(`{}`))
	hub.Broadcast("", []byte(`{}`))

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClient_HandleMessage(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient(hub, nil, "")

	client.handleMessage(&IncomingMessage{Type: "subscribe", DataType: "type3"})
	assert.Equal(t, "type3", client.filter())
	msg := receive(t, client.send)
	assert.Equal(t, MessageTypeSubscription, msg.Type)
	assert.Equal(t, "type3", msg.DataType)
	assert.True(t, client.wants("type3"))
	assert.False(t, client.wants("type1"))

	client.handleMessage(&IncomingMessage{Type: "subscribe", DataType: "Bad Type"})
	assert.Equal(t, "type3", client.filter())
	assert.Equal(t, MessageTypeError, receive(t, client.send).Type)

	client.handleMessage(&IncomingMessage{Type: "unsubscribe"})
	assert.Empty(t, client.filter())
	assert.True(t, client.wants("type1"))
}

func TestNewWebSocketSettings(t *testing.T) {
	s := NewWebSocketSettings(nil)
	assert.Equal(t, 1000, s.MaxConnections)
	assert.Less(t, s.PingInterval, s.PongTimeout)

	s = NewWebSocketSettings(&config.WebSocketConfig{PingInterval: time.Minute, PongTimeout: 10 * time.Second})
	assert.Equal(t, 9*time.Second, s.PingInterval)
}

func TestEventBridge_ForwardsEvents(t *testing.T) {
	hub := startHub(t, nil)
	client := NewClient(hub, nil, "type1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	bus := events.NewEventBus(10)
	bridge := NewEventBridge(hub, bus.SubscribeAll())
	bridge.Start()
	defer bridge.Stop()

	publisher := events.NewPublisher(bus)
	publisher.PredictionCompleted("type1", 12.5, time.Millisecond)
	publisher.ModelLoaded("type2", 100, time.Second)

	msg := receive(t, client.send)
	assert.Equal(t, MessageTypePredictionCompleted, msg.Type)
	assert.Equal(t, "type1", msg.DataType)
	assert.Equal(t, "info", msg.Severity)
}

func TestServeWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startHub(t, nil)

	r := gin.New()
	r.GET("/ws", ServeWebSocket(hub))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?data_type=type2"
	conn, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast("type1", NewMessage(MessageTypePredictionCompleted, "type1", nil).JSON())
	hub.Broadcast("type2", NewMessage(MessageTypePredictionCompleted, "type2", nil).JSON())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg OutgoingMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "type2", msg.DataType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?data_type=DROP%20TABLE", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

