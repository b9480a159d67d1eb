package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MessageTypeModelLoaded         MessageType = "model_loaded"
	MessageTypeModelLoadFailed     MessageType = "model_load_failed"
	MessageTypePredictionCompleted MessageType = "prediction"
	MessageTypePredictionFailed    MessageType = "prediction_failed"
	MessageTypeSubscription        MessageType = "subscription_update"
	MessageTypeError               MessageType = "error"
)

type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	DataType  string      `json:"data_type,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewMessage(msgType MessageType, dataType string, data interface{}) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      msgType,
		DataType:  dataType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (m *OutgoingMessage) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

type SubscriptionData struct {
	Action string `json:"action"`
}
