package models

import "time"

type EventType string

const (
	EventTypeModelLoaded         EventType = "model_loaded"
	EventTypeModelLoadFailed     EventType = "model_load_failed"
	EventTypePredictionCompleted EventType = "prediction_completed"
	EventTypePredictionFailed    EventType = "prediction_failed"
	EventTypeError               EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	DataType  string        `json:"data_type,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, dataType, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		DataType:  dataType,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}

// ModelLoad describes a completed or failed first load of a configuration.
type ModelLoad struct {
	DataType     string        `json:"data_type"`
	TrainingRows int           `json:"training_rows,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Error        string        `json:"error,omitempty"`
}

// PredictionOutcome is the payload of prediction events. Raw features are
// left out; they belong to the history record, not the event stream.
type PredictionOutcome struct {
	DataType   string        `json:"data_type"`
	Prediction float64       `json:"prediction,omitempty"`
	Kind       string        `json:"kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}
