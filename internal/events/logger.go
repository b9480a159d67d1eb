package events

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/pkg/models"
)

// EventLogger writes every event it receives as a structured log line.
type EventLogger struct {
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewEventLogger(eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

// Stop cancels the logger and waits for the run loop to exit.
func (l *EventLogger) Stop() {
	l.cancel()
	<-l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(eventFields(event))

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Debug(event.Message)
	}
}

func eventFields(event *models.Event) logrus.Fields {
	fields := logrus.Fields{
		"event_type": event.Type,
		"data_type":  event.DataType,
		"severity":   event.Severity,
	}
	if event.TraceID != "" {
		fields["trace_id"] = event.TraceID
	}

	switch d := event.Data.(type) {
	case *models.ModelLoad:
		fields["duration_ms"] = d.Duration.Milliseconds()
		if d.TrainingRows > 0 {
			fields["training_rows"] = d.TrainingRows
		}
		if d.Error != "" {
			fields["error"] = d.Error
		}
	case *models.PredictionOutcome:
		fields["duration_ms"] = d.Duration.Milliseconds()
		if d.Kind != "" {
			fields["kind"] = d.Kind
		}
		if d.Error != "" {
			fields["error"] = d.Error
		}
	}
	return fields
}
