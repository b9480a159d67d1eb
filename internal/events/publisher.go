package events

import (
	"time"

	"github.com/OldStager01/droplet-predictor/pkg/models"
)

// Publisher is nil-safe: components built without an event bus can call it
// unconditionally.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) ModelLoaded(dataType string, trainingRows int, took time.Duration) {
	event := models.NewEvent(models.EventTypeModelLoaded, dataType, "Model loaded").
		WithData(&models.ModelLoad{
			DataType:     dataType,
			TrainingRows: trainingRows,
			Duration:     took,
		})
	p.publish(event)
}

func (p *Publisher) ModelLoadFailed(dataType string, err error, took time.Duration) {
	event := models.NewEvent(models.EventTypeModelLoadFailed, dataType, "Model load failed").
		WithSeverity(models.SeverityCritical).
		WithData(&models.ModelLoad{
			DataType: dataType,
			Duration: took,
			Error:    err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) PredictionCompleted(dataType string, prediction float64, took time.Duration) {
	event := models.NewEvent(models.EventTypePredictionCompleted, dataType, "Prediction completed").
		WithData(&models.PredictionOutcome{
			DataType:   dataType,
			Prediction: prediction,
			Duration:   took,
		})
	p.publish(event)
}

func (p *Publisher) PredictionFailed(dataType, kind string, err error, took time.Duration) {
	severity := models.SeverityWarning
	if kind == "NonFiniteOutput" || kind == "ModelUnavailable" {
		severity = models.SeverityCritical
	}
	event := models.NewEvent(models.EventTypePredictionFailed, dataType, "Prediction failed: "+kind).
		WithSeverity(severity).
		WithData(&models.PredictionOutcome{
			DataType: dataType,
			Kind:     kind,
			Error:    err.Error(),
			Duration: took,
		})
	p.publish(event)
}

func (p *Publisher) Error(dataType string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, dataType, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
