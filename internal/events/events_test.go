package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/droplet-predictor/pkg/models"
)

func receive(t *testing.T, ch <-chan *models.Event) *models.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestEventBus_SubscribeFiltersByType(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	loaded := bus.Subscribe(models.EventTypeModelLoaded)
	all := bus.SubscribeAll()

	bus.Publish(models.NewEvent(models.EventTypePredictionCompleted, "type1", "done"))
	bus.Publish(models.NewEvent(models.EventTypeModelLoaded, "type1", "loaded"))

	assert.Equal(t, models.EventTypeModelLoaded, receive(t, loaded).Type)
	assert.Equal(t, models.EventTypePredictionCompleted, receive(t, all).Type)
	assert.Equal(t, models.EventTypeModelLoaded, receive(t, all).Type)
	assert.Empty(t, loaded)
}

func TestEventBus_FullSubscriberDropsEvents(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	ch := bus.SubscribeAll()
	bus.Publish(models.NewEvent(models.EventTypeError, "", "first"))
	bus.Publish(models.NewEvent(models.EventTypeError, "", "second"))

	assert.Equal(t, "first", receive(t, ch).Message)
	assert.Empty(t, ch)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeModelLoaded, models.EventTypeModelLoadFailed)
	other := bus.Subscribe(models.EventTypeModelLoaded)
	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	bus.Publish(models.NewEvent(models.EventTypeModelLoaded, "type2", "loaded"))
	assert.Equal(t, "type2", receive(t, other).DataType)
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(4)
	ch := bus.SubscribeAll()
	bus.Close()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// publishing and subscribing after close are harmless
	bus.Publish(models.NewEvent(models.EventTypeError, "", "late"))
	late := bus.SubscribeAll()
	_, open = <-late
	assert.False(t, open)
	bus.Unsubscribe(late)
}

func TestPublisher_Events(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Close()
	ch := bus.SubscribeAll()

	p := NewPublisher(bus).WithTraceID("trace-1")
	p.ModelLoaded("type1", 120, time.Millisecond)
	p.ModelLoadFailed("type2", errors.New("missing workbook"), time.Millisecond)
	p.PredictionCompleted("type1", 42.5, time.Millisecond)
	p.PredictionFailed("type1", "DimensionMismatch", errors.New("want 8"), time.Millisecond)
	p.PredictionFailed("type3", "ModelUnavailable", errors.New("load failed"), time.Millisecond)

	e := receive(t, ch)
	assert.Equal(t, models.EventTypeModelLoaded, e.Type)
	assert.Equal(t, "trace-1", e.TraceID)
	assert.Equal(t, 120, e.Data.(*models.ModelLoad).TrainingRows)

	e = receive(t, ch)
	assert.Equal(t, models.SeverityCritical, e.Severity)
	assert.Equal(t, "missing workbook", e.Data.(*models.ModelLoad).Error)

	e = receive(t, ch)
	assert.Equal(t, 42.5, e.Data.(*models.PredictionOutcome).Prediction)

	e = receive(t, ch)
	assert.Equal(t, models.SeverityWarning, e.Severity)
	assert.Equal(t, "DimensionMismatch", e.Data.(*models.PredictionOutcome).Kind)

	e = receive(t, ch)
	assert.Equal(t, models.SeverityCritical, e.Severity)
}

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher
	require.NotPanics(t, func() {
		p.WithTraceID("x").ModelLoaded("type1", 1, 0)
		NewPublisher(nil).Error("type1", "boom", errors.New("boom"))
	})
}

func TestEventLogger_StopsOnCloseAndStop(t *testing.T) {
	bus := NewEventBus(4)
	l := NewEventLogger(bus.SubscribeAll())
	l.Start()

	bus.Publish(models.NewEvent(models.EventTypeModelLoadFailed, "type1", "failed").
		WithSeverity(models.SeverityCritical))
	bus.Close()

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event logger did not stop")
	}
}

func TestEventFields(t *testing.T) {
	e := models.NewEvent(models.EventTypeModelLoadFailed, "type3", "Model load failed").
		WithTraceID("t-1").
		WithData(&models.ModelLoad{DataType: "type3", Duration: 1500 * time.Millisecond, Error: "no such file"})
	fields := eventFields(e)
	assert.Equal(t, "type3", fields["data_type"])
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, int64(1500), fields["duration_ms"])
	assert.Equal(t, "no such file", fields["error"])
	assert.NotContains(t, fields, "training_rows")

	e = models.NewEvent(models.EventTypePredictionFailed, "type1", "Prediction failed").
		WithData(&models.PredictionOutcome{Kind: "DimensionMismatch"})
	fields = eventFields(e)
	assert.Equal(t, "DimensionMismatch", fields["kind"])
	assert.NotContains(t, fields, "trace_id")
}
