// Package events fans model and prediction events out to in-process
// subscribers such as the log writer and the websocket bridge.
package events

import (
	"sync"

	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/pkg/models"
)

// EventBus never blocks a publisher: a subscriber whose buffer is full
// misses the event.
type EventBus struct {
	subscribers map[models.EventType][]chan *models.Event
	owned       map[<-chan *models.Event]chan *models.Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[models.EventType][]chan *models.Event),
		owned:       make(map[<-chan *models.Event]chan *models.Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel receiving the given event types, or every
// type when none are named. The channel is closed by Unsubscribe or Close.
func (b *EventBus) Subscribe(eventTypes ...models.EventType) <-chan *models.Event {
	if len(eventTypes) == 0 {
		eventTypes = allEventTypes()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}
	b.owned[ch] = ch
	return ch
}

func (b *EventBus) SubscribeAll() <-chan *models.Event {
	return b.Subscribe()
}

func (b *EventBus) Unsubscribe(sub <-chan *models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.owned[sub]
	if !ok {
		return
	}
	delete(b.owned, sub)
	for t, subs := range b.subscribers {
		kept := subs[:0]
		for _, s := range subs {
			if s != ch {
				kept = append(kept, s)
			}
		}
		b.subscribers[t] = kept
	}
	close(ch)
}

func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			logger.Warnf("Event channel full, dropping event: %s", event.Type)
		}
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, ch := range b.owned {
		close(ch)
	}
	b.owned = nil
	b.subscribers = nil
}

func allEventTypes() []models.EventType {
	return []models.EventType{
		models.EventTypeModelLoaded,
		models.EventTypeModelLoadFailed,
		models.EventTypePredictionCompleted,
		models.EventTypePredictionFailed,
		models.EventTypeError,
	}
}
