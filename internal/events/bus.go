// Package events is the per-widget channel over which the coordinator
// announces image and interaction events to renderers and recorders.
package events

import (
	"sync"
	"time"
)

// Type names an emitted event.
type Type string

const (
	BaseLoad  Type = "baseLoad"
	BaseError Type = "baseError"
	Resize    Type = "resize"
	ClickArea Type = "clickArea"
	FocusArea Type = "focusArea"
	HoverArea Type = "hoverArea"
)

// Event is one emitted event. Overlays lists the overlays whose highlighted
// set changed while handling it.
type Event struct {
	Type      Type      `json:"type" msgpack:"type"`
	PictureID string    `json:"pictureId" msgpack:"pictureId"`
	AreaID    string    `json:"areaId,omitempty" msgpack:"areaId,omitempty"`
	Blur      bool      `json:"blur,omitempty" msgpack:"blur,omitempty"`
	Overlays  []string  `json:"overlays" msgpack:"overlays"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// Changed reports whether any overlay changed.
func (e Event) Changed() bool {
	return len(e.Overlays) > 0
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not publish on the same bus.
type Handler func(Event)

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	order    []int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.handlers[id] = fn
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.handlers[id]; !ok {
			return
		}
		delete(b.handlers, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers e to every current subscriber.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
