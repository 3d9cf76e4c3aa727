package interaction

import (
	"sync"

	"github.com/rendis/flowcanvas/internal/geometry"
)

// InputKind identifies a pointer or keyboard event delivered during a drag.
type InputKind string

const (
	InputPointerMove  InputKind = "pointer_move"
	InputPointerUp    InputKind = "pointer_up"
	InputPointerLeave InputKind = "pointer_leave"
	InputCancel       InputKind = "cancel"
)

// InputEvent is one event from the interactive surface. Point is in screen
// space. Target is the port under the pointer on release, if any.
type InputEvent struct {
	Kind     InputKind         `json:"kind"`
	Point    geometry.Point    `json:"point"`
	Viewport geometry.Viewport `json:"viewport"`
	Seq      uint64            `json:"seq"`
	Target   *PortRef          `json:"target,omitempty"`
}

// Handler receives surface events.
type Handler func(InputEvent)

// Surface is the process-wide input source a drag listens to. Subscribe
// returns the function that removes the handler.
type Surface interface {
	Subscribe(h Handler) (unsubscribe func())
}

// EventSource is an in-memory Surface. Events emitted while nobody is
// subscribed are dropped.
type EventSource struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewEventSource creates an EventSource with no subscribers.
func NewEventSource() *EventSource {
	return &EventSource{handlers: make(map[uint64]Handler)}
}

// Subscribe registers h. The returned function is idempotent.
func (s *EventSource) Subscribe(h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// Emit delivers ev to every current subscriber. Handlers may unsubscribe
// while being called.
func (s *EventSource) Emit(ev InputEvent) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of registered handlers.
func (s *EventSource) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}
