// Package notify provides a process-wide broadcast channel that lets
// independent panels react to each other's changes without holding references.
package notify

import (
	"log/slog"
	"sync"
)

// Event names a broadcast signal. Events carry no payload; handlers re-fetch
// whatever state they need.
type Event string

const (
	// ConversationsChanged fires after a conversation was created, renamed or
	// bound to a new document.
	ConversationsChanged Event = "conversations-changed"
	// DocumentChanged fires after a new document was bound to the session.
	DocumentChanged Event = "document-changed"
)

// Handler reacts to an event.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Notifier fans events out to subscribed handlers.
// All methods are safe for concurrent use.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Event][]subscription
	logger *slog.Logger
}

// New creates an empty notifier.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:   make(map[Event][]subscription),
		logger: logger,
	}
}

// Subscribe registers handler for event and returns the matching unsubscribe
// function. Calling unsubscribe more than once is harmless.
func (n *Notifier) Subscribe(event Event, handler Handler) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[event] = append(n.subs[event], subscription{id: id, handler: handler})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(event, id) })
	}
}

func (n *Notifier) remove(event Event, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.subs[event]
	for i, s := range subs {
		if s.id == id {
			n.subs[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(n.subs[event]) == 0 {
		delete(n.subs, event)
	}
}

// Notify raises event. Handlers run synchronously on the caller's goroutine
// in registration order; a panicking handler is logged and skipped.
func (n *Notifier) Notify(event Event) {
	n.mu.RLock()
	handlers := make([]Handler, 0, len(n.subs[event]))
	for _, s := range n.subs[event] {
		handlers = append(handlers, s.handler)
	}
	n.mu.RUnlock()

	n.logger.Debug("notify", "event", event, "handlers", len(handlers))
	for _, h := range handlers {
		n.dispatch(event, h)
	}
}

func (n *Notifier) dispatch(event Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("notify handler panicked", "event", event, "panic", r)
		}
	}()
	h(event)
}

// Subscribers returns the number of handlers registered for event.
func (n *Notifier) Subscribers(event Event) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[event])
}
