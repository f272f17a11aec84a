package store

import "github.com/mehmetkoksal-w/driftwatch/internal/drift"

// EventType names a structural store event.
type EventType string

const (
	EventCreated    EventType = "entity:created"
	EventUpdated    EventType = "entity:updated"
	EventDeleted    EventType = "entity:deleted"
	EventTransition EventType = "entity:transition"
	EventFileLoaded EventType = "file:loaded"
	EventFileSaved  EventType = "file:saved"
	EventError      EventType = "error"
)

// Event describes one structural store event. Only the fields relevant to
// the event type are set.
type Event struct {
	Type EventType
	ID   string
	From drift.Status
	To   drift.Status
	Path string
	Err  error
}

// Observer receives store events. The store's correctness never depends on
// any observer existing; observers must not call back into the store.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(Event)

// Notify calls f(ev).
func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Subscribe registers an observer for all subsequent events.
func (s *Store[T]) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// observersLocked snapshots the observer list; callers emit after unlocking.
func (s *Store[T]) observersLocked() []Observer {
	return append([]Observer(nil), s.observers...)
}

// emitLocked notifies observers while the store lock is held. Used only for
// load/save events, where observers are expected to be passive reporters.
func (s *Store[T]) emitLocked(ev Event) {
	for _, o := range s.observers {
		o.Notify(ev)
	}
}

func notify(obs []Observer, ev Event) {
	for _, o := range obs {
		o.Notify(ev)
	}
}
