package events

import (
	"sort"
	"sync"

	"sakaibot/internal/sakai/failure"

	"github.com/google/uuid"
)

type subscription struct {
	accepts func(Event) bool
	handler func(Event)
}

// Notifier fans events out to subscribers. Handlers run synchronously on the
// publishing goroutine, so they must not block on the engine.
type Notifier struct {
	mutex sync.Mutex
	next  int
	subs  map[int]subscription
}

func NewNotifier() *Notifier {
	return &Notifier{subs: map[int]subscription{}}
}

func (n *Notifier) add(sub subscription) func() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	id := n.next
	n.next++
	n.subs[id] = sub
	return func() {
		n.mutex.Lock()
		defer n.mutex.Unlock()
		delete(n.subs, id)
	}
}

// Subscribe registers handler for every event. The returned function
// unsubscribes.
func (n *Notifier) Subscribe(handler func(Event)) func() {
	return n.add(subscription{
		accepts: func(Event) bool { return true },
		handler: handler,
	})
}

// On registers handler for events of type T only.
func On[T Event](n *Notifier, handler func(T)) func() {
	return n.add(subscription{
		accepts: func(e Event) bool {
			_, ok := e.(T)
			return ok
		},
		handler: func(e Event) { handler(e.(T)) },
	})
}

func (n *Notifier) matching(e Event) []func(Event) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	ids := make([]int, 0, len(n.subs))
	for id, sub := range n.subs {
		if sub.accepts(e) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	handlers := make([]func(Event), len(ids))
	for i, id := range ids {
		handlers[i] = n.subs[id].handler
	}
	return handlers
}

// Publish delivers e to its subscribers in subscription order.
func (n *Notifier) Publish(e Event) {
	for _, handler := range n.matching(e) {
		handler(e)
	}
}

// Raise publishes err as an ExceptionRaised event. Without any subscriber
// for that event nothing is published and err is returned for the caller to
// propagate.
func (n *Notifier) Raise(op uuid.UUID, err error) error {
	event := ExceptionRaised{
		Op:      Op{ID: op},
		Kind:    failure.KindOf(err),
		Message: err.Error(),
		Err:     err,
	}
	handlers := n.matching(event)
	if len(handlers) == 0 {
		return err
	}
	for _, handler := range handlers {
		handler(event)
	}
	return nil
}
