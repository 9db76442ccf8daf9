package notify

import "sync"

const subscriberBuffer = 16

// Hub delivers events to in-process subscribers of a scope.  A
// subscriber that does not keep up loses events rather than blocking
// the publisher.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]chan Event)}
}

// Subscribe registers interest in scope.  The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(scope string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[scope] == nil {
		h.subs[scope] = make(map[uint64]chan Event)
	}
	h.subs[scope][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[scope], id)
			if len(h.subs[scope]) == 0 {
				delete(h.subs, scope)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every current subscriber of ev.Scope and
// returns how many received it.
func (h *Hub) Publish(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.subs[ev.Scope] {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers for scope.
func (h *Hub) Subscribers(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[scope])
}
