package keyframe

import (
	"sync"
	"sync/atomic"

	"github.com/DGQW1/calhack-backend/internal/log"
)

// Subscriber is a downstream connection able to receive keyframe events.
// Both gofiber websocket connection types satisfy it.
type Subscriber interface {
	WriteJSON(v interface{}) error
}

// subscriberConn wraps a registered connection with a write mutex. Broadcasts
// originate from every stream goroutine concurrently, and the websocket
// libraries allow only one writer at a time.
type subscriberConn struct {
	sub Subscriber
	mu  sync.Mutex
}

func (c *subscriberConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub.WriteJSON(v)
}

// Broadcaster fans detected keyframe events out to subscriber connections.
// The subscriber set is shared across stream connections; mutation and the
// pre-send snapshot hold the lock, the sends themselves do not, so a slow
// subscriber never blocks new registrations.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[Subscriber]*subscriberConn

	events atomic.Uint64
	sent   atomic.Uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[Subscriber]*subscriberConn)}
}

// Register adds a subscriber connection and returns the write-serialized
// handle for it. All writes to the connection while it is registered must go
// through the returned Subscriber so they cannot interleave with broadcasts.
func (b *Broadcaster) Register(s Subscriber) Subscriber {
	c := &subscriberConn{sub: s}
	b.mu.Lock()
	b.subs[s] = c
	count := len(b.subs)
	b.mu.Unlock()
	log.Info("keyframe subscriber registered", "subscribers", count)
	return c
}

// Unregister removes a subscriber connection. Removing an unknown subscriber
// is a no-op.
func (b *Broadcaster) Unregister(s Subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	count := len(b.subs)
	b.mu.Unlock()
	log.Info("keyframe subscriber unregistered", "subscribers", count)
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Broadcast delivers the payload to every subscriber. A subscriber whose send
// fails is unregistered as a side effect; one failure never blocks or aborts
// delivery to the others and never surfaces to the caller.
func (b *Broadcaster) Broadcast(payload map[string]any) {
	b.mu.Lock()
	keys := make([]Subscriber, 0, len(b.subs))
	conns := make([]*subscriberConn, 0, len(b.subs))
	for s, c := range b.subs {
		keys = append(keys, s)
		conns = append(conns, c)
	}
	b.mu.Unlock()

	b.events.Add(1)
	for i, c := range conns {
		if err := c.WriteJSON(payload); err != nil {
			log.Debug("dropping failed subscriber", "error", err)
			b.Unregister(keys[i])
			continue
		}
		b.sent.Add(1)
	}
}

// Events returns how many broadcasts have been issued.
func (b *Broadcaster) Events() uint64 {
	return b.events.Load()
}

// Sent returns how many individual subscriber deliveries have succeeded.
func (b *Broadcaster) Sent() uint64 {
	return b.sent.Load()
}
