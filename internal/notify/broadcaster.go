package notify

import (
	"context"
	"log"
	"time"
)

// Notifier is what state-changing operations call after they commit.
// Implementations never return an error to the caller.
type Notifier interface {
	Notify(ctx context.Context, scope, name string, payload map[string]any)
}

// Transport carries events to every service instance (the broker).
type Transport interface {
	Publish(ctx context.Context, ev Event) error
}

// Sink consumes an event locally: websocket hub, cache invalidation,
// audit log.
type Sink func(ctx context.Context, ev Event)

// HubSink adapts a Hub to a Sink.
func HubSink(h *Hub) Sink {
	return func(_ context.Context, ev Event) { h.Publish(ev) }
}

// Broadcaster publishes through the transport when one is configured;
// the transport's consumer then calls Deliver on every instance.  Without
// a transport, or when publishing fails, events are delivered locally so
// observers on this instance still see them.
//
// Sinks registered with Before run synchronously inside Notify ahead of
// the publish, so their effect is in place before the caller responds.
// Deliver runs them again for events arriving from the broker.
type Broadcaster struct {
	transport Transport
	before    []Sink
	sinks     []Sink
	now       func() time.Time
}

func NewBroadcaster(transport Transport, sinks ...Sink) *Broadcaster {
	return &Broadcaster{transport: transport, sinks: sinks, now: time.Now}
}

// Before adds sinks that run inside Notify before the event is
// published.
func (b *Broadcaster) Before(sinks ...Sink) *Broadcaster {
	b.before = append(b.before, sinks...)
	return b
}

func (b *Broadcaster) Notify(ctx context.Context, scope, name string, payload map[string]any) {
	ev := Event{Scope: scope, Name: name, Payload: payload, At: b.now().UTC()}
	// the request context may be cancelled right after the response
	ctx = context.WithoutCancel(ctx)
	b.run(ctx, ev, b.before)
	if b.transport != nil {
		pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := b.transport.Publish(pubCtx, ev)
		cancel()
		if err == nil {
			return
		}
		log.Printf("notify: publish %s on %s failed, delivering locally: %v", name, scope, err)
	}
	b.run(ctx, ev, b.sinks)
}

// Deliver runs ev through every sink.  A panicking sink is logged and
// does not stop the others.
func (b *Broadcaster) Deliver(ctx context.Context, ev Event) {
	b.run(ctx, ev, b.before)
	b.run(ctx, ev, b.sinks)
}

func (b *Broadcaster) run(ctx context.Context, ev Event, sinks []Sink) {
	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("notify: sink panic for %s on %s: %v", ev.Name, ev.Scope, r)
				}
			}()
			s(ctx, ev)
		}()
	}
}
