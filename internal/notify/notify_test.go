package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseScope(t *testing.T) {
	cases := []struct {
		in       string
		kind, id string
		ok       bool
	}{
		{"room-abc", KindRoom, "abc", true},
		{"signature-request-9f", KindSignatureRequest, "9f", true},
		{"payment-1-2", KindPayment, "1-2", true},
		{"user-u1", KindUser, "u1", true},
		{"room-", "", "", false},
		{"bogus", "", "", false},
	}
	for _, tc := range cases {
		kind, id, ok := ParseScope(tc.in)
		if kind != tc.kind || id != tc.id || ok != tc.ok {
			t.Errorf("ParseScope(%q) = %q, %q, %v", tc.in, kind, id, ok)
		}
	}
}

func TestHubDeliversToScopeOnly(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe("room-a")
	defer cancelA()
	b, cancelB := h.Subscribe("room-b")
	defer cancelB()

	if n := h.Publish(Event{Scope: "room-a", Name: RoomOpened}); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	select {
	case ev := <-a:
		if ev.Name != RoomOpened {
			t.Errorf("got %q", ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("room-a subscriber got nothing")
	}
	select {
	case ev := <-b:
		t.Fatalf("room-b subscriber got %+v", ev)
	default:
	}
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("room-a")
	defer cancel()
	for i := 0; i < subscriberBuffer; i++ {
		h.Publish(Event{Scope: "room-a"})
	}
	if n := h.Publish(Event{Scope: "room-a"}); n != 0 {
		t.Fatalf("delivered = %d to full subscriber, want 0", n)
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("room-a")
	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
	if h.Subscribers("room-a") != 0 {
		t.Fatal("subscriber not removed")
	}
}

type failingTransport struct{ calls int }

func (f *failingTransport) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("broker down")
}

type okTransport struct{ got []Event }

func (o *okTransport) Publish(_ context.Context, ev Event) error {
	o.got = append(o.got, ev)
	return nil
}

func TestBroadcasterFallsBackToLocalDelivery(t *testing.T) {
	tr := &failingTransport{}
	var local []Event
	b := NewBroadcaster(tr, func(_ context.Context, ev Event) { local = append(local, ev) })

	b.Notify(context.Background(), RoomScope("r1"), RoomSettled, map[string]any{"room_id": "r1"})

	if tr.calls != 1 {
		t.Fatalf("transport calls = %d", tr.calls)
	}
	if len(local) != 1 || local[0].Name != RoomSettled || local[0].Scope != "room-r1" {
		t.Fatalf("local delivery = %+v", local)
	}
}

func TestBroadcasterUsesTransportWhenHealthy(t *testing.T) {
	tr := &okTransport{}
	localCalls := 0
	b := NewBroadcaster(tr, func(context.Context, Event) { localCalls++ })

	b.Notify(context.Background(), UserScope("u1"), RoomCreated, nil)

	if len(tr.got) != 1 || localCalls != 0 {
		t.Fatalf("transport=%d local=%d, want 1 and 0", len(tr.got), localCalls)
	}
}

func TestBeforeSinksRunAheadOfPublish(t *testing.T) {
	var order []string
	tr := transportFunc(func(context.Context, Event) error {
		order = append(order, "publish")
		return nil
	})
	b := NewBroadcaster(tr, func(context.Context, Event) { order = append(order, "sink") }).
		Before(func(context.Context, Event) { order = append(order, "before") })

	b.Notify(context.Background(), RoomScope("r1"), RoomUpdated, nil)
	if strings.Join(order, ",") != "before,publish" {
		t.Fatalf("notify order = %v", order)
	}

	order = nil
	b.Deliver(context.Background(), Event{Scope: RoomScope("r1"), Name: RoomUpdated})
	if strings.Join(order, ",") != "before,sink" {
		t.Fatalf("deliver order = %v", order)
	}
}

func TestBeforeSinksRunOnceWithoutTransport(t *testing.T) {
	before, after := 0, 0
	b := NewBroadcaster(nil, func(context.Context, Event) { after++ }).
		Before(func(context.Context, Event) { before++ })

	b.Notify(context.Background(), RoomScope("r1"), RoomUpdated, nil)
	if before != 1 || after != 1 {
		t.Fatalf("before=%d after=%d, want 1 and 1", before, after)
	}
}

func TestBeforeSinksSeeLiveContextAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sinkErr error
	b := NewBroadcaster(nil).Before(func(ctx context.Context, _ Event) { sinkErr = ctx.Err() })

	b.Notify(ctx, RoomScope("r1"), RoomUpdated, nil)
	if sinkErr != nil {
		t.Fatalf("sink ctx err = %v", sinkErr)
	}
}

func TestDeliverSurvivesPanickingSink(t *testing.T) {
	reached := false
	b := NewBroadcaster(nil,
		func(context.Context, Event) { panic("boom") },
		func(context.Context, Event) { reached = true },
	)
	b.Notify(context.Background(), RoomScope("r1"), RoomUpdated, nil)
	if !reached {
		t.Fatal("second sink not called after first panicked")
	}
}

type transportFunc func(ctx context.Context, ev Event) error

func (f transportFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
