package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := NewBus(nil)
	var got []Event
	b.Subscribe(TypeLeakAlert, func(e Event) { got = append(got, e) })

	b.Publish(New(TypeLeakAlert, map[string]any{"severity": "minor"}))
	b.Publish(New(TypeDeviceStatus, map[string]any{}))

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Payload["severity"] != "minor" {
		t.Errorf("payload not delivered: %+v", got[0])
	}
	if got[0].Timestamp.IsZero() {
		t.Errorf("timestamp not stamped on publish")
	}
}

func TestPublishUnknownTypeDropped(t *testing.T) {
	b := NewBus(nil)
	var calls int
	b.Subscribe(Type("plasma.storm"), func(Event) { calls++ })

	b.Publish(New(Type("plasma.storm"), nil))

	if calls != 0 {
		t.Fatalf("handler invoked for unknown event type")
	}
	stats := b.Stats()
	if stats.DroppedUnknown != 1 {
		t.Errorf("expected 1 unknown drop, got %d", stats.DroppedUnknown)
	}
	if stats.Published != 0 {
		t.Errorf("unknown event counted as published")
	}
	select {
	case <-b.queue:
		t.Errorf("unknown event reached the delivery queue")
	default:
	}
}

func TestDuplicateSubscribeDeliversTwice(t *testing.T) {
	b := NewBus(nil)
	var calls int
	fn := func(Event) { calls++ }
	b.Subscribe(TypeLeakAlert, fn)
	b.Subscribe(TypeLeakAlert, fn)

	b.Publish(New(TypeLeakAlert, nil))

	if calls != 2 {
		t.Fatalf("expected 2 deliveries, got %d", calls)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(nil)
	var first, second int
	sub := b.Subscribe(TypeLeakAlert, func(Event) { first++ })
	b.Subscribe(TypeLeakAlert, func(Event) { second++ })

	b.Publish(New(TypeLeakAlert, nil))
	b.Unsubscribe(sub)
	b.Publish(New(TypeLeakAlert, nil))

	if first != 1 {
		t.Errorf("unsubscribed handler still invoked: %d", first)
	}
	if second != 2 {
		t.Errorf("remaining handler lost deliveries: %d", second)
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	b := NewBus(nil)
	var calls int
	b.Subscribe(TypeLeakAlert, func(Event) { panic("boom") })
	b.Subscribe(TypeLeakAlert, func(Event) { calls++ })

	b.Publish(New(TypeLeakAlert, nil))

	if calls != 1 {
		t.Fatalf("handler after panicking one not invoked")
	}
	if b.Stats().Published != 1 {
		t.Errorf("publish aborted by handler panic")
	}
}

func TestStreamsReceiveAllEventsInOrder(t *testing.T) {
	b := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	s1 := b.OpenStream()
	s2 := b.OpenStream()
	defer b.CloseStream(s1)
	defer b.CloseStream(s2)

	const n = 10
	for i := 0; i < n; i++ {
		b.Publish(New(TypeTelemetryTick, map[string]any{"tick": i}))
	}

	for _, st := range []*Stream{s1, s2} {
		for i := 0; i < n; i++ {
			select {
			case e := <-st.Events():
				if e.Payload["tick"] != i {
					t.Fatalf("stream %s out of order: got %v at position %d", st.ID(), e.Payload["tick"], i)
				}
			case <-time.After(time.Second):
				t.Fatalf("stream %s missing event %d", st.ID(), i)
			}
		}
	}
}

func TestSlowStreamDropsWithoutBlocking(t *testing.T) {
	b := NewBus(nil, WithStreamBuffer(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	slow := b.OpenStream()
	defer b.CloseStream(slow)

	// Never read from slow; its 2-slot buffer overflows.
	for i := 0; i < 20; i++ {
		b.Publish(New(TypeTelemetryTick, map[string]any{"tick": i}))
	}

	deadline := time.Now().Add(time.Second)
	for slow.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slow stream never recorded a drop")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if b.Stats().Published != 20 {
		t.Errorf("publisher stalled by slow stream: published=%d", b.Stats().Published)
	}
}

func TestCloseStreamIdempotent(t *testing.T) {
	b := NewBus(nil)
	st := b.OpenStream()
	if b.StreamCount() != 1 {
		t.Fatalf("expected 1 open stream, got %d", b.StreamCount())
	}
	b.CloseStream(st)
	b.CloseStream(st)
	b.CloseStream(nil)
	if b.StreamCount() != 0 {
		t.Fatalf("expected 0 open streams, got %d", b.StreamCount())
	}
	if _, ok := <-st.Events(); ok {
		t.Errorf("closed stream channel still open")
	}
}

func TestTypesCoverVocabulary(t *testing.T) {
	types := Types()
	if len(types) != 14 {
		t.Fatalf("expected 14 event types, got %d", len(types))
	}
	for _, typ := range types {
		if !Known(typ) {
			t.Errorf("listed type %q not known", typ)
		}
	}
	if Known(Type("unknown.thing")) {
		t.Errorf("arbitrary type reported as known")
	}
}
