package events

import "testing"

func TestSubscribeFiltersKinds(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(SyncCompleted)
	defer cancel()

	bus.Publish(Event{Kind: QuizTick})
	bus.Publish(Event{Kind: SyncCompleted, Key: "activity-log"})

	ev := <-ch
	if ev.Kind != SyncCompleted || ev.Key != "activity-log" {
		t.Fatalf("expected sync completed event, got %+v", ev)
	}
	if ev.At.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		bus.Publish(Event{Kind: QuizTick, Payload: i})
	}

	var last Event
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Payload != 19 {
		t.Fatalf("expected newest event retained, got %+v", last.Payload)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	bus.Publish(Event{Kind: QuizTick})
}
