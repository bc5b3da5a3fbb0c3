package events

import (
	"fmt"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe("s1")
	defer first.Close()
	second := bus.Subscribe("s1")
	defer second.Close()

	bus.Publish(Event{Type: RecognitionStarted, SessionID: "s1", RunID: "r1"})

	for _, sub := range []*Subscription{first, second} {
		ev := receive(t, sub)
		if ev.Type != RecognitionStarted || ev.RunID != "r1" {
			t.Errorf("got %s/%s, want recognition-started/r1", ev.Type, ev.RunID)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	}
}

func TestPublishScopedToSession(t *testing.T) {
	bus := NewBus()
	other := bus.Subscribe("s2")
	defer other.Close()

	bus.Publish(Event{Type: PageCompleted, SessionID: "s1"})

	select {
	case ev := <-other.C:
		t.Fatalf("subscriber of s2 received event for %s", ev.SessionID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublicationOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("s1")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Type: PageCompleted, SessionID: "s1", Completed: i})
	}
	for i := 0; i < 10; i++ {
		ev := receive(t, sub)
		if ev.Completed != i {
			t.Fatalf("event %d arrived with completed=%d", i, ev.Completed)
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus()
	bus.buffer = 4
	sub := bus.Subscribe("s1")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Type: PageCompleted, SessionID: "s1", Completed: i, Message: fmt.Sprintf("page %d", i)})
	}

	// Only the newest four survive.
	for want := 6; want < 10; want++ {
		ev := receive(t, sub)
		if ev.Completed != want {
			t.Fatalf("got completed=%d, want %d", ev.Completed, want)
		}
	}
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected extra event completed=%d", ev.Completed)
	default:
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("s1")
	if got := bus.SubscriberCount("s1"); got != 1 {
		t.Fatalf("subscriber count = %d, want 1", got)
	}
	sub.Close()
	sub.Close() // idempotent
	if got := bus.SubscriberCount("s1"); got != 0 {
		t.Fatalf("subscriber count after close = %d, want 0", got)
	}

	bus.Publish(Event{Type: RecognitionFinished, SessionID: "s1"})
	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("closed subscription received an event")
		}
	default:
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		typ  Type
		want bool
	}{
		{RecognitionStarted, false},
		{PageCompleted, false},
		{Heartbeat, false},
		{RecognitionFinished, true},
		{RecognitionFailed, true},
		{RecognitionCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.typ.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
