package bus

import (
	"testing"
	"time"
)

// drain collects up to n events from sub without blocking forever.
func drain(t *testing.T, sub *Subscriber, n int) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestBus_PublishOrder(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("m1")
	b.Publish("m1", TranscriptionStarted{Sequence: 1})
	b.Publish("m1", TranscriptionCompleted{Sequence: 1, Text: "hello"})
	b.Publish("m1", TranscriptionStarted{Sequence: 2})

	events := drain(t, sub, 3)
	want := []EventKind{KindTranscriptionStarted, KindTranscriptionCompleted, KindTranscriptionStarted}
	for i, ev := range events {
		if ev.Kind() != want[i] {
			t.Errorf("event %d: got %s, want %s", i, ev.Kind(), want[i])
		}
	}
}

func TestBus_ZeroSubscribersIsNoop(t *testing.T) {
	b := New()
	defer b.Close()

	// Must not panic or block.
	b.Publish("nobody", MeetingEnded{MeetingID: "nobody"})
}

func TestBus_MeetingIsolation(t *testing.T) {
	b := New()
	defer b.Close()

	s1 := b.Subscribe("m1")
	s2 := b.Subscribe("m2")

	b.Publish("m1", TranscriptionStarted{Sequence: 1})

	if got := drain(t, s1, 1); got[0].Kind() != KindTranscriptionStarted {
		t.Errorf("m1 subscriber got %s", got[0].Kind())
	}
	select {
	case ev := <-s2.Events():
		t.Errorf("m2 subscriber unexpectedly received %v", ev)
	default:
	}
}

func TestBus_FailingSubscriberIsPruned(t *testing.T) {
	b := New(WithBuffer(1))
	defer b.Close()

	slow := b.Subscribe("m1")
	healthy := b.Subscribe("m1")

	// Fill the slow subscriber's buffer, then overflow it.
	b.Publish("m1", TranscriptionStarted{Sequence: 1})
	b.Publish("m1", TranscriptionStarted{Sequence: 2})

	// The healthy subscriber drains as it goes, so publish one at a time.
	ev1 := drain(t, healthy, 1)
	if len(ev1) != 1 {
		t.Fatal("healthy subscriber should have received first event")
	}

	if b.SubscriberCount("m1") != 1 {
		t.Errorf("expected slow subscriber pruned, count=%d", b.SubscriberCount("m1"))
	}

	// Pruned subscriber's channel is closed after its buffered event.
	<-slow.Events()
	if _, ok := <-slow.Events(); ok {
		t.Error("pruned subscriber channel should be closed")
	}

	// Remaining subscriber still gets new events.
	b.Publish("m1", MeetingEnded{MeetingID: "m1"})
	rest := drain(t, healthy, 2)
	if rest[len(rest)-1].Kind() != KindMeetingEnded {
		t.Errorf("healthy subscriber missed event after prune: %v", rest)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("m1")
	b.Unsubscribe(sub)

	if _, ok := <-sub.Events(); ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if b.SubscriberCount("m1") != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount("m1"))
	}

	// Double unsubscribe is safe.
	b.Unsubscribe(sub)
}

func TestBus_NoReplay(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish("m1", TranscriptionStarted{Sequence: 1})
	late := b.Subscribe("m1")

	select {
	case ev := <-late.Events():
		t.Errorf("late subscriber should not receive prior events, got %v", ev)
	default:
	}
}

func TestBus_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe("m1")

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("channel should be closed after bus close")
	}

	// Publish and subscribe after close must not panic.
	b.Publish("m1", Error{Message: "x"})
	if _, ok := <-b.Subscribe("m1").Events(); ok {
		t.Error("subscriber created after close should be closed")
	}
}
